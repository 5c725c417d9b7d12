package registry

import (
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// ExtraDirs are the skill subdirectories whose files ship with the skill.
// rules/ follows the convention of some external skill repositories.
var ExtraDirs = []string{"scripts", "references", "assets", "rules"}

// loadExtraFiles reads the regular files directly inside each extra
// directory. Files that are not valid UTF-8 text are skipped.
func loadExtraFiles(p storage.Provider, dir string, logger *slog.Logger) (map[string]models.SkillFile, error) {
	files := make(map[string]models.SkillFile)
	for _, sub := range ExtraDirs {
		subdir := joinPath(dir, sub)
		if !storage.IsDir(p, subdir) {
			continue
		}
		entries, err := p.ReadDir(subdir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			data, err := p.Read(joinPath(subdir, e.Name()))
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(data) {
				logger.Debug("registry: skipping non-text file", slog.String("path", joinPath(subdir, e.Name())))
				continue
			}
			files[sub+"/"+e.Name()] = models.SkillFile{
				Content:  string(data),
				MIMEType: MIMEType(e.Name()),
			}
		}
	}
	return files, nil
}

// MIMEType classifies a file name by extension.
func MIMEType(name string) string {
	switch strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".") {
	case "md":
		return "text/markdown"
	case "sh", "bash":
		return "text/x-shellscript"
	case "py":
		return "text/x-python"
	case "js":
		return "text/javascript"
	case "ts":
		return "text/typescript"
	case "json":
		return "application/json"
	case "toml":
		return "application/toml"
	case "yaml", "yml":
		return "text/yaml"
	default:
		return "text/plain"
	}
}
