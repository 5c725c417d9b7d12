// Package parser extracts frontmatter and inferred metadata from SKILL.md
// documents.
package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/joshrotenberg/skillet/internal/models"
)

// MaxDescription is the rune limit for descriptions inferred from the body.
const MaxDescription = 200

// DefaultVersion is assigned to skills that declare no version.
const DefaultVersion = "0.1.0"

// Frontmatter is the YAML header understood in SKILL.md files.
type Frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	License     string   `yaml:"license"`
	Author      string   `yaml:"author"`
	Trigger     string   `yaml:"trigger"`
	Tags        []string `yaml:"tags"`
	Categories  []string `yaml:"categories"`
}

// Result holds the output of parsing a SKILL.md file.
type Result struct {
	Frontmatter *Frontmatter
	Body        string
	Title       string
}

// Parse splits frontmatter from the body and derives the title.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(body),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Missing or invalid frontmatter leaves the whole
// content as body.
func splitFrontmatter(data []byte) (*Frontmatter, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return &fm, body
}

// deriveTitle returns the first H1 heading, or empty string.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// InferDescription returns the first non-empty line of body that is not a
// heading, truncated to MaxDescription runes.
func InferDescription(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return truncateRunes(trimmed, MaxDescription)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// InferMetadata builds metadata for a skill directory that ships no
// skill.toml. Frontmatter values win over inference; the directory decides
// owner and name.
func InferMetadata(owner, name string, data []byte) models.SkillMetadata {
	res := Parse(data)
	info := models.SkillInfo{
		Owner:   owner,
		Name:    name,
		Version: DefaultVersion,
	}

	fm := res.Frontmatter
	if fm != nil {
		info.Description = strings.TrimSpace(fm.Description)
		if fm.Version != "" {
			info.Version = fm.Version
		}
		info.License = fm.License
		info.Trigger = fm.Trigger
		if fm.Author != "" {
			info.Author = &models.Author{Name: fm.Author}
		}
		if len(fm.Tags) > 0 || len(fm.Categories) > 0 {
			info.Classification = &models.Classification{
				Categories: fm.Categories,
				Tags:       fm.Tags,
			}
		}
	}
	if info.Description == "" {
		info.Description = InferDescription(res.Body)
	}
	if info.Description == "" {
		info.Description = res.Title
	}
	return models.SkillMetadata{Skill: info}
}

// InferOwner derives an owner for skills found without an owner directory.
// Remote URLs (https or scp-style) yield the account segment before the
// repository; local paths yield their base name. Anything else is "local".
func InferOwner(location string) string {
	loc := strings.TrimSuffix(strings.TrimRight(location, "/"), ".git")
	if strings.Contains(loc, "://") || (strings.Contains(loc, "@") && strings.Contains(loc, ":")) {
		parts := strings.FieldsFunc(loc, func(r rune) bool { return r == '/' || r == ':' })
		if len(parts) >= 2 {
			return parts[len(parts)-2]
		}
		return "local"
	}
	if i := strings.LastIndexAny(loc, `/\`); i >= 0 {
		loc = loc[i+1:]
	}
	if loc == "" || loc == "." || loc == ".." {
		return "local"
	}
	return loc
}
