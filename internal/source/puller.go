package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:generate mockgen -source=puller.go -destination=mocks/mock_puller.go -package=mocks

// Puller keeps a local clone of a remote registry current.
type Puller interface {
	// CloneOrPull clones url into dir, or pulls when dir is already a clone.
	CloneOrPull(ctx context.Context, url, dir string) error
	// Head returns the revision checked out in dir.
	Head(ctx context.Context, dir string) (string, error)
}

// Git is the Puller backed by the git binary.
type Git struct {
	// Binary defaults to "git" on PATH.
	Binary string
	Logger *slog.Logger
}

var _ Puller = (*Git)(nil)

// CloneOrPull runs a shallow clone, or a pull in an existing clone.
func (g *Git) CloneOrPull(ctx context.Context, url, dir string) error {
	if isGitDir(dir) {
		g.logger().Debug("pulling registry clone", slog.String("path", dir))
		_, err := g.run(ctx, dir, "pull", "--ff-only")
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("git: create parent: %w", err)
	}
	g.logger().Info("cloning remote registry", slog.String("url", url), slog.String("path", dir))
	_, err := g.run(ctx, "", "clone", "--depth", "1", url, dir)
	return err
}

// Head returns the output of git rev-parse HEAD in dir.
func (g *Git) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", args[0], ctx.Err())
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

func (g *Git) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func isGitDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
