package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/joshrotenberg/skillet/internal"
	"github.com/joshrotenberg/skillet/internal/integrity"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/registry"
	"github.com/joshrotenberg/skillet/internal/search"
	"github.com/joshrotenberg/skillet/internal/storage"
	"github.com/joshrotenberg/skillet/internal/trust"
)

// withEnv loads the config, opens the registry once without background
// refreshes and hands it to fn. Logs go to stderr so stdout stays JSON.
func withEnv(ctx context.Context, cmd *cli.Command, fn func(context.Context, *internal.Env) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(logger)

	env, err := internal.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(stdout(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseRef splits "owner/name".
func parseRef(ref string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("expected owner/name, got %q", ref)
	}
	return owner, name, nil
}

func refArg(cmd *cli.Command) (owner, name string, err error) {
	if cmd.Args().Len() != 1 {
		return "", "", fmt.Errorf("%s takes exactly one owner/name argument", cmd.Name)
	}
	return parseRef(cmd.Args().First())
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search skills and print ranked results as JSON",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only skills in this category"},
			&cli.StringFlag{Name: "tag", Usage: "Only skills with this tag"},
			&cli.StringFlag{Name: "verified-with", Usage: "Only skills verified with this model"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum results, 0 for all", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				query = search.Wildcard
			}
			f := search.Filters{
				Category:     cmd.String("category"),
				Tag:          cmd.String("tag"),
				VerifiedWith: cmd.String("verified-with"),
			}
			return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
				return printJSON(cmd, env.Registry.Search(ctx, query, f, int(cmd.Int("limit"))))
			})
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare the latest versions of two skills",
		ArgsUsage: "<owner/name> <owner/name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("compare takes exactly two owner/name arguments")
			}
			a, err := models.ParseKey(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			b, err := models.ParseKey(cmd.Args().Get(1))
			if err != nil {
				return err
			}
			return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
				c, err := env.Registry.Compare(ctx, a, b)
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Recompute a skill's content hashes and compare them with its manifest",
		ArgsUsage: "<owner/name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "version", Usage: "Version (default latest)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			owner, name, err := refArg(cmd)
			if err != nil {
				return err
			}
			return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
				rep, err := env.Registry.VerifyIntegrity(ctx, owner, name, cmd.String("version"))
				if err != nil {
					return err
				}
				if err := printJSON(cmd, rep); err != nil {
					return err
				}
				if rep.Checked && !rep.OK {
					return fmt.Errorf("%s/%s: %d integrity mismatches", owner, name, len(rep.Mismatches))
				}
				return nil
			})
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a skill directory before publishing",
		ArgsUsage: "<dir>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("validate takes exactly one directory argument")
			}
			dir, err := storage.NewFS(cmd.Args().First())
			if err != nil {
				return err
			}
			res, err := registry.Validate(dir, ".", slog.Default())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func manifestCommand() *cli.Command {
	return &cli.Command{
		Name:      "manifest",
		Usage:     "Print the MANIFEST.sha256 for a skill directory",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "write", Aliases: []string{"w"}, Usage: "Write MANIFEST.sha256 into the directory"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("manifest takes exactly one directory argument")
			}
			dir, err := storage.NewFS(cmd.Args().First())
			if err != nil {
				return err
			}
			hashes, err := registry.HashDir(dir, ".", slog.Default())
			if err != nil {
				return err
			}
			manifest := integrity.FormatManifest(hashes)
			if cmd.Bool("write") {
				return dir.Write(integrity.ManifestFile, []byte(manifest))
			}
			_, err = fmt.Fprint(stdout(cmd), manifest)
			return err
		},
	}
}

func trustCommand() *cli.Command {
	return &cli.Command{
		Name:  "trust",
		Usage: "Manage trusted registries and pinned skills",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Trust a registry",
				ArgsUsage: "<registry>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "note", Usage: "Free-form note"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("trust add takes exactly one registry argument")
					}
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						return env.Registry.TrustSource(ctx, cmd.Args().First(), cmd.String("note"))
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Stop trusting a registry",
				ArgsUsage: "<registry>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("trust remove takes exactly one registry argument")
					}
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						return env.Registry.UntrustSource(ctx, cmd.Args().First())
					})
				},
			},
			{
				Name:  "list",
				Usage: "List trusted registries",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						regs, err := env.Registry.TrustedSources(ctx)
						if err != nil {
							return err
						}
						return printJSON(cmd, regs)
					})
				},
			},
			{
				Name:      "pin",
				Usage:     "Pin the current content hash of a skill",
				ArgsUsage: "<owner/name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					owner, name, err := refArg(cmd)
					if err != nil {
						return err
					}
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						pin, err := env.Registry.Pin(ctx, owner, name)
						if err != nil {
							return err
						}
						return printJSON(cmd, pin)
					})
				},
			},
			{
				Name:      "unpin",
				Usage:     "Remove a skill pin",
				ArgsUsage: "<owner/name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					owner, name, err := refArg(cmd)
					if err != nil {
						return err
					}
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						return env.Registry.Unpin(ctx, owner, name)
					})
				},
			},
			{
				Name:  "audit",
				Usage: "Compare pinned skills with the current registry content",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Only audit this owner"},
					&cli.StringFlag{Name: "name", Usage: "Only audit this skill name"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEnv(ctx, cmd, func(ctx context.Context, env *internal.Env) error {
						results, err := env.Registry.Audit(ctx, trust.AuditFilter{
							Owner: cmd.String("owner"),
							Name:  cmd.String("name"),
						})
						if err != nil {
							return err
						}
						if err := printJSON(cmd, results); err != nil {
							return err
						}
						if trust.HasProblems(results) {
							return errors.New("audit found modified or missing skills")
						}
						return nil
					})
				},
			},
		},
	}
}
