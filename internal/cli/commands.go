package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/repomirror/internal/config"
	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/ui"
	"github.com/klauern/repomirror/internal/workspace"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the source and destination tokens without mirroring",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			provider := credentialProvider(cfg)
			for _, side := range []struct {
				name, service string
				missing       bool
			}{
				{"source", cfg.Credentials.SourceService, provider.SourceToken().IsZero()},
				{"destination", cfg.Credentials.DestService, provider.DestToken().IsZero()},
			} {
				if side.missing {
					fmt.Println(ui.StatusWarning(fmt.Sprintf("No %s token found", side.name)))
				} else {
					fmt.Printf("%s token found (%s)\n", side.name, side.service)
				}
			}

			if err := validateCredentials(ctx, cfg, provider); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess("Credentials valid"))
			return nil
		},
	}
}

func pairsCommand() *cli.Command {
	return &cli.Command{
		Name:      "pairs",
		Usage:     "Parse a pairs file and list its entries",
		UsageText: "repomirror pairs [FILE]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Mirror.PairsFile
			if cmd.Args().Len() > 0 {
				path = cmd.Args().First()
			}

			parsed, err := loadPairs(path)
			if err != nil {
				return err
			}

			for i, p := range parsed.Pairs {
				fmt.Printf("%3d  %s\n", i+1, ui.Pair(git.Redact(p.Source), git.Redact(p.Dest)))
			}
			fmt.Printf("\n%d valid pair(s)\n", len(parsed.Pairs))
			warnEmbeddedSecrets(parsed.Pairs)

			if parsed.HasErrors() {
				printConfigErrors(path, parsed.Errors)
				return fmt.Errorf("%w: %d line(s) in %s", ErrInvalidPairs, len(parsed.Errors), path)
			}
			return nil
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove scratch directories left behind by interrupted runs",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Only remove directories older than this (default: workspace.stale_after)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "List directories without removing them",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			olderThan := cfg.Workspace.StaleAfter
			if cmd.IsSet("older-than") {
				olderThan = cmd.Duration("older-than")
			}
			dryRun := cmd.Bool("dry-run")

			removed, err := workspace.Prune(cfg.ScratchDir(), olderThan, dryRun)
			for _, p := range removed {
				if dryRun {
					fmt.Println("would remove " + p)
				} else {
					fmt.Println(ui.StatusSuccess("removed " + p))
				}
			}
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Printf("No scratch directories older than %s in %s\n", olderThan, cfg.ScratchDir())
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create the configuration file",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Value: "yaml",
						Usage: "Output format (yaml, toml)",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					format := strings.ToLower(cmd.String("format"))
					if format != "yaml" && format != "toml" {
						return fmt.Errorf("unsupported format %q (valid: yaml, toml)", format)
					}
					data, err := cfg.Encode("config." + format)
					if err != nil {
						return err
					}
					fmt.Print(string(data))
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := cmd.String("config")
					if path == "" {
						path = config.FilePath()
						if !config.Exists() {
							fmt.Fprintln(os.Stderr, ui.StatusWarning("Not created yet; run repomirror config init"))
						}
					}
					fmt.Println(path)
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write the default configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := cmd.String("config")
					if path == "" {
						path = config.FilePath()
					}
					if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}
					if err := config.Default().SaveToPath(filepath.Clean(path)); err != nil {
						return fmt.Errorf("failed to write config: %w", err)
					}
					fmt.Println(ui.StatusSuccess("Wrote " + path))
					return nil
				},
			},
		},
	}
}
