package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/repomirror/internal/config"
	"github.com/klauern/repomirror/internal/credentials"
	"github.com/klauern/repomirror/internal/export"
	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/mirror"
	"github.com/klauern/repomirror/internal/model"
	"github.com/klauern/repomirror/internal/pairs"
	"github.com/klauern/repomirror/internal/progress"
	"github.com/klauern/repomirror/internal/report"
	"github.com/klauern/repomirror/internal/security"
	"github.com/klauern/repomirror/internal/ui"
	"github.com/klauern/repomirror/internal/util"
)

// newBackend selects the git implementation. Tests replace it.
var newBackend = func(cfg *config.Config) git.Backend {
	if cfg.Mirror.Backend == config.BackendGoGit {
		return git.NewGoGit()
	}
	return git.NewCLI(cfg.Mirror.GitBinary)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Mirror every pair in the pairs file",
		UsageText: `repomirror run [options]
   repomirror run --pairs repos.txt
   repomirror run --pairs failed_repos.txt --concurrency 2
   repomirror run --push-mode branch --branch main
   repomirror run --dry-run`,
		Description: `Mirror each "source,dest" pair: clone the source, add the destination as a
   remote, fetch and push. Failed attempts are retried with a fixed delay.

   Pairs that still fail are written to the failure log, which uses the
   same format as the pairs file and can be passed back with --pairs.

   Tokens are read from the environment (REPOMIRROR_SOURCE_TOKEN and
   REPOMIRROR_DEST_TOKEN by default) and validated before any work starts.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pairs",
				Aliases: []string{"p"},
				Usage:   "Pairs file, one \"source,dest\" per line (- for stdin)",
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"j"},
				Usage:   "Maximum number of pairs mirrored at once",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Attempts per pair before giving up",
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Fixed delay between attempts",
			},
			&cli.StringFlag{
				Name:  "push-mode",
				Usage: "Push mode (mirror, branch)",
			},
			&cli.StringFlag{
				Name:  "branch",
				Usage: "Branch to push in branch mode",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Git implementation (exec, go-git)",
			},
			&cli.StringFlag{
				Name:  "scratch-dir",
				Usage: "Directory for temporary clones",
			},
			&cli.StringFlag{
				Name:  "failure-log",
				Usage: "Where to write pairs that failed",
			},
			&cli.StringFlag{
				Name:  "report-file",
				Usage: "Write a machine-readable run report to this file",
			},
			&cli.StringFlag{
				Name:  "report-format",
				Usage: "Run report format (json, yaml, markdown); defaults to the file extension",
			},
			&cli.BoolFlag{
				Name:  "skip-validation",
				Usage: "Skip credential validation (not recommended)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "List what would be mirrored without touching any repository",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			return runMirror(ctx, cmd, cfg)
		},
	}
}

// applyRunFlags overrides cfg with any flag that was set explicitly.
func applyRunFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("pairs") {
		cfg.Mirror.PairsFile = cmd.String("pairs")
	}
	if cmd.IsSet("concurrency") {
		cfg.Mirror.Concurrency = cmd.Int("concurrency")
	}
	if cmd.IsSet("max-attempts") {
		cfg.Mirror.MaxAttempts = cmd.Int("max-attempts")
	}
	if cmd.IsSet("retry-delay") {
		cfg.Mirror.RetryDelay = cmd.Duration("retry-delay")
	}
	if cmd.IsSet("push-mode") {
		cfg.Mirror.PushMode = cmd.String("push-mode")
	}
	if cmd.IsSet("branch") {
		cfg.Mirror.Branch = cmd.String("branch")
	}
	if cmd.IsSet("backend") {
		cfg.Mirror.Backend = cmd.String("backend")
	}
	if cmd.IsSet("scratch-dir") {
		cfg.Workspace.ScratchDir = cmd.String("scratch-dir")
	}
	if cmd.IsSet("failure-log") {
		cfg.Output.FailureLog = cmd.String("failure-log")
	}
	if cmd.IsSet("report-file") {
		cfg.Output.ReportFile = cmd.String("report-file")
	}
	if cmd.IsSet("report-format") {
		cfg.Output.ReportFormat = cmd.String("report-format")
	}
	if cmd.Bool("skip-validation") {
		cfg.Credentials.Validate = false
	}
}

func runMirror(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
	defer logging.Timer("run")()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	mode, err := cfg.GetPushMode()
	if err != nil {
		return err
	}
	exporter, err := reportExporter(cfg)
	if err != nil {
		return err
	}

	parsed, err := loadPairs(cfg.Mirror.PairsFile)
	if err != nil {
		return err
	}
	var invalid error
	if parsed.HasErrors() {
		printConfigErrors(cfg.Mirror.PairsFile, parsed.Errors)
		invalid = fmt.Errorf("%w: %d line(s) in %s", ErrInvalidPairs, len(parsed.Errors), cfg.Mirror.PairsFile)
	}
	if len(parsed.Pairs) == 0 {
		fmt.Println(ui.StatusWarning("No pairs to mirror"))
		return invalid
	}
	warnEmbeddedSecrets(parsed.Pairs)

	if cmd.Bool("dry-run") {
		printPlan(cfg, mode, parsed.Pairs)
		return invalid
	}

	provider := credentialProvider(cfg)
	if cfg.Credentials.Validate {
		if err := validateCredentials(ctx, cfg, provider); err != nil {
			return err
		}
	}

	op := &mirror.Operator{
		Backend:        newBackend(cfg),
		Credentials:    provider,
		ScratchRoot:    cfg.ScratchDir(),
		Mode:           mode,
		Branch:         cfg.Mirror.Branch,
		RemoteName:     cfg.Mirror.RemoteName,
		SourceUsername: cfg.Credentials.SourceUsername,
		DestUsername:   cfg.Credentials.DestUsername,
	}
	if err := op.Validate(); err != nil {
		return err
	}

	bar := progress.New(progress.Options{
		Max:         int64(len(parsed.Pairs)),
		Description: "Mirroring",
		Disabled:    !cfg.Output.Progress,
	})

	retrier := mirror.NewRetrier(op, mirror.Policy{
		MaxAttempts: cfg.Mirror.MaxAttempts,
		Delay:       cfg.Mirror.RetryDelay,
	})
	retrier.OnAttempt = func(pair model.RepoPair, attempt int, err error) {
		if bar.Enabled() || attempt >= cfg.Mirror.MaxAttempts {
			return
		}
		fmt.Fprintln(os.Stderr, ui.StatusRetry(fmt.Sprintf("%s (attempt %d/%d): %v",
			git.Redact(pair.Source), attempt, cfg.Mirror.MaxAttempts, err)))
	}

	sched := &mirror.Scheduler{
		Runner:      retrier,
		Concurrency: cfg.Mirror.Concurrency,
		OnOutcome: func(o model.SyncOutcome) {
			_ = bar.Observe(o.Succeeded)
		},
	}

	outcomes := sched.Run(ctx, parsed.Pairs)
	_ = bar.Finish()

	reporter := &report.Reporter{
		FailureLog: util.ExpandPath(cfg.Output.FailureLog),
		Out:        os.Stdout,
		Verbose:    cmd.Bool("verbose") || cmd.Bool("debug"),
	}
	if cfg.Output.FailureLog == "" {
		reporter.FailureLog = ""
	}
	r, err := reporter.Report(outcomes)
	if err != nil {
		return err
	}
	if exporter != nil {
		path := util.ExpandPath(cfg.Output.ReportFile)
		if err := exporter.ExportFile(r, path); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
	}

	var failed error
	if !r.Success() {
		failed = fmt.Errorf("%w: %d of %d", ErrPairsFailed, len(r.Failed), r.Total)
	}
	return errors.Join(failed, invalid)
}

// reportExporter returns nil when no report file is configured.
func reportExporter(cfg *config.Config) (*export.Exporter, error) {
	if cfg.Output.ReportFile == "" {
		return nil, nil
	}
	if cfg.Output.ReportFormat == "" {
		return export.New(export.FormatForPath(cfg.Output.ReportFile)), nil
	}
	format, err := export.ParseFormat(cfg.Output.ReportFormat)
	if err != nil {
		return nil, err
	}
	return export.New(format), nil
}

// loadPairs reads the pairs file, expanding ~ in the path.
func loadPairs(path string) (*pairs.Result, error) {
	if path == "" {
		return nil, errors.New("no pairs file configured (use --pairs or mirror.pairs_file)")
	}
	if path != pairs.Stdin {
		path = util.ExpandPath(path)
	}
	return pairs.Load(path)
}

func printConfigErrors(path string, errs []*pairs.ConfigError) {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, ui.StatusWarning(fmt.Sprintf("%s: %v", path, e)))
	}
}

// warnEmbeddedSecrets reports credentials written into pair locations.
// Runs continue; the embedded userinfo is replaced when a token is set.
func warnEmbeddedSecrets(list []model.RepoPair) {
	for _, f := range security.ScanPairs(list) {
		logging.Warn("credential found in pairs file",
			slog.Int("pair", f.Index+1),
			slog.String("side", f.Side),
			slog.String("pattern", f.Pattern),
		)
		if f.IsError() {
			fmt.Fprintln(os.Stderr, ui.StatusWarning(f.String()+"; use token environment variables instead"))
		}
	}
}

func printPlan(cfg *config.Config, mode model.PushMode, list []model.RepoPair) {
	fmt.Println("Dry run - no repositories will be touched")
	fmt.Printf("  Push mode:   %s (%s)\n", mode, mode.Description())
	if mode == model.PushBranch {
		fmt.Printf("  Branch:      %s\n", cfg.Mirror.Branch)
	}
	fmt.Printf("  Backend:     %s\n", cfg.Mirror.Backend)
	fmt.Printf("  Concurrency: %d\n", cfg.Mirror.Concurrency)
	fmt.Printf("  Attempts:    %d (delay %s)\n", cfg.Mirror.MaxAttempts, cfg.Mirror.RetryDelay)
	fmt.Printf("  Scratch dir: %s\n", cfg.ScratchDir())
	fmt.Println()
	for _, p := range list {
		fmt.Println("  " + ui.Pair(git.Redact(p.Source), git.Redact(p.Dest)))
	}
	fmt.Printf("\n%d pair(s) would be mirrored\n", len(list))
}

// credentialProvider reads tokens from the configured variables, falling
// back to the conventional variable of each service.
func credentialProvider(cfg *config.Config) credentials.Provider {
	return credentials.NewEnvProvider(
		append([]string{cfg.Credentials.SourceTokenEnv}, fallbackTokenVars(cfg.Credentials.SourceService)...),
		append([]string{cfg.Credentials.DestTokenEnv}, fallbackTokenVars(cfg.Credentials.DestService)...),
	)
}

func fallbackTokenVars(service string) []string {
	switch service {
	case config.ServiceGitLab:
		return []string{"GITLAB_TOKEN"}
	case config.ServiceGitHub:
		return []string{"GH_TOKEN", "GITHUB_TOKEN"}
	default:
		return nil
	}
}

// validateCredentials checks both tokens once against their services.
func validateCredentials(ctx context.Context, cfg *config.Config, provider credentials.Provider) error {
	src, err := credentials.NewValidator(cfg.Credentials.SourceService, cfg.Credentials.SourceAPIURL)
	if err != nil {
		return err
	}
	dst, err := credentials.NewValidator(cfg.Credentials.DestService, cfg.Credentials.DestAPIURL)
	if err != nil {
		return err
	}

	err = credentials.ValidateAll(ctx,
		credentials.Check{Side: "source", Token: provider.SourceToken(), Validator: src},
		credentials.Check{Side: "destination", Token: provider.DestToken(), Validator: dst},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.StatusError("Credential validation failed"))
		return err
	}
	logging.Info("credentials validated")
	return nil
}
