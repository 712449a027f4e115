package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sfextract/pkg/config"
	"sfextract/pkg/credentials"
	"sfextract/pkg/logger"
	"sfextract/pkg/metrics"
	"sfextract/pkg/pipeline"
	"sfextract/pkg/source"
	"sfextract/pkg/storage"
	"sfextract/pkg/ui"
	"sfextract/pkg/ui/tui"
)

var (
	// Run command flags
	entityName     string
	selectFields   string
	profileName    string
	bucket         string
	prefix         string
	checkpointPath string
	checkpointMode string
	maxAttempts    int
	baseDelay      time.Duration
	enableMetrics  bool
	forceRestart   bool
	dryRun         bool
	useTUI         bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract one entity into object storage",
	Long: `Extract every record of the configured entity and write it to object storage.

Client credentials are taken from, in order:
  - The configuration file or SFEXTRACT_CLIENT_ID / SFEXTRACT_CLIENT_SECRET
  - The stored profile named by --profile (see 'sfextract credentials set')
  - The stored profile named "default"

If a checkpoint exists the run resumes from it. A failed run leaves the
checkpoint in place and prints where it is; rerun the same command to resume.`,
	Example: `  # Extract the User entity to the configured bucket
  sfextract run --entity User

  # Only selected fields, with a stored credentials profile
  sfextract run --entity User --select userId,firstName,lastName --profile prod

  # Start over, ignoring an existing checkpoint
  sfextract run --entity User --force-restart

  # Exercise the source without writing anything durable
  sfextract run --entity User --dry-run

  # Interactive job monitor
  sfextract run --entity User --tui`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&entityName, "entity", "e", "", "entity to extract")
	runCmd.Flags().StringVar(&selectFields, "select", "", "comma-separated fields to select")
	runCmd.Flags().StringVarP(&profileName, "profile", "p", "", "stored credentials profile")
	runCmd.Flags().StringVarP(&bucket, "bucket", "b", "", "destination bucket")
	runCmd.Flags().StringVar(&prefix, "prefix", "", "destination key prefix")
	runCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file path")
	runCmd.Flags().StringVar(&checkpointMode, "checkpoint-mode", "", "when to checkpoint: before_upload or after_upload")
	runCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "maximum attempts per operation")
	runCmd.Flags().DurationVar(&baseDelay, "base-delay", 0, "delay before the first retry, doubled on every further retry")
	runCmd.Flags().BoolVar(&enableMetrics, "metrics", false, "expose Prometheus metrics while running")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard an existing checkpoint and start over")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and serialize, but keep objects and checkpoints in memory")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show the interactive job monitor")
}

func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags()
	if entityName != "" {
		flags["entity"] = entityName
	}
	if selectFields != "" {
		flags["select"] = selectFields
	}
	if profileName != "" {
		flags["profile"] = profileName
	}
	if bucket != "" {
		flags["bucket"] = bucket
	}
	if prefix != "" {
		flags["prefix"] = prefix
	}
	if checkpointPath != "" {
		flags["checkpoint"] = checkpointPath
	}
	if checkpointMode != "" {
		flags["checkpoint-mode"] = checkpointMode
	}
	if maxAttempts > 0 {
		flags["max-attempts"] = maxAttempts
	}
	if baseDelay > 0 {
		flags["base-delay"] = baseDelay
	}
	if cmd.Flags().Changed("metrics") {
		flags["metrics"] = enableMetrics
	}
	return flags
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		return err
	}

	// Console logs would tear the full-screen monitor
	if useTUI && cfg.Logging.File == "" {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("sfextract starting")

	creds, err := resolveCredentials(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				log.WithError(err).Warn("Metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.Metrics.ListenAddr).Info("Serving metrics")
	}

	opts := pipeline.BuildOptions{
		DryRun:       dryRun,
		ForceRestart: forceRestart,
		Metrics:      m,
	}

	var (
		res    pipeline.Result
		runErr error
	)
	if useTUI {
		res, runErr = runWithMonitor(ctx, cfg, creds, log, opts)
	} else {
		if !quiet {
			ui.PrintBanner()
			ui.PrintInfo("Entity", cfg.Source.EntityName)
			ui.PrintInfo("Checkpoint", cfg.CheckpointLocation())
			if dryRun {
				ui.PrintWarning("Dry run, nothing durable is written")
			}
			opts.Observer = ui.NewConsole(os.Stdout, cfg.Source.EntityName, verbose)
		}
		res, runErr = runPlain(ctx, cfg, creds, log, opts)
	}

	if runErr != nil {
		ui.PrintFailure(os.Stderr, runErr)
		return errAlreadyReported
	}
	ui.PrintSummary(os.Stdout, cfg.Source.EntityName, res)
	return nil
}

func runPlain(ctx context.Context, cfg *config.Config, creds source.Credentials, log logger.Logger, opts pipeline.BuildOptions) (pipeline.Result, error) {
	built, err := pipeline.Build(ctx, cfg, creds, log, opts)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeBuilt(built, log)

	res, err := built.Job.Run(ctx)
	if err == nil && opts.DryRun {
		printDryRunObjects(built.Store)
	}
	return res, err
}

func runWithMonitor(ctx context.Context, cfg *config.Config, creds source.Credentials, log logger.Logger, opts pipeline.BuildOptions) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitor := tui.NewTUI(cfg.Source.EntityName, cancel)
	opts.Observer = monitor

	built, err := pipeline.Build(ctx, cfg, creds, log, opts)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeBuilt(built, log)

	var (
		res    pipeline.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = built.Job.Run(ctx)
		monitor.Finish(res, runErr)
	}()

	if err := monitor.Run(); err != nil {
		cancel()
		<-done
		return res, fmt.Errorf("terminal UI failed: %w", err)
	}
	<-done
	return res, runErr
}

func closeBuilt(b *pipeline.Built, log logger.Logger) {
	if err := b.Close(); err != nil {
		log.WithError(err).Warn("Failed to release storage clients")
	}
}

func printDryRunObjects(store storage.Store) {
	mem, ok := store.(*storage.MemoryStore)
	if !ok {
		return
	}
	for _, obj := range mem.Objects() {
		ui.PrintInfo("Would write", fmt.Sprintf("%s (%s)", mem.URI(obj.Key), ui.FormatBytes(int64(len(obj.Body)))))
	}
}

// resolveCredentials fills missing client credentials from a stored profile
func resolveCredentials(cfg *config.Config, log logger.Logger) (source.Credentials, error) {
	name := cfg.Source.CredentialsProfile
	if name != "" || !cfg.HasClientCredentials() {
		if name == "" {
			name = "default"
		}
		profile, err := loadProfile(name)
		switch {
		case err == nil:
			profile.Apply(&cfg.Source)
			log.WithField("profile", name).Info("Using stored credentials")
		case cfg.Source.CredentialsProfile != "":
			return source.Credentials{}, err
		case !errors.Is(err, credentials.ErrCredentialsNotFound):
			log.WithError(err).Warn("Credential store unavailable")
		}
	}

	if !cfg.HasClientCredentials() {
		return source.Credentials{}, errors.New("no client credentials: set SFEXTRACT_CLIENT_ID and SFEXTRACT_CLIENT_SECRET, or run 'sfextract credentials set'")
	}
	return source.Credentials{
		ClientID:     cfg.Source.ClientID,
		ClientSecret: cfg.Source.ClientSecret,
		CompanyID:    cfg.Source.CompanyID,
		UserID:       cfg.Source.UserID,
	}, nil
}

func loadProfile(name string) (*credentials.Profile, error) {
	manager, err := newCredentialManager()
	if err != nil {
		return nil, err
	}
	return manager.Retrieve(name)
}

func newCredentialManager() (*credentials.Manager, error) {
	dir, err := credentials.DefaultConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	manager, err := credentials.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	return manager, nil
}
