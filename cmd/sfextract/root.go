package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"sfextract/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// errAlreadyReported makes Execute exit non-zero without printing again
var errAlreadyReported = errors.New("already reported")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sfextract",
	Short: "Extract a paginated API entity into partitioned object storage",
	Long: `sfextract pulls every record of one entity from a paginated OData API and
lands it in object storage as newline-delimited JSON partitions.

Features:
  - OAuth client-credentials authentication
  - Retry with exponential backoff, honoring Retry-After on rate limits
  - Checkpoints after every chunk, so an interrupted run resumes where it stopped
  - Records that cannot be serialized are written to a dead-letter object
  - S3, GCS or local filesystem destinations
  - Secure credential profiles in the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColor()
		}
		if quiet {
			logLevel = "error"
		}
		if verbose {
			logLevel = "debug"
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errAlreadyReported) {
			ui.Output = os.Stderr
			ui.PrintError("Error", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.sfextract.yaml or ~/.config/sfextract/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and every state transition")

	rootCmd.SetVersionTemplate(`sfextract {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags that feed config.Load
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
