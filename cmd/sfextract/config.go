package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sfextract/pkg/config"
	"sfextract/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage sfextract configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (SFEXTRACT_*)
  - .env and ~/.sfextract.env
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# sfextract configuration
#
# Every value can also be set through SFEXTRACT_* environment variables,
# e.g. SFEXTRACT_CLIENT_SECRET or SFEXTRACT_BUCKET.

source:
  token_url: "https://api.example.successfactors.com/oauth/token"
  api_base_url: "https://api.example.successfactors.com"
  entity_name: "User"
  # Comma-separated $select list; empty selects everything
  select_fields: ""
  # Where the record array and the next page live in a response (gjson paths)
  results_path: "data.results"
  next_page_path: "data.nextPage"
  # Prefer 'sfextract credentials set' over storing secrets here
  credentials_profile: "default"
  request_timeout: 60s
  auth_timeout: 30s
  # 0 disables client-side pacing
  requests_per_minute: 0
  # Wait applied to a 429 without a usable Retry-After
  default_retry_after: 30s

retry:
  max_attempts: 5
  base_delay: 1s

storage:
  # s3, gcs or fs
  type: "s3"
  bucket: "my-landing-bucket"
  prefix: "successfactors-data"
  region: "eu-central-1"
  # S3-compatible endpoint, e.g. MinIO
  endpoint: ""
  use_path_style: false
  # Root directory for type fs
  local_path: ""
  # Service account key for type gcs
  credentials_file: ""
  upload_timeout: 60s

checkpoint:
  # file or redis
  backend: "file"
  path: "./sfextract.state.json"
  # before_upload or after_upload
  mode: "before_upload"
  redis_addr: ""
  redis_db: 0
  redis_key: "sfextract:checkpoint"

metrics:
  enabled: false
  listen_addr: ":9090"

logging:
  level: "info"
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".sfextract.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the source and storage sections")
	fmt.Println("2. Store client credentials with 'sfextract credentials set'")
	fmt.Println("3. Check the result with 'sfextract config validate'")
	fmt.Println("4. Extract with 'sfextract run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return err
	}

	display := *cfg
	display.Source.ClientSecret = mask(display.Source.ClientSecret)
	display.Checkpoint.RedisPassword = mask(display.Checkpoint.RedisPassword)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Effective configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return err
	}

	var warnings []string
	if !cfg.HasClientCredentials() && cfg.Source.CredentialsProfile == "" {
		warnings = append(warnings, "no client credentials and no credentials profile configured")
	}
	if cfg.Storage.Type == config.StorageFS {
		if err := os.MkdirAll(cfg.Storage.LocalPath, 0755); err != nil {
			return fmt.Errorf("cannot create storage directory: %w", err)
		}
	}
	if cfg.Checkpoint.Mode == config.CheckpointAfterUpload {
		warnings = append(warnings, "after_upload checkpoints may write a chunk twice after a crash")
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}
	if len(warnings) > 0 {
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Entity: %s\n", cfg.Source.EntityName)
	fmt.Printf("  Destination: %s://%s/%s\n", cfg.Storage.Type, cfg.Storage.Bucket, cfg.Storage.Prefix)
	fmt.Printf("  Checkpoint: %s (%s)\n", cfg.CheckpointLocation(), cfg.Checkpoint.Mode)
	fmt.Printf("  Retry: %d attempts, base delay %s\n", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

