package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/display"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/migrations"
	"dynamo-lifecycle/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Environment flags
	environment string

	// Operation flags
	verbose bool
	quiet   bool

	// Display flags
	noColor       bool
	noIcons       bool
	themeName     string
	outputFormat  string
	maxTableWidth int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dynamo-lifecycle",
	Short: "Manage the schema, data and backups of a DynamoDB environment",
	Long: `dynamo-lifecycle drives the full lifecycle of a DynamoDB-backed
environment: versioned schema migrations, environment setup and reset,
manifest-based backups with tiered retention, restore and verification.

Tables are addressed by alias and suffixed with the environment name, so
the same commands work against dev, staging and prod. Backups live in a
blob store (S3, GCS, Azure or a local directory) and restore cleanly
across environments.

Examples:
  # Apply all pending migrations to the dev environment
  dynamo-lifecycle migrate up --environment=dev

  # Bring up a fresh environment with demo data
  dynamo-lifecycle setup --seed-demo

  # Take a full backup and list what exists
  dynamo-lifecycle backup create
  dynamo-lifecycle backup list

  # Restore a backup into another environment without overwriting
  dynamo-lifecycle backup restore nightly-2025-08-20 --environment=staging

  # Prune old backups, keeping weekly and monthly representatives
  dynamo-lifecycle backup cleanup --retention-days=7 --keep-weekly=4

  # Machine-readable output for scripting
  dynamo-lifecycle migrate status --output=json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dynamo-lifecycle.yaml)")

	// Environment flags
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", "", "target environment (dev, staging, prod)")

	// Operation flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	// Display flags
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "dark", "color theme (dark, light, high-contrast, plain)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, yaml)")
	rootCmd.PersistentFlags().IntVar(&maxTableWidth, "max-table-width", 120, "maximum table width (40-300)")

	// Bind flags to viper
	viper.BindPFlag("environment", rootCmd.PersistentFlags().Lookup("environment"))
	viper.BindPFlag("display.theme", rootCmd.PersistentFlags().Lookup("theme"))
	viper.BindPFlag("display.output_format", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("display.max_table_width", rootCmd.PersistentFlags().Lookup("max-table-width"))

	// Add usage examples
	rootCmd.SetUsageTemplate(getUsageTemplate())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".dynamo-lifecycle" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dynamo-lifecycle")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("DYNAMO_LIFECYCLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// validateFlags validates CLI flags and their combinations
func validateFlags() error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}
	return nil
}

// buildConfig builds the lifecycle configuration from the config file,
// environment variables and CLI flags, in rising precedence
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := validateFlags(); err != nil {
		return nil, err
	}

	cfg := config.NewDefaultConfig()

	// Load from viper (combines config file and CLI flags)
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Secrets come from the process environment, never from the file
	cfg.LoadFromEnvironment()

	// Override with CLI flags if provided
	if cmd.Flags().Changed("environment") || environment != "" {
		if environment != "" {
			cfg.Environment = environment
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// buildDisplayConfig assembles the display configuration from CLI flags
func buildDisplayConfig() (*display.Config, error) {
	if _, err := display.ParseFormat(outputFormat); err != nil {
		return nil, err
	}

	cfg := display.DefaultConfig()
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(outputFormat))
	cfg.Theme = themeName
	cfg.ColorEnabled = !noColor
	cfg.UseIcons = !noIcons
	cfg.VerboseMode = verbose
	cfg.QuietMode = quiet
	cfg.MaxTableWidth = maxTableWidth

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("display configuration validation failed: %w", err)
	}
	return cfg, nil
}

// newDisplayService creates the display service used by every subcommand
func newDisplayService() (display.Service, error) {
	cfg, err := buildDisplayConfig()
	if err != nil {
		return nil, err
	}
	return display.NewService(cfg), nil
}

// newLogger creates the logger according to the verbosity flags. Logs go
// to stderr so rendered output on stdout stays parseable.
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevelNormal
	if verbose {
		level = logging.LogLevelVerbose
	}
	if quiet {
		level = logging.LogLevelQuiet
	}
	return logging.NewLogger(logging.Config{
		Level:  level,
		Output: os.Stderr,
		Format: "text",
	})
}

// commandContext returns a context that ends on SIGINT or SIGTERM, so a
// long export or restore stops at the next store call instead of dying
// mid-write
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore connects the store client for the configured environment
func openStore(cfg *config.Config, logger *logging.Logger) (store.Client, error) {
	client, err := store.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}
	return client, nil
}

// openBlobStore connects the configured blob provider
func openBlobStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (blob.Store, error) {
	blobStore, err := blob.NewStore(ctx, &cfg.Blob, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to blob store: %w", err)
	}
	return blobStore, nil
}

// loadRegistry builds the migration registry from the compiled-in catalog
func loadRegistry() (*migrate.Registry, error) {
	registry, err := migrations.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid migration catalog: %w", err)
	}
	return registry, nil
}

// getUsageTemplate returns a custom usage template with examples
func getUsageTemplate() string {
	return `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}

Configuration File:
  Generate a sample configuration file with: dynamo-lifecycle config

  Settings are read from .dynamo-lifecycle.yaml in the home directory or
  the working directory, overridden by DYNAMO_LIFECYCLE_* environment
  variables, overridden by flags.

Environment Variables:
  DYNAMO_LIFECYCLE_ENVIRONMENT=staging
  DYNAMO_LIFECYCLE_STORE_REGION=eu-west-1
  DYNAMO_LIFECYCLE_STORE_ACCESS_KEY=...      (secrets stay out of the file)
  DYNAMO_LIFECYCLE_STORE_SECRET_KEY=...
  DYNAMO_LIFECYCLE_BACKUP_PASSPHRASE=...     (enables chunk encryption)

Output Formats:
  text           - Tables and status lines for people (default)
  json           - Machine-readable JSON report on stdout
  yaml           - YAML report on stdout

Status lines always go to stderr, so json and yaml output can be piped.
`
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for dynamo-lifecycle",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dynamo-lifecycle version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

This command outputs a complete configuration template with all available
options. Redirect the output to a file and adjust it for your environment.

Examples:
  # Generate a config file
  dynamo-lifecycle config > .dynamo-lifecycle.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			sampleConfig := `# dynamo-lifecycle configuration file
# Complete configuration template with all available options

# Target environment: dev, staging or prod. Every table name is suffixed
# with this value, e.g. recordings-dev.
environment: dev

# Store connection (DynamoDB)
store:
  region: us-east-1        # AWS region
  endpoint: ""             # Custom endpoint; "memory" selects the in-memory store
  access_key: ""           # Leave empty, use DYNAMO_LIFECYCLE_STORE_ACCESS_KEY
  secret_key: ""           # Leave empty, use DYNAMO_LIFECYCLE_STORE_SECRET_KEY
  tables:
    primary: recordings    # Primary table alias
    aux:                   # Auxiliary table aliases
      - tokens
    key_attributes:        # Hash and range key attribute names
      - pk
      - ts
    indexes:               # Secondary indexes probed during setup validation
      - name: status-index
        hash_attribute: status
  readiness_interval: 2s   # Poll interval while waiting for tables to go active
  readiness_timeout: 5m    # Give up waiting after this long

# Blob storage for backups
blob:
  provider: local          # local, s3, gcs or azure
  bucket: backups          # Bucket or container name
  prefix: dynamo-lifecycle # Key prefix inside the bucket
  local:
    base_path: ./backups   # Directory used by the local provider
  # s3:
  #   region: us-east-1
  #   endpoint: ""         # Custom endpoint for S3-compatible stores
  # gcs:
  #   project_id: my-project
  #   credentials_path: /path/to/credentials.json
  # azure:
  #   account_name: myaccount

# Backup engine settings
backup:
  workers: 4               # Parallel scan segments per table export
  chunk_size: 1000         # Items per chunk file
  include_aux: false       # Include auxiliary tables in backups
  modified_attribute: updatedAt  # Attribute used by incremental backups
  compression:
    enabled: true
    codec: gzip            # gzip, zstd, lz4 or none
    level: 6
  encryption:
    enabled: false         # Enabled automatically when a passphrase is set
    passphrase: ""         # Use DYNAMO_LIFECYCLE_BACKUP_PASSPHRASE instead
  retention:
    retention_days: 7      # Backups younger than this are always kept
    keep_weekly: 4         # Weekly representatives kept beyond the window
    keep_monthly: 6        # Monthly representatives kept beyond the window

# Secrets via environment variables:
#   DYNAMO_LIFECYCLE_STORE_ACCESS_KEY=...
#   DYNAMO_LIFECYCLE_STORE_SECRET_KEY=...
#   DYNAMO_LIFECYCLE_BLOB_S3_ACCESS_KEY=...
#   DYNAMO_LIFECYCLE_BLOB_S3_SECRET_KEY=...
#   DYNAMO_LIFECYCLE_BLOB_AZURE_ACCOUNT_KEY=...
#   DYNAMO_LIFECYCLE_BACKUP_PASSPHRASE=...
`
			fmt.Print(sampleConfig)
		},
	}
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}
