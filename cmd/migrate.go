package cmd

import (
	"fmt"
	"time"

	"dynamo-lifecycle/internal/display"
	"dynamo-lifecycle/internal/migrate"

	"github.com/spf13/cobra"
)

var (
	// Migration direction flags
	migrateUpTarget   string
	migrateDownTarget string

	// Migration authoring flags
	migrateDescription string
	migrateDir         string
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage schema migrations",
	Long: `Apply, roll back and inspect versioned schema migrations.

Migrations are compiled into the binary and applied in version order
against the target environment. Every applied version is recorded in the
tracking table, so the same command is safe to run repeatedly.

Examples:
  # Apply all pending migrations
  dynamo-lifecycle migrate up

  # Apply migrations up to and including a version
  dynamo-lifecycle migrate up --target 20250614083000

  # Roll back everything above a version
  dynamo-lifecycle migrate down --target 20250601120000

  # Show which migrations are applied
  dynamo-lifecycle migrate status

  # Scaffold a new migration file
  dynamo-lifecycle migrate create --description "add codec attribute"`,
}

// migrateUpCmd applies pending migrations
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Apply every pending migration in ascending version order.

Each migration is recorded in the tracking table before the next one
starts. The batch stops at the first failure and keeps what already
succeeded, so a re-run continues where it stopped.

Examples:
  # Apply everything
  dynamo-lifecycle migrate up

  # Stop after a specific version
  dynamo-lifecycle migrate up --target 20250614083000`,
	Args: cobra.NoArgs,
	RunE: runMigrateUp,
}

// migrateDownCmd rolls back applied migrations
var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	Long: `Roll back applied migrations in descending version order.

Every migration above the target version is rolled back; its tracking
record is removed only after the rollback succeeds. Without a target the
whole history is rolled back.

Examples:
  # Roll back to a version (exclusive)
  dynamo-lifecycle migrate down --target 20250601120000

  # Roll back everything
  dynamo-lifecycle migrate down`,
	Args: cobra.NoArgs,
	RunE: runMigrateDown,
}

// migrateStatusCmd shows the applied state of every migration
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Show every known migration with its applied state.

Tracking records whose migration is no longer in the catalog are listed
too, so drift between the code and the tracking table stays visible.

Examples:
  # Human-readable status
  dynamo-lifecycle migrate status

  # Status for scripting
  dynamo-lifecycle migrate status --output json`,
	Args: cobra.NoArgs,
	RunE: runMigrateStatus,
}

// migrateCreateCmd scaffolds a new migration file
var migrateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Scaffold a new migration file",
	Long: `Create a new migration source file with a timestamp version.

The file lands in the migrations directory with empty up and down
functions and registers itself in the catalog on build.

Examples:
  # Create a migration in the default directory
  dynamo-lifecycle migrate create --description "add codec attribute"

  # Create a migration somewhere else
  dynamo-lifecycle migrate create --description "new index" --dir ./internal/migrations`,
	Args: cobra.NoArgs,
	RunE: runMigrateCreate,
}

func init() {
	// Add migrate command to root
	rootCmd.AddCommand(migrateCmd)

	// Add subcommands
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateCreateCmd)

	// Direction flags
	migrateUpCmd.Flags().StringVar(&migrateUpTarget, "target", "", "apply up to and including this version (default: all)")
	migrateDownCmd.Flags().StringVar(&migrateDownTarget, "target", "", "roll back everything above this version (default: all)")

	// Authoring flags
	migrateCreateCmd.Flags().StringVar(&migrateDescription, "description", "", "short description of the migration")
	migrateCreateCmd.Flags().StringVar(&migrateDir, "dir", "internal/migrations", "directory for the new migration file")
	migrateCreateCmd.MarkFlagRequired("description")
}

// runMigrateUp applies pending migrations
func runMigrateUp(cmd *cobra.Command, args []string) error {
	runner, displayService, err := buildMigrationRunner(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	spinner := displayService.StartSpinner("Applying migrations")
	result, runErr := runner.Up(ctx, migrateUpTarget)
	spinner.Stop()

	if result != nil {
		if err := displayService.Render(result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("migration failed: %w", runErr)
	}
	return nil
}

// runMigrateDown rolls back applied migrations
func runMigrateDown(cmd *cobra.Command, args []string) error {
	runner, displayService, err := buildMigrationRunner(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	spinner := displayService.StartSpinner("Rolling back migrations")
	result, runErr := runner.Down(ctx, migrateDownTarget)
	spinner.Stop()

	if result != nil {
		if err := displayService.Render(result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("rollback failed: %w", runErr)
	}
	return nil
}

// runMigrateStatus shows the applied state of every migration
func runMigrateStatus(cmd *cobra.Command, args []string) error {
	runner, displayService, err := buildMigrationRunner(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	statuses, err := runner.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	return displayService.Render(statuses)
}

// runMigrateCreate scaffolds a new migration file
func runMigrateCreate(cmd *cobra.Command, args []string) error {
	displayService, err := newDisplayService()
	if err != nil {
		return err
	}

	path, err := migrate.WriteUnitStub(migrateDir, migrateDescription, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	displayService.Success(fmt.Sprintf("Created migration %s", path))
	displayService.Info("Register the new unit in internal/migrations/catalog.go")
	return nil
}

// buildMigrationRunner wires a migration runner from the CLI configuration
func buildMigrationRunner(cmd *cobra.Command) (*migrate.Runner, display.Service, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	displayService, err := newDisplayService()
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := openStore(config, logger)
	if err != nil {
		return nil, nil, err
	}

	registry, err := loadRegistry()
	if err != nil {
		return nil, nil, err
	}

	runner, err := migrate.NewRunner(client, registry, config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create migration runner: %w", err)
	}
	return runner, displayService, nil
}
