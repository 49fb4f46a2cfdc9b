package cmd

import (
	"context"
	"fmt"
	"os"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/display"
	"dynamo-lifecycle/internal/lifecycle"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	// Setup flags
	seedDemo bool
	seedTest bool

	// Reset flags
	resetConfirm bool
)

// setupCmd brings an environment up to the current schema
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Bring the environment up to the current schema",
	Long: `Apply pending migrations, optionally seed data and validate the result.

Setup runs the full migration batch, loads the requested seed data and
then probes every table and secondary index. Validation reads real
items, so a broken index fails the probe instead of passing silently.
On empty tables the probes pass vacuously.

Examples:
  # Migrate and validate
  dynamo-lifecycle setup

  # Fresh dev environment with demo recordings
  dynamo-lifecycle setup --seed-demo

  # Test fixtures for a CI run
  dynamo-lifecycle setup --seed-test --environment dev`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

// resetCmd clears the environment and rolls the schema back
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all data and roll back the schema",
	Long: `Delete every item from every application table, then roll back all
migrations.

This destroys the environment's data. The command refuses to run
without --confirm; on a terminal it offers to type the primary table
name instead.

Examples:
  # Non-interactive reset
  dynamo-lifecycle reset --confirm

  # Interactive reset with the typed confirmation
  dynamo-lifecycle reset`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	// Add lifecycle commands to root
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(resetCmd)

	// Setup flags
	setupCmd.Flags().BoolVar(&seedDemo, "seed-demo", false, "load demo recordings after migrating")
	setupCmd.Flags().BoolVar(&seedTest, "seed-test", false, "load test fixtures after migrating")

	// Reset flags
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "confirm the destructive reset")
}

// runSetup migrates, seeds and validates the environment
func runSetup(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	orchestrator, displayService, _, err := buildOrchestrator(ctx, cmd)
	if err != nil {
		return err
	}

	spinner := displayService.StartSpinner("Setting up environment")
	result, err := orchestrator.Setup(ctx, lifecycle.SetupOptions{
		SeedDemo: seedDemo,
		SeedTest: seedTest,
	})
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if err := displayService.Render(result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("setup finished with problems")
	}
	return nil
}

// runReset clears the environment after confirmation
func runReset(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	orchestrator, displayService, cfg, err := buildOrchestrator(ctx, cmd)
	if err != nil {
		return err
	}

	confirmed := resetConfirm
	if !confirmed {
		confirmed, err = askResetConfirmation(displayService, cfg)
		if err != nil {
			return err
		}
		if !confirmed {
			displayService.Info("Reset cancelled")
			return nil
		}
	}

	spinner := displayService.StartSpinner("Resetting environment")
	result, err := orchestrator.Reset(ctx, confirmed)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	return displayService.Render(result)
}

// askResetConfirmation asks for the typed confirmation phrase. Off a
// terminal there is nobody to ask, so the reset stays refused.
func askResetConfirmation(displayService display.Service, cfg *config.Config) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false, fmt.Errorf("refusing to reset %s without --confirm", cfg.Environment)
	}

	phrase := cfg.TableName(cfg.Store.Tables.Primary)
	dialog := displayService.NewConfirmationDialog(os.Stdin)
	message := fmt.Sprintf("This deletes all data in the %s environment and rolls back every migration.", cfg.Environment)
	return dialog.ConfirmDestructive(message, phrase)
}

// buildOrchestrator wires the lifecycle orchestrator from the CLI configuration
func buildOrchestrator(ctx context.Context, cmd *cobra.Command) (*lifecycle.Orchestrator, display.Service, *config.Config, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	displayService, err := newDisplayService()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := openStore(config, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	blobStore, err := openBlobStore(ctx, config, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	registry, err := loadRegistry()
	if err != nil {
		return nil, nil, nil, err
	}

	orchestrator, err := lifecycle.NewOrchestrator(client, blobStore, registry, config, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orchestrator, displayService, config, nil
}
