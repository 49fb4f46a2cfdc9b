package cmd

import (
	"context"
	"fmt"
	"time"

	"dynamo-lifecycle/internal/backup"
	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/display"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"

	"github.com/spf13/cobra"
)

var (
	// Backup creation flags
	backupName       string
	backupIncludeAux bool
	backupBucket     string
	backupPrefix     string

	// Incremental backup flags
	incrementalName  string
	incrementalSince string

	// Restore flags
	restoreOverwrite bool
	restoreAux       bool
	restoreBatchSize int
	restoreDryRun    bool

	// Cleanup flags
	cleanupRetentionDays int
	cleanupKeepWeekly    int
	cleanupKeepMonthly   int
	cleanupDryRun        bool
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage environment backups",
	Long: `Create, restore, list, verify and prune backups of the environment.

A backup exports every covered table into chunked files under a blob
prefix and finishes by writing a manifest. The manifest goes up last, so
its presence marks the backup as complete. Restores resolve the manifest
first and fall back to the legacy single-file layout for old backups.

Examples:
  # Full backup with a generated name
  dynamo-lifecycle backup create

  # Named backup including auxiliary tables
  dynamo-lifecycle backup create --name nightly --include-aux

  # Incremental backup of recent changes
  dynamo-lifecycle backup incremental --since 2025-08-20T00:00:00Z

  # Restore into the current environment, skipping existing items
  dynamo-lifecycle backup restore nightly

  # Verify a backup without touching the store
  dynamo-lifecycle backup verify nightly

  # Apply the retention policy
  dynamo-lifecycle backup cleanup --dry-run`,
}

// backupCreateCmd creates a full backup
var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a full backup",
	Long: `Export every covered table and write the backup manifest.

The primary table is always included; auxiliary tables join with
--include-aux or the include_aux config setting. An interrupted export
leaves no manifest behind, so incomplete backups are never listed or
restored.

Examples:
  # Backup with a generated name
  dynamo-lifecycle backup create

  # Named backup to a different bucket
  dynamo-lifecycle backup create --name pre-release --bucket other-bucket`,
	Args: cobra.NoArgs,
	RunE: runBackupCreate,
}

// backupIncrementalCmd creates an incremental backup
var backupIncrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Create an incremental backup",
	Long: `Export only the items modified at or after the given time.

The cutoff compares against the configured modified attribute. Each
table lands in a single chunk; tables without changes keep an empty
entry in the manifest so the backup stays restorable on its own.

Examples:
  # Changes since a timestamp
  dynamo-lifecycle backup incremental --since 2025-08-20T00:00:00Z

  # Changes since a date, with a name
  dynamo-lifecycle backup incremental --since 2025-08-20 --name daily-delta`,
	Args: cobra.NoArgs,
	RunE: runBackupIncremental,
}

// backupRestoreCmd restores a backup into the current environment
var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name|path>",
	Short: "Restore a backup",
	Long: `Restore a backup into the configured environment.

The argument is a backup name or a full blob path. Table names from the
manifest are mapped through their alias, so a backup taken in one
environment restores into another. Existing items are skipped and
counted unless --overwrite is set. Failures are reported per table; one
failing table does not stop the others.

Examples:
  # Restore, keeping existing items
  dynamo-lifecycle backup restore nightly

  # Replace existing items and include auxiliary tables
  dynamo-lifecycle backup restore nightly --overwrite --restore-aux

  # See what would be restored
  dynamo-lifecycle backup restore nightly --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

// backupListCmd lists the backups of the environment
var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	Long: `List the backups of the configured environment, newest first.

Only complete backups appear: a backup without a readable manifest is
skipped with a warning.

Examples:
  # Human-readable list
  dynamo-lifecycle backup list

  # List for scripting
  dynamo-lifecycle backup list --output json`,
	Args: cobra.NoArgs,
	RunE: runBackupList,
}

// backupVerifyCmd verifies the integrity of a backup
var backupVerifyCmd = &cobra.Command{
	Use:   "verify <name|path>",
	Short: "Verify a backup",
	Long: `Check a backup for completeness without writing anything.

Three independent checks run: the manifest is present and parseable,
every referenced chunk file exists with a plausible size, and a sample
of chunks decompresses into valid data. All checks run even when an
early one fails, so the report shows everything that is wrong.

Examples:
  # Verify by name
  dynamo-lifecycle backup verify nightly

  # Verification report as JSON
  dynamo-lifecycle backup verify nightly --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupVerify,
}

// backupCleanupCmd applies the retention policy
var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old backups",
	Long: `Delete backups that fall out of the retention policy.

Backups younger than the retention window are always kept. Older
backups claim weekly and monthly representative slots, oldest first;
whatever claims no slot is deleted. A failed deletion is reported and
does not stop the remaining deletions.

Examples:
  # Preview what would be deleted
  dynamo-lifecycle backup cleanup --dry-run

  # Tighter policy than the config file
  dynamo-lifecycle backup cleanup --retention-days 3 --keep-weekly 2 --keep-monthly 3`,
	Args: cobra.NoArgs,
	RunE: runBackupCleanup,
}

func init() {
	// Add backup command to root
	rootCmd.AddCommand(backupCmd)

	// Add subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupIncrementalCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupCleanupCmd)

	// Backup creation flags
	backupCreateCmd.Flags().StringVar(&backupName, "name", "", "backup name (default: generated)")
	backupCreateCmd.Flags().BoolVar(&backupIncludeAux, "include-aux", false, "include auxiliary tables")
	backupCreateCmd.Flags().StringVar(&backupBucket, "bucket", "", "override the configured blob bucket")
	backupCreateCmd.Flags().StringVar(&backupPrefix, "prefix", "", "override the configured blob prefix")

	// Incremental backup flags
	backupIncrementalCmd.Flags().StringVar(&incrementalSince, "since", "", "export items modified at or after this time (RFC3339 or YYYY-MM-DD)")
	backupIncrementalCmd.Flags().StringVar(&incrementalName, "name", "", "backup name (default: generated)")
	backupIncrementalCmd.MarkFlagRequired("since")

	// Restore flags
	backupRestoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace existing items instead of skipping them")
	backupRestoreCmd.Flags().BoolVar(&restoreAux, "restore-aux", false, "restore auxiliary tables too")
	backupRestoreCmd.Flags().IntVar(&restoreBatchSize, "batch-size", 25, "items per write batch")
	backupRestoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "resolve and decode without writing")

	// Cleanup flags
	backupCleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", 0, "override the retention window in days")
	backupCleanupCmd.Flags().IntVar(&cleanupKeepWeekly, "keep-weekly", 0, "override the number of weekly representatives")
	backupCleanupCmd.Flags().IntVar(&cleanupKeepMonthly, "keep-monthly", 0, "override the number of monthly representatives")
	backupCleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report decisions without deleting")
}

// backupRuntime bundles the services a backup subcommand needs
type backupRuntime struct {
	config         *config.Config
	logger         *logging.Logger
	displayService display.Service
	storeClient    store.Client
	blobStore      blob.Store
}

// buildBackupRuntime wires configuration, logging, display and both
// storage backends for a backup subcommand
func buildBackupRuntime(ctx context.Context, cmd *cobra.Command) (*backupRuntime, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	// Blob location overrides apply before the provider connects
	if cmd.Flags().Changed("bucket") && backupBucket != "" {
		config.Blob.Bucket = backupBucket
	}
	if cmd.Flags().Changed("prefix") {
		config.Blob.Prefix = backupPrefix
	}
	if cmd.Flags().Changed("include-aux") {
		config.Backup.IncludeAux = backupIncludeAux
	}

	displayService, err := newDisplayService()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	storeClient, err := openStore(config, logger)
	if err != nil {
		return nil, err
	}

	blobStore, err := openBlobStore(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	return &backupRuntime{
		config:         config,
		logger:         logger,
		displayService: displayService,
		storeClient:    storeClient,
		blobStore:      blobStore,
	}, nil
}

func (rt *backupRuntime) manager() (*backup.Manager, error) {
	manager, err := backup.NewManager(rt.storeClient, rt.blobStore, rt.config, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup manager: %w", err)
	}
	return manager, nil
}

// runBackupCreate creates a full backup
func runBackupCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	manager, err := rt.manager()
	if err != nil {
		return err
	}

	spinner := rt.displayService.StartSpinner("Creating backup")
	result, err := manager.CreateFullBackup(ctx, backupName)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("backup creation failed: %w", err)
	}

	return rt.displayService.Render(result)
}

// runBackupIncremental creates an incremental backup
func runBackupIncremental(cmd *cobra.Command, args []string) error {
	since, err := parseSinceTime(incrementalSince)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	manager, err := rt.manager()
	if err != nil {
		return err
	}

	spinner := rt.displayService.StartSpinner("Creating incremental backup")
	result, err := manager.CreateIncrementalBackup(ctx, incrementalName, since)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("incremental backup failed: %w", err)
	}

	return rt.displayService.Render(result)
}

// runBackupRestore restores a backup into the current environment
func runBackupRestore(cmd *cobra.Command, args []string) error {
	nameOrPath := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	manager, err := rt.manager()
	if err != nil {
		return err
	}

	resolved, err := manager.ResolveBackup(ctx, nameOrPath)
	if err != nil {
		return fmt.Errorf("failed to resolve backup %s: %w", nameOrPath, err)
	}

	restorer, err := backup.NewRestorer(rt.storeClient, rt.blobStore, rt.config, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to create restorer: %w", err)
	}

	opts := backup.RestoreOptions{
		Overwrite: restoreOverwrite,
		BatchSize: restoreBatchSize,
		DryRun:    restoreDryRun,
	}
	// Without --restore-aux only the primary table comes back
	if !restoreAux {
		opts.Tables = []string{rt.config.Store.Tables.Primary}
	}

	spinner := rt.displayService.StartSpinner("Restoring backup")
	result, err := restorer.Restore(ctx, resolved, opts)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if err := rt.displayService.Render(result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("restore finished with failures")
	}
	return nil
}

// runBackupList lists the backups of the environment
func runBackupList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	manager, err := rt.manager()
	if err != nil {
		return err
	}

	summaries, err := manager.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	return rt.displayService.Render(summaries)
}

// runBackupVerify verifies the integrity of a backup
func runBackupVerify(cmd *cobra.Command, args []string) error {
	nameOrPath := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	verifier, err := backup.NewVerifier(rt.blobStore, rt.config, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	spinner := rt.displayService.StartSpinner("Verifying backup")
	report := verifier.Verify(ctx, nameOrPath)
	spinner.Stop()

	if err := rt.displayService.Render(report); err != nil {
		return err
	}
	if !report.Passed() {
		return fmt.Errorf("backup verification failed")
	}
	return nil
}

// runBackupCleanup applies the retention policy
func runBackupCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	rt, err := buildBackupRuntime(ctx, cmd)
	if err != nil {
		return err
	}

	// Retention overrides land in the config the manager reads
	if cmd.Flags().Changed("retention-days") {
		rt.config.Backup.Retention.RetentionDays = cleanupRetentionDays
	}
	if cmd.Flags().Changed("keep-weekly") {
		rt.config.Backup.Retention.KeepWeekly = cleanupKeepWeekly
	}
	if cmd.Flags().Changed("keep-monthly") {
		rt.config.Backup.Retention.KeepMonthly = cleanupKeepMonthly
	}

	manager, err := rt.manager()
	if err != nil {
		return err
	}

	spinner := rt.displayService.StartSpinner("Pruning backups")
	result, err := manager.PruneBackups(ctx, time.Now(), cleanupDryRun)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if err := rt.displayService.Render(result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("cleanup finished with %d errors", len(result.Errors))
	}
	return nil
}

// parseSinceTime accepts an RFC3339 timestamp or a plain date
func parseSinceTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q, expected RFC3339 or YYYY-MM-DD", value)
}
