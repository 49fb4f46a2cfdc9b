package display

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dynamo-lifecycle/internal/backup"
	"dynamo-lifecycle/internal/lifecycle"
	"dynamo-lifecycle/internal/migrate"
)

// renderText dispatches on the lifecycle report types. Values without a
// dedicated renderer print as yaml, which covers ad hoc structures like
// the effective configuration.
func (s *service) renderText(v interface{}) error {
	switch r := v.(type) {
	case *migrate.Result:
		s.renderMigrationResult(r)
	case []migrate.UnitStatus:
		s.renderMigrationStatus(r)
	case *lifecycle.SetupResult:
		s.renderSetupResult(r)
	case *lifecycle.ResetResult:
		s.renderResetResult(r)
	case *backup.Result:
		s.renderBackupResult(r)
	case *backup.RestoreResult:
		s.renderRestoreResult(r)
	case *backup.PruneResult:
		s.renderPruneResult(r)
	case *backup.VerificationReport:
		s.renderVerificationReport(r)
	case []backup.Summary:
		s.renderBackupList(r)
	default:
		return s.renderYAML(v)
	}
	return nil
}

func (s *service) renderMigrationResult(r *migrate.Result) {
	title := "Migrations applied"
	if r.Direction == migrate.DirectionDown {
		title = "Migrations rolled back"
	}
	s.PrintHeader(title)

	if len(r.Outcomes) == 0 {
		if r.Direction == migrate.DirectionDown {
			s.printLine(s.colors.Colorize("Nothing to roll back.", s.colors.GetTheme().Muted))
		} else {
			s.printLine(s.colors.Colorize("No pending migrations.", s.colors.GetTheme().Muted))
		}
		return
	}

	rows := make([][]string, 0, len(r.Outcomes))
	for _, outcome := range r.Outcomes {
		rows = append(rows, []string{
			s.outcomeMarker(outcome.Status),
			outcome.Version,
			outcome.Description,
			s.statusWord(outcome.Status),
			formatDuration(outcome.Duration),
		})
	}
	s.PrintTable([]string{"", "VERSION", "DESCRIPTION", "STATUS", "DURATION"}, rows)

	if r.Failed() {
		for _, outcome := range r.Outcomes {
			if outcome.Error != "" {
				s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error, "%s failed: %s", outcome.Version, outcome.Error))
			}
		}
		s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error,
			"Stopped after %d of %d migrations in %s.", r.Changed(), len(r.Outcomes), formatDuration(r.Duration)))
		return
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"%d migrations finished in %s.", r.Changed(), formatDuration(r.Duration)))
}

func (s *service) renderMigrationStatus(statuses []migrate.UnitStatus) {
	s.PrintHeader("Migration status")

	if len(statuses) == 0 {
		s.printLine(s.colors.Colorize("No migrations registered.", s.colors.GetTheme().Muted))
		return
	}

	applied := 0
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		marker := s.iconColored("pending")
		state := "pending"
		appliedAt := "-"
		if status.Applied {
			applied++
			marker = s.iconColored("done")
			state = s.colors.Colorize("applied", s.colors.GetTheme().Success)
			if status.AppliedAt != nil {
				appliedAt = formatTime(*status.AppliedAt)
			}
		}
		rows = append(rows, []string{marker, status.Version, status.Description, state, appliedAt})
	}
	s.PrintTable([]string{"", "VERSION", "DESCRIPTION", "STATE", "APPLIED AT"}, rows)
	s.printLine(fmt.Sprintf("%d of %d applied.", applied, len(statuses)))
}

func (s *service) renderSetupResult(r *lifecycle.SetupResult) {
	s.PrintHeader("Environment setup")

	if r.Migrations != nil {
		if len(r.Migrations.Outcomes) == 0 {
			s.printLine("Migrations: schema already current.")
		} else if r.Migrations.Failed() {
			s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error,
				"Migrations: stopped after %d of %d.", r.Migrations.Changed(), len(r.Migrations.Outcomes)))
		} else {
			s.printLine(fmt.Sprintf("Migrations: %d applied.", r.Migrations.Changed()))
		}
	}

	if r.Seeded != nil {
		tables := sortedKeys(r.Seeded.Tables)
		parts := make([]string, 0, len(tables))
		for _, table := range tables {
			parts = append(parts, fmt.Sprintf("%s %d", table, r.Seeded.Tables[table]))
		}
		s.printLine(fmt.Sprintf("Seeded %d items (%s).", r.Seeded.Total, strings.Join(parts, ", ")))
	}

	if len(r.Validation) > 0 {
		rows := make([][]string, 0, len(r.Validation))
		for _, check := range r.Validation {
			rows = append(rows, []string{s.checkMarker(check.Passed), check.Name, check.Details})
		}
		s.PrintTable([]string{"", "CHECK", "DETAILS"}, rows)
	}

	if r.Failed() {
		s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error,
			"Setup found problems after %s.", formatDuration(r.Duration)))
		return
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"Environment ready in %s.", formatDuration(r.Duration)))
}

func (s *service) renderResetResult(r *lifecycle.ResetResult) {
	s.PrintHeader("Environment reset")

	tables := sortedKeys64(r.Cleared)
	rows := make([][]string, 0, len(tables))
	var total int64
	for _, table := range tables {
		rows = append(rows, []string{table, strconv.FormatInt(r.Cleared[table], 10)})
		total += r.Cleared[table]
	}
	if len(rows) > 0 {
		s.PrintTable([]string{"TABLE", "ITEMS REMOVED"}, rows)
	}

	rolledBack := 0
	if r.Migrations != nil {
		rolledBack = r.Migrations.Changed()
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"Removed %d items, rolled back %d migrations in %s.", total, rolledBack, formatDuration(r.Duration)))
}

func (s *service) renderBackupResult(r *backup.Result) {
	if r.Incremental {
		s.PrintHeader("Incremental backup")
	} else {
		s.PrintHeader("Backup")
	}

	manifest := r.Manifest
	s.printLine("Name:        " + manifest.BackupName)
	s.printLine("Environment: " + manifest.Environment)
	s.printLine("Created:     " + formatTime(manifest.CreatedAt))
	if r.Incremental && !r.Since.IsZero() {
		s.printLine("Since:       " + formatTime(r.Since))
	}
	s.printLine("Location:    " + manifest.Location.BlobPrefix)

	tables := make([]string, 0, len(manifest.Tables))
	for name := range manifest.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	rows := make([][]string, 0, len(tables))
	for _, name := range tables {
		info := manifest.Tables[name]
		rows = append(rows, []string{
			name,
			strconv.FormatInt(info.ItemCount, 10),
			strconv.Itoa(len(info.Files)),
		})
	}
	s.PrintTable([]string{"TABLE", "ITEMS", "FILES"}, rows)

	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"Backed up %d items in %d files in %s.",
		manifest.Statistics.TotalItems, manifest.Statistics.TotalFiles, formatDuration(r.Duration)))
}

func (s *service) renderRestoreResult(r *backup.RestoreResult) {
	if r.DryRun {
		s.PrintHeader("Restore (dry run)")
	} else {
		s.PrintHeader("Restore")
	}
	s.printLine("Backup: " + r.BackupName)

	tables := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	rows := make([][]string, 0, len(tables))
	for _, name := range tables {
		table := r.Tables[name]
		errText := table.Error
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, []string{
			name,
			strconv.FormatInt(table.Restored, 10),
			strconv.FormatInt(table.Skipped, 10),
			strconv.FormatInt(table.Failed, 10),
			errText,
		})
	}
	s.PrintTable([]string{"TABLE", "RESTORED", "SKIPPED", "FAILED", "ERROR"}, rows)

	if r.Failed() {
		s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error,
			"Restore finished with failures after %s.", formatDuration(r.Duration)))
		return
	}
	verb := "Restored"
	if r.DryRun {
		verb = "Would restore"
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"%s %d items, skipped %d, in %s.", verb, r.TotalRestored(), r.TotalSkipped(), formatDuration(r.Duration)))
}

func (s *service) renderPruneResult(r *backup.PruneResult) {
	if r.DryRun {
		s.PrintHeader("Backup retention (dry run)")
	} else {
		s.PrintHeader("Backup retention")
	}

	if len(r.Decisions) == 0 {
		s.printLine(s.colors.Colorize("No backups found.", s.colors.GetTheme().Muted))
		return
	}

	rows := make([][]string, 0, len(r.Decisions))
	for _, decision := range r.Decisions {
		rows = append(rows, []string{
			decision.BackupName,
			formatTime(decision.CreatedAt),
			s.tierWord(decision.Tier),
		})
	}
	s.PrintTable([]string{"BACKUP", "CREATED", "TIER"}, rows)

	for _, problem := range r.Errors {
		s.printLine(s.colors.Sprintf(s.colors.GetTheme().Warning, "warning: %s", problem))
	}

	verb := "deleted"
	if r.DryRun {
		verb = "would delete"
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Success,
		"Kept %d backups, %s %d, in %s.", r.Kept, verb, r.Deleted, formatDuration(r.Duration)))
}

func (s *service) renderVerificationReport(r *backup.VerificationReport) {
	s.PrintHeader("Backup verification")
	s.printLine("Backup: " + r.BackupName)

	rows := make([][]string, 0, len(r.Checks))
	failed := 0
	for _, check := range r.Checks {
		if !check.Passed {
			failed++
		}
		rows = append(rows, []string{s.checkMarker(check.Passed), check.Name, check.Details})
	}
	s.PrintTable([]string{"", "CHECK", "DETAILS"}, rows)

	if r.Passed() {
		s.printLine(s.colors.Colorize("All checks passed.", s.colors.GetTheme().Success))
		return
	}
	s.printLine(s.colors.Sprintf(s.colors.GetTheme().Error, "%d of %d checks failed.", failed, len(r.Checks)))
}

func (s *service) renderBackupList(summaries []backup.Summary) {
	s.PrintHeader("Backups")

	if len(summaries) == 0 {
		s.printLine(s.colors.Colorize("No backups found.", s.colors.GetTheme().Muted))
		return
	}

	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, []string{
			summary.BackupName,
			formatTime(summary.CreatedAt),
			summary.Environment,
			strconv.FormatInt(summary.TotalItems, 10),
			strconv.Itoa(summary.TotalFiles),
			strconv.Itoa(summary.Tables),
		})
	}
	s.PrintTable([]string{"NAME", "CREATED", "ENVIRONMENT", "ITEMS", "FILES", "TABLES"}, rows)
	s.printLine(fmt.Sprintf("%d backups.", len(summaries)))
}

// outcomeMarker returns the per-row icon for a batch outcome status
func (s *service) outcomeMarker(status string) string {
	if status == migrate.StatusFailed {
		return s.iconColored("failed")
	}
	return s.iconColored("done")
}

// statusWord colorizes a batch outcome status
func (s *service) statusWord(status string) string {
	switch status {
	case migrate.StatusApplied:
		return s.colors.Colorize(status, s.colors.GetTheme().Success)
	case migrate.StatusRolledBack:
		return s.colors.Colorize(status, s.colors.GetTheme().Info)
	default:
		return s.colors.Colorize(status, s.colors.GetTheme().Error)
	}
}

// tierWord colorizes a retention tier
func (s *service) tierWord(tier string) string {
	switch tier {
	case backup.TierDelete:
		return s.colors.Colorize(tier, s.colors.GetTheme().Error)
	case backup.TierRecent:
		return s.colors.Colorize(tier, s.colors.GetTheme().Success)
	default:
		return s.colors.Colorize(tier, s.colors.GetTheme().Info)
	}
}

func (s *service) checkMarker(passed bool) string {
	if passed {
		return s.iconColored("done")
	}
	return s.iconColored("failed")
}

func (s *service) iconColored(name string) string {
	return s.icons.RenderIconWithColor(name, s.colors)
}

func (s *service) printLine(text string) {
	fmt.Fprintln(s.writer, text)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys64(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

