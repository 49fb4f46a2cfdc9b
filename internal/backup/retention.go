package backup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dynamo-lifecycle/internal/config"
)

// Retention tiers. Every backup lands in exactly one.
const (
	TierRecent  = "recent"
	TierWeekly  = "weekly"
	TierMonthly = "monthly"
	TierDelete  = "delete"
)

// RetentionDecision records the tier assigned to one backup
type RetentionDecision struct {
	BackupName string    `json:"backupName"`
	CreatedAt  time.Time `json:"createdAt"`
	Tier       string    `json:"tier"`
}

// PruneResult reports one retention run
type PruneResult struct {
	Decisions []RetentionDecision `json:"decisions"`
	Deleted   int                 `json:"deleted"`
	Kept      int                 `json:"kept"`
	Errors    []string            `json:"errors,omitempty"`
	Duration  time.Duration       `json:"duration"`
	DryRun    bool                `json:"dryRun"`
}

// PlanRetention assigns a tier to every backup without touching storage.
// Backups younger than the retention window stay recent. Older backups
// claim long-term slots oldest first, one per ISO week up to the weekly
// quota, then one per calendar month up to the monthly quota. Whatever
// claims no slot is marked for deletion.
func PlanRetention(summaries []Summary, now time.Time, cfg *config.RetentionConfig) []RetentionDecision {
	sorted := make([]Summary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	recentWindow := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	decisions := make([]RetentionDecision, len(sorted))
	older := make([]int, 0, len(sorted))
	for i, summary := range sorted {
		decisions[i] = RetentionDecision{
			BackupName: summary.BackupName,
			CreatedAt:  summary.CreatedAt,
			Tier:       TierDelete,
		}
		if now.Sub(summary.CreatedAt) < recentWindow {
			decisions[i].Tier = TierRecent
		} else {
			older = append(older, i)
		}
	}

	weekSlots := make(map[string]bool)
	monthSlots := make(map[string]bool)
	weekly, monthly := 0, 0
	for j := len(older) - 1; j >= 0; j-- {
		i := older[j]
		created := decisions[i].CreatedAt
		year, week := created.ISOWeek()
		weekSlot := fmt.Sprintf("%04d-W%02d", year, week)
		monthSlot := created.Format("2006-01")
		switch {
		case weekly < cfg.KeepWeekly && !weekSlots[weekSlot]:
			weekSlots[weekSlot] = true
			weekly++
			decisions[i].Tier = TierWeekly
		case monthly < cfg.KeepMonthly && !monthSlots[monthSlot]:
			monthSlots[monthSlot] = true
			monthly++
			decisions[i].Tier = TierMonthly
		}
	}
	return decisions
}

// PruneBackups applies the retention plan to every backup in the current
// environment. Deletion is best effort: a backup that fails to delete is
// logged and collected, and the run continues.
func (m *Manager) PruneBackups(ctx context.Context, now time.Time, dryRun bool) (*PruneResult, error) {
	start := time.Now()

	summaries, err := m.ListBackups(ctx)
	if err != nil {
		return nil, err
	}

	decisions := PlanRetention(summaries, now, &m.cfg.Backup.Retention)
	result := &PruneResult{Decisions: decisions, DryRun: dryRun}

	for _, decision := range decisions {
		if decision.Tier != TierDelete {
			result.Kept++
			continue
		}
		if dryRun {
			result.Deleted++
			continue
		}
		if err := m.deleteBackupObjects(ctx, decision.BackupName); err != nil {
			msg := fmt.Sprintf("failed to delete backup %s: %v", decision.BackupName, err)
			result.Errors = append(result.Errors, msg)
			m.logger.Warn(msg)
			continue
		}
		result.Deleted++
		m.logger.WithFields(map[string]interface{}{
			"backup":  decision.BackupName,
			"created": decision.CreatedAt.Format(time.RFC3339),
		}).Info("Deleted backup")
	}

	result.Duration = time.Since(start)
	m.logger.WithFields(map[string]interface{}{
		"processed": len(decisions),
		"deleted":   result.Deleted,
		"kept":      result.Kept,
		"dry_run":   dryRun,
	}).Info("Retention run finished")
	return result, nil
}

// deleteBackupObjects removes every object under one backup's prefix,
// the manifest included
func (m *Manager) deleteBackupObjects(ctx context.Context, backupName string) error {
	prefix := m.layout.BackupPrefix(backupName) + "/"
	objects, err := m.blobStore.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return nil
	}
	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		keys = append(keys, object.Key)
	}
	return m.blobStore.Delete(ctx, keys)
}
