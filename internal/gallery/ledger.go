package gallery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opencanvas/canvas-core/internal/infrastructure/database"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

// Ledger persists sync run history to SQLite.
type Ledger struct {
	db     *database.DB
	logger *logging.Logger
}

// NewLedger creates a run history ledger backed by db.
func NewLedger(db *database.DB, logger *logging.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.With("component", "ledger"),
	}
}

// RunSummary is one row of recorded sync history.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Gallery     string    `json:"gallery"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Examined    int       `json:"examined"`
	Uploaded    int       `json:"uploaded"`
	Overwritten int       `json:"overwritten"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Cancelled   bool      `json:"cancelled"`
	Error       string    `json:"error,omitempty"`
}

// RecordRun writes a run and its per-item records in one transaction.
func (l *Ledger) RecordRun(ctx context.Context, result *Result) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("gallery: begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (id, gallery, started_at, finished_at, examined, uploaded, overwritten, skipped, failed, cancelled, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Gallery,
		result.StartedAt.UTC().Format(time.RFC3339),
		result.FinishedAt.UTC().Format(time.RFC3339),
		result.Examined,
		result.Uploaded,
		result.Overwritten,
		result.SkippedDuplicate,
		result.Failed,
		result.Cancelled,
		result.Error,
	)
	if err != nil {
		return fmt.Errorf("gallery: insert sync run: %w", err)
	}

	for _, item := range result.Items {
		detail := item.Detail
		if item.Err != nil {
			detail = item.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_items (run_id, source, target, outcome, detail, size_bytes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.RunID,
			item.Name,
			item.Target,
			string(item.Outcome),
			detail,
			item.SizeBytes,
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("gallery: insert sync item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("gallery: commit ledger transaction: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first, at most limit rows.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, gallery, started_at, finished_at, examined, uploaded, overwritten, skipped, failed, cancelled, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("gallery: query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var started, finished string
		if err := rows.Scan(&run.RunID, &run.Gallery, &started, &finished,
			&run.Examined, &run.Uploaded, &run.Overwritten, &run.Skipped,
			&run.Failed, &run.Cancelled, &run.Error); err != nil {
			return nil, fmt.Errorf("gallery: scan sync run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunItems returns the per-item records for one run, oldest first.
func (l *Ledger) RunItems(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT source, target, outcome, detail, size_bytes
		FROM sync_items
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("gallery: query sync items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var item ItemRecord
		var outcome string
		var target, detail sql.NullString
		if err := rows.Scan(&item.Name, &target, &outcome, &detail, &item.SizeBytes); err != nil {
			return nil, fmt.Errorf("gallery: scan sync item: %w", err)
		}
		item.Target = target.String
		item.Detail = detail.String
		item.Outcome = Outcome(outcome)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Prune removes runs older than the retention window. Item rows go
// with them via the foreign key cascade.
func (l *Ledger) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	res, err := l.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("gallery: prune sync runs: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		l.logger.Info("pruned sync history", "removed", removed, "retention_days", retentionDays)
	}
	return removed, nil
}
