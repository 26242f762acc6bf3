package dbclient

import (
	"context"
	"fmt"

	"github.com/codescope/codedb/pkg/models"
)

// StartWorkerCycle opens a new stats row for one indexing cycle and
// returns the cycle ID. Any stale open cycle left by a crashed worker is
// closed first.
func (d *DB) StartWorkerCycle(ctx context.Context, filesTotal int64) (string, error) {
	if err := d.CloseStaleWorkerCycles(ctx); err != nil {
		return "", err
	}

	cycleID := newID()
	if _, err := d.insertRow(ctx, models.IndexingWorkerStats{}.TableName(), map[string]any{
		"cycle_id":             cycleID,
		"cycle_start_time":     now(),
		"files_total_at_start": filesTotal,
		"files_indexed":        0,
		"files_failed":         0,
		"total_processing_ms":  0.0,
		"avg_processing_ms":    0.0,
	}); err != nil {
		return "", fmt.Errorf("start worker cycle: %w", err)
	}
	return cycleID, nil
}

// RecordWorkerFile folds one index_file outcome into an open cycle row:
// the success or failure counter, the accumulated processing time, and
// the recomputed average.
func (d *DB) RecordWorkerFile(ctx context.Context, cycleID string, indexed bool, processingMs float64) error {
	var result map[string]any
	var err error
	if indexed {
		result, err = d.Execute(ctx,
			`UPDATE indexing_worker_stats
			 SET files_indexed = files_indexed + 1,
			     total_processing_ms = total_processing_ms + ?,
			     avg_processing_ms = (total_processing_ms + ?) / (files_indexed + 1)
			 WHERE cycle_id = ?`,
			[]any{processingMs, processingMs, cycleID}, "")
	} else {
		result, err = d.Execute(ctx,
			"UPDATE indexing_worker_stats SET files_failed = files_failed + 1 WHERE cycle_id = ?",
			[]any{cycleID}, "")
	}
	if err != nil {
		return err
	}
	if affected, _ := result["affected_rows"].(float64); affected == 0 {
		return fmt.Errorf("worker cycle %s not found", cycleID)
	}
	return nil
}

// FinishWorkerCycle closes one cycle row. The counters have already been
// folded in per file by RecordWorkerFile.
func (d *DB) FinishWorkerCycle(ctx context.Context, cycleID string) error {
	affected, err := d.updateRows(ctx, models.IndexingWorkerStats{}.TableName(),
		map[string]any{"cycle_id": cycleID},
		map[string]any{"cycle_end_time": now()})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("worker cycle %s not found", cycleID)
	}
	return nil
}

// CloseStaleWorkerCycles closes any cycle rows left open by a previous
// worker run. A cycle is open while cycle_end_time is null.
func (d *DB) CloseStaleWorkerCycles(ctx context.Context) error {
	_, err := d.Execute(ctx,
		"UPDATE indexing_worker_stats SET cycle_end_time = ? WHERE cycle_end_time IS NULL",
		[]any{now()}, "")
	return err
}

// RecentWorkerCycles returns the newest cycle rows, most recent first.
func (d *DB) RecentWorkerCycles(ctx context.Context, limit int) ([]models.IndexingWorkerStats, error) {
	rows, err := d.selectRows(ctx, models.IndexingWorkerStats{}.TableName(),
		nil, []string{"cycle_start_time DESC"}, limit)
	if err != nil {
		return nil, err
	}

	cycles := make([]models.IndexingWorkerStats, 0, len(rows))
	for _, row := range rows {
		var c models.IndexingWorkerStats
		if err := decodeRow(row, &c); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}
