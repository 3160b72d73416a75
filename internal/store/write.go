package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tracecheck/internal/harness"
)

// RecordRun stores res with all its checks in one transaction and returns
// the new run id.
func (s *Store) RecordRun(ctx context.Context, res *harness.Result) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, session_id, planned, bailed, bail_reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		res.SessionID,
		res.Planned,
		boolInt(res.Bailed),
		res.BailReason,
		res.Started.UTC().Format(time.RFC3339Nano),
		res.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	for _, c := range res.Checks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checks (run_id, idx, passed, description)
			VALUES (?, ?, ?, ?)
		`, id.String(), c.Index, boolInt(c.Passed), c.Description)
		if err != nil {
			return "", fmt.Errorf("record check %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id.String(), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
