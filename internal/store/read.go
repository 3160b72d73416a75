package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tracecheck/internal/harness"
)

// ErrRunNotFound is returned by LoadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// LoadRun reads back one recorded run. Checks are ordered by index.
func (s *Store) LoadRun(ctx context.Context, id string) (*harness.Result, error) {
	var (
		res               harness.Result
		bailed            int
		started, finished string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, planned, bailed, bail_reason, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&res.SessionID, &res.Planned, &bailed, &res.BailReason, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	res.Bailed = bailed == 1

	if res.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("load run: started_at: %w", err)
	}
	if res.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, fmt.Errorf("load run: finished_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, passed, description
		FROM checks WHERE run_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}
	defer rows.Close()

	res.Checks = []harness.CheckResult{}
	for rows.Next() {
		var c harness.CheckResult
		var passed int
		if err := rows.Scan(&c.Index, &passed, &c.Description); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		c.Passed = passed == 1
		res.Checks = append(res.Checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}
	return &res, nil
}
