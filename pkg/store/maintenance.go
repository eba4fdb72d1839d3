package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReadEventsBefore returns up to limit events ingested before cutoff,
// oldest first.
func (s *Store) ReadEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
		WHERE ts_ingest < ? ORDER BY ts_ingest ASC, rowid ASC LIMIT ?`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteEvents removes the given events in one transaction.
func (s *Store) DeleteEvents(ctx context.Context, ids []EventID) error {
	if len(ids) == 0 {
		return nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE event_id IN (`+strings.Join(marks, ", ")+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return tx.Commit()
}
