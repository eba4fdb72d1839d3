package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/signalflow/pkg/flow"
)

const defaultEventLimit = 100

const eventColumns = `event_id, event_type, schema_version, ts_event, ts_ingest,
	workflow, node_id, kind, port, link_id, detail, payload`

// AppendEvent writes one event to the log.
func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	ingest := e.TsIngest
	if ingest.IsZero() {
		ingest = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventType, e.SchemaVersion, e.TsEvent.UTC(), ingest.UTC(),
		e.Workflow, e.NodeID, e.Kind, e.Port, e.LinkID, e.Detail, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", e.EventID, err)
	}
	return nil
}

// GetEvent returns the event with the given ID, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return events[0], nil
}

// ReadRecentEvents returns the latest events, newest first. A limit of
// zero or less uses the default.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}

// QueryEvents returns the events matching the filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, f EventFilter) ([]*Event, error) {
	var where []string
	var args []any
	if !f.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "ts_event < ?")
		args = append(args, f.To.UTC())
	}
	if len(f.EventTypes) > 0 {
		marks := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			marks[i] = "?"
			args = append(args, t)
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, f.Workflow)
	}
	if f.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, f.NodeID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ingest DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			e                                  Event
			eventType                          string
			nodeID, kind, port, linkID, detail sql.NullString
			payload                            string
		)
		if err := rows.Scan(&e.EventID, &eventType, &e.SchemaVersion, &e.TsEvent, &e.TsIngest,
			&e.Workflow, &nodeID, &kind, &port, &linkID, &detail, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = flow.EventType(eventType)
		e.NodeID, e.Kind, e.Port = nodeID.String, kind.String, port.String
		e.LinkID, e.Detail = linkID.String, detail.String
		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}
	return events, rows.Err()
}
