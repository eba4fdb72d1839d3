package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// EventReport lists the signal event log, oldest first.
type EventReport struct {
	store ReportStore
}

func NewEventReport(s ReportStore) *EventReport {
	return &EventReport{store: s}
}

func (r *EventReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"timestamp", "event_id", "event_type", "workflow", "node_id", "kind", "port", "link_id", "detail"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	events, err := r.store.QueryEvents(ctx, eventFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		row := []string{
			e.TsEvent.Format(time.RFC3339Nano),
			string(e.EventID),
			string(e.EventType),
			e.Workflow,
			e.NodeID,
			e.Kind,
			e.Port,
			e.LinkID,
			e.Detail,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
