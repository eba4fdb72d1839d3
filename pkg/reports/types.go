package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/signalflow/pkg/store"
)

type ReportType string

const (
	ReportTypeEvents  ReportType = "events"
	ReportTypeCommits ReportType = "commits"
)

type ReportParams struct {
	Start   time.Time
	End     time.Time
	Filters map[string]interface{}
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// maxReportEvents bounds how much of the log one report reads.
const maxReportEvents = 100000

func eventFilter(params ReportParams) store.EventFilter {
	filter := store.EventFilter{From: params.Start, To: params.End, Limit: maxReportEvents}
	if wf, ok := params.Filters["workflow"].(string); ok {
		filter.Workflow = wf
	}
	if node, ok := params.Filters["node_id"].(string); ok {
		filter.NodeID = node
	}
	return filter
}
