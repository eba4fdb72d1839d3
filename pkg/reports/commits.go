package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rmax-ai/signalflow/pkg/flow"
)

// CommitReport summarises commit activity per node.
type CommitReport struct {
	store ReportStore
}

func NewCommitReport(s ReportStore) *CommitReport {
	return &CommitReport{store: s}
}

type commitStats struct {
	workflow, node, kind       string
	committed, skipped, failed int
	signals                    int
	last                       time.Time
}

func (r *CommitReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"workflow", "node_id", "kind", "committed", "skipped", "failed", "signals", "last_commit"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	filter := eventFilter(params)
	filter.EventTypes = []flow.EventType{
		flow.EventNodeAdded,
		flow.EventNodeCommitted,
		flow.EventCommitSkipped,
		flow.EventCommitFailed,
		flow.EventSignalSent,
		flow.EventSignalCleared,
	}
	events, err := r.store.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	byNode := make(map[string]*commitStats)
	for _, e := range events {
		key := e.Workflow + "\x00" + e.NodeID
		st, ok := byNode[key]
		if !ok {
			st = &commitStats{workflow: e.Workflow, node: e.NodeID}
			byNode[key] = st
		}
		if e.Kind != "" {
			st.kind = e.Kind
		}
		switch e.EventType {
		case flow.EventNodeCommitted:
			st.committed++
			if e.TsEvent.After(st.last) {
				st.last = e.TsEvent
			}
		case flow.EventCommitSkipped:
			st.skipped++
		case flow.EventCommitFailed:
			st.failed++
		case flow.EventSignalSent, flow.EventSignalCleared:
			st.signals++
		}
	}

	stats := make([]*commitStats, 0, len(byNode))
	for _, st := range byNode {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].workflow != stats[j].workflow {
			return stats[i].workflow < stats[j].workflow
		}
		return stats[i].node < stats[j].node
	})

	for _, st := range stats {
		last := ""
		if !st.last.IsZero() {
			last = st.last.Format(time.RFC3339)
		}
		row := []string{
			st.workflow,
			st.node,
			st.kind,
			strconv.Itoa(st.committed),
			strconv.Itoa(st.skipped),
			strconv.Itoa(st.failed),
			strconv.Itoa(st.signals),
			last,
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
