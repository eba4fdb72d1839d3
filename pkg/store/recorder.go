package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/rmax-ai/signalflow/pkg/flow"
)

const defaultRecorderBuffer = 1024

// Recorder persists graph events in the background. Observe never blocks
// the graph; events that do not fit in the buffer are dropped.
type Recorder struct {
	store    *Store
	workflow string
	events   chan flow.Event
	logger   *slog.Logger
	dropped  atomic.Int64
}

// NewRecorder creates a recorder writing to s under the workflow name.
func NewRecorder(s *Store, workflow string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    s,
		workflow: workflow,
		events:   make(chan flow.Event, defaultRecorderBuffer),
		logger:   logger,
	}
}

// Observe queues an event. It matches flow.Observer.
func (r *Recorder) Observe(e flow.Event) {
	select {
	case r.events <- e:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("event_buffer_full", "type", e.Type, "node", e.Node)
		}
	}
}

// Dropped returns how many events were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case e := <-r.events:
			r.write(wctx, e)
		case <-ctx.Done():
			r.flush(wctx)
			return nil
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case e := <-r.events:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e flow.Event) {
	if err := r.store.AppendEvent(ctx, NewEvent(r.workflow, e)); err != nil {
		r.logger.Error("event_append_failed", "type", e.Type, "error", err)
	}
}
