package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/signalflow/pkg/blob"
)

// ArchiveConfig controls event log retention.
type ArchiveConfig struct {
	Retention     time.Duration
	BatchSize     int
	CheckInterval time.Duration
}

// Archiver moves events older than the retention window from the log into
// gzipped JSON Lines blobs.
type Archiver struct {
	store  *Store
	blobs  blob.Store
	config ArchiveConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewArchiver(s *Store, blobs blob.Store, cfg ArchiveConfig, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: s, blobs: blobs, config: cfg, logger: logger, now: time.Now}
}

// Run archives on every tick until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.logger.Error("archive_failed", "error", err)
			} else if n > 0 {
				a.logger.Info("events_archived", "count", n)
			}
		}
	}
}

// ArchiveOnce archives every expired event, one batch per blob, and
// returns how many were moved.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := a.now().UTC().Add(-a.config.Retention)
	total := 0
	for {
		events, err := a.store.ReadEventsBefore(ctx, cutoff, a.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}
		if err := a.archiveBatch(ctx, events); err != nil {
			return total, err
		}
		total += len(events)
		if len(events) < a.config.BatchSize {
			return total, nil
		}
	}
}

func (a *Archiver) archiveBatch(ctx context.Context, events []*Event) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			gz.Close()
			return fmt.Errorf("failed to encode event %s: %w", e.EventID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}

	first, last := events[0], events[len(events)-1]
	year, month, day := first.TsIngest.Date()
	key := fmt.Sprintf("events/%04d/%02d/%02d/%d_%d_%s.jsonl.gz",
		year, month, day, first.TsIngest.Unix(), last.TsIngest.Unix(), uuid.New().String())

	if err := a.blobs.Put(ctx, key, &buf); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	ids := make([]EventID, len(events))
	for i, e := range events {
		ids[i] = e.EventID
	}
	if err := a.store.DeleteEvents(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete archived events: %w", err)
	}
	return nil
}
