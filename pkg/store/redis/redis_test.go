package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*SettingsStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSettingsStore(client), mr
}

func TestSettingsStore_SetGet(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "scatter_plot", map[string]any{"attr_x": "x", "attr_y": "y"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := s.Get(ctx, "scatter_plot")
	if !ok {
		t.Fatal("Expected defaults for scatter_plot")
	}
	if got["attr_x"] != "x" || got["attr_y"] != "y" {
		t.Errorf("unexpected defaults: %v", got)
	}
	if !mr.Exists("signalflow:settings:scatter_plot") {
		t.Error("expected settings key in redis")
	}
	if ok, _ := mr.SIsMember(kindsSet, "scatter_plot"); !ok {
		t.Error("expected kind in index set")
	}

	if _, ok := s.Get(ctx, "table"); ok {
		t.Error("Expected no defaults for table")
	}
}

func TestSettingsStore_AllAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "mean_learner", map[string]any{"learner_name": "Avg"})
	_ = s.Set(ctx, "confusion_matrix", map[string]any{"quantity": "counts"})

	if kinds := s.Kinds(ctx); len(kinds) != 2 || kinds[0] != "confusion_matrix" {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
	all := s.All(ctx)
	if len(all) != 2 || all["mean_learner"]["learner_name"] != "Avg" {
		t.Fatalf("unexpected all: %v", all)
	}

	if err := s.Delete(ctx, "mean_learner"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get(ctx, "mean_learner"); ok {
		t.Error("expected mean_learner defaults to be gone")
	}
	if len(s.All(ctx)) != 1 {
		t.Error("expected one kind left")
	}
}

func TestSettingsStore_Clear(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "a", map[string]any{"k": 1})
	_ = s.Set(ctx, "b", map[string]any{"k": 2})

	s.Clear(ctx)
	if len(s.All(ctx)) != 0 {
		t.Error("expected empty store after Clear")
	}
	if mr.Exists(kindsSet) {
		t.Error("expected index set removed")
	}
}

func TestSettingsStore_Unavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "a", map[string]any{}); err == nil {
		t.Error("expected error when redis is down")
	}
	if _, ok := s.Get(ctx, "a"); ok {
		t.Error("expected miss when redis is down")
	}
	if kinds := s.Kinds(ctx); kinds != nil {
		t.Errorf("expected nil kinds, got %v", kinds)
	}
}
