package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)
	ctx := context.Background()

	if err := s.Put(ctx, "events/2026/03/01/a.jsonl.gz", strings.NewReader("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "events", "2026", "03", "01", "a.jsonl.gz")); err != nil {
		t.Errorf("file not created: %v", err)
	}

	r, err := s.Get(ctx, "events/2026/03/01/a.jsonl.gz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "first" {
		t.Errorf("Get content = %q", data)
	}

	// Overwrite replaces content.
	if err := s.Put(ctx, "events/2026/03/01/a.jsonl.gz", strings.NewReader("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	r, _ = s.Get(ctx, "events/2026/03/01/a.jsonl.gz")
	data, _ = io.ReadAll(r)
	r.Close()
	if string(data) != "second" {
		t.Errorf("overwrite content = %q", data)
	}

	s.Put(ctx, "events/2026/02/28/b.jsonl.gz", strings.NewReader("b"))
	s.Put(ctx, "other/c", strings.NewReader("c"))

	keys, err := s.List(ctx, "events")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"events/2026/02/28/b.jsonl.gz", "events/2026/03/01/a.jsonl.gz"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", keys, want)
	}

	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 keys, got %v", all)
	}

	if err := s.Delete(ctx, "other/c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "other/c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "other/c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalStore_EmptyPrefix(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	keys, err := s.List(context.Background(), "missing")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"", "../x", "a/../../x", "/etc/passwd"} {
		if err := s.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}
