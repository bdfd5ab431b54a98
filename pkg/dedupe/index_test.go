package dedupe

import (
	"context"
	"errors"
	"testing"
)

type staticSource struct {
	ids []string
	err error
}

func (s *staticSource) LoadKnownIDs(ctx context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestIndexSeededFromSource(t *testing.T) {
	idx, err := Load(context.Background(), &staticSource{ids: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !idx.IsKnown("a") || !idx.IsKnown("b") {
		t.Error("Expected seeded IDs to be known")
	}
	if idx.IsKnown("c") {
		t.Error("Expected unseeded ID to be unknown")
	}
	if idx.Len() != 2 {
		t.Errorf("Expected 2 known IDs, got %d", idx.Len())
	}
}

func TestLoadPropagatesError(t *testing.T) {
	wantErr := errors.New("db unavailable")
	_, err := Load(context.Background(), &staticSource{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected source error, got %v", err)
	}
}

func TestMarkKnown(t *testing.T) {
	idx := New()

	idx.MarkKnown("x")
	if !idx.IsKnown("x") {
		t.Error("Expected marked ID to be known")
	}

	// Marking twice is a no-op
	idx.MarkKnown("x")
	if idx.Len() != 1 {
		t.Errorf("Expected 1 known ID, got %d", idx.Len())
	}
}
