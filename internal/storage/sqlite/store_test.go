package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "interactions.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndListInteractions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Interaction{
		Question:  "how many tickets per service type?",
		TraceID:   "req-1",
		Status:    StatusOK,
		Duration:  120 * time.Millisecond,
		Response:  json.RawMessage(`{"results":[{"type":"text","text":"hi"}]}`),
		CreatedAt: time.Now().Add(-time.Minute),
	}
	if err := store.SaveInteraction(ctx, first); err != nil {
		t.Fatalf("SaveInteraction() error = %v", err)
	}
	if first.ID == "" {
		t.Error("SaveInteraction did not assign an ID")
	}

	second := &Interaction{
		Question:     "bad question",
		Status:       StatusRequestFailed,
		ErrorMessage: "analyst request failed with status 503: overloaded",
	}
	if err := store.SaveInteraction(ctx, second); err != nil {
		t.Fatalf("SaveInteraction() error = %v", err)
	}

	listed, err := store.RecentInteractions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentInteractions() error = %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d interactions, want 2", len(listed))
	}

	// Most recent first.
	if listed[0].Question != "bad question" {
		t.Errorf("first listed = %q, want the newer interaction", listed[0].Question)
	}
	if listed[1].TraceID != "req-1" {
		t.Errorf("trace id = %q, want req-1", listed[1].TraceID)
	}
	if listed[1].Duration != 120*time.Millisecond {
		t.Errorf("duration = %v", listed[1].Duration)
	}
	if len(listed[1].Response) == 0 {
		t.Error("response payload was not persisted")
	}
	if listed[0].ErrorMessage == "" {
		t.Error("error message was not persisted")
	}
}

func TestRecentInteractions_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		in := &Interaction{
			Question:  "q",
			Status:    StatusOK,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveInteraction(ctx, in); err != nil {
			t.Fatalf("SaveInteraction() error = %v", err)
		}
	}

	listed, err := store.RecentInteractions(ctx, 3)
	if err != nil {
		t.Fatalf("RecentInteractions() error = %v", err)
	}
	if len(listed) != 3 {
		t.Errorf("got %d interactions, want 3", len(listed))
	}
}
