package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id, dataset string, createdAt time.Time) *history.Record {
	score := 0.82
	return &history.Record{
		ID:      id,
		Dataset: dataset,
		Model:   "gemini-2.0-flash-exp",
		Mode:    domain.ModeSelfRefinement,
		Request: &domain.GenerationRequest{
			Dataset:        dataset,
			Model:          "gemini-2.0-flash-exp",
			Factual:        domain.Record{"age": 39.0},
			Counterfactual: domain.Record{"age": 45.0},
		},
		Result: &domain.ExplanationResult{
			Explanation:    "age drove the flip",
			Status:         "success",
			ConsensusScore: &score,
		},
		CreatedAt: createdAt,
	}
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("req-1", "adult", time.Now())
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Dataset != "adult" || got.Model != "gemini-2.0-flash-exp" {
		t.Errorf("Get() = %+v", got)
	}
	if got.Result == nil || got.Result.Explanation != "age drove the flip" {
		t.Errorf("Result = %+v, want round-tripped result", got.Result)
	}
	if got.Result.ConsensusScore == nil || *got.Result.ConsensusScore != 0.82 {
		t.Errorf("ConsensusScore = %v, want 0.82", got.Result.ConsensusScore)
	}
	if got.Request == nil || got.Request.Factual["age"] != 39.0 {
		t.Errorf("Request = %+v, want round-tripped request", got.Request)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirstWithFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, rec := range []*history.Record{
		testRecord("req-1", "adult", base),
		testRecord("req-2", "titanic", base.Add(time.Minute)),
		testRecord("req-3", "adult", base.Add(2*time.Minute)),
	} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
	}

	all, err := store.List(ctx, history.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "req-3" {
		t.Errorf("List() order = %v, want newest first", ids(all))
	}

	adult, err := store.List(ctx, history.ListOptions{Dataset: "adult", Limit: 1})
	if err != nil {
		t.Fatalf("List(adult) error = %v", err)
	}
	if len(adult) != 1 || adult[0].ID != "req-3" {
		t.Errorf("List(adult, limit 1) = %v, want [req-3]", ids(adult))
	}
}

func TestDeleteAndClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testRecord("req-1", "adult", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, "req-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "req-1"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.Save(ctx, testRecord("req-2", "adult", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	remaining, err := store.List(ctx, history.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("List() after Clear = %v, want empty", ids(remaining))
	}
}

func ids(records []*history.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
