// Package checkpointtest provides a behaviour suite that every
// checkpoint.Store implementation must pass.
package checkpointtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/core/state"
)

// Factory returns a new, empty store. It is called once per subtest.
type Factory func(t *testing.T) checkpoint.Store

// Make builds a checkpoint with a deterministic timestamp.
func Make(runID, node string, seq int, values state.Values) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		RunID:     runID,
		Node:      node,
		Sequence:  seq,
		Status:    checkpoint.StatusCompleted,
		Timestamp: time.Date(2026, 1, 2, 3, 4, seq, 0, time.UTC),
		State:     values,
	}
}

// Run executes the suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("SaveAndLoad", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		cp := Make("run-a", "analyze", 1, state.Values{
			"summary": "ok",
			"files":   map[string]any{"main.go": "package main"},
			"logs":    []any{"one"},
		})
		mustSave(t, store, cp)

		got, err := store.Load(ctx, "run-a", "analyze")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.RunID != "run-a" || got.Node != "analyze" || got.Sequence != 1 || got.Status != checkpoint.StatusCompleted {
			t.Errorf("header = %+v", got)
		}
		if !got.Timestamp.Equal(cp.Timestamp) {
			t.Errorf("timestamp = %v, want %v", got.Timestamp, cp.Timestamp)
		}
		if got.State["summary"] != "ok" {
			t.Errorf("state = %v", got.State)
		}
		files, _ := got.State["files"].(map[string]any)
		if files["main.go"] != "package main" {
			t.Errorf("nested map lost: %v", got.State["files"])
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		store := factory(t)
		if _, err := store.Load(context.Background(), "nope", "analyze"); !errors.Is(err, checkpoint.ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
		if _, err := store.Latest(context.Background(), "nope"); !errors.Is(err, checkpoint.ErrNotFound) {
			t.Errorf("Latest() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Immutable", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		mustSave(t, store, Make("run-a", "plan", 1, state.Values{"v": "first"}))
		err := store.Save(ctx, Make("run-a", "plan", 2, state.Values{"v": "second"}))
		if !errors.Is(err, checkpoint.ErrAlreadyExists) {
			t.Fatalf("second Save() error = %v, want ErrAlreadyExists", err)
		}

		got, err := store.Load(ctx, "run-a", "plan")
		if err != nil {
			t.Fatal(err)
		}
		if got.State["v"] != "first" {
			t.Errorf("checkpoint was overwritten: %v", got.State)
		}
	})

	t.Run("ListAndLatest", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		// Saved out of order on purpose: listing follows sequence.
		mustSave(t, store, Make("run-a", "validate", 3, nil))
		mustSave(t, store, Make("run-a", "analyze", 1, nil))
		mustSave(t, store, Make("run-a", "plan", 2, nil))
		mustSave(t, store, Make("run-b", "analyze", 1, nil))

		nodes, err := store.List(ctx, "run-a")
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"analyze", "plan", "validate"}; !slices.Equal(nodes, want) {
			t.Errorf("List() = %v, want %v", nodes, want)
		}

		latest, err := store.Latest(ctx, "run-a")
		if err != nil {
			t.Fatal(err)
		}
		if latest.Node != "validate" || latest.Sequence != 3 {
			t.Errorf("Latest() = %s/%d", latest.Node, latest.Sequence)
		}

		empty, err := store.List(ctx, "unknown")
		if err != nil || len(empty) != 0 {
			t.Errorf("List(unknown) = %v, %v", empty, err)
		}

		runs, err := store.Runs(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"run-a", "run-b"}; !slices.Equal(runs, want) {
			t.Errorf("Runs() = %v, want %v", runs, want)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		mustSave(t, store, Make("run-a", "analyze", 1, nil))
		mustSave(t, store, Make("run-b", "analyze", 1, nil))

		if err := store.Delete(ctx, "run-a"); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete(ctx, "run-a"); err != nil {
			t.Errorf("second Delete() = %v, want nil", err)
		}
		if _, err := store.Load(ctx, "run-a", "analyze"); !errors.Is(err, checkpoint.ErrNotFound) {
			t.Errorf("Load after Delete: %v", err)
		}
		if _, err := store.Load(ctx, "run-b", "analyze"); err != nil {
			t.Errorf("Delete removed another run: %v", err)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		values := state.Values{"files": map[string]any{"a": "1"}}
		mustSave(t, store, Make("run-a", "gen", 1, values))
		values["files"].(map[string]any)["a"] = "changed after save"

		got, err := store.Load(ctx, "run-a", "gen")
		if err != nil {
			t.Fatal(err)
		}
		got.State["files"].(map[string]any)["a"] = "changed after load"

		again, err := store.Load(ctx, "run-a", "gen")
		if err != nil {
			t.Fatal(err)
		}
		if again.State["files"].(map[string]any)["a"] != "1" {
			t.Errorf("stored checkpoint was mutated: %v", again.State)
		}
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Save(ctx, Make("run-c", fmt.Sprintf("node-%d", i), i+1, state.Values{"i": i}))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("concurrent Save: %v", err)
			}
		}

		nodes, err := store.List(ctx, "run-c")
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != n {
			t.Errorf("List() returned %d nodes, want %d", len(nodes), n)
		}
	})
}

func mustSave(t *testing.T, store checkpoint.Store, cp checkpoint.Checkpoint) {
	t.Helper()
	if err := store.Save(context.Background(), cp); err != nil {
		t.Fatalf("Save(%s/%s): %v", cp.RunID, cp.Node, err)
	}
}
