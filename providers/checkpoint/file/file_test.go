package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/providers/checkpoint/checkpointtest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store { return newStore(t) })
}

func TestStore_Layout(t *testing.T) {
	s := newStore(t)
	if err := s.Save(context.Background(), checkpointtest.Make("run-1", "plan", 12, nil)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(s.Root(), "run-1", "000012_plan.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected checkpoint at %s: %v", path, err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(s.Root(), "run-1", ".tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestStore_PathTraversal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cp := checkpointtest.Make("../../escape", "../node", 1, nil)
	if err := s.Save(ctx, cp); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), "*", "*.json"))
	if len(matches) != 1 {
		t.Fatalf("checkpoint written outside the root: %v", matches)
	}

	got, err := s.Load(ctx, "../../escape", "../node")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "../../escape" || got.Node != "../node" {
		t.Errorf("original names must round-trip: %+v", got)
	}

	runs, err := s.Runs(ctx)
	if err != nil || len(runs) != 1 || runs[0] != "../../escape" {
		t.Errorf("Runs() = %v, %v", runs, err)
	}
}

func TestStore_SimilarNamesStayApart(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, runID := range []string{"a/b", "a_b"} {
		if err := s.Save(ctx, checkpointtest.Make(runID, "plan", 1, nil)); err != nil {
			t.Fatalf("Save(%q): %v", runID, err)
		}
	}
	// Nodes "x/y" and "x_y" of the same run are different checkpoints.
	if err := s.Save(ctx, checkpointtest.Make("a_b", "x/y", 2, nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, checkpointtest.Make("a_b", "x_y", 3, nil)); err != nil {
		t.Fatalf("Save(x_y) after x/y: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil || len(runs) != 2 || runs[0] != "a/b" || runs[1] != "a_b" {
		t.Errorf("Runs() = %v, %v", runs, err)
	}
	nodes, err := s.List(ctx, "a/b")
	if err != nil || len(nodes) != 1 {
		t.Errorf("List(a/b) = %v, %v", nodes, err)
	}
	got, err := s.Load(ctx, "a_b", "x_y")
	if err != nil || got.Node != "x_y" || got.Sequence != 3 {
		t.Errorf("Load(a_b, x_y) = %+v, %v", got, err)
	}
}

func TestStore_IgnoresForeignFiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, checkpointtest.Make("run-1", "a", 1, nil)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "run-1", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	nodes, err := s.List(ctx, "run-1")
	if err != nil || len(nodes) != 1 {
		t.Errorf("List() = %v, %v", nodes, err)
	}
}

func TestNew_EmptyRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	s := newStore(t)
	dir := filepath.Join(s.Root(), "run-1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "000001_a.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load(context.Background(), "run-1", "a")
	if err == nil || errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}
