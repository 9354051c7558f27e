package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/internal/utils"
	"github.com/leofalp/devforge/providers/observability"
)

const (
	fileExt  = ".json"
	seqWidth = 6
	dirPerm  = 0o755
	filePerm = 0o644
)

// Store keeps checkpoints under a root directory.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ checkpoint.Store = (*Store)(nil)

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file checkpoint store: empty root directory")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("file checkpoint store: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string {
	return s.root
}

type entry struct {
	seq  int
	node string // encoded node name as it appears in the file name
	path string
}

// parseName splits "000012_plan.json" into (12, "plan").
func parseName(name string) (int, string, bool) {
	if !strings.HasSuffix(name, fileExt) || len(name) < seqWidth+2+len(fileExt) || name[seqWidth] != '_' {
		return 0, "", false
	}
	seq, err := strconv.Atoi(name[:seqWidth])
	if err != nil {
		return 0, "", false
	}
	return seq, strings.TrimSuffix(name[seqWidth+1:], fileExt), true
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.root, utils.SafeName(runID))
}

// entries lists the checkpoint files of runID sorted by sequence.
func (s *Store) entries(runID string) ([]entry, error) {
	return entriesIn(s.runDir(runID))
}

func entriesIn(dir string) ([]entry, error) {
	items, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file checkpoint store: read %s: %w", dir, err)
	}

	var out []entry
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		seq, node, ok := parseName(item.Name())
		if !ok {
			continue
		}
		out = append(out, entry{seq: seq, node: node, path: filepath.Join(dir, item.Name())})
	}
	slices.SortFunc(out, func(a, b entry) int { return a.seq - b.seq })
	return out, nil
}

func readCheckpoint(path string) (*checkpoint.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file checkpoint store: %w", err)
	}
	return checkpoint.Decode(data)
}

// Save writes cp atomically. It fails with ErrAlreadyExists if the run
// already has a checkpoint for cp.Node.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	data, err := checkpoint.Encode(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.entries(cp.RunID)
	if err != nil {
		return err
	}
	safeNode := utils.SafeName(cp.Node)
	for _, e := range existing {
		if e.node == safeNode {
			return fmt.Errorf("%w: %s/%s", checkpoint.ErrAlreadyExists, cp.RunID, cp.Node)
		}
	}

	dir := s.runDir(cp.RunID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("file checkpoint store: %w", err)
	}

	name := fmt.Sprintf("%0*d_%s%s", seqWidth, cp.Sequence, safeNode, fileExt)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file checkpoint store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file checkpoint store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file checkpoint store: close: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file checkpoint store: chmod: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file checkpoint store: rename: %w", err)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventCheckpointSaved,
			observability.String(observability.AttrCheckpointBackend, "file"),
			observability.String(observability.AttrGraphNode, cp.Node),
			observability.Int(observability.AttrGraphSequence, cp.Sequence),
		)
	}
	return nil
}

// Load reads the checkpoint of node in runID.
func (s *Store) Load(_ context.Context, runID, node string) (*checkpoint.Checkpoint, error) {
	entries, err := s.entries(runID)
	if err != nil {
		return nil, err
	}
	safeNode := utils.SafeName(node)
	for _, e := range entries {
		if e.node == safeNode {
			return readCheckpoint(e.path)
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", checkpoint.ErrNotFound, runID, node)
}

// Latest reads the checkpoint with the highest sequence.
func (s *Store) Latest(_ context.Context, runID string) (*checkpoint.Checkpoint, error) {
	entries, err := s.entries(runID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: run %s", checkpoint.ErrNotFound, runID)
	}
	return readCheckpoint(entries[len(entries)-1].path)
}

// List returns node names in sequence order. Names are read from the files
// themselves, so they are the original names even when encoded on disk.
func (s *Store) List(_ context.Context, runID string) ([]string, error) {
	entries, err := s.entries(runID)
	if err != nil {
		return nil, err
	}
	nodes := make([]string, 0, len(entries))
	for _, e := range entries {
		cp, err := readCheckpoint(e.path)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, cp.Node)
	}
	return nodes, nil
}

// Delete removes the run directory.
func (s *Store) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		return fmt.Errorf("file checkpoint store: delete %s: %w", runID, err)
	}
	return nil
}

// Runs returns the IDs of runs with at least one checkpoint, sorted.
func (s *Store) Runs(_ context.Context) ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("file checkpoint store: read %s: %w", s.root, err)
	}

	var runs []string
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		// Directory names are encoded; the run ID comes from the checkpoint.
		entries, err := entriesIn(filepath.Join(s.root, item.Name()))
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		cp, err := readCheckpoint(entries[0].path)
		if err != nil {
			return nil, err
		}
		runs = append(runs, cp.RunID)
	}
	slices.Sort(runs)
	return runs, nil
}
