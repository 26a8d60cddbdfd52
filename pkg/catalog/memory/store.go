// Package memory is a catalog.Store kept in process memory. It is meant
// for one-off reports and tests; everything is lost on Close.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/nfsusage/pkg/catalog"
)

// Config configures a Store.
type Config struct {
	// MaxRuns drops the oldest runs once exceeded. 0 keeps all of them.
	MaxRuns int `mapstructure:"max_runs"`
}

type runData struct {
	run     catalog.Run
	entries map[string]catalog.Record
}

// Store implements catalog.Store with maps guarded by one mutex.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	runs   map[string]*runData
	order  []string
	closed bool
	now    func() time.Time
}

// New creates an empty store.
func New(cfg Config) *Store {
	return &Store{
		cfg:  cfg,
		runs: make(map[string]*runData),
		now:  time.Now,
	}
}

func (s *Store) BeginRun(ctx context.Context, url, root string) (catalog.Run, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Run{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return catalog.Run{}, catalog.ErrClosed
	}

	run := catalog.Run{
		ID:      uuid.NewString(),
		URL:     url,
		Root:    root,
		Started: s.now().UTC(),
	}
	s.runs[run.ID] = &runData{run: run, entries: make(map[string]catalog.Record)}
	s.order = append(s.order, run.ID)

	if s.cfg.MaxRuns > 0 {
		for len(s.order) > s.cfg.MaxRuns {
			delete(s.runs, s.order[0])
			s.order = s.order[1:]
		}
	}
	return run, nil
}

func (s *Store) PutEntries(ctx context.Context, runID string, records []catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rd, err := s.lookup(runID)
	if err != nil {
		return err
	}
	if rd.run.Done() {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrRunFinished)
	}
	for _, r := range records {
		rd.entries[r.Path] = r
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, totals catalog.Totals) (catalog.Run, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Run{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rd, err := s.lookup(runID)
	if err != nil {
		return catalog.Run{}, err
	}
	if rd.run.Done() {
		return catalog.Run{}, fmt.Errorf("run %s: %w", runID, catalog.ErrRunFinished)
	}
	rd.run.Finished = s.now().UTC()
	rd.run.Totals = totals
	return rd.run, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (catalog.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rd, err := s.lookup(runID)
	if err != nil {
		return catalog.Run{}, err
	}
	return rd.run, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]catalog.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, catalog.ErrClosed
	}

	runs := make([]catalog.Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runs = append(runs, s.runs[s.order[i]].run)
	}
	return runs, nil
}

func (s *Store) ListEntries(ctx context.Context, runID, prefix string) ([]catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rd, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	var out []catalog.Record
	for p, r := range rd.entries {
		if catalog.Within(p, prefix) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.runs = nil
	s.order = nil
	return nil
}

// lookup must be called with mu held.
func (s *Store) lookup(runID string) (*runData, error) {
	if s.closed {
		return nil, catalog.ErrClosed
	}
	rd, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, catalog.ErrRunNotFound)
	}
	return rd, nil
}
