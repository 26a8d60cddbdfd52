// Package badger is a catalog.Store persisted in a BadgerDB directory, so
// runs survive between invocations of the CLI.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/catalog"
)

// Config configures a Store.
type Config struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory; DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`
}

// Store implements catalog.Store on BadgerDB.
//
// Reads go straight to badger transactions. Writes to a run are serialised
// by mu so the finished check and the write cannot interleave with
// FinishRun.
type Store struct {
	db  *badger.DB
	mu  sync.Mutex
	now func() time.Time
}

// New opens or creates the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, errors.New("badger catalog: db_path is required")
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}
	logger.Debug("catalog opened at %s", cfg.DBPath)

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) BeginRun(ctx context.Context, url, root string) (catalog.Run, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Run{}, err
	}

	run := catalog.Run{
		ID:      uuid.NewString(),
		URL:     url,
		Root:    root,
		Started: s.now().UTC(),
	}
	err := s.update(func(txn *badger.Txn) error {
		return putJSON(txn, keyRun(run.ID), run)
	})
	if err != nil {
		return catalog.Run{}, err
	}
	return run, nil
}

func (s *Store) PutEntries(ctx context.Context, runID string, records []catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Done() {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrRunFinished)
	}

	// A write batch splits large listings over several transactions.
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.Path, err)
		}
		if err := wb.Set(keyEntry(runID, r.Path), data); err != nil {
			return mapError(err)
		}
	}
	return mapError(wb.Flush())
}

func (s *Store) FinishRun(ctx context.Context, runID string, totals catalog.Totals) (catalog.Run, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Run{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var run catalog.Run
	err := s.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, keyRun(runID), &run); err != nil {
			return err
		}
		if run.Done() {
			return catalog.ErrRunFinished
		}
		run.Finished = s.now().UTC()
		run.Totals = totals
		return putJSON(txn, keyRun(runID), run)
	})
	if err != nil {
		return catalog.Run{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (catalog.Run, error) {
	var run catalog.Run
	err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, keyRun(runID), &run)
	})
	if err != nil {
		return catalog.Run{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]catalog.Run, error) {
	var runs []catalog.Run
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRun)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run catalog.Run
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			})
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	return runs, nil
}

func (s *Store) ListEntries(ctx context.Context, runID, prefix string) ([]catalog.Record, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	scan := keyEntryPrefix(runID)
	if p := strings.TrimSuffix(prefix, "/"); p != "" {
		scan = keyEntry(runID, p)
	}

	var out []catalog.Record
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = scan

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r catalog.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			// the key prefix also matches siblings such as /docs2 for /docs
			if catalog.Within(r.Path, prefix) {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close flushes and closes the database. Calling it again is a no-op.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return catalog.ErrClosed
	}
	return mapError(s.db.View(fn))
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return catalog.ErrClosed
	}
	return mapError(s.db.Update(fn))
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// mapError translates badger errors into catalog errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return catalog.ErrRunNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return catalog.ErrClosed
	}
	return err
}
