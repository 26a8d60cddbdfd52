// Package catalog records crawl runs and the entries they found so usage
// can be compared between runs and queried without crawling again.
//
// A run is opened with BeginRun, filled with PutEntries while the crawl
// progresses and sealed with FinishRun. Entries of a finished run are
// immutable.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/marmos91/nfsusage/pkg/nfs"
)

var (
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished is returned when writing to a run after FinishRun.
	ErrRunFinished = errors.New("run already finished")

	// ErrClosed is returned by every method once the store is closed.
	ErrClosed = errors.New("catalog closed")
)

// Totals summarises a run.
type Totals struct {
	Dirs   int64  `json:"dirs" yaml:"dirs"`
	Files  int64  `json:"files" yaml:"files"`
	Other  int64  `json:"other" yaml:"other"`
	Bytes  uint64 `json:"bytes" yaml:"bytes"`
	Errors int64  `json:"errors" yaml:"errors"`
}

// Run describes one crawl of an export.
type Run struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Root     string    `json:"root"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Totals   Totals    `json:"totals"`
}

// Done reports whether FinishRun was called for the run.
func (r Run) Done() bool {
	return !r.Finished.IsZero()
}

// Record is what the catalog keeps of one directory entry.
type Record struct {
	Path  string    `json:"path"`
	Type  string    `json:"type"`
	Size  uint64    `json:"size"`
	Used  uint64    `json:"used"`
	Mode  uint32    `json:"mode"`
	UID   uint32    `json:"uid"`
	GID   uint32    `json:"gid"`
	Mtime time.Time `json:"mtime"`
}

// RecordOf converts a listed entry.
func RecordOf(e nfs.DirEntry) Record {
	return Record{
		Path:  e.Path(),
		Type:  e.Type().String(),
		Size:  e.Size(),
		Used:  e.Blocks() * 512,
		Mode:  e.Mode(),
		UID:   e.UID(),
		GID:   e.GID(),
		Mtime: e.Mtime(),
	}
}

// Store persists runs and their entries. Implementations are safe for
// concurrent use.
type Store interface {
	// BeginRun registers a new run of url starting at root.
	BeginRun(ctx context.Context, url, root string) (Run, error)

	// PutEntries adds records to an unfinished run. A record whose path
	// is already present replaces it.
	PutEntries(ctx context.Context, runID string, records []Record) error

	// FinishRun seals the run with its totals.
	FinishRun(ctx context.Context, runID string, totals Totals) (Run, error)

	GetRun(ctx context.Context, runID string) (Run, error)

	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]Run, error)

	// ListEntries returns the records of a run at or below prefix, sorted
	// by path. An empty prefix or "/" selects every record.
	ListEntries(ctx context.Context, runID, prefix string) ([]Record, error)

	Close() error
}

// Within reports whether p is prefix or lies below it.
func Within(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" || p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
