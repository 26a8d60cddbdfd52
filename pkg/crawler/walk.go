// Package crawler walks directory trees of an NFS export.
//
// Walk lists one directory at a time on a single Mount. Crawler keeps
// several Mounts busy at once, each driven by its own goroutine running a
// poll loop over the Mount's socket, and hands every entry to one callback
// running on the caller's goroutine.
package crawler

import (
	"context"
	"io/fs"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

// SkipDir returned by a WalkFunc for a directory entry stops the crawl
// from descending into it.
var SkipDir = fs.SkipDir

// WalkFunc is called for every entry found. Returning SkipDir for a
// directory skips it; any other error stops the crawl and is returned.
type WalkFunc func(e nfs.DirEntry) error

// ErrorFunc is told about directories that could not be listed. The crawl
// goes on after it returns.
type ErrorFunc func(path string, err error)

// Stats summarises a crawl.
type Stats struct {
	Dirs   int64
	Files  int64
	Other  int64
	Bytes  uint64
	Errors int64
}

func (s *Stats) add(e nfs.DirEntry) {
	switch {
	case e.IsDir():
		s.Dirs++
	case e.IsFile():
		s.Files++
		s.Bytes += e.Size()
	default:
		s.Other++
	}
}

// warnError is the ErrorFunc used when none is configured.
func warnError(path string, err error) {
	logger.Warn("failed to list %s: %v", path, err)
}

// Walk lists root and every directory below it, depth first, on m. Each
// directory is read completely before its children are visited.
// Directories that cannot be listed are reported to onError, or logged
// when onError is nil, and skipped.
func Walk(ctx context.Context, m *nfs.Mount, root string, fn WalkFunc, onError ErrorFunc) (Stats, error) {
	if onError == nil {
		onError = warnError
	}

	var stats Stats
	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s, err := nfs.ScanDir(ctx, m, dir)
		if err != nil {
			if nfs.KindOf(err) == nfs.KindClosedSession || ctx.Err() != nil {
				return stats, err
			}
			stats.Errors++
			onError(dir, err)
			continue
		}

		var children []string
		for e, ok := s.Next(); ok; e, ok = s.Next() {
			stats.add(e)
			err := fn(e)
			if err == SkipDir {
				continue
			}
			if err != nil {
				_ = s.Close()
				return stats, err
			}
			if e.IsDir() {
				children = append(children, e.Path())
			}
		}

		// push in reverse so children are visited in server order
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return stats, nil
}
