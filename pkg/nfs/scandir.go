package nfs

import (
	"context"
	"iter"

	"github.com/marmos91/nfsusage/internal/engine"
)

// ScannerState is the life cycle stage of a Scanner.
type ScannerState int

const (
	// StatePending: an asynchronous open was queued and has not completed.
	StatePending ScannerState = iota

	// StateOpen: the listing is available to Next.
	StateOpen

	// StateClosed: exhausted, closed, or failed.
	StateClosed
)

func (s ScannerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Scanner iterates over the entries of one directory.
//
// The "." and ".." entries are never returned. A Scanner borrows its Mount:
// it must not be used after the Mount is closed.
type Scanner struct {
	mount *Mount
	path  string
	state ScannerState
	comp  *engine.Completion
	dir   *engine.Dir
	err   error
}

// ScanDir opens path and waits until its listing is available. An empty
// path is the export root.
func ScanDir(ctx context.Context, m *Mount, path string) (*Scanner, error) {
	if path == "" {
		path = "/"
	}
	if err := checkMount(m, path); err != nil {
		return nil, err
	}

	dir, err := m.eng.OpenDir(ctx, path)
	if err != nil {
		return nil, fromEngine(ctx, "scandir", path, err)
	}
	return &Scanner{mount: m, path: path, state: StateOpen, dir: dir}, nil
}

// ScanDirAsync queues the opening of path and returns a pending Scanner.
// The open progresses only while the caller drives the Mount with
// Service; Ready tells when it is done.
//
// Only failures to queue the request are returned here. Failures of the
// open itself are reported by Ready.
func ScanDirAsync(m *Mount, path string) (*Scanner, error) {
	if path == "" {
		path = "/"
	}
	if err := checkMount(m, path); err != nil {
		return nil, err
	}

	comp := &engine.Completion{}
	if err := m.eng.OpenDirAsync(path, comp); err != nil {
		return nil, fromEngine(context.Background(), "scandir", path, err)
	}
	return &Scanner{mount: m, path: path, state: StatePending, comp: comp}, nil
}

func checkMount(m *Mount, path string) error {
	if m == nil {
		return &Error{Op: "scandir", Path: path, Kind: KindInvalidArgument, Message: "nil mount"}
	}
	if m.closed {
		return closedError("scandir", path)
	}
	return nil
}

// Ready reports whether the open has completed. It returns false while an
// asynchronous open is pending and true afterwards, including once the
// scanner has been closed.
//
// A failed open returns its classified error. The error is kept and
// returned again, identical, by every later call to Ready and by Err.
func (s *Scanner) Ready() (bool, error) {
	s.settle()
	if s.err != nil {
		return false, s.err
	}
	return s.state != StatePending, nil
}

// settle moves a pending scanner forward once its completion slot has
// been filled by Service.
func (s *Scanner) settle() {
	if s.state != StatePending {
		return
	}
	if s.mount.closed {
		s.comp.Abandoned = true
		s.comp = nil
		s.state = StateClosed
		s.err = closedError("scandir", s.path)
		return
	}
	if !s.comp.Done {
		return
	}

	comp := s.comp
	s.comp = nil
	if comp.Status != 0 {
		s.state = StateClosed
		s.err = fromStatus("scandir", s.path, comp.Status, comp.Message)
		return
	}
	s.dir = comp.Dir
	s.state = StateOpen
}

// Next returns the next entry in server order. It returns false when the
// directory is exhausted, when the scanner is closed or failed, and while
// an asynchronous open is still pending. Exhaustion releases the listing.
func (s *Scanner) Next() (DirEntry, bool) {
	s.settle()
	if s.state != StateOpen {
		return DirEntry{}, false
	}
	if s.mount.closed {
		s.release()
		s.err = closedError("scandir", s.path)
		return DirEntry{}, false
	}

	for {
		d, ok := s.dir.Next()
		if !ok {
			s.release()
			return DirEntry{}, false
		}
		if d.Name == "." || d.Name == ".." {
			continue
		}
		return newDirEntry(s.path, d), true
	}
}

// All returns an iterator over the remaining entries. The scanner is
// closed when the loop ends, early or not. Check Err afterwards.
func (s *Scanner) All() iter.Seq[DirEntry] {
	return func(yield func(DirEntry) bool) {
		defer s.Close()
		for {
			e, ok := s.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

// Err returns the error that ended the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the listing. Closing a pending scanner abandons the open:
// its result is discarded when it arrives. Close is idempotent.
func (s *Scanner) Close() error {
	switch s.state {
	case StatePending:
		if s.comp.Done && s.comp.Dir != nil {
			s.comp.Dir.Close()
		}
		s.comp.Abandoned = true
		s.comp = nil
		s.state = StateClosed
	case StateOpen:
		s.release()
	}
	return nil
}

func (s *Scanner) release() {
	if s.dir != nil {
		s.dir.Close()
		s.dir = nil
	}
	s.state = StateClosed
}

// State returns the life cycle stage of the scanner.
func (s *Scanner) State() ScannerState {
	s.settle()
	return s.state
}

// Path returns the directory path the scanner was created for.
func (s *Scanner) Path() string {
	return s.path
}

// Mount returns the Mount the scanner lists from.
func (s *Scanner) Mount() *Mount {
	return s.mount
}
