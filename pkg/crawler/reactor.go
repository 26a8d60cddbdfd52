package crawler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/ratelimiter"
	"github.com/marmos91/nfsusage/pkg/metrics"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

// pollInterval bounds a single poll so new jobs and cancellation are
// noticed while requests are in flight.
const pollInterval = 100 * time.Millisecond

// reactor drives one Mount: it starts asynchronous scans for the
// directories it receives, polls the Mount's socket and reports every
// completed listing. It is the only goroutine touching its Mount.
type reactor struct {
	id       int
	mount    *nfs.Mount
	jobs     <-chan string
	results  chan<- listing
	limiter  *ratelimiter.RateLimiter
	timeout  time.Duration
	capacity int
	metrics  metrics.CrawlMetrics

	active  []*scan
	backlog []string
	closed  bool
}

type scan struct {
	path     string
	scanner  *nfs.Scanner
	deadline time.Time
}

func (r *reactor) run(ctx context.Context) error {
	for {
		if !r.accept(ctx) || !r.start(ctx) {
			return nil
		}
		if len(r.active) == 0 && len(r.backlog) == 0 {
			if r.closed {
				return nil
			}
			continue
		}

		if err := r.poll(); err != nil {
			r.failAll(ctx, err)
			return err
		}
		if !r.collect(ctx) {
			return nil
		}
	}
}

// accept takes new directories from the dispatcher. It blocks only when
// the reactor has nothing else to do. It returns false once ctx is done.
func (r *reactor) accept(ctx context.Context) bool {
	idle := len(r.active) == 0 && len(r.backlog) == 0
	if idle && !r.closed {
		select {
		case <-ctx.Done():
			return false
		case p, ok := <-r.jobs:
			if !ok {
				r.closed = true
				return true
			}
			r.backlog = append(r.backlog, p)
		}
	}

drain:
	for !r.closed && len(r.active)+len(r.backlog) < r.capacity {
		select {
		case p, ok := <-r.jobs:
			if !ok {
				r.closed = true
				break drain
			}
			r.backlog = append(r.backlog, p)
		default:
			break drain
		}
	}
	return ctx.Err() == nil
}

// start issues queued directory opens the rate limit allows. It returns
// false if ctx was cancelled while reporting a failed open.
func (r *reactor) start(ctx context.Context) bool {
	for len(r.backlog) > 0 && r.limiter.Allow() {
		p := r.backlog[0]
		r.backlog = r.backlog[1:]

		s, err := nfs.ScanDirAsync(r.mount, p)
		if err != nil {
			if !r.send(ctx, listing{conn: r.id, path: p, err: err}) {
				return false
			}
			continue
		}
		r.active = append(r.active, &scan{path: p, scanner: s, deadline: time.Now().Add(r.timeout)})
	}
	return true
}

func (r *reactor) send(ctx context.Context, res listing) bool {
	select {
	case r.results <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// poll waits for socket events, a request deadline or the next rate
// limiter token, whichever comes first, and services the Mount.
func (r *reactor) poll() error {
	wait := pollInterval
	now := time.Now()
	for _, s := range r.active {
		wait = min(wait, max(s.deadline.Sub(now), 0))
	}
	if len(r.backlog) > 0 {
		wait = min(wait, max(r.limiter.Delay(), time.Millisecond))
	}

	fd, err := r.mount.Fd()
	if err != nil {
		return err
	}
	events, err := r.mount.WhichEvents()
	if err != nil {
		return err
	}

	if n, err := r.mount.QueueLength(); err == nil {
		r.metrics.SetInFlight(r.id, n)
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	if _, err := unix.Poll(fds, int(wait/time.Millisecond)); err != nil && !errors.Is(err, unix.EINTR) {
		return err
	}
	return r.mount.Service(fds[0].Revents)
}

// collect reports finished and expired scans. It returns false if ctx
// was cancelled while reporting.
func (r *reactor) collect(ctx context.Context) bool {
	now := time.Now()
	remaining := r.active[:0]
	for _, s := range r.active {
		res, done := r.check(s, now)
		if !done {
			remaining = append(remaining, s)
			continue
		}
		if !r.send(ctx, res) {
			return false
		}
	}
	r.active = remaining
	return true
}

func (r *reactor) check(s *scan, now time.Time) (listing, bool) {
	ok, err := s.scanner.Ready()
	switch {
	case err != nil:
		return listing{conn: r.id, path: s.path, err: err}, true
	case ok:
		var entries []nfs.DirEntry
		for e := range s.scanner.All() {
			entries = append(entries, e)
		}
		return listing{conn: r.id, path: s.path, entries: entries}, true
	case !now.Before(s.deadline):
		_ = s.scanner.Close()
		logger.Debug("connection %d: abandoned %s after %s", r.id, s.path, r.timeout)
		return listing{conn: r.id, path: s.path, err: timeoutError(s.path, r.timeout)}, true
	}
	return listing{}, false
}

// failAll reports every outstanding directory as failed with err.
func (r *reactor) failAll(ctx context.Context, err error) {
	pending := make([]string, 0, len(r.active)+len(r.backlog))
	for _, s := range r.active {
		_ = s.scanner.Close()
		pending = append(pending, s.path)
	}
	pending = append(pending, r.backlog...)
	r.active, r.backlog = nil, nil

	for _, p := range pending {
		if !r.send(ctx, listing{conn: r.id, path: p, err: err}) {
			return
		}
	}
}
