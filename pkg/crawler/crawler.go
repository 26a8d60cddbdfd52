package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/ratelimiter"
	"github.com/marmos91/nfsusage/pkg/metrics"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultMaxInFlight    = 16
)

// ErrTimeout is wrapped by the error reported for a directory whose
// listing did not complete within the request timeout.
var ErrTimeout = errors.New("directory listing timed out")

// Config configures a Crawler.
type Config struct {
	// URL of the export, as accepted by nfs.Open.
	URL string

	// Root is the directory the crawl starts from. Empty means "/".
	Root string

	// Connections is the number of Mounts listing in parallel.
	// Default: 1
	Connections int

	// MaxInFlight bounds the directory opens queued on one connection.
	// Default: 16
	MaxInFlight int

	// RequestTimeout abandons a directory whose listing takes longer.
	// Default: 5s
	RequestTimeout time.Duration

	// RateLimit caps directory opens per second over all connections.
	// Zero means unlimited.
	RateLimit float64

	// MountOptions are passed to every nfs.Open.
	MountOptions []nfs.Option

	// Metrics receives crawl progress. Nil disables it.
	Metrics metrics.CrawlMetrics

	// OnError is told about directories that could not be listed.
	// Default: log a warning.
	OnError ErrorFunc
}

// Crawler lists a directory tree over several connections.
type Crawler struct {
	cfg     Config
	limiter *ratelimiter.RateLimiter
}

// New creates a Crawler. Nothing is mounted until Run.
func New(cfg Config) *Crawler {
	if cfg.Root == "" {
		cfg.Root = "/"
	}
	if cfg.Connections < 1 {
		cfg.Connections = 1
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopCrawlMetrics()
	}
	if cfg.OnError == nil {
		cfg.OnError = warnError
	}

	burst := int(cfg.RateLimit)
	return &Crawler{
		cfg:     cfg,
		limiter: ratelimiter.New(cfg.RateLimit, max(burst, cfg.Connections)),
	}
}

// listing is what a connection reports for one directory.
type listing struct {
	conn    int
	path    string
	entries []nfs.DirEntry
	err     error
}

// Run mounts the export Connections times and crawls from Root. fn runs
// on the calling goroutine for every entry, in the order listings
// complete. Directories are fed back to the connections round robin until
// none is left.
func (c *Crawler) Run(ctx context.Context, fn WalkFunc) (Stats, error) {
	var stats Stats

	mounts, err := c.openAll(ctx)
	if err != nil {
		return stats, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	results := make(chan listing, c.cfg.Connections*c.cfg.MaxInFlight)
	jobs := make([]chan string, len(mounts))
	for i, m := range mounts {
		jobs[i] = make(chan string, c.cfg.MaxInFlight)
		r := &reactor{
			id:       i,
			mount:    m,
			jobs:     jobs[i],
			results:  results,
			limiter:  c.limiter,
			timeout:  c.cfg.RequestTimeout,
			capacity: c.cfg.MaxInFlight,
			metrics:  c.cfg.Metrics,
		}
		g.Go(func() error {
			defer m.Close()
			return r.run(gctx)
		})
	}

	runErr := c.dispatch(gctx, jobs, results, fn, &stats)
	if runErr != nil {
		// stop the reactors even if they are blocked on results
		cancel()
	}
	for _, ch := range jobs {
		close(ch)
	}
	werr := g.Wait()

	switch {
	case runErr == nil:
		runErr = werr
	case werr != nil && errors.Is(runErr, context.Canceled) && ctx.Err() == nil:
		// a connection failed and cancelled the group
		runErr = werr
	}
	return stats, runErr
}

func (c *Crawler) openAll(ctx context.Context) ([]*nfs.Mount, error) {
	mounts := make([]*nfs.Mount, c.cfg.Connections)
	g, gctx := errgroup.WithContext(ctx)
	for i := range mounts {
		g.Go(func() error {
			m, err := nfs.Open(gctx, c.cfg.URL, c.cfg.MountOptions...)
			if err != nil {
				return err
			}
			mounts[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range mounts {
			if m != nil {
				_ = m.Close()
			}
		}
		return nil, err
	}
	logger.Debug("crawler opened %d connections to %s", len(mounts), c.cfg.URL)
	return mounts, nil
}

// dispatch hands directories to the connections and consumes their
// listings until the tree is exhausted.
func (c *Crawler) dispatch(ctx context.Context, jobs []chan string, results <-chan listing, fn WalkFunc, stats *Stats) error {
	queue := []string{c.cfg.Root}
	outstanding := 0
	next := 0

	for {
		// Feed as many directories as the connections accept, round robin.
		for len(queue) > 0 {
			sent := false
			for range jobs {
				ch := jobs[next]
				next = (next + 1) % len(jobs)
				select {
				case ch <- queue[0]:
					sent = true
				default:
					continue
				}
				break
			}
			if !sent {
				break
			}
			queue = queue[1:]
			outstanding++
		}

		if outstanding == 0 {
			return nil
		}

		var res listing
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-results:
		}
		outstanding--

		if res.err != nil {
			stats.Errors++
			c.cfg.Metrics.ListError(nfs.KindOf(res.err).String())
			c.cfg.OnError(res.path, res.err)
			continue
		}

		c.cfg.Metrics.DirListed(res.conn)
		counts := map[string]int{}
		for _, e := range res.entries {
			stats.add(e)
			counts[kindLabel(e)]++

			err := fn(e)
			if err == SkipDir {
				continue
			}
			if err != nil {
				return err
			}
			if e.IsDir() {
				queue = append(queue, e.Path())
			}
		}
		for kind, n := range counts {
			c.cfg.Metrics.EntriesSeen(kind, n)
		}
	}
}

func kindLabel(e nfs.DirEntry) string {
	switch {
	case e.IsDir():
		return "dir"
	case e.IsFile():
		return "file"
	case e.IsSymlink():
		return "symlink"
	}
	return "other"
}

func timeoutError(path string, d time.Duration) error {
	return fmt.Errorf("scandir %s: %w after %s", path, ErrTimeout, d)
}
