package commands

import (
	"context"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/config"
	"github.com/marmos91/nfsusage/pkg/crawler"
	"github.com/marmos91/nfsusage/pkg/fstab"
)

// signalContext is cancelled on SIGINT or SIGTERM so crawls stop cleanly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// target is what a PATH|URL argument resolved to.
type target struct {
	// URL of the export to mount.
	URL string

	// Prefix is prepended to paths inside the export when printing them:
	// the local mount point for paths, "/" for URLs.
	Prefix string
}

// resolveTarget turns a local path or nfs:// URL into a target. fstabPath
// overrides the configured fstab when set.
func resolveTarget(arg, fstabPath string) (target, error) {
	if fstabPath == "" {
		fstabPath = cfg.Fstab
	}

	url, err := fstab.Resolve(arg, fstabPath)
	if err != nil {
		return target{}, err
	}

	prefix := "/"
	if !strings.HasPrefix(arg, "nfs://") {
		if abs, err := filepath.Abs(arg); err == nil {
			prefix = abs
		} else {
			prefix = filepath.Clean(arg)
		}
	}
	logger.Debug("resolved %s to %s", arg, url)
	return target{URL: url, Prefix: prefix}, nil
}

// display maps a path inside the export onto the target's prefix.
func (t target) display(p string) string {
	return path.Join(t.Prefix, p)
}

// startMetrics starts the metrics endpoint when enabled. The returned
// function stops it.
func startMetrics(ctx context.Context) (*config.MetricsResult, func()) {
	res := config.InitializeMetrics(cfg)
	if res.Server == nil {
		return res, func() {}
	}

	go func() {
		if err := res.Server.Start(ctx); err != nil {
			logger.Error("metrics server error: %v", err)
		}
	}()

	return res, func() {
		if err := res.Server.Stop(context.Background()); err != nil {
			logger.Warn("metrics server shutdown error: %v", err)
		}
	}
}

// crawlerConfig builds the crawl of a whole export. A positive connections
// overrides the configured count.
func crawlerConfig(url string, connections int, m *config.MetricsResult) crawler.Config {
	cc := config.CrawlerOptions(cfg, url, "/", m.Crawl)
	if connections > 0 {
		cc.Connections = connections
	}
	return cc
}
