package metrics

import "time"

// CrawlMetrics records what the NFS client and the crawler do.
//
// Implementations must be safe for concurrent use: a crawler shares one
// instance between all of its connections.
type CrawlMetrics interface {
	// ObserveRPC records one completed RPC. procedure is the protocol
	// procedure name (LOOKUP, READDIRPLUS, MNT, ...) and err its outcome.
	ObserveRPC(program string, procedure string, elapsed time.Duration, err error)

	// DirListed records a directory whose listing completed.
	DirListed(connection int)

	// EntriesSeen adds n directory entries of the given type ("file",
	// "dir", "symlink", "other").
	EntriesSeen(kind string, n int)

	// ListError records a directory that could not be listed. kind is the
	// error classification (not_found, permission_denied, ...).
	ListError(kind string)

	// SetInFlight publishes the number of requests queued on a connection.
	SetInFlight(connection int, n int)
}

// ReportMetrics records report uploads.
type ReportMetrics interface {
	// ObserveUpload records one report written to a sink.
	ObserveUpload(sink string, bytes int, elapsed time.Duration, err error)
}

// NewNoopCrawlMetrics returns a CrawlMetrics that discards everything.
func NewNoopCrawlMetrics() CrawlMetrics {
	return noopCrawlMetrics{}
}

// NewNoopReportMetrics returns a ReportMetrics that discards everything.
func NewNoopReportMetrics() ReportMetrics {
	return noopReportMetrics{}
}

type noopCrawlMetrics struct{}

func (noopCrawlMetrics) ObserveRPC(program string, procedure string, elapsed time.Duration, err error) {
}
func (noopCrawlMetrics) DirListed(connection int)          {}
func (noopCrawlMetrics) EntriesSeen(kind string, n int)    {}
func (noopCrawlMetrics) ListError(kind string)             {}
func (noopCrawlMetrics) SetInFlight(connection int, n int) {}

type noopReportMetrics struct{}

func (noopReportMetrics) ObserveUpload(sink string, bytes int, elapsed time.Duration, err error) {}
