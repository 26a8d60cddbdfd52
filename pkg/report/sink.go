package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/metrics"
)

// Sink stores finished reports.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write stores r and reports where it went.
	Write(ctx context.Context, r *Report) (Written, error)
}

// Written describes a stored report.
type Written struct {
	Location string
	Bytes    int
}

// reportName is the base name a report is stored under.
func reportName(r *Report, f Format) string {
	id := r.RunID
	if id == "" {
		id = r.Started.UTC().Format("20060102T150405Z")
	}
	return id + f.Ext()
}

// FileSink writes each report to its own file in a directory.
type FileSink struct {
	dir    string
	format Format
}

// NewFileSink creates a FileSink writing into dir, created if missing.
func NewFileSink(dir string, format Format) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("file sink: directory is required")
	}
	if _, err := Encode(&Report{}, format); err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}
	if format == "" {
		format = FormatJSON
	}
	return &FileSink{dir: dir, format: format}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(ctx context.Context, r *Report) (Written, error) {
	if err := ctx.Err(); err != nil {
		return Written{}, err
	}

	data, err := Encode(r, s.format)
	if err != nil {
		return Written{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Written{}, fmt.Errorf("failed to create report directory: %w", err)
	}

	// Write to a temporary name first so readers never see half a report.
	dst := filepath.Join(s.dir, reportName(r, s.format))
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Written{}, fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return Written{}, fmt.Errorf("failed to write report: %w", err)
	}
	return Written{Location: dst, Bytes: len(data)}, nil
}

// WriteAll sends r to every sink and records each attempt in m. It keeps
// going after a failure and returns the first error.
func WriteAll(ctx context.Context, r *Report, sinks []Sink, m metrics.ReportMetrics) error {
	if m == nil {
		m = metrics.NewNoopReportMetrics()
	}

	var first error
	for _, s := range sinks {
		start := time.Now()
		w, err := s.Write(ctx, r)
		if err == nil {
			logger.Info("report written to %s", w.Location)
		} else {
			logger.Error("report sink %s failed: %v", s.Name(), err)
			if first == nil {
				first = fmt.Errorf("%s sink: %w", s.Name(), err)
			}
		}
		m.ObserveUpload(s.Name(), w.Bytes, time.Since(start), err)
	}
	return first
}
