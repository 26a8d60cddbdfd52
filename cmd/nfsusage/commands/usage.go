package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsusage/internal/cli/output"
	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/catalog"
	"github.com/marmos91/nfsusage/pkg/config"
	"github.com/marmos91/nfsusage/pkg/crawler"
	"github.com/marmos91/nfsusage/pkg/nfs"
	"github.com/marmos91/nfsusage/pkg/report"
)

// catalogBatch is how many records are buffered per PutEntries call.
const catalogBatch = 1000

var (
	usageFstab       string
	usageConnections int
	usageDepth       int
	usageCatalog     bool
	usageNoCatalog   bool
	usageReport      bool
	usageOutput      string
)

var usageCmd = &cobra.Command{
	Use:   "usage PATH|URL",
	Short: "Measure disk usage per directory",
	Long: `Crawl PATH or URL and print how many files and bytes every directory
down to --depth holds, largest first.

SIZE is the sum of file sizes, USED the space allocated on the server.

The run can be recorded in the catalog (catalog.enabled or --catalog) and
the report written to the configured sinks (--report), e.g. a directory of
JSON files or an S3 bucket.

Examples:
  nfsusage usage /mnt/data --depth 2
  nfsusage usage nfs://fileserver/export -c 16 --report`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageFstab, "fstab", "", "fstab used to translate local paths (default: from config)")
	usageCmd.Flags().IntVarP(&usageConnections, "connections", "c", 0, "parallel connections (default: from config)")
	usageCmd.Flags().IntVarP(&usageDepth, "depth", "d", -1, "directory levels to report (default: from config)")
	usageCmd.Flags().BoolVar(&usageCatalog, "catalog", false, "record the run in the catalog")
	usageCmd.Flags().BoolVar(&usageNoCatalog, "no-catalog", false, "do not record the run even if the catalog is enabled")
	usageCmd.Flags().BoolVar(&usageReport, "report", false, "write the report to the configured sinks")
	usageCmd.Flags().StringVarP(&usageOutput, "output", "o", "table", "output format: table, plain")
	usageCmd.MarkFlagsMutuallyExclusive("catalog", "no-catalog")
}

// recorder buffers crawled records into a catalog run.
type recorder struct {
	store catalog.Store
	run   catalog.Run
	buf   []catalog.Record
}

func (r *recorder) add(ctx context.Context, rec catalog.Record) error {
	r.buf = append(r.buf, rec)
	if len(r.buf) < catalogBatch {
		return nil
	}
	return r.flush(ctx)
}

func (r *recorder) flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	err := r.store.PutEntries(ctx, r.run.ID, r.buf)
	r.buf = r.buf[:0]
	return err
}

func runUsage(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(usageOutput)
	if err != nil {
		return err
	}
	depth := cfg.Report.Depth
	if usageDepth >= 0 {
		depth = usageDepth
	}

	t, err := resolveTarget(args[0], usageFstab)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	m, stopMetrics := startMetrics(ctx)
	defer stopMetrics()

	// Sinks are created up front so a bad sink configuration fails before
	// a long crawl rather than after it.
	var sinks []report.Sink
	if usageReport {
		if sinks, err = config.CreateSinks(ctx, &cfg.Report); err != nil {
			return err
		}
		if len(sinks) == 0 {
			logger.Warn("--report given but no report sinks are configured")
		}
	}

	var rec *recorder
	if (cfg.Catalog.Enabled || usageCatalog) && !usageNoCatalog {
		store, err := config.CreateCatalog(ctx, &cfg.Catalog)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		run, err := store.BeginRun(ctx, t.URL, "/")
		if err != nil {
			return err
		}
		logger.Info("recording run %s in the %s catalog", run.ID, cfg.Catalog.Type)
		rec = &recorder{store: store, run: run, buf: make([]catalog.Record, 0, catalogBatch)}
	}

	agg := report.NewAggregator("/", depth)
	started := time.Now().UTC()

	stats, crawlErr := crawler.New(crawlerConfig(t.URL, usageConnections, m)).Run(ctx, func(e nfs.DirEntry) error {
		r := catalog.RecordOf(e)
		agg.Add(r)
		if rec != nil {
			return rec.add(ctx, r)
		}
		return nil
	})
	if crawlErr != nil && !errors.Is(crawlErr, context.Canceled) {
		return crawlErr
	}

	totals := catalog.Totals{
		Dirs:   stats.Dirs,
		Files:  stats.Files,
		Other:  stats.Other,
		Bytes:  stats.Bytes,
		Errors: stats.Errors,
	}
	rpt := &report.Report{
		URL:      t.URL,
		Root:     t.Prefix,
		Started:  started,
		Finished: time.Now().UTC(),
		Depth:    depth,
		Totals:   totals,
		Dirs:     agg.Result(),
	}

	// A cancelled crawl still prints what it saw but is not recorded or
	// reported as a complete run.
	if crawlErr != nil {
		_ = printUsage(cmd, rpt, t, format)
		return crawlErr
	}

	if rec != nil {
		if err := rec.flush(ctx); err != nil {
			return err
		}
		run, err := rec.store.FinishRun(ctx, rec.run.ID, totals)
		if err != nil {
			return err
		}
		rpt.RunID = run.ID
	}

	if err := printUsage(cmd, rpt, t, format); err != nil {
		return err
	}
	if stats.Errors > 0 {
		logger.Warn("%d directories could not be listed", stats.Errors)
	}

	if len(sinks) > 0 {
		return report.WriteAll(ctx, rpt, sinks, m.Report)
	}
	return nil
}

func printUsage(cmd *cobra.Command, rpt *report.Report, t target, format output.Format) error {
	table := output.NewTableData("Size", "Used", "Files", "Dirs", "Path")
	for _, d := range rpt.Dirs {
		size, used := output.Bytes(d.Bytes), output.Bytes(d.Used)
		files, dirs := output.Count(d.Files), output.Count(d.Dirs)
		if format == output.FormatPlain {
			size, used = strconv.FormatUint(d.Bytes, 10), strconv.FormatUint(d.Used, 10)
			files, dirs = strconv.FormatInt(d.Files, 10), strconv.FormatInt(d.Dirs, 10)
		}
		table.AddRow(size, used, files, dirs, t.display(d.Path))
	}

	p := output.NewPrinter(cmd.OutOrStdout(), format)
	if err := p.Print(table, 0, 1, 2, 3); err != nil {
		return err
	}
	if format == output.FormatTable {
		p.Println()
		p.Success(fmt.Sprintf("%s in %s files, %s directories (%s)",
			output.Bytes(rpt.Totals.Bytes), output.Count(rpt.Totals.Files),
			output.Count(rpt.Totals.Dirs), rpt.Finished.Sub(rpt.Started).Round(time.Millisecond)))
	}
	return nil
}
