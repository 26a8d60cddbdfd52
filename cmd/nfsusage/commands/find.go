package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/crawler"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

var (
	findFstab       string
	findConnections int
	findType        string
)

var findCmd = &cobra.Command{
	Use:   "find PATH|URL",
	Short: "List every path below a directory",
	Long: `List every file and directory below PATH or URL, one per line.

Local paths are printed below the local mount point, URLs below "/".

Examples:
  # Everything below a mounted NFS directory
  nfsusage find /mnt/data/projects

  # Crawl an export directly over 8 connections
  nfsusage find nfs://fileserver/export -c 8

  # Only directories
  nfsusage find /mnt/data --type dir`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVar(&findFstab, "fstab", "", "fstab used to translate local paths (default: from config)")
	findCmd.Flags().IntVarP(&findConnections, "connections", "c", 0, "parallel connections (default: from config)")
	findCmd.Flags().StringVar(&findType, "type", "", "only print entries of this type (file, dir, symlink, ...)")
}

func runFind(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(args[0], findFstab)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	m, stopMetrics := startMetrics(ctx)
	defer stopMetrics()

	cc := crawlerConfig(t.URL, findConnections, m)
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer func() { _ = out.Flush() }()

	stats, err := crawler.New(cc).Run(ctx, func(e nfs.DirEntry) error {
		if findType != "" && e.Type().String() != findType {
			return nil
		}
		_, err := fmt.Fprintln(out, t.display(e.Path()))
		return err
	})
	logger.Debug("find: %d dirs, %d files, %d errors", stats.Dirs, stats.Files, stats.Errors)
	return err
}
