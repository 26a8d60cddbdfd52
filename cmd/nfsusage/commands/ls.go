package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/cli/output"
	"github.com/marmos91/nfsusage/pkg/config"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

var (
	lsAsync  bool
	lsOutput string
	lsAll    bool
)

var lsCmd = &cobra.Command{
	Use:   "ls URL [PATH]",
	Short: "List one directory of an export",
	Long: `List the entries of PATH (default "/") on the export named by URL.

With --async the directory is opened without blocking and the command
drives the connection itself with poll(2), which is how the crawler
lists many directories at once.

Examples:
  nfsusage ls nfs://fileserver/export
  nfsusage ls nfs://fileserver/export /projects -o plain`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVar(&lsAsync, "async", false, "open the directory asynchronously")
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "table", "output format: table, plain")
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "show inode, owner and link count")
}

func runLs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(lsOutput)
	if err != nil {
		return err
	}

	dir := "/"
	if len(args) == 2 {
		dir = args[1]
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var entries []nfs.DirEntry
	err = nfs.WithMount(ctx, args[0], func(m *nfs.Mount) error {
		var sc *nfs.Scanner
		var err error
		if lsAsync {
			sc, err = nfs.ScanDirAsync(m, dir)
			if err == nil {
				err = awaitScanner(ctx, m, sc)
			}
		} else {
			sc, err = nfs.ScanDir(ctx, m, dir)
		}
		if err != nil {
			return err
		}
		for e := range sc.All() {
			entries = append(entries, e)
		}
		return sc.Err()
	}, config.MountOptions(&cfg.Mount, nil)...)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	table, right := entryTable(entries, lsAll, format == output.FormatTable)
	return output.NewPrinter(cmd.OutOrStdout(), format).Print(table, right...)
}

// pollTimeoutMs bounds each poll so cancellation is noticed.
const pollTimeoutMs = 100

// awaitScanner services m until sc's open completes.
func awaitScanner(ctx context.Context, m *nfs.Mount, sc *nfs.Scanner) error {
	for {
		ready, err := sc.Ready()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if err := ctx.Err(); err != nil {
			_ = sc.Close()
			return err
		}

		fd, err := m.Fd()
		if err != nil {
			return err
		}
		events, err := m.WhichEvents()
		if err != nil {
			return err
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		if _, err := unix.Poll(fds, pollTimeoutMs); err != nil && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("poll: %w", err)
		}
		if err := m.Service(fds[0].Revents); err != nil {
			return err
		}
	}
}

// entryTable renders entries the way ls -l does. It also returns the
// numeric columns to right-align.
func entryTable(entries []nfs.DirEntry, long, colour bool) (*output.TableData, []int) {
	headers := []string{"Mode", "Type", "Size", "Used", "Modified", "Name"}
	right := []int{2, 3}
	if long {
		headers = append([]string{"Inode", "Links", "UID", "GID"}, headers...)
		right = []int{0, 1, 2, 3, 6, 7}
	}
	table := output.NewTableData(headers...)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && colour {
			name = output.DirName(name)
		}
		row := []string{
			e.FileMode().String(),
			e.Type().String(),
			strconv.FormatUint(e.Size(), 10),
			output.Bytes(e.Blocks() * 512),
			output.Time(e.Mtime()),
			name,
		}
		if long {
			row = append([]string{
				strconv.FormatUint(e.Inode(), 10),
				strconv.FormatUint(uint64(e.Nlink()), 10),
				strconv.FormatUint(uint64(e.UID()), 10),
				strconv.FormatUint(uint64(e.GID()), 10),
			}, row...)
		}
		table.AddRow(row...)
	}
	return table, right
}
