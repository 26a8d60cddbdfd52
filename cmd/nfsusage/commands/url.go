package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var urlFstab string

var urlCmd = &cobra.Command{
	Use:   "url PATH",
	Short: "Print the nfs:// URL of a local path",
	Long: `Print the nfs:// URL a local path on an NFS mount translates to.

The mount is looked up in fstab; its options (timeo, rsize, wsize, sec,
retrans, vers, port, mountport) become URL query arguments.

Example:
  nfsusage url /mnt/data/projects
  nfs://fileserver/export/projects?version=3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTarget(args[0], urlFstab)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.URL)
		return err
	},
}

func init() {
	urlCmd.Flags().StringVar(&urlFstab, "fstab", "", "fstab used to translate the path (default: from config)")
}
