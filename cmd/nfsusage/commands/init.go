package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsusage/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample nfsusage configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/nfsusage/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  nfsusage init

  # Initialize with custom path
  nfsusage init --config /etc/nfsusage/config.yaml

  # Force overwrite existing config
  nfsusage init --force`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Check the fstab path and mount credentials")
	_, _ = fmt.Fprintln(out, "  2. Add report sinks if usage reports should be kept")
	_, _ = fmt.Fprintln(out, "  3. Run: nfsusage usage /path/on/an/nfs/mount")
	return nil
}
