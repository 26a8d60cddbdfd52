// Package commands implements the nfsusage command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsusage/internal/cli/output"
	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
	noColor  bool

	// cfg is loaded before any command that needs it runs.
	cfg *config.Config

	// logFile is closed once the command finishes.
	logFile io.Closer
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nfsusage",
	Short: "nfsusage - disk usage of NFS exports without mounting them",
	Long: `nfsusage talks NFSv3 to a server directly from user space to list
directories, find files and measure how much space a tree uses. Crawls can
run over several connections at once.

Local paths are translated to nfs:// URLs through /etc/fstab, so both
"nfsusage usage /mnt/data" and "nfsusage usage nfs://server/export" work.

Use "nfsusage [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfsusage/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// setup loads the configuration and initializes logging and colours.
func setup(cmd *cobra.Command, args []string) error {
	output.SetupColor(noColor)

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := logger.ParseLevel(logLevel); err != nil {
			return err
		}
		loaded.Logging.Level = logLevel
	}
	if noColor {
		loaded.Logging.Color = "never"
	}
	cfg = loaded

	return InitLogger(&cfg.Logging)
}

// InitLogger configures the logger from the logging section.
func InitLogger(lc *config.LoggingConfig) error {
	switch lc.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(lc.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		logFile = f
	}

	switch lc.Color {
	case "always":
		logger.SetColor(true)
	case "never":
		logger.SetColor(false)
	}

	logger.SetLevel(lc.Level)
	return nil
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
