// Package cli implements the forkvisor command line.
package cli

import (
	"fmt"
	"os"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set during build
var Version = "dev"

// Global flags
var (
	configPath string
	detach     bool
	jsonOutput bool
)

// registry holds the work units the binary can fork
var registry = worker.NewRegistry()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forkvisor",
	Short: "A forking process supervisor",
	Long: `forkvisor forks workers from registered work units and keeps them
alive according to per-worker restart policies. It supports:
  - Restart policies: never, on-exit, on-error, always
  - Graceful shutdown with a bounded grace period
  - Captured worker output with colored, prefixed lines
  - Background daemon mode`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with the units in reg and returns the
// process exit code
func Execute(reg *worker.Registry) int {
	registry = reg
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code := domain.ErrorCode(err); code != domain.ErrCodeInternal {
			fmt.Fprintf(os.Stderr, "Code: %s\n", code)
		}
		return constants.ExitCodeError
	}
	return 0
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "forkvisor version %s\n", Version)
	},
}

func init() {
	// Persistent flags available to all subcommands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigFile, "Config file")

	// Set version template
	rootCmd.SetVersionTemplate("forkvisor version {{.Version}}\n")

	rootCmd.AddCommand(versionCmd)
}
