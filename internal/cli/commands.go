package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/charliek/forkvisor/internal/config"
	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/pidfile"
	"github.com/charliek/forkvisor/internal/runstate"
	"github.com/charliek/forkvisor/internal/worker"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workers of the running supervisor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.OutOrStdout())
	},
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the registered work units",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range registry.Units() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <pidfile>",
	Short: "Report whether the process named by a PID file is alive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkPIDFile(cmd.OutOrStdout(), args[0])
	},
}

var (
	forkCount   int
	forkOptions []string
)

var forkCmd = &cobra.Command{
	Use:   "fork <unit>",
	Short: "Fork workers without supervision and wait for them",
	Long: `Fork one or more workers running the given unit, wait for each of them
in order and print how they terminated. Nothing is restarted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseOptions(forkOptions)
		if err != nil {
			return err
		}
		return forkAndWait(cmd.OutOrStdout(), args[0], opts, forkCount)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run state as JSON")
	forkCmd.Flags().IntVarP(&forkCount, "count", "n", 1, "Number of workers to fork")
	forkCmd.Flags().StringArrayVarP(&forkOptions, "option", "o", nil, "Unit option as key=value (repeatable)")

	rootCmd.AddCommand(statusCmd, unitsCmd, checkCmd, forkCmd)
}

// supervisorPIDPath returns the supervisor PID file for the config file.
// A missing or invalid config falls back to the default location next to
// the config path.
func supervisorPIDPath() string {
	path := configFile()
	cfg, err := config.Load(path)
	if err != nil {
		return filepath.Join(filepath.Dir(path), constants.DefaultPIDFile)
	}
	return cfg.Resolve(cfg.PIDFile)
}

func showStatus(out io.Writer) error {
	state, err := runstate.GetRunningState(supervisorPIDPath())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	fmt.Fprintf(out, "Status: %s\n", state.Supervisor)
	fmt.Fprintf(out, "PID:    %d\n", state.PID)
	fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(state.StartedAt)))
	fmt.Fprintf(out, "Config: %s\n", state.ConfigFile)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUNIT\tPID\tPOLICY\tUPTIME\tRESTARTS\tLAST EXIT")
	fmt.Fprintln(w, "----\t----\t---\t------\t------\t--------\t---------")

	for _, wk := range state.Workers {
		uptime := formatDuration(time.Duration(wk.UptimeSeconds()) * time.Second)
		last := wk.LastStatus
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			wk.Name, wk.Unit, wk.PID, wk.Policy, uptime, wk.Restarts(), last)
	}
	return w.Flush()
}

func checkPIDFile(out io.Writer, path string) error {
	pid, err := pidfile.Read(path)
	if err != nil {
		return err
	}
	if !pidfile.ProcessExists(pid) {
		return fmt.Errorf("pid %d from %s is not running", pid, path)
	}
	fmt.Fprintf(out, "pid %d is running\n", pid)
	return nil
}

func forkAndWait(out io.Writer, unit string, opts worker.Options, count int) error {
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}
	if _, err := registry.Instantiate(unit, opts); err != nil {
		return err
	}

	handles := make([]*worker.Handle, 0, count)
	for i := 0; i < count; i++ {
		h, err := worker.New(nil, unit, opts).Fork()
		if err != nil {
			for _, started := range handles {
				_ = started.Kill()
				_, _, _ = started.Wait(worker.Blocking)
			}
			return err
		}
		fmt.Fprintf(out, "forked %s as pid %d\n", unit, h.Pid())
		handles = append(handles, h)
	}

	for i, h := range handles {
		status, _, err := h.Wait(worker.Blocking)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "worker %d (pid %d) exited: %s\n", i+1, h.Pid(), status)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
