package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charliek/forkvisor/internal/config"
	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/journal"
	"github.com/charliek/forkvisor/internal/pidfile"
	"github.com/charliek/forkvisor/internal/runstate"
	"github.com/charliek/forkvisor/internal/supervisor"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the configured workers and supervise them",
	Long: `Start every worker from the config file and supervise it according to
its restart policy. SIGINT or SIGTERM start a graceful shutdown; workers
still running when the grace period ends are killed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor(cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run in background (daemon mode)")
	rootCmd.AddCommand(runCmd)
}

// configFile returns the --config path. When the default name is missing,
// the other known config file names in the working directory are tried.
func configFile() string {
	if configPath != constants.DefaultConfigFile {
		return configPath
	}
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}
	if found, err := config.FindConfigFile("."); err == nil {
		return found
	}
	return configPath
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile())
	if err != nil {
		return nil, err
	}
	if err := config.ValidateUnits(cfg, registry.Has); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSupervisor(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidPath := cfg.Resolve(cfg.PIDFile)
	stateDir := runstate.Dir(pidPath)

	if err := runstate.CleanupStaleFiles(pidPath); err != nil {
		return err
	}

	if detach && !runstate.IsDaemonChild() {
		pid, err := runstate.Daemonize()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "forkvisor started (pid %d)\n", pid)
		fmt.Fprintf(out, "Logs: %s\n", runstate.LogPath(stateDir))
		return nil
	}

	if runstate.IsDaemonChild() {
		logFile, err := runstate.SetupLogging(stateDir)
		if err != nil {
			return err
		}
		defer logFile.Close()
		out = logFile
	}

	lock := pidfile.NewLocked(pidPath)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, pidfile.ErrLocked) {
			return runstate.ErrAlreadyRunning
		}
		return err
	}
	defer lock.Release()
	defer runstate.Remove(stateDir)

	cfgFile, err := filepath.Abs(configFile())
	if err != nil {
		cfgFile = configFile()
	}

	j := journal.New(journal.DefaultConfig())
	printed := printJournal(j, NewLogPrinter(out))

	state := &runstate.State{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		ConfigFile: cfgFile,
	}

	var sup *supervisor.Supervisor
	sup = supervisor.New(registry, supervisor.Config{
		GracePeriod:   cfg.GracePeriod,
		PollInterval:  cfg.PollInterval,
		CaptureOutput: cfg.CaptureOutput,
	},
		supervisor.WithJournal(j),
		supervisor.WithOnChange(func(workers []domain.WorkerInfo) {
			writeState(j, state, sup.State(), workers, stateDir)
		}),
	)
	defer sup.Router().Reset()
	sup.SetSignalHandler(syscall.SIGTERM, func(os.Signal) {
		sup.Shutdown()
	})

	fmt.Fprintf(out, "Starting forkvisor with config: %s\n", cfgFile)
	runErr := startWorkers(sup, cfg)
	if runErr == nil {
		runErr = sup.Run(context.Background())
	}
	if runErr != nil {
		sup.KillAll()
	}

	sup.WaitOutput(constants.OutputDrainTimeout)
	j.Close()
	<-printed

	return runErr
}

// startWorkers adds one record per configured worker replica
func startWorkers(sup *supervisor.Supervisor, cfg *config.Config) error {
	for _, name := range cfg.WorkerNames() {
		w := cfg.Workers[name]
		policy, err := w.Policy()
		if err != nil {
			return fmt.Errorf("%w: worker %s: %w", domain.ErrInvalidConfig, name, err)
		}
		env, err := cfg.WorkerEnv(name)
		if err != nil {
			return fmt.Errorf("worker %s: %w", name, err)
		}

		instances := cfg.InstanceNames(name)
		for i, instance := range instances {
			opts := []supervisor.SpawnOption{supervisor.WithEnv(env)}
			if w.Title != "" {
				opts = append(opts, supervisor.WithTitle(w.Title))
			}
			if w.PIDFile != "" {
				opts = append(opts, supervisor.WithPIDFile(instancePIDFile(cfg.Resolve(w.PIDFile), i, len(instances))))
			}
			if _, err := sup.AddProcess(w.Unit, w.Options, instance, policy, opts...); err != nil {
				return fmt.Errorf("starting %s: %w", instance, err)
			}
		}
	}
	return nil
}

// instancePIDFile gives every replica its own PID file: path.1, path.2, ...
func instancePIDFile(path string, index, count int) string {
	if count <= 1 {
		return path
	}
	return fmt.Sprintf("%s.%d", path, index+1)
}

// printJournal prints journal entries until the journal is closed. The
// returned channel is closed once printing stopped.
func printJournal(j *journal.Journal, printer *LogPrinter) <-chan struct{} {
	done := make(chan struct{})
	_, entries := j.Subscribe(domain.Filter{})
	go func() {
		defer close(done)
		for entry := range entries {
			printer.PrintEntry(entry)
		}
	}()
	return done
}

func writeState(j *journal.Journal, state *runstate.State, current domain.State, workers []domain.WorkerInfo, dir string) {
	state.Supervisor = current
	state.Workers = workers
	state.UpdatedAt = time.Now()
	if err := state.Write(dir); err != nil {
		j.Write(domain.Entry{
			Timestamp: time.Now(),
			Process:   constants.SystemProcess,
			PID:       state.PID,
			Stream:    domain.StreamStderr,
			Kind:      domain.EventOutput,
			Line:      fmt.Sprintf("writing state: %v", err),
		})
	}
}
