// Package supervisor keeps a set of forked workers alive according to
// per-worker restart policies and drains them on shutdown.
//
// A Supervisor is single-threaded: AddProcess, Spawn and Run must be called
// from the same goroutine. Shutdown and State may be called from anywhere.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/journal"
	"github.com/charliek/forkvisor/internal/signals"
	"github.com/charliek/forkvisor/internal/worker"
	"github.com/rs/xid"
	"golang.org/x/sys/unix"
)

// Config holds configuration for the supervisor
type Config struct {
	// GracePeriod is how long workers get to exit after shutdown is requested
	GracePeriod time.Duration
	// PollInterval is the pause between loop iterations
	PollInterval time.Duration
	// CaptureOutput routes worker stdout and stderr into the journal
	CaptureOutput bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		GracePeriod:  constants.DefaultGracePeriod,
		PollInterval: constants.DefaultPollInterval,
	}
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithRouter makes the supervisor share an existing signal router
func WithRouter(r *signals.Router) Option {
	return func(s *Supervisor) {
		s.router = r
	}
}

// WithJournal makes the supervisor write events to j
func WithJournal(j *journal.Journal) Option {
	return func(s *Supervisor) {
		s.journal = j
	}
}

// WithReaper replaces the default wait-any reaper
func WithReaper(r Reaper) Option {
	return func(s *Supervisor) {
		s.reaper = r
	}
}

// WithOnChange registers fn to be called from the loop with a snapshot of
// the records whenever the set changes.
func WithOnChange(fn func([]domain.WorkerInfo)) Option {
	return func(s *Supervisor) {
		s.onChange = fn
	}
}

// WithForkUnit sets the unit a forked copy of the supervisor runs. The
// default is constants.SupervisorUnit with no options.
func WithForkUnit(unit string, opts worker.Options) Option {
	return func(s *Supervisor) {
		s.forkUnit = unit
		s.forkOptions = opts
	}
}

// Supervisor is a Handle for the current process plus the records of the
// workers it supervises.
type Supervisor struct {
	*worker.Handle

	registry *worker.Registry
	cfg      Config
	router   *signals.Router
	journal  *journal.Journal
	reaper   Reaper
	onChange func([]domain.WorkerInfo)

	// records is owned by the loop goroutine
	records  []*Record

	forkUnit    string
	forkOptions worker.Options

	// untracked holds Spawn handles until wait-any reaps them
	untracked map[int]*worker.Handle
	working  atomic.Bool
	state    atomic.Value // domain.State
	deadline time.Time

	// output tracks the capture goroutines
	output sync.WaitGroup
}

// New creates a supervisor in the running state. It installs a SIGINT
// handler on the router that requests shutdown.
func New(reg *worker.Registry, cfg Config, opts ...Option) *Supervisor {
	def := DefaultConfig()
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	s := &Supervisor{
		registry: reg,
		cfg:      cfg,
		reaper:   WaitAnyReaper{},
		forkUnit: constants.SupervisorUnit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.router == nil {
		s.router = signals.NewRouter()
	}
	if s.journal == nil {
		s.journal = journal.New(journal.DefaultConfig())
	}

	s.Handle = worker.New(s.router, s.forkUnit, s.forkOptions)
	s.working.Store(true)
	s.state.Store(domain.StateRunning)
	s.SetSignalHandler(syscall.SIGINT, func(os.Signal) {
		s.Shutdown()
	})
	return s
}

// Journal returns the journal the supervisor writes to
func (s *Supervisor) Journal() *journal.Journal {
	return s.journal
}

// Config returns the effective configuration
func (s *Supervisor) Config() Config {
	return s.cfg
}

// State returns the current lifecycle state
func (s *Supervisor) State() domain.State {
	return s.state.Load().(domain.State)
}

// Working reports whether the supervisor still restarts workers
func (s *Supervisor) Working() bool {
	return s.working.Load()
}

// Records returns snapshots of the tracked workers
func (s *Supervisor) Records() []domain.WorkerInfo {
	infos := make([]domain.WorkerInfo, 0, len(s.records))
	for _, rec := range s.records {
		infos = append(infos, rec.Info())
	}
	return infos
}

// Shutdown stops restarts and starts draining. Calling it again has no
// effect.
func (s *Supervisor) Shutdown() {
	if !s.working.CompareAndSwap(true, false) {
		return
	}
	s.setState(domain.StateDraining)
	s.event(constants.SystemProcess, os.Getpid(), domain.EventShutdown, "shutdown requested")
}

// AddProcess forks a worker running unit and tracks it under policy. An
// empty name becomes "anonymous". The returned handle represents the first
// process only; respawns get new handles.
func (s *Supervisor) AddProcess(unit string, opts worker.Options, name string, policy RestartPolicy, spawnOpts ...SpawnOption) (*worker.Handle, error) {
	if name == "" {
		name = constants.DefaultWorkerName
	}
	settings := newSpawnSettings(spawnOpts)

	h, err := s.spawn(unit, opts, name, settings)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        xid.New().String(),
		PID:       h.Pid(),
		Unit:      unit,
		Options:   opts.Clone(),
		Name:      name,
		Policy:    policy,
		Spawns:    1,
		StartedAt: time.Now(),
		spawn:     settings,
		handle:    h,
	}
	s.records = append(s.records, rec)
	s.event(rec.Name, rec.PID, domain.EventSpawned, "spawned %s (policy %s)", unit, policy)
	s.changed()
	return h, nil
}

// Spawn forks a worker running unit without a restart record. The loop
// reaps and releases it when it exits, so callers must not Wait on it.
func (s *Supervisor) Spawn(unit string, opts worker.Options, spawnOpts ...SpawnOption) (*worker.Handle, error) {
	h, err := s.spawn(unit, opts, unit, newSpawnSettings(spawnOpts))
	if err != nil {
		return nil, err
	}
	if s.untracked == nil {
		s.untracked = make(map[int]*worker.Handle)
	}
	s.untracked[h.Pid()] = h
	return h, nil
}

// Fork forks a copy of the supervisor: a child running the supervisor's
// fork unit (see WithForkUnit and RegisterNested). The returned handle is
// the child's; the supervisor's own handle keeps this process's PID.
func (s *Supervisor) Fork() (*worker.Handle, error) {
	if _, err := s.registry.Instantiate(s.Unit(), s.Options()); err != nil {
		return nil, err
	}
	return worker.New(s.router, s.Unit(), s.Options().Clone()).Fork()
}

func (s *Supervisor) spawn(unit string, opts worker.Options, name string, settings spawnSettings) (*worker.Handle, error) {
	// Catch unknown units and constructor failures before forking
	if _, err := s.registry.Instantiate(unit, opts); err != nil {
		return nil, err
	}

	h := worker.New(s.router, unit, opts.Clone()).
		SetPIDFile(settings.pidFile).
		SetTitle(settings.title).
		SetEnv(settings.env)

	var c *capture
	if s.cfg.CaptureOutput {
		var err error
		if c, err = newCapture(); err != nil {
			return nil, fmt.Errorf("%w: creating output pipes: %w", domain.ErrFork, err)
		}
		h.SetOutput(c.outW, c.errW)
	}

	if _, err := h.Fork(); err != nil {
		if c != nil {
			c.abort()
		}
		return nil, err
	}
	if c != nil {
		s.startCapture(c, name, h.Pid())
	}
	return h, nil
}

// Run supervises the tracked workers until none is left, or until the
// grace period after a shutdown request has passed and the remaining
// workers were killed. Cancelling ctx requests shutdown.
//
// Run returns an error only if reaping fails or a worker cannot be
// respawned. Workers still running at that point are left alone; see
// KillAll.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(domain.StateStopped)

	for len(s.records) > 0 {
		s.router.Poll()
		if ctx.Err() != nil {
			s.Shutdown()
		}

		pid, status, ok, err := s.reaper.Reap()
		if err != nil {
			return err
		}
		if ok {
			if err := s.handleExit(pid, status); err != nil {
				return err
			}
		}

		if !s.Working() && len(s.records) > 0 {
			if s.deadline.IsZero() {
				s.deadline = time.Now().Add(s.cfg.GracePeriod)
				s.setState(domain.StateDrainingWithDeadline)
				s.event(constants.SystemProcess, os.Getpid(), domain.EventDeadline,
					"waiting up to %s for %d worker(s)", s.cfg.GracePeriod, len(s.records))
			} else if time.Now().After(s.deadline) {
				s.KillAll()
				return nil
			}
		}

		if len(s.records) == 0 {
			break
		}
		time.Sleep(s.cfg.PollInterval)
	}
	return nil
}

// handleExit applies the restart policy to the record owning pid. Spawned
// children are only released; other unknown pids are ignored.
func (s *Supervisor) handleExit(pid int, status domain.ExitStatus) error {
	idx := s.indexOf(pid)
	if idx < 0 {
		if h, ok := s.untracked[pid]; ok {
			h.Release()
			delete(s.untracked, pid)
		}
		return nil
	}
	rec := s.records[idx]
	rec.handle.Release()
	rec.LastStatus = status
	rec.Exits++
	s.event(rec.Name, pid, domain.EventExited, "exited (%s)", status)

	if !s.Working() {
		s.drop(idx, "shutting down")
		return nil
	}
	if !rec.Policy.ShouldRestart(*rec, status) {
		s.drop(idx, "not restarted by policy "+rec.Policy.String())
		return nil
	}

	h, err := s.spawn(rec.Unit, rec.Options, rec.Name, rec.spawn)
	if err != nil {
		s.drop(idx, "respawn failed")
		return fmt.Errorf("respawning %s: %w", rec.Name, err)
	}
	rec.handle = h
	rec.PID = h.Pid()
	rec.Spawns++
	rec.StartedAt = time.Now()
	s.event(rec.Name, rec.PID, domain.EventRestarted, "restarted (spawn %d)", rec.Spawns)
	s.changed()
	return nil
}

// KillAll sends SIGKILL to every tracked worker, reaps them for a bounded
// time and clears the records.
func (s *Supervisor) KillAll() {
	s.setState(domain.StateForceKilling)

	killed := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if err := rec.handle.Kill(); err != nil && !errors.Is(err, unix.ESRCH) {
			s.event(rec.Name, rec.PID, domain.EventKilled, "kill failed: %v", err)
			continue
		}
		s.event(rec.Name, rec.PID, domain.EventKilled, "killed after grace period")
		killed = append(killed, rec)
	}
	s.records = nil
	s.changed()

	reapUntil := time.Now().Add(constants.KillReapTimeout)
	for len(killed) > 0 && time.Now().Before(reapUntil) {
		remaining := killed[:0]
		for _, rec := range killed {
			if _, done, err := rec.handle.Wait(worker.NonBlocking); !done && err == nil {
				remaining = append(remaining, rec)
			}
		}
		killed = remaining
		if len(killed) > 0 {
			time.Sleep(s.cfg.PollInterval)
		}
	}
}

func (s *Supervisor) indexOf(pid int) int {
	for i, rec := range s.records {
		if rec.PID == pid {
			return i
		}
	}
	return -1
}

func (s *Supervisor) drop(idx int, reason string) {
	rec := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.event(rec.Name, rec.PID, domain.EventDropped, "%s", reason)
	s.changed()
}

func (s *Supervisor) setState(st domain.State) {
	s.state.Store(st)
}

func (s *Supervisor) changed() {
	if s.onChange != nil {
		s.onChange(s.Records())
	}
}

func (s *Supervisor) event(process string, pid int, kind domain.EventKind, format string, args ...any) {
	s.journal.Write(domain.Entry{
		Timestamp: time.Now(),
		Process:   process,
		PID:       pid,
		Stream:    domain.StreamEvent,
		Kind:      kind,
		Line:      fmt.Sprintf(format, args...),
	})
}

// NestedUnit returns a constructor for a unit that runs a whole supervisor
// inside the forked worker. setup adds the nested workers before the
// nested loop starts.
func NestedUnit(reg *worker.Registry, cfg Config, setup func(s *Supervisor, opts worker.Options) error) worker.Constructor {
	return func(worker.Options) (any, error) {
		return worker.UnitFunc(func(h *worker.Handle) error {
			s := New(reg, cfg, WithRouter(h.Router()))
			if setup != nil {
				if err := setup(s, h.Options()); err != nil {
					return err
				}
			}
			return s.Run(context.Background())
		}), nil
	}
}

// RegisterNested registers a nested supervisor under
// constants.SupervisorUnit, the unit Supervisor.Fork runs by default.
func RegisterNested(reg *worker.Registry, cfg Config, setup func(s *Supervisor, opts worker.Options) error) {
	reg.Register(constants.SupervisorUnit, NestedUnit(reg, cfg, setup))
}
