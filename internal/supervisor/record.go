package supervisor

import (
	"time"

	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/worker"
)

// Record is one supervised worker slot. The slot survives respawns: ID and
// Name stay, PID changes with every new process.
type Record struct {
	ID      string
	PID     int
	Unit    string
	Options worker.Options
	Name    string
	Policy  RestartPolicy

	// Spawns counts the processes started for this slot
	Spawns     int
	StartedAt  time.Time
	LastStatus domain.ExitStatus
	Exits      int

	spawn  spawnSettings
	handle *worker.Handle
}

// Handle returns the handle of the slot's current process
func (r *Record) Handle() *worker.Handle {
	return r.handle
}

// Info returns a snapshot of the record
func (r *Record) Info() domain.WorkerInfo {
	info := domain.WorkerInfo{
		ID:        r.ID,
		Name:      r.Name,
		Unit:      r.Unit,
		PID:       r.PID,
		Policy:    r.Policy.String(),
		Spawns:    r.Spawns,
		StartedAt: r.StartedAt,
		Options:   r.Options,
	}
	if r.Exits > 0 {
		info.LastStatus = r.LastStatus.String()
	}
	return info
}

// SpawnOption customises the processes started for a worker
type SpawnOption func(*spawnSettings)

type spawnSettings struct {
	pidFile string
	title   string
	env     map[string]string
}

// WithPIDFile makes every process of the worker write its PID to path
func WithPIDFile(path string) SpawnOption {
	return func(s *spawnSettings) {
		s.pidFile = path
	}
}

// WithTitle sets the process title of the worker's processes
func WithTitle(title string) SpawnOption {
	return func(s *spawnSettings) {
		s.title = title
	}
}

// WithEnv adds environment variables to the worker's processes
func WithEnv(env map[string]string) SpawnOption {
	return func(s *spawnSettings) {
		s.env = env
	}
}

func newSpawnSettings(opts []SpawnOption) spawnSettings {
	var s spawnSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
