package worker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
)

// Unit is the capability every work unit must have. Run executes in the
// child process; its return value becomes the process exit status.
type Unit interface {
	Run(h *Handle) error
}

// UnitFunc adapts a function to the Unit interface
type UnitFunc func(h *Handle) error

// Run calls f(h)
func (f UnitFunc) Run(h *Handle) error {
	return f(h)
}

// Constructor builds a work unit from its options. The result is checked
// against Unit when instantiated.
type Constructor func(opts Options) (any, error)

// ExitError makes a work routine terminate with a specific exit code
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Exit returns an error that terminates the child with code. Codes outside
// 0..255 exit with constants.ExitCodeError.
func Exit(code int) error {
	return &ExitError{Code: code}
}

// Registry maps work unit identifiers to constructors.
// Units must be registered identically in parent and child, which holds
// when registration happens before Main in the same binary.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for id
func (r *Registry) Register(id string, c Constructor) {
	r.constructors[id] = c
}

// RegisterFunc registers a unit that needs no construction logic
func (r *Registry) RegisterFunc(id string, fn func(h *Handle) error) {
	r.Register(id, func(Options) (any, error) {
		return UnitFunc(fn), nil
	})
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.constructors[id]
	return ok
}

// Units returns the registered identifiers in sorted order
func (r *Registry) Units() []string {
	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instantiate builds the unit registered under id.
// Fails with domain.ErrConfiguration when id is unknown or construction
// fails, and with domain.ErrCapability when the result is not a Unit.
func (r *Registry) Instantiate(id string, opts Options) (Unit, error) {
	c, ok := r.constructors[id]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: unknown work unit %q", domain.ErrConfiguration, id)
	}

	v, err := c(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: constructing %q: %w", domain.ErrConfiguration, id, err)
	}

	unit, ok := v.(Unit)
	if !ok || unit == nil {
		return nil, fmt.Errorf("%w: %q built %T which does not implement worker.Unit", domain.ErrCapability, id, v)
	}
	return unit, nil
}

// exitCode maps a work routine result to a process exit status. Codes the
// OS cannot report (outside 0..255) become constants.ExitCodeError.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code >= 0 && ee.Code <= 255 {
		return ee.Code
	}
	return constants.ExitCodeError
}
