package cli

import (
	"os"
	"testing"

	"github.com/charliek/forkvisor/internal/units"
	"github.com/charliek/forkvisor/internal/worker"
)

func TestMain(m *testing.M) {
	reg := worker.NewRegistry()
	units.Register(reg)
	registry = reg

	worker.Main(reg)
	os.Exit(m.Run())
}
