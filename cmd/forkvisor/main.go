package main

import (
	"os"

	"github.com/charliek/forkvisor/internal/cli"
	"github.com/charliek/forkvisor/internal/units"
	"github.com/charliek/forkvisor/internal/worker"
)

func main() {
	reg := worker.NewRegistry()
	units.Register(reg)

	// Forked workers re-enter here and never return
	worker.Main(reg)

	os.Exit(cli.Execute(reg))
}
