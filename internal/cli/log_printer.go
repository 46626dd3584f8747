package cli

import (
	"fmt"
	"io"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
)

// LogPrinter handles consistent journal formatting and color assignment
type LogPrinter struct {
	out        io.Writer
	colors     map[string]string
	colorIndex int
}

// NewLogPrinter creates a new LogPrinter writing to out
func NewLogPrinter(out io.Writer) *LogPrinter {
	return &LogPrinter{
		out:    out,
		colors: make(map[string]string),
	}
}

// PrintEntry prints a journal entry with consistent color assignment.
// Supervisor events are marked with "*", stderr lines are red.
func (lp *LogPrinter) PrintEntry(entry domain.Entry) {
	color := lp.getColor(entry.Process)
	ts := entry.Timestamp.Format("15:04:05")

	line := entry.Line
	switch entry.Stream {
	case domain.StreamEvent:
		line = "* " + line
	case domain.StreamStderr:
		line = constants.ColorBrightRed + line + constants.ColorReset
	}
	fmt.Fprintf(lp.out, "%s %s%-8s%s | %s\n", ts, color, entry.Process, constants.ColorReset, line)
}

func (lp *LogPrinter) getColor(process string) string {
	color, ok := lp.colors[process]
	if !ok {
		color = constants.ProcessColors[lp.colorIndex%len(constants.ProcessColors)]
		lp.colors[process] = color
		lp.colorIndex++
	}
	return color
}
