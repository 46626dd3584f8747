package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
)

// capture holds the pipes connecting a worker's stdout and stderr to the
// journal.
type capture struct {
	outR, outW *os.File
	errR, errW *os.File
}

func newCapture() (*capture, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, err
	}
	return &capture{outR: outR, outW: outW, errR: errR, errW: errW}, nil
}

// abort closes every end after a failed fork
func (c *capture) abort() {
	c.outR.Close()
	c.outW.Close()
	c.errR.Close()
	c.errW.Close()
}

// startCapture closes the parent's copies of the write ends and streams both read
// ends into the journal until the worker closes its side.
func (s *Supervisor) startCapture(c *capture, name string, pid int) {
	c.outW.Close()
	c.errW.Close()

	s.output.Add(2)
	go s.readOutput(c.outR, name, pid, domain.StreamStdout)
	go s.readOutput(c.errR, name, pid, domain.StreamStderr)
}

// readOutput reads lines from a worker stream and writes them to the journal
func (s *Supervisor) readOutput(f *os.File, name string, pid int, stream domain.Stream) {
	defer s.output.Done()
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Increase buffer size for long lines
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

	for scanner.Scan() {
		s.journal.Write(domain.Entry{
			Timestamp: time.Now(),
			Process:   name,
			PID:       pid,
			Stream:    stream,
			Kind:      domain.EventOutput,
			Line:      scanner.Text(),
		})
	}

	if err := scanner.Err(); err != nil {
		s.journal.Write(domain.Entry{
			Timestamp: time.Now(),
			Process:   name,
			PID:       pid,
			Stream:    domain.StreamStderr,
			Kind:      domain.EventOutput,
			Line:      fmt.Sprintf("output reader error: %v", err),
		})
	}
}

// WaitOutput waits until every captured stream reached EOF or timeout
// passed. It returns false on timeout.
func (s *Supervisor) WaitOutput(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.output.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
