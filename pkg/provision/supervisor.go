package provision

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor runs a provisioner process, streams its output through an
// EventParser, and enforces the configured time bounds. Termination is
// adaptive: the ceiling alone never kills a run that is still making
// progress, and a run whose in-flight resources are of known-slow types
// earns a single extension before the supervisor gives up.
type Supervisor struct {
	timeouts Timeouts
	parser   EventParser
	logger   zerolog.Logger

	// sink receives every output line, typically the environment's
	// provision log file. Nil discards.
	sink io.Writer

	// pollInterval is how often deadlines are re-evaluated. Tests
	// shrink it; the zero value means one second.
	pollInterval time.Duration
}

// NewSupervisor creates a supervisor with the given bounds and parser.
func NewSupervisor(timeouts Timeouts, parser EventParser, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		timeouts: timeouts,
		parser:   parser,
		logger:   logger.With().Str("component", "supervisor").Logger(),
	}
}

// WithSink directs a copy of all process output to w.
func (s *Supervisor) WithSink(w io.Writer) *Supervisor {
	s.sink = w
	return s
}

// Run executes the prepared command to completion or termination and
// returns the full result. The command must not have been started.
func (s *Supervisor) Run(ctx context.Context, cmd *exec.Cmd, op Operation) *CommandResult {
	result := &CommandResult{Op: op, Args: cmd.Args}
	start := time.Now()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		result.Err = err
		return result
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		result.Err = err
		return result
	}
	if err := cmd.Start(); err != nil {
		result.Err = err
		return result
	}

	lines := make(chan string, 64)
	stdoutDone := make(chan struct{})
	go func() {
		streamLines(stdout, lines)
		close(stdoutDone)
	}()
	var stderrBuf string
	stderrDone := make(chan struct{})
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrBuf = string(data)
		close(stderrDone)
	}()

	// Wait must not run until both pipe readers reach EOF: Wait closes
	// the pipes and would otherwise race the readers and drop output.
	waitErr := make(chan error, 1)
	go func() {
		<-stdoutDone
		<-stderrDone
		waitErr <- cmd.Wait()
	}()

	poll := s.pollInterval
	if poll <= 0 {
		poll = time.Second
	}
	progress := time.NewTicker(s.timeouts.ProgressInterval)
	defer progress.Stop()
	check := time.NewTicker(poll)
	defer check.Stop()

	var out strings.Builder
	inflight := newInFlightSet()
	deadline := s.timeouts.ForOperation(op)
	lastActivity := start
	exited := false

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			lastActivity = time.Now()
			out.WriteString(line)
			out.WriteByte('\n')
			if s.sink != nil {
				io.WriteString(s.sink, line+"\n")
			}
			s.observe(line, inflight, result)

		case err := <-waitErr:
			exited = true
			s.drain(lines, &out, inflight, result)
			result.Stdout = out.String()
			<-stderrDone
			result.Stderr = stderrBuf
			result.Duration = time.Since(start)
			result.InFlight = inflight.Members()
			result.ExitCode = exitCode(err)
			if err != nil && result.ExitCode < 0 && !result.TimedOut {
				result.Err = err
			}
			return result

		case <-progress.C:
			s.logger.Info().
				Str("operation", string(op)).
				Dur("elapsed", time.Since(start).Round(time.Second)).
				Int("in_flight", inflight.Len()).
				Int("completed", result.Completed).
				Msg("Provisioning in progress")

		case <-check.C:
			elapsed := time.Since(start)
			if elapsed <= deadline {
				continue
			}
			if time.Since(lastActivity) < s.timeouts.ActivityGrace {
				continue
			}
			if !result.Extended && inflight.ContainsSlowType() {
				result.Extended = true
				deadline += s.timeouts.Extension
				s.logger.Warn().
					Str("operation", string(op)).
					Strs("in_flight", inflight.Members()).
					Dur("extension", s.timeouts.Extension).
					Msg("Slow resources still converging, extending timeout once")
				continue
			}
			result.TimedOut = true
			s.logger.Error().
				Str("operation", string(op)).
				Dur("elapsed", elapsed.Round(time.Second)).
				Strs("in_flight", inflight.Members()).
				Msg("Timeout ceiling exceeded, terminating process")
			s.terminate(cmd, waitErr, &exited, stdout, stderr)
			s.drain(lines, &out, inflight, result)
			result.Stdout = out.String()
			<-stderrDone
			result.Stderr = stderrBuf
			result.Duration = time.Since(start)
			result.InFlight = inflight.Members()
			result.ExitCode = -1
			return result

		case <-ctx.Done():
			s.logger.Warn().Str("operation", string(op)).Msg("Context cancelled, terminating process")
			s.terminate(cmd, waitErr, &exited, stdout, stderr)
			s.drain(lines, &out, inflight, result)
			result.Stdout = out.String()
			<-stderrDone
			result.Stderr = stderrBuf
			result.Duration = time.Since(start)
			result.InFlight = inflight.Members()
			result.ExitCode = -1
			result.Err = ctx.Err()
			return result
		}
	}
}

// drain consumes remaining buffered output after the process has
// stopped so the reader goroutine can finish.
func (s *Supervisor) drain(lines <-chan string, out *strings.Builder, inflight *inFlightSet, result *CommandResult) {
	if lines == nil {
		return
	}
	for line := range lines {
		out.WriteString(line)
		out.WriteByte('\n')
		if s.sink != nil {
			io.WriteString(s.sink, line+"\n")
		}
		s.observe(line, inflight, result)
	}
}

// observe feeds one line through the parser and updates tracking state.
func (s *Supervisor) observe(line string, inflight *inFlightSet, result *CommandResult) {
	event, ok := s.parser.Parse(line)
	if !ok {
		return
	}
	switch event.Kind {
	case EventStart:
		inflight.Add(event.Resource)
		s.logger.Debug().Str("resource", event.Resource).Msg("Resource in flight")
	case EventComplete:
		if inflight.Resolve(event.Resource, line) {
			result.Completed++
			s.logger.Debug().Str("resource", event.Resource).Msg("Resource complete")
		}
	}
}

// terminate sends SIGTERM, waits out the kill grace, then SIGKILLs.
// Closing the pipes after the kill unblocks the reader goroutines in
// case an orphaned descendant still holds the write ends open.
func (s *Supervisor) terminate(cmd *exec.Cmd, waitErr chan error, exited *bool, pipes ...io.Closer) {
	if *exited || cmd.Process == nil {
		return
	}
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitErr:
		*exited = true
		return
	case <-time.After(s.timeouts.KillGrace):
	}
	cmd.Process.Kill()
	for _, p := range pipes {
		p.Close()
	}
	<-waitErr
	*exited = true
}

func streamLines(r io.Reader, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exit, ok := err.(*exec.ExitError); ok {
		return exit.ExitCode()
	}
	return -1
}
