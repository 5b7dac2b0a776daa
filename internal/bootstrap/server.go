// Package bootstrap spawns a local `opencode serve` process and waits until it
// announces the URL it is listening on.
package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/logging"
)

const (
	DefaultBinary   = "opencode"
	DefaultHostname = "127.0.0.1"
	DefaultPort     = 0
	DefaultTimeout  = 8 * time.Second

	readyPrefix   = "opencode server listening"
	maxOutputTail = 20
	reapTimeout   = 2 * time.Second
	drainTimeout  = 500 * time.Millisecond
)

var listenURLPattern = regexp.MustCompile(`on\s+(https?://\S+)`)

// State is the lifecycle state of a spawned server
type State int

const (
	StateStarting State = iota
	StateReady
	StateTimedOut
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed-out"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// CommandFactoryFunc creates the exec.Cmd for the server process.
// Tests use it to substitute a scripted fake server.
type CommandFactoryFunc func(name string, args ...string) *exec.Cmd

// Options configures Start
type Options struct {
	Binary         string
	Hostname       string
	Port           int // 0 lets the OS pick
	Timeout        time.Duration
	CommandFactory CommandFactoryFunc
	Logger         *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.Hostname == "" {
		o.Hostname = DefaultHostname
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CommandFactory == nil {
		o.CommandFactory = func(name string, args ...string) *exec.Cmd {
			// #nosec G204 -- binary and flags come from configuration
			return exec.Command(name, args...)
		}
	}
	if o.Logger == nil {
		o.Logger = logging.NewLogger("bootstrap")
	}
	return o
}

// Server is a spawned server process owned by exactly one client
type Server struct {
	URL string

	cmd    *exec.Cmd
	output *os.File
	exited chan struct{}
	done   chan struct{}
	log    *logrus.Entry

	mu        sync.Mutex
	state     State
	stopOnce  sync.Once
	closeOnce sync.Once
}

// ParseServerURL extracts the listening URL from a startup announcement line
func ParseServerURL(line string) (string, bool) {
	if !strings.HasPrefix(line, readyPrefix) {
		return "", false
	}
	match := listenURLPattern.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Start launches the server and blocks until it announces its URL, the
// timeout elapses, the process exits or ctx is cancelled.
func Start(ctx context.Context, opts Options) (*Server, error) {
	opts = opts.withDefaults()

	args := []string{
		"serve",
		fmt.Sprintf("--hostname=%s", opts.Hostname),
		fmt.Sprintf("--port=%d", opts.Port),
	}
	cmd := opts.CommandFactory(opts.Binary, args...)
	setProcessGroup(cmd)

	// stdout and stderr share one pipe so lines arrive interleaved
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, dataerr.Wrap(err, "Failed to read opencode server output: %v", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, dataerr.Wrap(err, "Failed to start opencode server %q: %v", opts.Binary, err)
	}
	_ = pw.Close()

	s := &Server{
		cmd:    cmd,
		output: pr,
		exited: make(chan struct{}),
		done:   make(chan struct{}),
		log:    opts.Logger.WithField("pid", cmd.Process.Pid),
		state:  StateStarting,
	}
	s.log.WithField("args", args).Debug("Spawned opencode server")

	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	lines := make(chan string, 64)
	go s.readLines(lines)

	url, tail, state := s.waitReady(ctx, lines, opts.Timeout)
	s.setState(state)

	if state == StateReady {
		s.URL = url
		s.log.WithField("url", url).Info("opencode server ready")
		go s.drain(lines)
		return s, nil
	}

	s.log.WithField("state", state).Warn("opencode server failed to start")
	s.kill()

	details := strings.TrimSpace(strings.Join(tail, "\n"))
	if details != "" {
		return nil, dataerr.New("Timed out waiting for opencode server startup. Last output:\n%s", details)
	}
	return nil, dataerr.New("Timed out waiting for opencode server startup")
}

// waitReady polls the output lines until the first startup announcement.
// It returns the parsed URL, the last captured lines and the final state.
func (s *Server) waitReady(ctx context.Context, lines <-chan string, timeout time.Duration) (string, []string, State) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var tail []string
	record := func(line string) {
		tail = append(tail, line)
		if len(tail) > maxOutputTail {
			tail = tail[len(tail)-maxOutputTail:]
		}
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Output closed; keep waiting for exit or the deadline.
				lines = nil
				continue
			}
			record(line)
			if url, ok := ParseServerURL(line); ok {
				return url, tail, StateReady
			}
		case <-s.exited:
			for _, line := range drainFor(lines, drainTimeout) {
				record(line)
			}
			return "", tail, StateExited
		case <-deadline.C:
			return "", tail, StateTimedOut
		case <-ctx.Done():
			return "", tail, StateTimedOut
		}
	}
}

// drainFor collects already-buffered lines after the process exited
func drainFor(lines <-chan string, limit time.Duration) []string {
	if lines == nil {
		return nil
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()

	var out []string
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return out
			}
			out = append(out, line)
		case <-timer.C:
			return out
		}
	}
}

func (s *Server) readLines(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(s.output)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-s.done:
			return
		}
	}
}

// drain keeps the pipe empty once the server is ready
func (s *Server) drain(lines <-chan string) {
	for line := range lines {
		s.log.Debug(line)
	}
}

// kill force-stops a server that never became ready, with its children
func (s *Server) kill() {
	_ = signalGroup(s.cmd.Process, syscall.SIGKILL)
	if !s.hasExited() {
		s.waitExit(reapTimeout)
	}
	s.closeOutput()
}

// Stop terminates the server's process group: SIGTERM first, SIGKILL if the
// server has not exited within the grace period. Safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		defer s.closeOutput()
		if s.hasExited() {
			// children may outlive the server
			_ = signalGroup(s.cmd.Process, syscall.SIGKILL)
			return
		}

		s.log.Debug("Terminating opencode server")
		if sigErr := signalGroup(s.cmd.Process, syscall.SIGTERM); sigErr != nil {
			_ = signalGroup(s.cmd.Process, syscall.SIGKILL)
		}
		if s.waitExit(reapTimeout) {
			return
		}

		s.log.Warn("opencode server ignored SIGTERM, killing")
		_ = signalGroup(s.cmd.Process, syscall.SIGKILL)
		if !s.waitExit(reapTimeout) {
			err = dataerr.New("opencode server (pid %d) did not exit", s.cmd.Process.Pid)
		}
	})
	return err
}

// State returns the current lifecycle state
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the server process id
func (s *Server) PID() int {
	return s.cmd.Process.Pid
}

// Exited reports whether the process has terminated
func (s *Server) Exited() bool {
	return s.hasExited()
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Server) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Server) waitExit(limit time.Duration) bool {
	select {
	case <-s.exited:
		return true
	case <-time.After(limit):
		return false
	}
}

func (s *Server) closeOutput() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.output.Close()
	})
}
