// Package sim launches the simulator as a supervised background process
// and discovers the serial endpoint it advertises through a marker file.
package sim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buckleypaul/simmatrix/internal/logging"
	"github.com/buckleypaul/simmatrix/internal/procgroup"
)

var (
	ErrLaunch          = errors.New("simulator launch failed")
	ErrProcessExited   = errors.New("simulator exited before advertising an endpoint")
	ErrEndpointTimeout = errors.New("timed out waiting for endpoint")
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStopGrace    = 2 * time.Second
)

// Spec describes the simulator command line.
type Spec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Supervisor owns the marker, PID and log files of one simulator slot.
// Only one simulator runs per Supervisor at a time.
type Supervisor struct {
	Marker       string
	PIDFile      string
	LogPath      string
	PollInterval time.Duration
	StopGrace    time.Duration
	Logger       *log.Logger
}

// Handle refers to a running simulator.
type Handle struct {
	cmd      *exec.Cmd
	pid      int
	logFile  *os.File
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopErr  error
	stopped  atomic.Bool
}

// PID returns the process ID of the simulator.
func (h *Handle) PID() int { return h.pid }

// Done is closed once the simulator process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited, and its wait error.
func (h *Handle) Exited() (bool, error) {
	select {
	case <-h.done:
		return true, h.waitErr
	default:
		return false, nil
	}
}

// Stopped reports whether Stop has completed for this handle.
func (h *Handle) Stopped() bool { return h.stopped.Load() }

// Spawn starts the simulator in its own process group with output
// redirected to the log file. A stale marker or PID file from an earlier
// run is removed first so it cannot be mistaken for a fresh endpoint.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	logger := logging.OrDiscard(s.Logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	s.noteRecorded(logger)
	for _, stale := range []string{s.Marker, s.PIDFile} {
		if stale == "" {
			continue
		}
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: removing stale %s: %v", ErrLaunch, stale, err)
		}
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	procgroup.Isolate(cmd)

	var logFile *os.File
	if s.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.LogPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
		f, err := os.Create(s.LogPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	h := &Handle{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		logFile: logFile,
		done:    make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		if h.logFile != nil {
			h.logFile.Close()
		}
		close(h.done)
	}()

	if s.PIDFile != "" {
		if err := writePIDFile(s.PIDFile, h.pid); err != nil {
			logger.Warn("could not record simulator pid", "path", s.PIDFile, "err", err)
		}
	}
	logger.Info("simulator started", "pid", h.pid, "path", spec.Path)
	return h, nil
}

// AwaitReady polls the marker file until it names an endpoint. It fails
// early when the process exits, the timeout elapses or ctx is cancelled.
func (s *Supervisor) AwaitReady(ctx context.Context, h *Handle, timeout time.Duration) (string, error) {
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if endpoint := readMarker(s.Marker); endpoint != "" {
			logging.OrDiscard(s.Logger).Debug("endpoint advertised", "endpoint", endpoint)
			return endpoint, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-h.done:
			// The marker may have been written just before exit.
			if endpoint := readMarker(s.Marker); endpoint != "" {
				return "", fmt.Errorf("%w (advertised %s)", ErrProcessExited, endpoint)
			}
			return "", ErrProcessExited
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s", ErrEndpointTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// Stop terminates the simulator's process group: SIGTERM, a grace
// period, then SIGKILL. Calling Stop more than once is safe.
func (s *Supervisor) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	h.stopOnce.Do(func() {
		h.stopErr = s.stop(h)
		h.stopped.Store(true)
		if s.PIDFile != "" {
			os.Remove(s.PIDFile)
		}
	})
	return h.stopErr
}

func (s *Supervisor) stop(h *Handle) error {
	logger := logging.OrDiscard(s.Logger).With("pid", h.pid)
	grace := s.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	if exited, _ := h.Exited(); exited {
		// The leader is gone but children may linger in its group.
		procgroup.Kill(h.pid)
		return nil
	}

	if err := procgroup.Terminate(h.pid); err != nil {
		logger.Warn("terminate failed", "err", err)
	}
	select {
	case <-h.done:
		procgroup.Kill(h.pid)
		logger.Debug("simulator stopped")
		return nil
	case <-time.After(grace):
	}

	logger.Warn("simulator ignored terminate, killing", "grace", grace)
	if err := procgroup.Kill(h.pid); err != nil {
		return fmt.Errorf("kill simulator %d: %w", h.pid, err)
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("simulator %d did not exit after kill", h.pid)
	}
}

// noteRecorded reports a simulator left behind by a previous run whose PID
// file survived. The process is not signalled: after a crash the PID may
// have been reused by something unrelated. The caller removes the file.
func (s *Supervisor) noteRecorded(logger *log.Logger) {
	if s.PIDFile == "" {
		return
	}
	data, err := os.ReadFile(s.PIDFile)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return
	}
	if procgroup.Alive(pid) {
		logger.Warn("stale pid file names a live process group, leaving it alone", "pid", pid, "path", s.PIDFile)
	}
}

func readMarker(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}
