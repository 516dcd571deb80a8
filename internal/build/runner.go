// Package build runs make targets for one variant with an explicit
// environment, a bounded timeout and process-group cleanup.
package build

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buckleypaul/simmatrix/internal/logging"
	"github.com/buckleypaul/simmatrix/internal/procgroup"
)

var (
	ErrBuildFailed     = errors.New("build failed")
	ErrTimeout         = errors.New("build timed out")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrArtifactStale   = errors.New("artifact not rebuilt")
)

// mtime slack for filesystems with coarse timestamps.
const freshnessSlack = time.Second

// Invocation describes one make run.
type Invocation struct {
	Target   string
	Env      Env
	Artifact string        // path relative to the runner dir; empty skips the check
	Timeout  time.Duration // zero means no limit
	Log      io.Writer     // receives the combined output as it streams
}

// Result bundles the outcome of an Invocation.
type Result struct {
	Target   string
	ExitCode int
	Output   string
	Duration time.Duration
	Artifact string
	Err      error
}

// OK reports whether the target built and its artifact is fresh.
func (r Result) OK() bool { return r.Err == nil }

// Runner invokes make in a project directory.
type Runner struct {
	Make   string
	Dir    string
	Env    []string // base environment; nil inherits the process environment
	Logger *log.Logger

	// OnLine, when set, receives each output line as it is produced.
	OnLine func(target, line string)
}

// Run executes inv and never returns a nil Result.Err for a failed build.
func (r *Runner) Run(ctx context.Context, inv Invocation) Result {
	logger := logging.OrDiscard(r.Logger).With("target", inv.Target)
	start := time.Now()
	res := Result{Target: inv.Target, ExitCode: -1}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	makeBin := r.Make
	if makeBin == "" {
		makeBin = "make"
	}
	var args []string
	if inv.Target != "" {
		args = append(args, inv.Target)
	}
	cmd := exec.CommandContext(ctx, makeBin, args...)
	cmd.Dir = r.Dir
	cmd.Env = inv.Env.Environ(r.Env)
	procgroup.Isolate(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd.Process.Pid) }
	cmd.WaitDelay = 2 * time.Second

	logger.Debug("starting make", "bin", makeBin, "dir", r.Dir, "vars", inv.Env.Vars())
	output, err := r.stream(cmd, inv, logger)
	res.Output = output
	res.Duration = time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, inv.Timeout)
		case ctx.Err() != nil:
			res.Err = ctx.Err()
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Errorf("%w: make %s exited with status %d", ErrBuildFailed, inv.Target, res.ExitCode)
		default:
			res.Err = fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		logger.Warn("make failed", "err", res.Err, "duration", res.Duration)
		return res
	}
	res.ExitCode = 0

	if inv.Artifact != "" {
		path := inv.Artifact
		if !filepath.IsAbs(path) && r.Dir != "" {
			path = filepath.Join(r.Dir, path)
		}
		res.Artifact = path
		if err := checkArtifact(path, start); err != nil {
			res.Err = err
			logger.Warn("artifact check failed", "err", err)
			return res
		}
	}
	logger.Debug("make finished", "duration", res.Duration)
	return res
}

// maxLine bounds a single output line; longer lines end line streaming.
const maxLine = 1024 * 1024

func (r *Runner) stream(cmd *exec.Cmd, inv Invocation, logger *log.Logger) (string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if inv.Log != nil {
			fmt.Fprintln(inv.Log, line)
		}
		if r.OnLine != nil {
			r.OnLine(inv.Target, line)
		}
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so make never blocks on a full pipe.
		logger.Warn("output no longer streamed", "err", err)
		fmt.Fprintf(&buf, "[output truncated: %v]\n", err)
		sink := io.Discard
		if inv.Log != nil {
			sink = inv.Log
		}
		io.Copy(sink, stdout)
	}

	err = cmd.Wait()
	return buf.String(), err
}

func checkArtifact(path string, start time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrArtifactMissing, path)
	}
	if info.ModTime().Before(start.Add(-freshnessSlack)) {
		return fmt.Errorf("%w: %s last modified %s", ErrArtifactStale, path, info.ModTime().Format(time.RFC3339))
	}
	return nil
}
