package sim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/simmatrix/internal/procgroup"
)

const helperEnv = "SIMMATRIX_SIM_HELPER"

// TestHelperProcess is not a real test. It is re-executed by the tests
// below to act as a simulator.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) == "" {
		return
	}
	mode := os.Args[len(os.Args)-1]
	marker := os.Getenv("SIM_MARKER")

	fmt.Println("simulator booting")
	switch mode {
	case "advertise":
		os.WriteFile(marker, []byte("/dev/pts/fake\n"), 0o644)
	case "exit":
		os.Exit(1)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		os.WriteFile(marker, []byte("/dev/pts/stubborn"), 0o644)
	case "silent":
	}
	time.Sleep(time.Minute)
	os.Exit(0)
}

type fixture struct {
	sup    *Supervisor
	marker string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		sup: &Supervisor{
			Marker:       filepath.Join(dir, "pty_slave.txt"),
			PIDFile:      filepath.Join(dir, "sim.pid"),
			LogPath:      filepath.Join(dir, "sim.log"),
			PollInterval: 20 * time.Millisecond,
			StopGrace:    500 * time.Millisecond,
		},
		marker: filepath.Join(dir, "pty_slave.txt"),
	}
}

func (f fixture) spec(mode string) Spec {
	return Spec{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess", "--", mode},
		Env:  append(os.Environ(), helperEnv+"=1", "SIM_MARKER="+f.marker),
	}
}

func TestSpawnAwaitStop(t *testing.T) {
	f := newFixture(t)
	h, err := f.sup.Spawn(context.Background(), f.spec("advertise"))
	require.NoError(t, err)
	t.Cleanup(func() { f.sup.Stop(h) })

	endpoint, err := f.sup.AwaitReady(context.Background(), h, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/dev/pts/fake", endpoint)

	pid, err := os.ReadFile(f.sup.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(h.PID()), strings.TrimSpace(string(pid)))

	require.NoError(t, f.sup.Stop(h))
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("simulator still running after Stop")
	}
	assert.NoFileExists(t, f.sup.PIDFile)
	assert.True(t, h.Stopped())

	// A second Stop is a no-op.
	assert.NoError(t, f.sup.Stop(h))

	logData, err := os.ReadFile(f.sup.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "simulator booting")
}

func TestSpawnClearsStaleMarker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.marker, []byte("/dev/pts/stale"), 0o644))
	require.NoError(t, os.WriteFile(f.sup.PIDFile, []byte("99999999\n"), 0o644))

	h, err := f.sup.Spawn(context.Background(), f.spec("silent"))
	require.NoError(t, err)
	defer f.sup.Stop(h)

	_, err = f.sup.AwaitReady(context.Background(), h, 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrEndpointTimeout)
}

func TestSpawnLeavesRecordedProcessAlone(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process groups are signalled differently on windows")
	}
	f := newFixture(t)

	// An unrelated process that happens to hold the recorded PID.
	other := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "silent")
	other.Env = append(os.Environ(), helperEnv+"=1")
	procgroup.Isolate(other)
	require.NoError(t, other.Start())
	t.Cleanup(func() {
		procgroup.Kill(other.Process.Pid)
		other.Wait()
	})
	require.NoError(t, os.WriteFile(f.sup.PIDFile, []byte(strconv.Itoa(other.Process.Pid)+"\n"), 0o644))

	h, err := f.sup.Spawn(context.Background(), f.spec("silent"))
	require.NoError(t, err)
	defer f.sup.Stop(h)

	assert.True(t, procgroup.Alive(other.Process.Pid), "recorded process group was signalled")
	pid, err := os.ReadFile(f.sup.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(h.PID()), strings.TrimSpace(string(pid)))
}

func TestAwaitReadyDetectsEarlyExit(t *testing.T) {
	f := newFixture(t)
	h, err := f.sup.Spawn(context.Background(), f.spec("exit"))
	require.NoError(t, err)
	defer f.sup.Stop(h)

	_, err = f.sup.AwaitReady(context.Background(), h, 5*time.Second)
	assert.ErrorIs(t, err, ErrProcessExited)
}

func TestAwaitReadyHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	h, err := f.sup.Spawn(context.Background(), f.spec("silent"))
	require.NoError(t, err)
	defer f.sup.Stop(h)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err = f.sup.AwaitReady(ctx, h, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStopEscalatesToKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no SIGTERM on windows")
	}
	f := newFixture(t)
	f.sup.StopGrace = 200 * time.Millisecond
	h, err := f.sup.Spawn(context.Background(), f.spec("stubborn"))
	require.NoError(t, err)

	_, err = f.sup.AwaitReady(context.Background(), h, 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, f.sup.Stop(h))
	exited, _ := h.Exited()
	assert.True(t, exited)
}

func TestSpawnMissingExecutable(t *testing.T) {
	f := newFixture(t)
	_, err := f.sup.Spawn(context.Background(), Spec{Path: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrLaunch)
}
