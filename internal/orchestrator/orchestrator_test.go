package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/simmatrix/internal/build"
	"github.com/buckleypaul/simmatrix/internal/hdlc"
	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/peer"
	"github.com/buckleypaul/simmatrix/internal/procgroup"
	"github.com/buckleypaul/simmatrix/internal/serial"
	"github.com/buckleypaul/simmatrix/internal/sim"
)

const helperEnv = "SIMMATRIX_ORCHESTRATOR_HELPER"

// TestHelperProcess is not a real test. It is re-executed as the
// simulator: a pty echo peer that advertises itself through SIM_MARKER.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) == "" {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	if err := peer.Serve(ctx, peer.Options{Marker: os.Getenv("SIM_MARKER"), Mode: peer.ModeEcho}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

type fakeBuilder struct {
	mu    sync.Mutex
	fail  func(inv build.Invocation) error
	calls []string
}

func (b *fakeBuilder) Run(_ context.Context, inv build.Invocation) build.Result {
	b.mu.Lock()
	b.calls = append(b.calls, inv.Env.Device+":"+inv.Target)
	b.mu.Unlock()
	if inv.Log != nil {
		fmt.Fprintf(inv.Log, "make %s\n", inv.Target)
	}
	res := build.Result{Target: inv.Target, Duration: time.Millisecond, Output: "make " + inv.Target + "\n"}
	if b.fail != nil {
		if err := b.fail(inv); err != nil {
			res.ExitCode = 2
			res.Err = err
			return res
		}
	}
	return res
}

// countingSupervisor runs a real simulator and counts Stop calls.
type countingSupervisor struct {
	*sim.Supervisor
	awaitErr error
	spawns   int
	stops    int
	handles  []*sim.Handle
}

func (c *countingSupervisor) Spawn(ctx context.Context, spec sim.Spec) (*sim.Handle, error) {
	c.spawns++
	h, err := c.Supervisor.Spawn(ctx, spec)
	if h != nil {
		c.handles = append(c.handles, h)
	}
	return h, err
}

func (c *countingSupervisor) AwaitReady(ctx context.Context, h *sim.Handle, timeout time.Duration) (string, error) {
	if c.awaitErr != nil {
		return "", c.awaitErr
	}
	return c.Supervisor.AwaitReady(ctx, h, timeout)
}

func (c *countingSupervisor) Stop(h *sim.Handle) error {
	c.stops++
	return c.Supervisor.Stop(h)
}

func (c *countingSupervisor) assertAllStopped(t *testing.T) {
	t.Helper()
	for _, h := range c.handles {
		exited, _ := h.Exited()
		assert.True(t, exited, "simulator %d still running", h.PID())
		assert.False(t, procgroup.Alive(h.PID()), "process group %d still alive", h.PID())
	}
}

type proberFunc func(ctx context.Context, endpoint string, frame []byte) ([]byte, error)

func (f proberFunc) Probe(ctx context.Context, endpoint string, frame []byte) ([]byte, error) {
	return f(ctx, endpoint, frame)
}

func echoProber() Prober {
	return proberFunc(func(_ context.Context, _ string, frame []byte) ([]byte, error) {
		return frame, nil
	})
}

type harness struct {
	orch *Orchestrator
	sup  *countingSupervisor
	bld  *fakeBuilder
}

func newHarness(t *testing.T) harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals not available on windows")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "sim", "pty_slave.txt")
	sup := &countingSupervisor{Supervisor: &sim.Supervisor{
		Marker:       marker,
		PIDFile:      filepath.Join(dir, "sim", "sim.pid"),
		LogPath:      filepath.Join(dir, "sim.log"),
		PollInterval: 20 * time.Millisecond,
		StopGrace:    time.Second,
	}}
	bld := &fakeBuilder{}
	orch := &Orchestrator{
		Builder:    bld,
		Supervisor: sup,
		Prober:     echoProber(),
		Options: Options{
			CodegenTarget: "generate-config",
			SimTarget:     "sim",
			Simulator: sim.Spec{
				Path: os.Args[0],
				Args: []string{"-test.run=TestHelperProcess", "--"},
				Env:  append(os.Environ(), helperEnv+"=1", "SIM_MARKER="+marker),
			},
			BaudRate:     9600,
			StartTimeout: 5 * time.Second,
			BuildTimeout: time.Minute,
		},
	}
	return harness{orch: orch, sup: sup, bld: bld}
}

var usart0 = matrix.Variant{Device: "X1", Peripheral: "USART0", Family: matrix.Classic}

func stageStates(o VariantOutcome) map[Stage]string {
	states := make(map[Stage]string)
	for _, r := range o.Stages {
		switch {
		case r.Passed:
			states[r.Stage] = "pass"
		case r.Skipped:
			states[r.Stage] = "skipped"
		default:
			states[r.Stage] = "fail"
		}
	}
	return states
}

func TestRunVariantAllStagesPass(t *testing.T) {
	h := newHarness(t)

	out := h.orch.RunVariant(context.Background(), 0, 1, usart0)

	assert.True(t, out.Passed)
	assert.Equal(t, map[Stage]string{
		StageGenerateConfig: "pass",
		StageBuildSim:       "pass",
		StageStartSim:       "pass",
		StageProbe:          "pass",
	}, stageStates(out))
	assert.NotEmpty(t, out.Endpoint)
	assert.Equal(t, 1, h.sup.stops)
	assert.Equal(t, []string{"X1:generate-config", "X1:sim"}, h.bld.calls)
	h.sup.assertAllStopped(t)
}

func TestRunVariantStopsAfterAwaitFailure(t *testing.T) {
	h := newHarness(t)
	h.sup.awaitErr = sim.ErrEndpointTimeout

	out := h.orch.RunVariant(context.Background(), 0, 1, usart0)

	assert.False(t, out.Passed)
	assert.Equal(t, "fail", stageStates(out)[StageStartSim])
	assert.Equal(t, "skipped", stageStates(out)[StageProbe])
	r, _ := out.Stage(StageStartSim)
	assert.ErrorIs(t, r.Err, sim.ErrEndpointTimeout)
	var sf *StageFailure
	require.ErrorAs(t, r.Err, &sf)
	assert.Equal(t, StageStartSim, sf.Stage)

	assert.Equal(t, 1, h.sup.stops)
	h.sup.assertAllStopped(t)
}

func TestRunVariantStopsAfterProbeFailure(t *testing.T) {
	h := newHarness(t)
	h.orch.Prober = proberFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, serial.ErrNoResponse
	})

	out := h.orch.RunVariant(context.Background(), 0, 1, usart0)

	assert.False(t, out.Passed)
	assert.Equal(t, "pass", stageStates(out)[StageStartSim])
	assert.Equal(t, "fail", stageStates(out)[StageProbe])
	assert.Equal(t, []Stage{StageProbe}, out.FailedStages())
	assert.Equal(t, 1, h.sup.stops)
	h.sup.assertAllStopped(t)
}

func TestRunVariantStopsOnInterrupt(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.Prober = proberFunc(func(ctx context.Context, _ string, _ []byte) ([]byte, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	run := h.orch.Run(ctx, []matrix.Variant{usart0, usart0})

	require.Len(t, run.Outcomes, 1)
	assert.True(t, run.Interrupted)
	assert.True(t, run.Outcomes[0].Interrupted)
	assert.False(t, run.AllPassed())
	assert.Equal(t, 1, h.sup.stops)
	h.sup.assertAllStopped(t)
}

func TestGenerateFailureSkipsSimulator(t *testing.T) {
	h := newHarness(t)
	h.bld.fail = func(inv build.Invocation) error {
		if inv.Target == "generate-config" {
			return build.ErrBuildFailed
		}
		return nil
	}

	out := h.orch.RunVariant(context.Background(), 0, 1, usart0)

	assert.False(t, out.Passed)
	assert.Equal(t, map[Stage]string{
		StageGenerateConfig: "fail",
		StageBuildSim:       "skipped",
		StageStartSim:       "skipped",
		StageProbe:          "skipped",
	}, stageStates(out))
	assert.Equal(t, 0, h.sup.spawns)
	assert.Equal(t, 0, h.sup.stops)
	assert.Equal(t, "Build sim (skipped), Start sim (skipped), Probe (skipped)",
		VariantOutcome{Stages: out.Stages[1:]}.FailureSummary())
}

func TestLaunchFailureSkipsStop(t *testing.T) {
	h := newHarness(t)
	h.orch.Options.Simulator.Path = filepath.Join(t.TempDir(), "missing-sim")

	out := h.orch.RunVariant(context.Background(), 0, 1, usart0)

	r, _ := out.Stage(StageStartSim)
	assert.ErrorIs(t, r.Err, sim.ErrLaunch)
	assert.False(t, out.SimStarted)
	assert.Equal(t, 0, h.sup.stops)
}

func TestRunCountsAndLimit(t *testing.T) {
	h := newHarness(t)
	h.orch.Options.Limit = 2
	h.bld.fail = func(inv build.Invocation) error {
		if inv.Env.Device == "BAD" && inv.Target == "sim" {
			return errors.New("link error")
		}
		return nil
	}
	variants := []matrix.Variant{
		usart0,
		{Device: "BAD", Peripheral: "USART1"},
		{Device: "X3", Peripheral: "USART2"},
	}

	run := h.orch.Run(context.Background(), variants)

	assert.Equal(t, 2, run.Planned)
	assert.Len(t, run.Outcomes, 2)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.False(t, run.AllPassed())
	assert.Equal(t, 1, h.sup.spawns)
	assert.Equal(t, 1, h.sup.stops)
}

func TestPrepareFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.orch.Options.DownloadTarget = "download-core"
	h.bld.fail = func(inv build.Invocation) error {
		if inv.Target == "download-core" {
			return build.ErrBuildFailed
		}
		return nil
	}

	run := h.orch.Run(context.Background(), []matrix.Variant{usart0})

	assert.ErrorIs(t, run.PrepareErr, build.ErrBuildFailed)
	assert.True(t, run.AllPassed())
	assert.Equal(t, ":download-core", h.bld.calls[0])
}

func TestStageLogsWritten(t *testing.T) {
	h := newHarness(t)
	logDir := t.TempDir()
	h.orch.Options.LogDir = logDir
	h.orch.Options.SimLog = h.sup.LogPath

	out := h.orch.RunVariant(context.Background(), 2, 3, usart0)
	require.True(t, out.Passed)

	r, _ := out.Stage(StageBuildSim)
	assert.Equal(t, filepath.Join(logDir, "03-build_sim.log"), r.LogPath)
	data, err := os.ReadFile(r.LogPath)
	require.NoError(t, err)
	assert.Equal(t, "make sim\n", string(data))
	assert.FileExists(t, filepath.Join(logDir, "03-sim.log"))
}

func TestEndToEndEchoPeer(t *testing.T) {
	h := newHarness(t)
	prober := serial.NewProber()
	prober.Settle = 20 * time.Millisecond
	h.orch.Prober = prober

	doc, err := matrix.Parse([]byte(`{
		"classic_uarts": [
			{"name": "USART0", "type": "USART", "included_parts": ["X1"],
			 "ports": [{"txport": "PORTD", "txpin": 1, "rxport": "PORTD", "rxpin": 0}]}
		]
	}`), matrix.FormatJSON)
	require.NoError(t, err)
	variants := matrix.Enumerate(doc)
	require.Len(t, variants, 1)

	run := h.orch.Run(context.Background(), variants)

	require.Len(t, run.Outcomes, 1)
	out := run.Outcomes[0]
	for _, s := range ReportedStages {
		r, ok := out.Stage(s)
		require.True(t, ok, s)
		assert.True(t, r.Passed, "%s: %v", s, r.Err)
	}
	frame := hdlc.MustEncode(hdlc.ProbeRequest())
	assert.Len(t, out.Response, len(frame))
	assert.Equal(t, frame, out.Response)
	assert.True(t, run.AllPassed())
	h.sup.assertAllStopped(t)
}
