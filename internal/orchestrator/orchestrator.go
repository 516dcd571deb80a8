// Package orchestrator sequences the per-variant pipeline: generate the
// serial config, build the simulator, start it, wait for its endpoint,
// probe the endpoint and stop the simulator on every path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buckleypaul/simmatrix/internal/build"
	"github.com/buckleypaul/simmatrix/internal/hdlc"
	"github.com/buckleypaul/simmatrix/internal/logging"
	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/sim"
)

// Builder runs one make invocation.
type Builder interface {
	Run(ctx context.Context, inv build.Invocation) build.Result
}

// Supervisor owns the simulator process.
type Supervisor interface {
	Spawn(ctx context.Context, spec sim.Spec) (*sim.Handle, error)
	AwaitReady(ctx context.Context, h *sim.Handle, timeout time.Duration) (string, error)
	Stop(h *sim.Handle) error
}

// Prober exchanges one frame with an endpoint.
type Prober interface {
	Probe(ctx context.Context, endpoint string, frame []byte) ([]byte, error)
}

// Options are the named settings of a run.
type Options struct {
	CodegenTarget   string
	CodegenArtifact string
	SimTarget       string
	SimArtifact     string
	DownloadTarget  string
	SkipDownload    bool

	Simulator sim.Spec
	SimLog    string // copied into LogDir after each variant when set

	BaudRate int
	CPUFreq  string

	BuildTimeout time.Duration
	StartTimeout time.Duration

	Limit  int
	LogDir string
}

// Orchestrator runs variants one at a time.
type Orchestrator struct {
	Builder    Builder
	Supervisor Supervisor
	Prober     Prober
	Observer   Observer
	Options    Options
	Logger     *log.Logger

	// Frame is the probe request; nil sends GET_ENDPOINT_ID.
	Frame []byte
}

// Plan applies the run limit to the enumerated variants.
func (o *Orchestrator) Plan(variants []matrix.Variant) []matrix.Variant {
	if o.Options.Limit > 0 && o.Options.Limit < len(variants) {
		return variants[:o.Options.Limit]
	}
	return variants
}

// Run prepares the project once, then runs every planned variant. It stops
// early when ctx is cancelled; the variant in flight still stops its
// simulator before Run returns.
func (o *Orchestrator) Run(ctx context.Context, variants []matrix.Variant) Run {
	obs := o.observer()
	start := time.Now()
	plan := o.Plan(variants)
	run := Run{Planned: len(plan)}
	obs.RunStarted(plan)

	run.PrepareErr = o.prepare(ctx)
	obs.PrepareFinished(run.PrepareErr)

	for i, v := range plan {
		if ctx.Err() != nil {
			run.Interrupted = true
			break
		}
		out := o.RunVariant(ctx, i, len(plan), v)
		run.Outcomes = append(run.Outcomes, out)
		if out.Passed {
			run.Passed++
		} else {
			run.Failed++
		}
		if out.Interrupted {
			run.Interrupted = true
			break
		}
	}

	run.Duration = time.Since(start)
	obs.RunFinished(run)
	return run
}

// prepare fetches the simulator core. Failure is logged, not fatal.
func (o *Orchestrator) prepare(ctx context.Context) error {
	if o.Options.SkipDownload || o.Options.DownloadTarget == "" {
		return nil
	}
	res := o.Builder.Run(ctx, build.Invocation{
		Target:  o.Options.DownloadTarget,
		Timeout: o.Options.BuildTimeout,
	})
	if res.Err != nil {
		o.logger().Warn("prepare step failed, continuing", "target", o.Options.DownloadTarget, "err", res.Err)
	}
	return res.Err
}

// RunVariant drives one variant through every stage and returns its
// outcome. index is zero-based.
func (o *Orchestrator) RunVariant(ctx context.Context, index, total int, v matrix.Variant) VariantOutcome {
	obs := o.observer()
	logger := o.logger().With("variant", index+1, "mcu", v.Device, "uart", v.Peripheral)
	start := time.Now()

	vr := &variantRun{
		o:   o,
		obs: obs,
		out: VariantOutcome{Index: index, Total: total, Variant: v},
	}
	obs.VariantStarted(index, total, v)
	logger.Info("variant started", "pin", v.PinDescription())

	env := build.EnvFor(v, o.Options.BaudRate, o.Options.CPUFreq)
	if vr.build(ctx, StageGenerateConfig, o.Options.CodegenTarget, o.Options.CodegenArtifact, env) &&
		vr.build(ctx, StageBuildSim, o.Options.SimTarget, o.Options.SimArtifact, env) {
		vr.simulate(ctx, logger)
	}
	vr.skipRemaining()

	out := vr.out
	out.Passed = true
	for _, r := range out.Stages {
		out.Passed = out.Passed && r.Passed
	}
	out.Interrupted = ctx.Err() != nil
	out.Duration = time.Since(start)
	logger.Info("variant finished", "passed", out.Passed, "duration", out.Duration)
	obs.VariantFinished(out)
	return out
}

type variantRun struct {
	o   *Orchestrator
	obs Observer
	out VariantOutcome
}

func (vr *variantRun) record(r StageResult) {
	if r.Err != nil {
		r.Err = &StageFailure{Stage: r.Stage, Err: r.Err}
	}
	vr.out.Stages = append(vr.out.Stages, r)
	vr.obs.StageFinished(vr.out.Index, r)
}

// skipRemaining marks every reported stage not yet recorded as skipped.
func (vr *variantRun) skipRemaining() {
	for _, s := range ReportedStages {
		if _, ok := vr.out.Stage(s); !ok {
			vr.record(StageResult{Stage: s, Skipped: true, Detail: "not reached"})
		}
	}
}

func (vr *variantRun) build(ctx context.Context, stage Stage, target, artifact string, env build.Env) bool {
	if err := ctx.Err(); err != nil {
		vr.record(StageResult{Stage: stage, Err: err})
		return false
	}
	logPath, logFile := vr.openStageLog(stage)
	if logFile != nil {
		defer logFile.Close()
	}
	inv := build.Invocation{
		Target:   target,
		Env:      env,
		Artifact: artifact,
		Timeout:  vr.o.Options.BuildTimeout,
	}
	if logFile != nil {
		inv.Log = logFile
	}
	res := vr.o.Builder.Run(ctx, inv)

	r := StageResult{Stage: stage, Passed: res.OK(), Duration: res.Duration, LogPath: logPath, Err: res.Err}
	if r.Passed {
		r.Detail = fmt.Sprintf("make %s", target)
	} else {
		r.Detail = tail(res.Output, 5)
	}
	vr.record(r)
	return r.Passed
}

// simulate covers START_SIM through STOP_SIM. Once Spawn succeeds the
// deferred stop runs on every path, including cancellation.
func (vr *variantRun) simulate(ctx context.Context, logger *log.Logger) {
	o := vr.o
	startedAt := time.Now()
	h, err := o.Supervisor.Spawn(ctx, o.Options.Simulator)
	if err != nil {
		vr.record(StageResult{Stage: StageStartSim, Err: err, Duration: time.Since(startedAt)})
		return
	}
	vr.out.SimStarted = true
	var endpointAt time.Time
	defer func() {
		stopStart := time.Now()
		vr.out.StopErr = o.Supervisor.Stop(h)
		if !endpointAt.IsZero() {
			vr.out.SimRunTime = time.Since(endpointAt)
		}
		if vr.out.StopErr != nil {
			logger.Error("simulator stop failed", "pid", h.PID(), "err", vr.out.StopErr)
		}
		logger.Debug("simulator stopped", "took", time.Since(stopStart))
		vr.archiveSimLog()
	}()

	endpoint, err := o.Supervisor.AwaitReady(ctx, h, o.Options.StartTimeout)
	if err != nil {
		vr.record(StageResult{
			Stage:    StageStartSim,
			Err:      fmt.Errorf("%s: %w", StageAwaitEndpoint, err),
			Detail:   fmt.Sprintf("pid %d, no endpoint", h.PID()),
			Duration: time.Since(startedAt),
		})
		return
	}
	endpointAt = time.Now()
	vr.out.Endpoint = endpoint
	vr.record(StageResult{
		Stage:    StageStartSim,
		Passed:   true,
		Detail:   fmt.Sprintf("pid %d, endpoint %s", h.PID(), endpoint),
		Duration: time.Since(startedAt),
	})

	frame := o.Frame
	if frame == nil {
		frame = hdlc.MustEncode(hdlc.ProbeRequest())
	}
	probeStart := time.Now()
	resp, err := o.Prober.Probe(ctx, endpoint, frame)
	r := StageResult{Stage: StageProbe, Duration: time.Since(probeStart)}
	switch {
	case err != nil:
		r.Err = err
	case len(resp) == 0:
		r.Err = errors.New("empty response")
	default:
		r.Passed = true
		r.Detail = describeResponse(resp)
		vr.out.Response = resp
	}
	vr.record(r)
}

func (vr *variantRun) openStageLog(stage Stage) (string, io.WriteCloser) {
	dir := vr.o.Options.LogDir
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		vr.o.logger().Warn("cannot create log dir", "dir", dir, "err", err)
		return "", nil
	}
	path := filepath.Join(dir, stageLogName(vr.out.Index, string(stage)))
	f, err := os.Create(path)
	if err != nil {
		vr.o.logger().Warn("cannot create stage log", "path", path, "err", err)
		return "", nil
	}
	return path, f
}

func (vr *variantRun) archiveSimLog() {
	src, dir := vr.o.Options.SimLog, vr.o.Options.LogDir
	if src == "" || dir == "" {
		return
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	os.WriteFile(filepath.Join(dir, stageLogName(vr.out.Index, "sim")), data, 0o644)
}

func stageLogName(index int, stage string) string {
	return fmt.Sprintf("%02d-%s.log", index+1, strings.ToLower(stage))
}

func describeResponse(resp []byte) string {
	s := fmt.Sprintf("%d bytes", len(resp))
	if msg, err := hdlc.Decode(resp); err == nil {
		return s + ", " + msg.String()
	}
	return s
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) observer() Observer {
	if o.Observer == nil {
		return NopObserver{}
	}
	return o.Observer
}

func (o *Orchestrator) logger() *log.Logger {
	return logging.OrDiscard(o.Logger)
}
