package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/buckleypaul/simmatrix/internal/matrix"
)

// Stage names one state of the per-variant pipeline.
type Stage string

const (
	StageGenerateConfig Stage = "GENERATE_CONFIG"
	StageBuildSim       Stage = "BUILD_SIM"
	StageStartSim       Stage = "START_SIM"
	StageAwaitEndpoint  Stage = "AWAIT_ENDPOINT"
	StageProbe          Stage = "PROBE"
	StageStopSim        Stage = "STOP_SIM"
)

// ReportedStages are the stages every VariantOutcome carries a result for,
// in order. Endpoint discovery is reported as part of START_SIM.
var ReportedStages = []Stage{StageGenerateConfig, StageBuildSim, StageStartSim, StageProbe}

// Label is the human-readable stage name used in progress lines.
func (s Stage) Label() string {
	switch s {
	case StageGenerateConfig:
		return "Generate config"
	case StageBuildSim:
		return "Build sim"
	case StageStartSim:
		return "Start sim"
	case StageAwaitEndpoint:
		return "Await endpoint"
	case StageProbe:
		return "Probe"
	case StageStopSim:
		return "Stop sim"
	default:
		return string(s)
	}
}

// StageFailure wraps the error a stage returned.
type StageFailure struct {
	Stage Stage
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// StageResult is the outcome of one stage. A skipped stage was never
// reached because an earlier stage failed; it counts as failed.
type StageResult struct {
	Stage    Stage
	Passed   bool
	Skipped  bool
	Detail   string
	Err      error
	Duration time.Duration
	LogPath  string
}

// VariantOutcome is everything recorded for one variant.
type VariantOutcome struct {
	Index    int
	Total    int
	Variant  matrix.Variant
	Stages   []StageResult
	Passed   bool
	Endpoint string
	Response []byte

	SimStarted  bool
	StopErr     error
	SimRunTime  time.Duration
	Duration    time.Duration
	Interrupted bool
}

// Stage returns the result recorded for s.
func (o VariantOutcome) Stage(s Stage) (StageResult, bool) {
	for _, r := range o.Stages {
		if r.Stage == s {
			return r, true
		}
	}
	return StageResult{}, false
}

// FailedStages lists the stages that did not pass, skipped ones included.
func (o VariantOutcome) FailedStages() []Stage {
	var failed []Stage
	for _, r := range o.Stages {
		if !r.Passed {
			failed = append(failed, r.Stage)
		}
	}
	return failed
}

// FailureSummary names the failed stages, e.g. "Build sim, Start sim (skipped)".
func (o VariantOutcome) FailureSummary() string {
	var parts []string
	for _, r := range o.Stages {
		switch {
		case r.Passed:
		case r.Skipped:
			parts = append(parts, r.Stage.Label()+" (skipped)")
		default:
			parts = append(parts, r.Stage.Label())
		}
	}
	return strings.Join(parts, ", ")
}

// Run is the result of a whole matrix pass.
type Run struct {
	Planned     int
	Outcomes    []VariantOutcome
	Passed      int
	Failed      int
	PrepareErr  error
	Interrupted bool
	Duration    time.Duration
}

// AllPassed reports whether every planned variant ran and passed.
func (r Run) AllPassed() bool {
	return !r.Interrupted && r.Failed == 0 && len(r.Outcomes) == r.Planned
}
