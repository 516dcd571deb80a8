package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/simmatrix/internal/build"
	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/orchestrator"
	"github.com/buckleypaul/simmatrix/internal/report"
)

type failingBuilder struct{}

func (failingBuilder) Run(_ context.Context, inv build.Invocation) build.Result {
	return build.Result{Target: inv.Target, ExitCode: 2, Err: errors.New("make: *** no rule")}
}

func TestRunPlainPrintsOneSummary(t *testing.T) {
	orch := &orchestrator.Orchestrator{
		Builder: failingBuilder{},
		Options: orchestrator.Options{
			CodegenTarget: "include/generated_serial_config.h",
			SimTarget:     "sim",
			SkipDownload:  true,
		},
	}
	variants := []matrix.Variant{
		{Device: "X1", Peripheral: "USART0"},
		{Device: "X2", Peripheral: "USART1"},
	}

	var out bytes.Buffer
	agg, run := runPlain(context.Background(), orch, report.NewMetrics(), variants, &out)

	require.Equal(t, 2, run.Failed)
	assert.Equal(t, 1, strings.Count(out.String(), "SUMMARY:"), out.String())
	assert.Equal(t, 1, strings.Count(out.String(), "SOME FAILURES"))
	assert.Equal(t, report.ExitFailures, agg.ExitCode())
}
