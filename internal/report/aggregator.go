// Package report turns orchestrator events into operator-facing progress
// lines, a final summary, an exit status and optional metrics.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/orchestrator"
	"github.com/buckleypaul/simmatrix/internal/ui"
)

// Exit statuses of a run.
const (
	ExitOK          = 0
	ExitFailures    = 1
	ExitConfigError = 2
	ExitInterrupted = 130
)

// Summary is the tally printed at the end of a run.
type Summary struct {
	Total       int
	Passed      int
	Failed      int
	Interrupted bool
	Failures    []orchestrator.VariantOutcome
}

// Aggregator prints a line per stage as it finishes and a summary when the
// run ends. It is safe to query from another goroutine while a run is
// in progress.
type Aggregator struct {
	w     io.Writer
	theme ui.Theme

	mu       sync.Mutex
	planned  int
	outcomes []orchestrator.VariantOutcome
	finished bool
	run      orchestrator.Run
}

// NewAggregator writes progress to w.
func NewAggregator(w io.Writer) *Aggregator {
	return &Aggregator{w: w, theme: ui.NewTheme(w)}
}

// SetOutput redirects subsequent lines to w, e.g. to stdout once a
// full-screen view has released the terminal.
func (a *Aggregator) SetOutput(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w = w
	a.theme = ui.NewTheme(w)
}

func (a *Aggregator) RunStarted(plan []matrix.Variant) {
	a.mu.Lock()
	a.planned = len(plan)
	a.mu.Unlock()
	fmt.Fprintf(a.w, "%s\n", a.theme.Header.Render(fmt.Sprintf("Running %d configurations", len(plan))))
}

func (a *Aggregator) PrepareFinished(err error) {
	if err != nil {
		fmt.Fprintln(a.w, a.theme.Warn.Render("Warning: prepare step failed; builds may download the core themselves: "+err.Error()))
	}
}

func (a *Aggregator) VariantStarted(index, total int, v matrix.Variant) {
	fmt.Fprintf(a.w, "\n%s\n", a.theme.Bold.Render(fmt.Sprintf("CONFIG %d/%d: %s", index+1, total, v)))
}

func (a *Aggregator) StageFinished(_ int, r orchestrator.StageResult) {
	label := strings.ToUpper(r.Stage.Label())
	switch {
	case r.Skipped:
		fmt.Fprintf(a.w, "  %s: %s\n", label, a.theme.Skip.Render("SKIPPED"))
	case r.Passed:
		line := fmt.Sprintf("  %s: %s", label, a.theme.Verdict(true))
		if r.Detail != "" {
			line += a.theme.Dim.Render(" (" + r.Detail + ")")
		}
		fmt.Fprintln(a.w, line)
	default:
		fmt.Fprintf(a.w, "  %s: %s\n", label, a.theme.Verdict(false))
		if r.Err != nil {
			fmt.Fprintf(a.w, "    %s\n", a.theme.Fail.Render(r.Err.Error()))
		}
		for _, l := range strings.Split(r.Detail, "\n") {
			if l != "" {
				fmt.Fprintf(a.w, "    %s\n", a.theme.Dim.Render(l))
			}
		}
		if r.LogPath != "" {
			fmt.Fprintf(a.w, "    %s\n", a.theme.Dim.Render("log: "+r.LogPath))
		}
	}
}

func (a *Aggregator) VariantFinished(o orchestrator.VariantOutcome) {
	a.mu.Lock()
	a.outcomes = append(a.outcomes, o)
	a.mu.Unlock()

	if o.StopErr != nil {
		fmt.Fprintf(a.w, "  %s\n", a.theme.Warn.Render("simulator stop: "+o.StopErr.Error()))
	}
	fmt.Fprintf(a.w, "  RESULT: %s %s\n", a.theme.Verdict(o.Passed), a.theme.Dim.Render(fmt.Sprintf("in %s", o.Duration.Round(time.Millisecond))))
}

func (a *Aggregator) RunFinished(r orchestrator.Run) {
	a.mu.Lock()
	a.finished = true
	a.run = r
	a.mu.Unlock()
	a.PrintSummary()
}

// Summary tallies the outcomes seen so far.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Summary{Total: a.planned, Interrupted: a.run.Interrupted}
	for _, o := range a.outcomes {
		if o.Passed {
			s.Passed++
		} else {
			s.Failed++
			s.Failures = append(s.Failures, o)
		}
	}
	return s
}

// PrintSummary writes the final tally and a line per failed variant.
func (a *Aggregator) PrintSummary() {
	s := a.Summary()
	t := a.theme

	fmt.Fprintf(a.w, "\n%s\n", t.Header.Render("SUMMARY:"))
	fmt.Fprintf(a.w, "  Total configurations: %d\n", s.Total)
	fmt.Fprintf(a.w, "  Passed: %s\n", t.Pass.Render(fmt.Sprint(s.Passed)))
	fmt.Fprintf(a.w, "  Failed: %s\n", t.Fail.Render(fmt.Sprint(s.Failed)))
	if notRun := s.Total - s.Passed - s.Failed; notRun > 0 {
		fmt.Fprintf(a.w, "  Not run: %d\n", notRun)
	}
	if len(s.Failures) > 0 {
		fmt.Fprintln(a.w, "  Failures:")
		for _, o := range s.Failures {
			fmt.Fprintf(a.w, "    [%d] %s -> %s\n", o.Index+1, o.Variant, o.FailureSummary())
		}
	}

	switch {
	case s.Interrupted:
		fmt.Fprintln(a.w, t.Warn.Render("Interrupted by user"))
	case s.Failed == 0 && s.Passed == s.Total:
		fmt.Fprintln(a.w, t.Pass.Render("ALL PASSED"))
	default:
		fmt.Fprintln(a.w, t.Fail.Render("SOME FAILURES"))
	}
}

// ExitCode is 0 when every planned variant passed, 130 after an
// interrupt and 1 otherwise.
func (a *Aggregator) ExitCode() int {
	s := a.Summary()
	switch {
	case s.Interrupted:
		return ExitInterrupted
	case s.Failed == 0 && s.Passed == s.Total:
		return ExitOK
	default:
		return ExitFailures
	}
}
