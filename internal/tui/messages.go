package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/orchestrator"
)

// RunStartedMsg carries the planned variants.
type RunStartedMsg struct {
	Plan []matrix.Variant
}

// PrepareFinishedMsg reports the outcome of the prepare step.
type PrepareFinishedMsg struct {
	Err error
}

// VariantStartedMsg is sent when a variant enters the pipeline.
type VariantStartedMsg struct {
	Index   int
	Total   int
	Variant matrix.Variant
}

// StageFinishedMsg is sent for each stage result.
type StageFinishedMsg struct {
	Index  int
	Result orchestrator.StageResult
}

// VariantFinishedMsg carries a finished variant.
type VariantFinishedMsg struct {
	Outcome orchestrator.VariantOutcome
}

// RunFinishedMsg is sent once the run is over.
type RunFinishedMsg struct {
	Run orchestrator.Run
}

// OutputLineMsg is one line of build output.
type OutputLineMsg struct {
	Target string
	Line   string
}

var _ orchestrator.Observer = Observer{}

// Observer forwards orchestrator events into a running program.
type Observer struct {
	Send func(tea.Msg)
}

// NewObserver forwards to p.
func NewObserver(p *tea.Program) Observer {
	return Observer{Send: p.Send}
}

func (o Observer) RunStarted(plan []matrix.Variant) { o.Send(RunStartedMsg{Plan: plan}) }
func (o Observer) PrepareFinished(err error)        { o.Send(PrepareFinishedMsg{Err: err}) }
func (o Observer) VariantStarted(index, total int, v matrix.Variant) {
	o.Send(VariantStartedMsg{Index: index, Total: total, Variant: v})
}
func (o Observer) StageFinished(index int, r orchestrator.StageResult) {
	o.Send(StageFinishedMsg{Index: index, Result: r})
}
func (o Observer) VariantFinished(out orchestrator.VariantOutcome) {
	o.Send(VariantFinishedMsg{Outcome: out})
}
func (o Observer) RunFinished(r orchestrator.Run) { o.Send(RunFinishedMsg{Run: r}) }

// OutputLine matches build.Runner.OnLine.
func (o Observer) OutputLine(target, line string) {
	o.Send(OutputLineMsg{Target: target, Line: line})
}
