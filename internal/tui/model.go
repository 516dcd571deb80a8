// Package tui is the live view of a matrix run.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/orchestrator"
	"github.com/buckleypaul/simmatrix/internal/ui"
)

const (
	maxOutputLines = 500
	maxRecent      = 8
)

type runState int

const (
	stateWaiting runState = iota
	stateRunning
	stateCancelling
	stateDone
)

// Model renders progress of one run. Cancel is called when the operator
// presses ctrl+c; the run then winds down through its normal cleanup and
// the view stays up until RunFinishedMsg arrives.
type Model struct {
	cancel context.CancelFunc
	theme  ui.Theme

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	state      runState
	showOutput bool
	width      int
	height     int

	total      int
	current    *VariantStartedMsg
	stages     []orchestrator.StageResult
	recent     []orchestrator.VariantOutcome
	passed     int
	failed     int
	prepareErr error
	output     []string
	run        *orchestrator.Run
}

// New returns a model that calls cancel to stop the run.
func New(cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		cancel:   cancel,
		theme:    ui.DefaultTheme(),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		viewport: viewport.New(72, 10),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Done reports whether the run has finished.
func (m Model) Done() bool { return m.state == stateDone }

// Run returns the finished run, if any.
func (m Model) Run() (orchestrator.Run, bool) {
	if m.run == nil {
		return orchestrator.Run{}, false
	}
	return *m.run, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, msg.Width-20)
		m.viewport.Width = max(10, msg.Width-8)
		m.viewport.Height = max(3, msg.Height-14)
		m.refreshOutput()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, Keys.Cancel):
			if m.state == stateDone {
				return m, tea.Quit
			}
			if m.state != stateCancelling {
				m.state = stateCancelling
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		case key.Matches(msg, Keys.Quit):
			if m.state == stateDone {
				return m, tea.Quit
			}
			return m, nil
		case key.Matches(msg, Keys.Output):
			m.showOutput = !m.showOutput
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case RunStartedMsg:
		m.total = len(msg.Plan)
		m.state = stateRunning
		return m, nil

	case PrepareFinishedMsg:
		m.prepareErr = msg.Err
		return m, nil

	case VariantStartedMsg:
		v := msg
		m.current = &v
		m.stages = nil
		m.total = msg.Total
		return m, nil

	case StageFinishedMsg:
		m.stages = append(m.stages, msg.Result)
		return m, nil

	case VariantFinishedMsg:
		if msg.Outcome.Passed {
			m.passed++
		} else {
			m.failed++
		}
		m.recent = append(m.recent, msg.Outcome)
		if len(m.recent) > maxRecent {
			m.recent = m.recent[len(m.recent)-maxRecent:]
		}
		return m, m.progress.SetPercent(m.fraction())

	case OutputLineMsg:
		m.output = append(m.output, msg.Target+": "+msg.Line)
		if len(m.output) > maxOutputLines {
			m.output = m.output[len(m.output)-maxOutputLines:]
		}
		m.refreshOutput()
		return m, nil

	case RunFinishedMsg:
		r := msg.Run
		m.run = &r
		m.state = stateDone
		m.current = nil
		return m, nil
	}
	return m, nil
}

func (m Model) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.passed+m.failed) / float64(m.total)
}

func (m *Model) refreshOutput() {
	lines := make([]string, len(m.output))
	for i, l := range m.output {
		lines[i] = truncate.StringWithTail(l, uint(max(10, m.viewport.Width)), "…")
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	t := m.theme
	var b strings.Builder

	b.WriteString(t.Title.Render("simmatrix"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %d/%d  %s %s\n\n",
		m.progress.View(),
		m.passed+m.failed, m.total,
		t.Pass.Render(fmt.Sprintf("%d passed", m.passed)),
		t.Fail.Render(fmt.Sprintf("%d failed", m.failed)))

	if m.prepareErr != nil {
		b.WriteString(t.Warn.Render("prepare step failed: "+m.prepareErr.Error()) + "\n\n")
	}

	if m.current != nil {
		fmt.Fprintf(&b, "%s CONFIG %d/%d: %s\n", m.spinner.View(), m.current.Index+1, m.current.Total, m.current.Variant)
		b.WriteString(m.stageChecklist())
		b.WriteString("\n")
	}

	if m.showOutput {
		b.WriteString(t.Panel("Output", m.viewport.View(), m.width-2, 0, true))
	} else {
		b.WriteString(t.Panel("Recent", m.recentView(), m.width-2, 0, false))
	}
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m Model) stageChecklist() string {
	t := m.theme
	var b strings.Builder
	done := make(map[orchestrator.Stage]orchestrator.StageResult, len(m.stages))
	for _, r := range m.stages {
		done[r.Stage] = r
	}
	pending := true
	for _, s := range orchestrator.ReportedStages {
		r, ok := done[s]
		switch {
		case ok && r.Passed:
			fmt.Fprintf(&b, "  %s %s\n", t.Pass.Render("✓"), s.Label())
		case ok && r.Skipped:
			fmt.Fprintf(&b, "  %s %s\n", t.Skip.Render("-"), t.Skip.Render(s.Label()))
		case ok:
			fmt.Fprintf(&b, "  %s %s\n", t.Fail.Render("✗"), s.Label())
		case pending:
			fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), s.Label())
			pending = false
		default:
			fmt.Fprintf(&b, "    %s\n", t.Dim.Render(s.Label()))
		}
	}
	return b.String()
}

func (m Model) recentView() string {
	if len(m.recent) == 0 {
		return m.theme.Dim.Render("no results yet")
	}
	var lines []string
	for _, o := range m.recent {
		line := fmt.Sprintf("%s [%d] %s", m.theme.ResultBadge(o.Passed), o.Index+1, describe(o.Variant))
		if !o.Passed {
			line += m.theme.Dim.Render("  " + o.FailureSummary())
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func describe(v matrix.Variant) string {
	s := v.Device + " " + v.Peripheral
	if pin := v.PinDescription(); pin != "" {
		s += " " + pin
	}
	return s
}

func (m Model) statusBar() string {
	t := m.theme
	switch m.state {
	case stateDone:
		verdict := t.Verdict(m.failed == 0 && m.run != nil && !m.run.Interrupted)
		return verdict + "  " + t.StatusKey("q", "quit")
	case stateCancelling:
		return t.Warn.Render("cancelling, stopping simulator…")
	default:
		return t.StatusKey("o", "toggle output") + " " + t.StatusKey("ctrl+c", "cancel run")
	}
}
