package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/build"
	"github.com/buckleypaul/simmatrix/internal/hdlc"
	"github.com/buckleypaul/simmatrix/internal/logging"
	"github.com/buckleypaul/simmatrix/internal/matrix"
	"github.com/buckleypaul/simmatrix/internal/orchestrator"
	"github.com/buckleypaul/simmatrix/internal/report"
	"github.com/buckleypaul/simmatrix/internal/serial"
	"github.com/buckleypaul/simmatrix/internal/sim"
	"github.com/buckleypaul/simmatrix/internal/store"
	"github.com/buckleypaul/simmatrix/internal/tui"
)

var runFlags struct {
	document     string
	limit        int
	skipDownload bool
	metricsFile  string
	request      string
	tui          bool
	noHistory    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configuration through the simulator pipeline",
	Long: `Run enumerates the configuration document and, for each UART variant,
generates the serial config, builds the simulator, starts it, waits for
its endpoint, sends a framed probe and stops the simulator.

Exit status is 0 when every variant passed, 1 when any failed, 2 for a
configuration error and 130 when interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMatrix,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.document, "document", "", "configuration document (JSON or YAML)")
	f.IntVar(&runFlags.limit, "limit", 0, "run only the first N configurations")
	f.BoolVar(&runFlags.skipDownload, "skip-download", false, "skip the simulator core download step")
	f.StringVar(&runFlags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the run ends")
	f.StringVar(&runFlags.request, "request", "", "probe request: command name or hex bytes (default GET_ENDPOINT_ID)")
	f.BoolVar(&runFlags.tui, "tui", false, "show a live full-screen view")
	f.BoolVar(&runFlags.noHistory, "no-history", false, "do not record the run under .simmatrix/")
}

func runMatrix(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(true)
	if err != nil {
		return err
	}
	cfg := e.cfg
	root := e.project.Root

	if cmd.Flags().Changed("document") {
		cfg.Document = runFlags.document
	}
	if cmd.Flags().Changed("limit") {
		cfg.Limit = runFlags.limit
	}
	if runFlags.skipDownload {
		cfg.SkipDownload = true
	}

	for _, problem := range e.project.CheckHealth(cfg.Make, cfg.Document).Problems() {
		e.logger.Warn("project check", "problem", problem)
	}

	docPath := e.resolve(cfg.Document)
	doc, err := matrix.Load(docPath)
	if err != nil {
		return &exitError{code: report.ExitConfigError, err: err}
	}
	variants := matrix.Enumerate(doc)
	if len(variants) == 0 {
		return &exitError{
			code: report.ExitConfigError,
			err:  &matrix.ConfigError{Path: docPath, Reason: "no UART entry applies to any device"},
		}
	}

	frame := hdlc.MustEncode(hdlc.ProbeRequest())
	if runFlags.request != "" {
		req, err := hdlc.ParseRequest(runFlags.request)
		if err != nil {
			return &exitError{code: report.ExitConfigError, err: err}
		}
		if frame, err = hdlc.Encode(req); err != nil {
			return &exitError{code: report.ExitConfigError, err: err}
		}
	}

	st := store.New(e.project.StatePath())
	runID := store.NewRunID()
	logDir := ""
	if !runFlags.noHistory {
		if logDir, err = st.RunLogsDir(runID); err != nil {
			e.logger.Warn("stage logs disabled", "err", err)
			logDir = ""
		}
	}

	logger := e.logger
	if runFlags.tui {
		// stderr belongs to the full-screen view; send logs next to the stage logs.
		logger = logging.Discard()
		if logDir != "" {
			if f, err := os.Create(filepath.Join(logDir, "simmatrix.log")); err == nil {
				defer f.Close()
				logger = logging.New(logging.Options{Level: cfg.LogLevel, Writer: f, Timestamp: true})
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &build.Runner{Make: cfg.Make, Dir: root, Logger: logger}
	supervisor := &sim.Supervisor{
		Marker:       e.resolve(cfg.Marker),
		PIDFile:      e.resolve(cfg.PIDFile),
		LogPath:      e.resolve(cfg.SimLog),
		PollInterval: cfg.PollInterval.Duration,
		StopGrace:    cfg.StopGrace.Duration,
		Logger:       logger,
	}
	prober := serial.NewProber()
	prober.BaudRate = cfg.BaudRate
	prober.OpenRetry = cfg.OpenRetryWindow.Duration
	prober.Settle = cfg.ProbeSettle.Duration
	prober.Window = cfg.ProbeWindow.Duration
	prober.IdleTimeout = cfg.ProbeIdle.Duration
	prober.Logger = logger

	orch := &orchestrator.Orchestrator{
		Builder:    runner,
		Supervisor: supervisor,
		Prober:     prober,
		Logger:     logger,
		Frame:      frame,
		Options: orchestrator.Options{
			CodegenTarget:   cfg.CodegenTarget,
			CodegenArtifact: cfg.CodegenArtifact,
			SimTarget:       cfg.SimTarget,
			SimArtifact:     cfg.SimArtifact,
			DownloadTarget:  cfg.DownloadTarget,
			SkipDownload:    cfg.SkipDownload,
			Simulator:       sim.Spec{Path: e.resolve(cfg.SimBinary), Dir: root},
			SimLog:          supervisor.LogPath,
			BaudRate:        cfg.BaudRate,
			CPUFreq:         cfg.CPUFreq,
			BuildTimeout:    cfg.BuildTimeout.Duration,
			StartTimeout:    cfg.StartTimeout.Duration,
			Limit:           cfg.Limit,
			LogDir:          logDir,
		},
	}

	metrics := report.NewMetrics()
	started := time.Now()
	var (
		agg *report.Aggregator
		run orchestrator.Run
	)
	if runFlags.tui {
		agg, run, err = runWithTUI(ctx, stop, orch, runner, metrics, variants, logDir)
		if err != nil {
			return err
		}
	} else {
		agg, run = runPlain(ctx, orch, metrics, variants, os.Stdout)
	}

	if runFlags.metricsFile != "" {
		if err := metrics.WriteTextfile(runFlags.metricsFile); err != nil {
			e.logger.Error("write metrics", "path", runFlags.metricsFile, "err", err)
		}
	}
	if !runFlags.noHistory {
		rec := report.HistoryRecord(runID, docPath, logDir, started, run)
		if err := st.AddRun(rec); err != nil {
			e.logger.Error("record run history", "err", err)
		}
	}

	if code := agg.ExitCode(); code != report.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// runPlain streams progress lines and the summary to w as the run goes.
func runPlain(ctx context.Context, orch *orchestrator.Orchestrator, metrics *report.Metrics,
	variants []matrix.Variant, w io.Writer) (*report.Aggregator, orchestrator.Run) {
	agg := report.NewAggregator(w)
	orch.Observer = orchestrator.Multi(agg, metrics)
	return agg, orch.Run(ctx, variants)
}

// runWithTUI drives the run from a goroutine while the full-screen view
// owns the terminal. Progress lines go to progress.log in the run's log
// directory; the summary is printed to stdout afterwards.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, runner *build.Runner,
	metrics *report.Metrics, variants []matrix.Variant, logDir string) (*report.Aggregator, orchestrator.Run, error) {
	progressOut, closeProgress := progressWriter(logDir)
	defer closeProgress()
	agg := report.NewAggregator(progressOut)

	prog := tea.NewProgram(tui.New(cancel), tea.WithAltScreen())
	obs := tui.NewObserver(prog)
	orch.Observer = orchestrator.Multi(agg, metrics, obs)
	runner.OnLine = obs.OutputLine

	done := make(chan orchestrator.Run, 1)
	go func() {
		run := orch.Run(ctx, variants)
		done <- run
		// A signal ends the view with the run; a finished run waits for q.
		if ctx.Err() != nil {
			prog.Quit()
		}
	}()

	_, err := prog.Run()
	if err != nil {
		// The run must still wind down so its simulator is stopped.
		cancel()
	}
	run := <-done
	// The summary already went to progress.log with the run; repeat it
	// where the operator can see it.
	agg.SetOutput(os.Stdout)
	agg.PrintSummary()
	if err != nil {
		return agg, run, fmt.Errorf("tui: %w", err)
	}
	return agg, run, nil
}

func progressWriter(logDir string) (io.Writer, func()) {
	if logDir != "" {
		if f, err := os.Create(filepath.Join(logDir, "progress.log")); err == nil {
			return f, func() { f.Close() }
		}
	}
	return io.Discard, func() {}
}
