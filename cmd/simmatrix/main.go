// Command simmatrix builds the firmware simulator once per UART
// configuration and probes each build over its serial endpoint.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/config"
	"github.com/buckleypaul/simmatrix/internal/logging"
	"github.com/buckleypaul/simmatrix/internal/project"
	"github.com/buckleypaul/simmatrix/internal/report"
)

// exitError carries a specific process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var (
	flagProject  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "simmatrix",
	Short: "Validate firmware UART configurations in a simulator",
	Long: `simmatrix runs every UART configuration listed in the project's
configuration document through the simulator pipeline:

  generate config -> build sim -> start sim -> probe -> stop sim

A configuration passes when the simulated firmware answers a framed
GET_ENDPOINT_ID request on its serial endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "C", "", "project directory (default: detect from the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, probeCmd, portsCmd, resetCmd, peerCmd, historyCmd)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// env is what most commands need: the project, its layered config and a
// logger at the configured level.
type env struct {
	project *project.Project
	cfg     config.Config
	logger  *log.Logger
}

// loadEnv detects the project and loads its config. A project is required
// only when requireProject is set; other commands fall back to defaults.
func loadEnv(requireProject bool) (*env, error) {
	start := flagProject
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = wd
	}

	p := project.Detect(start)
	if p == nil && requireProject {
		return nil, &exitError{
			code: report.ExitConfigError,
			err:  fmt.Errorf("no project found from %s (need .simmatrix/ or a Makefile next to %s)", start, project.DocumentName),
		}
	}

	var root string
	if p != nil {
		root = p.Root
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, &exitError{code: report.ExitConfigError, err: fmt.Errorf("load config: %w", err)}
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	return &env{
		project: p,
		cfg:     cfg,
		logger:  logging.New(logging.Options{Level: cfg.LogLevel, Writer: os.Stderr}),
	}, nil
}

func (e *env) resolve(path string) string {
	if e.project == nil {
		return path
	}
	return config.Resolve(e.project.Root, path)
}
