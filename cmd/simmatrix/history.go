package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/store"
	"github.com/buckleypaul/simmatrix/internal/ui"
)

var historyFlags struct {
	limit  int
	probes bool
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs, or the variants of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(true)
		if err != nil {
			return err
		}
		st := store.New(e.project.StatePath())
		theme := ui.NewTheme(os.Stdout)

		if historyFlags.probes {
			return printProbes(st, theme)
		}
		if len(args) == 1 {
			rec, found, err := st.Run(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no run matching %q", args[0])
			}
			printRun(rec, theme)
			return nil
		}

		runs, err := st.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		if historyFlags.limit > 0 && len(runs) > historyFlags.limit {
			runs = runs[len(runs)-historyFlags.limit:]
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tPASSED\tFAILED\tRESULT")
		for i := len(runs) - 1; i >= 0; i-- {
			r := runs[i]
			result := theme.ResultBadge(r.Success())
			if r.Interrupted {
				result = theme.Warn.Render("INTERRUPTED")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				shortID(r.ID), r.Timestamp.Format("2006-01-02 15:04:05"), r.Duration,
				r.Passed, r.Planned, r.Failed, result)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "show at most N runs (0 = all)")
	historyCmd.Flags().BoolVar(&historyFlags.probes, "probes", false, "show recorded probes instead of runs")
}

func printRun(r store.RunRecord, theme ui.Theme) {
	fmt.Printf("Run %s  %s  %s\n", r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Document)
	if r.LogDir != "" {
		fmt.Printf("Logs: %s\n", r.LogDir)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMCU\tUART\tPIN\tRESULT\tFAILED STAGES\tDURATION")
	for _, v := range r.Variants {
		failed := "-"
		if len(v.FailedStages) > 0 {
			failed = fmt.Sprint(v.FailedStages)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Index+1, v.Device, v.Peripheral, orDash(v.Pin), theme.ResultBadge(v.Success), failed, v.Duration)
	}
	tw.Flush()
}

func printProbes(st *store.Store, theme ui.Theme) error {
	probes, err := st.Probes()
	if err != nil {
		return err
	}
	if len(probes) == 0 {
		fmt.Println("No probes recorded")
		return nil
	}
	for i := len(probes) - 1; i >= 0; i-- {
		p := probes[i]
		fmt.Printf("%s %s @%d %s\n", p.Timestamp.Format("2006-01-02 15:04:05"), p.Endpoint, p.BaudRate, theme.ResultBadge(p.Success))
		fmt.Printf("  -> %s\n  <- %s\n", p.Request, orDash(p.Response))
		if p.Error != "" {
			fmt.Printf("  %s\n", theme.Fail.Render(p.Error))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// orDash renders empty fields as a dash.
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
