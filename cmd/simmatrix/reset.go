package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/serial"
)

var resetFlags struct {
	mode  string
	baud  int
	width time.Duration
}

var resetCmd = &cobra.Command{
	Use:   "reset <port>",
	Short: "Reset a board attached to a serial port",
	Long: `Reset a board before probing it.

  --mode touch  open the port at 1200 baud and close it again, the
                bootloader convention of many USB boards
  --mode dtr    hold DTR low for --width, then release it`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(false)
		if err != nil {
			return err
		}
		port := args[0]
		switch resetFlags.mode {
		case "touch":
			err = serial.TouchReset(port)
		case "dtr":
			err = serial.PulseDTR(port, pick(resetFlags.baud, e.cfg.BaudRate), resetFlags.width)
		default:
			return fmt.Errorf("unknown reset mode %q (want touch or dtr)", resetFlags.mode)
		}
		if err != nil {
			return fmt.Errorf("reset %s: %w", port, err)
		}
		e.logger.Info("reset done", "port", port, "mode", resetFlags.mode)
		return nil
	},
}

func init() {
	f := resetCmd.Flags()
	f.StringVar(&resetFlags.mode, "mode", "dtr", "reset method: touch or dtr")
	f.IntVarP(&resetFlags.baud, "baud", "b", 0, "baud rate for the dtr pulse (default from config)")
	f.DurationVar(&resetFlags.width, "width", 100*time.Millisecond, "how long DTR is held low")
}
