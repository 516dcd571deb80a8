package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/peer"
)

var peerFlags struct {
	marker string
	mode   string
	eid    uint8
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a stand-in simulator on a pseudo-terminal",
	Long: `Peer allocates a pseudo-terminal, writes its path to the readiness
marker and serves it until interrupted. In echo mode every byte is sent
back; in respond mode framed control requests get decoded answers.

Point sim_binary at a script running "simmatrix peer" to exercise the
matrix without the real simulator.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(false)
		if err != nil {
			return err
		}
		mode, err := peer.ParseMode(peerFlags.mode)
		if err != nil {
			return err
		}
		marker := peerFlags.marker
		if marker == "" {
			marker = e.resolve(e.cfg.Marker)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return peer.Serve(ctx, peer.Options{
			Marker: marker,
			Mode:   mode,
			EID:    peerFlags.eid,
			Logger: e.logger,
		})
	},
}

func init() {
	f := peerCmd.Flags()
	f.StringVar(&peerFlags.marker, "marker", "", "readiness marker path (default from config)")
	f.StringVar(&peerFlags.mode, "mode", string(peer.ModeEcho), "echo or respond")
	f.Uint8Var(&peerFlags.eid, "eid", 0x08, "endpoint id reported in respond mode")
}
