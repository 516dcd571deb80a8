// Package peer provides a stand-in simulator: a pseudo-terminal whose
// slave path is advertised through a marker file and which either echoes
// traffic or answers control requests.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/buckleypaul/simmatrix/internal/logging"
)

// Mode selects how the peer reacts to incoming bytes.
type Mode string

const (
	ModeEcho    Mode = "echo"
	ModeRespond Mode = "respond"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEcho, ModeRespond:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown peer mode %q (want echo or respond)", s)
	}
}

// Options configures Serve.
type Options struct {
	Marker string
	Mode   Mode
	EID    byte
	Logger *log.Logger
}

// Serve opens a pseudo-terminal, writes the slave path to the marker and
// serves traffic until ctx is cancelled.
func Serve(ctx context.Context, opts Options) error {
	logger := logging.OrDiscard(opts.Logger)

	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("open pty: %w", err)
	}
	defer tty.Close()
	defer ptmx.Close()

	// Without raw mode the line discipline echoes and rewrites bytes.
	if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
		return fmt.Errorf("raw mode on %s: %w", tty.Name(), err)
	}

	if err := writeMarker(opts.Marker, tty.Name()); err != nil {
		return err
	}
	logger.Info("peer listening", "endpoint", tty.Name(), "mode", opts.Mode)

	go func() {
		<-ctx.Done()
		ptmx.Close()
	}()

	var h handler
	switch opts.Mode {
	case ModeRespond:
		h = newResponder(opts.EID, logger)
	default:
		h = echo{}
	}

	buf := make([]byte, 1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			if out := h.handle(buf[:n]); len(out) > 0 {
				if _, werr := ptmx.Write(out); werr != nil && ctx.Err() == nil {
					return fmt.Errorf("write pty: %w", werr)
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read pty: %w", err)
		}
	}
}

func writeMarker(path, endpoint string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(endpoint+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
