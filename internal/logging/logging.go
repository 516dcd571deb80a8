// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	EnvLevel     = "SIMMATRIX_LOG_LEVEL"
	EnvTimestamp = "SIMMATRIX_LOG_TIMESTAMP"

	DefaultLevel = "warn"
)

// Options configures New. Environment variables override Level and
// Timestamp when set.
type Options struct {
	Level     string
	Timestamp bool
	Prefix    string
	Writer    io.Writer
}

// New returns a logger writing to opts.Writer, or stderr when nil.
func New(opts Options) *log.Logger {
	if v := os.Getenv(EnvLevel); v != "" {
		opts.Level = v
	}
	if v, ok := parseBool(os.Getenv(EnvTimestamp)); ok {
		opts.Timestamp = v
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		ReportTimestamp: opts.Timestamp,
		TimeFormat:      time.TimeOnly,
		Prefix:          opts.Prefix,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard substitutes Discard for a nil logger.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel maps a level name to a log level. Unknown names give warn.
func ParseLevel(raw string) log.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning", "":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal", "off", "none", "quiet":
		return log.FatalLevel
	default:
		return log.WarnLevel
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
