// Package logging builds the application's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/karloscodes/cartridge"
	"golang.org/x/term"

	"wpinsight/internal/config"
)

// Options tweaks logger construction.
type Options struct {
	// Output redirects logs away from cartridge's stdout logger (CLI one-shots
	// keep stdout for command results). Logs written here never go to a file.
	Output io.Writer
}

// New returns cartridge's environment-aware logger: colored text in development
// and test, JSON to stdout plus a rotating file in production. With
// opts.Output set, logs go there instead, as text on a terminal and JSON otherwise.
func New(cfg *config.Config, opts Options) *slog.Logger {
	if opts.Output == nil {
		return cartridge.NewLogger(cfg, nil)
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if isTerminal(opts.Output) {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}
	return slog.New(handler).With(slog.String("app", cfg.AppName))
}

// ParseLevel maps a configured level to slog, defaulting to info.
func ParseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
