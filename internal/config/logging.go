package config

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// SetupLogging configures the global slog logger based on opts
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(opts LogOptions) (*os.File, error) {
	writers := []io.Writer{os.Stderr}
	var logFile *os.File

	// Add file writer if specified
	if opts.Log != "" {
		f, err := os.OpenFile(opts.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	slog.SetDefault(slog.New(newHandler(output, opts, term.IsTerminal(int(os.Stderr.Fd())))))

	return logFile, nil
}

// newHandler picks the handler for the requested format. In auto mode
// terminals get text and everything else gets JSON.
func newHandler(w io.Writer, opts LogOptions, isTerminal bool) slog.Handler {
	handlerOpts := &slog.HandlerOptions{
		Level: parseLogLevel(opts.LogLevel),
	}
	if handlerOpts.Level == slog.LevelDebug {
		handlerOpts.AddSource = true
	}

	switch resolveFormat(opts.LogFormat, isTerminal) {
	case "json":
		return slog.NewJSONHandler(w, handlerOpts)
	default:
		return slog.NewTextHandler(w, handlerOpts)
	}
}

func resolveFormat(format string, isTerminal bool) string {
	if format == "auto" || format == "" {
		if isTerminal {
			return "text"
		}
		return "json"
	}
	return format
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
