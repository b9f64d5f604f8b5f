package output

import (
	"log/slog"

	"github.com/tkjaer/tcpping/internal/shared"
)

// LogOutput writes one log line per probe outcome
type LogOutput struct {
	logger *slog.Logger
}

func NewLogOutput(logger *slog.Logger) *LogOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOutput{logger: logger}
}

func (l *LogOutput) Report(res shared.Result) {
	if !res.Ok() {
		l.logger.Warn("Probe failed",
			"worker", res.Worker,
			"seq", res.Seq,
			"target", res.Target,
			"error", res.ErrorString(),
		)
		return
	}

	attrs := []any{
		"worker", res.Worker,
		"seq", res.Seq,
		"target", res.Target,
		"bytes", res.Bytes,
		"rtt", res.RTT,
	}
	if res.KernelRTT > 0 {
		attrs = append(attrs, "kernel_rtt", res.KernelRTT)
	}
	l.logger.Info("Reply", attrs...)
}

func (l *LogOutput) Close() error {
	return nil
}
