package output

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tkjaer/tcpping/internal/shared"
)

func TestLogOutput_Report(t *testing.T) {
	tests := []struct {
		name     string
		result   shared.Result
		want     []string
		dontWant []string
	}{
		{
			name: "success",
			result: shared.Result{
				Worker: 0, Target: "127.0.0.1:9001", RTT: 250 * time.Microsecond, Bytes: 64,
			},
			want:     []string{"level=INFO", "msg=Reply", "worker=0", "target=127.0.0.1:9001", "bytes=64", "rtt=250µs"},
			dontWant: []string{"kernel_rtt"},
		},
		{
			name: "success with kernel rtt",
			result: shared.Result{
				Worker: 1, Target: "127.0.0.1:9001", RTT: time.Millisecond, KernelRTT: 800 * time.Microsecond, Bytes: 1024,
			},
			want: []string{"msg=Reply", "bytes=1024", "kernel_rtt=800µs"},
		},
		{
			name: "failure",
			result: shared.Result{
				Worker: 2, Target: "127.0.0.1:9001", Err: errors.New("operation timed out"), ErrorKind: shared.KindTimeout,
			},
			want:     []string{"level=WARN", `msg="Probe failed"`, "worker=2", `error="operation timed out"`},
			dontWant: []string{"bytes="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			out := NewLogOutput(slog.New(slog.NewTextHandler(&buf, nil)))
			out.Report(tt.result)

			line := buf.String()
			if strings.Count(line, "\n") != 1 {
				t.Errorf("Report() wrote %q, want exactly one line", line)
			}
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("Report() line %q missing %q", line, w)
				}
			}
			for _, w := range tt.dontWant {
				if strings.Contains(line, w) {
					t.Errorf("Report() line %q should not contain %q", line, w)
				}
			}
		})
	}
}

func TestNewLogOutput_DefaultLogger(t *testing.T) {
	out := NewLogOutput(nil)
	if out.logger == nil {
		t.Error("NewLogOutput(nil) should fall back to slog.Default()")
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
