package output

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tkjaer/tcpping/internal/shared"
)

// jsonRecord is the line format written for every probe
type jsonRecord struct {
	RunID      string    `json:"run_id"`
	Worker     int       `json:"worker"`
	Seq        uint      `json:"seq"`
	Target     string    `json:"target"`
	Timestamp  time.Time `json:"timestamp"`
	Persistent bool      `json:"persistent"`
	Success    bool      `json:"success"`
	Bytes      int       `json:"bytes"`
	RTT        int64     `json:"rtt_us"`                  // RTT in microseconds (0 on failure)
	KernelRTT  int64     `json:"kernel_rtt_us,omitempty"` // Kernel smoothed RTT in microseconds
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
}

// JSONOutput writes one JSON object per probe to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
	runID    string
	failed   bool // a write error has already been logged
}

func NewJSONOutput(filename, runID string) (*JSONOutput, error) {
	if filename == "" {
		// Output to stdout
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
			runID:    runID,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file:  f,
		enc:   json.NewEncoder(f),
		runID: runID,
	}, nil
}

func (j *JSONOutput) Report(res shared.Result) {
	rec := jsonRecord{
		RunID:      j.runID,
		Worker:     res.Worker,
		Seq:        res.Seq,
		Target:     res.Target,
		Timestamp:  res.Timestamp,
		Persistent: res.Persistent,
		Success:    res.Ok(),
		Bytes:      res.Bytes,
		RTT:        res.RTT.Microseconds(),
		KernelRTT:  res.KernelRTT.Microseconds(),
		Error:      res.ErrorString(),
		ErrorKind:  string(res.ErrorKind),
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(rec); err != nil && !j.failed {
		j.failed = true
		slog.Warn("Failed to write JSON output", "file", j.file.Name(), "error", err)
	}
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
