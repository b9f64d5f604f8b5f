package shared

import "time"

// ErrorKind classifies why a probe failed
type ErrorKind string

const (
	KindConnect   ErrorKind = "connect"
	KindTimeout   ErrorKind = "timeout"
	KindWrite     ErrorKind = "write"
	KindRead      ErrorKind = "read"
	KindReconnect ErrorKind = "reconnect"
)

// Result is the outcome of a single probe attempt by one worker.
// A nil Err means the echo completed and RTT/Bytes are valid.
type Result struct {
	Worker     int           // Worker index, only used for correlation
	Seq        uint          // Attempt number within the worker (0, 1, 2, ...)
	Target     string        // host:port the worker probes
	Timestamp  time.Time     // When the attempt started
	Persistent bool          // Whether the worker runs in persistent mode
	RTT        time.Duration // Time from just before the write to the last echoed byte
	KernelRTT  time.Duration // Smoothed RTT reported by the kernel (0 if unavailable)
	Bytes      int           // Bytes echoed back
	Err        error
	ErrorKind  ErrorKind
}

// Ok reports whether the probe succeeded
func (r Result) Ok() bool {
	return r.Err == nil
}

// ErrorString returns the failure description, or "" on success
func (r Result) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
