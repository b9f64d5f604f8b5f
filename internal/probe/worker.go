package probe

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tkjaer/tcpping/internal/shared"
)

// Worker owns one measurement stream against the target. Probes within a
// worker never overlap.
type Worker struct {
	id       int
	config   *Config
	results  chan<- shared.Result
	interval time.Duration
	timeout  time.Duration

	target    string
	connector *connector
	payload   []byte
	buf       []byte

	// Persistent mode only. nil means no connection is active; the worker
	// replaces it after any I/O error and never shares it.
	conn *net.TCPConn
}

func newWorker(id int, config *Config, results chan<- shared.Result) *Worker {
	return &Worker{
		id:       id,
		config:   config,
		results:  results,
		interval: InterProbeDelay,
		timeout:  ProbeTimeout,
	}
}

// Run probes until the configured count is reached or ctx is cancelled.
// Cancellation is only observed between probes. The only error returned
// is an invalid target, detected before the first probe.
func (w *Worker) Run(ctx context.Context) error {
	target, err := w.config.target()
	if err != nil {
		return err
	}
	w.target = target
	host, _, _ := net.SplitHostPort(target)
	w.connector = newConnector(host, w.config.Port)
	w.payload = bytes.Repeat([]byte{1}, w.config.PacketSize)
	w.buf = make([]byte, w.config.PacketSize)

	// In-flight probes are never interrupted, only their own deadline applies
	probeCtx := context.WithoutCancel(ctx)

	defer w.closeConn()
	if w.config.Persistent {
		if err := w.establish(probeCtx); err != nil {
			slog.Warn("Initial connection failed", "worker", w.id, "target", w.target, "error", err)
		}
	}

	slog.Debug("Worker started", "worker", w.id, "target", w.target, "persistent", w.config.Persistent)

	for n := uint(0); w.config.Count == 0 || n < w.config.Count; n++ {
		if n > 0 {
			timer := time.NewTimer(w.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Debug("Worker received stop signal", "worker", w.id)
				return nil
			case <-timer.C:
			}
		}

		if w.config.Persistent {
			w.probePersistent(probeCtx, n)
		} else {
			w.results <- w.probeOnce(probeCtx, n)
		}
	}

	slog.Debug("Worker finished all probes", "worker", w.id)
	return nil
}

// probeOnce opens a fresh connection, exchanges one payload and closes it,
// all under a single deadline.
func (w *Worker) probeOnce(ctx context.Context, n uint) shared.Result {
	res := w.newResult(n)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conn, err := w.connector.connect(ctx)
	if err != nil {
		return w.fail(res, err)
	}
	defer conn.Close()

	rtt, err := exchange(ctx, conn, w.payload, w.buf)
	if err != nil {
		return w.fail(res, err)
	}
	return w.succeed(res, conn, rtt)
}

// probePersistent reuses the worker's connection. A missing connection is
// re-established first; a failed exchange drops the connection and is
// followed by exactly one immediate reconnect attempt.
func (w *Worker) probePersistent(ctx context.Context, n uint) {
	res := w.newResult(n)

	if w.conn == nil {
		if err := w.establish(ctx); err != nil {
			w.results <- w.fail(res, &ProbeError{Kind: shared.KindReconnect, Err: err})
			return
		}
	}

	exCtx, cancel := context.WithTimeout(ctx, w.timeout)
	rtt, err := exchange(exCtx, w.conn, w.payload, w.buf)
	cancel()
	if err == nil {
		w.results <- w.succeed(res, w.conn, rtt)
		return
	}

	w.results <- w.fail(res, err)
	w.closeConn()

	slog.Warn("Attempting to reconnect", "worker", w.id, "target", w.target)
	if err := w.establish(ctx); err != nil {
		slog.Warn("Reconnection failed", "worker", w.id, "target", w.target, "error", err)
	}
}

// establish connects under its own deadline and stores the connection
func (w *Worker) establish(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conn, err := w.connector.connect(ctx)
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

func (w *Worker) newResult(n uint) shared.Result {
	return shared.Result{
		Worker:     w.id,
		Seq:        n,
		Target:     w.target,
		Timestamp:  time.Now(),
		Persistent: w.config.Persistent,
	}
}

func (w *Worker) succeed(res shared.Result, conn *net.TCPConn, rtt time.Duration) shared.Result {
	res.RTT = rtt
	res.Bytes = len(w.buf)
	if krtt, ok := kernelRTT(conn); ok {
		res.KernelRTT = krtt
	}
	return res
}

func (w *Worker) fail(res shared.Result, err error) shared.Result {
	res.Err = err
	res.ErrorKind = errorKind(err)
	return res
}
