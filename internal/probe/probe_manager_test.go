package probe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tkjaer/tcpping/internal/config"
	"github.com/tkjaer/tcpping/internal/shared"
)

// collectingOutput records every result; onReport, if set, is called for each
type collectingOutput struct {
	mu       sync.Mutex
	results  []shared.Result
	onReport func(shared.Result)
	closed   bool
}

func (c *collectingOutput) Report(res shared.Result) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
	if c.onReport != nil {
		c.onReport(res)
	}
}

func (c *collectingOutput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *collectingOutput) byWorker() map[int][]shared.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[int][]shared.Result)
	for _, res := range c.results {
		m[res.Worker] = append(m[res.Worker], res)
	}
	return m
}

func newTestManager(t *testing.T, a config.Args, reg prometheus.Registerer, interval time.Duration) (*ProbeManager, *collectingOutput) {
	t.Helper()
	pm, err := NewProbeManager(a, reg)
	if err != nil {
		t.Fatalf("NewProbeManager() error = %v", err)
	}
	pm.interval = interval
	pm.timeout = time.Second
	out := &collectingOutput{}
	pm.outputs.Register(out)
	return pm, out
}

func TestNewProbeManager_Config(t *testing.T) {
	pm, err := NewProbeManager(config.Args{
		Host: "127.0.0.1", Port: 9001, Size: 64, Threads: 3, Count: 5, KeepAlive: true,
	}, nil)
	if err != nil {
		t.Fatalf("NewProbeManager() error = %v", err)
	}

	want := Config{Host: "127.0.0.1", Port: 9001, PacketSize: 64, Workers: 3, Count: 5, Persistent: true}
	if pm.config != want {
		t.Errorf("config = %+v, want %+v", pm.config, want)
	}
	if pm.interval != InterProbeDelay || pm.timeout != ProbeTimeout {
		t.Errorf("interval/timeout = %v/%v, want %v/%v", pm.interval, pm.timeout, InterProbeDelay, ProbeTimeout)
	}
	if pm.RunID() == "" {
		t.Error("RunID() should not be empty")
	}
}

func TestNewProbeManager_BadJSONFile(t *testing.T) {
	_, err := NewProbeManager(config.Args{
		Host: "127.0.0.1", Port: 9001, Size: 64, Threads: 1,
		JsonFile: filepath.Join(t.TempDir(), "missing", "out.json"),
	}, nil)
	if err == nil {
		t.Error("NewProbeManager() with an unwritable JSON file should error")
	}
}

func TestNewProbeManager_DefaultRunFunc(t *testing.T) {
	pm, err := NewProbeManager(config.Args{
		Host: "bad host!", Port: 9001, Size: 8, Threads: 1, Count: 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewProbeManager() error = %v", err)
	}

	results := make(chan shared.Result, 1)
	w := newWorker(0, &pm.config, results)
	if err := pm.runFunc(context.Background(), w); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("runFunc() error = %v, want %v", err, ErrInvalidTarget)
	}
	if len(results) != 0 {
		t.Errorf("runFunc() reported %d results for an invalid target, want 0", len(results))
	}
}

func TestProbeManager_Run_NonPersistent(t *testing.T) {
	srv := startEcho(t, false)
	pm, out := newTestManager(t, config.Args{
		Host: srv.host, Port: uint(srv.port), Size: 64, Threads: 3, Count: 5,
	}, nil, 10*time.Millisecond)

	if err := pm.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(out.results) != 15 {
		t.Fatalf("results = %d, want 15 (3 workers x 5)", len(out.results))
	}
	for _, res := range out.results {
		if !res.Ok() || res.Bytes != 64 {
			t.Errorf("worker %d seq %d = %v bytes=%d, want success with 64 bytes", res.Worker, res.Seq, res.Err, res.Bytes)
		}
	}

	byWorker := out.byWorker()
	for id := 0; id < 3; id++ {
		results := byWorker[id]
		if len(results) != 5 {
			t.Errorf("worker %d results = %d, want 5", id, len(results))
			continue
		}
		for i, res := range results {
			if res.Seq != uint(i) {
				t.Errorf("worker %d result %d seq = %d, want %d", id, i, res.Seq, i)
			}
		}
	}
	if !out.closed {
		t.Error("outputs should be closed when Run returns")
	}
}

func TestProbeManager_Run_PersistentServerKilled(t *testing.T) {
	srv := startEcho(t, false)
	pm, out := newTestManager(t, config.Args{
		Host: srv.host, Port: uint(srv.port), Size: 64, Threads: 3, Count: 5, KeepAlive: true,
	}, nil, 300*time.Millisecond)

	// Kill the responder once every worker has completed its 2nd probe
	var once sync.Once
	var mu sync.Mutex
	second := make(map[int]bool)
	out.onReport = func(res shared.Result) {
		if res.Seq != 1 {
			return
		}
		mu.Lock()
		second[res.Worker] = true
		all := len(second) == 3
		mu.Unlock()
		if all {
			once.Do(func() { srv.server.Close() })
		}
	}

	if err := pm.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byWorker := out.byWorker()
	for id := 0; id < 3; id++ {
		results := byWorker[id]
		if len(results) != 5 {
			t.Errorf("worker %d results = %d, want 5", id, len(results))
			continue
		}
		for i, res := range results {
			wantOk := i < 2
			if res.Ok() != wantOk {
				t.Errorf("worker %d probe %d ok = %v, want %v (err: %v)", id, i, res.Ok(), wantOk, res.Err)
			}
		}
	}
}

func TestProbeManager_Run_IsolatesPanics(t *testing.T) {
	srv := startEcho(t, false)
	pm, out := newTestManager(t, config.Args{
		Host: srv.host, Port: uint(srv.port), Size: 8, Threads: 3, Count: 2,
	}, nil, 10*time.Millisecond)
	pm.runFunc = func(ctx context.Context, w *Worker) error {
		if w.id == 1 {
			panic("worker exploded")
		}
		return w.Run(ctx)
	}

	if err := pm.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byWorker := out.byWorker()
	if len(byWorker[1]) != 0 {
		t.Errorf("panicking worker reported %d results, want 0", len(byWorker[1]))
	}
	for _, id := range []int{0, 2} {
		if len(byWorker[id]) != 2 {
			t.Errorf("worker %d results = %d, want 2", id, len(byWorker[id]))
		}
	}
}

func TestProbeManager_Run_InvalidTarget(t *testing.T) {
	pm, out := newTestManager(t, config.Args{
		Host: "bad host", Port: 8080, Size: 8, Threads: 2, Count: 3,
	}, nil, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- pm.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return for an invalid target")
	}
	if len(out.results) != 0 {
		t.Errorf("results = %d, want 0", len(out.results))
	}
}

func TestProbeManager_Run_Cancel(t *testing.T) {
	srv := startEcho(t, false)
	pm, out := newTestManager(t, config.Args{
		Host: srv.host, Port: uint(srv.port), Size: 8, Threads: 2, Count: 0,
	}, nil, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- pm.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if len(out.results) < 2 {
		t.Errorf("results = %d, want at least one per worker", len(out.results))
	}
}

func TestProbeManager_Run_JSONAndMetrics(t *testing.T) {
	srv := startEcho(t, false)
	filename := filepath.Join(t.TempDir(), "results.json")
	registry := prometheus.NewRegistry()

	pm, _ := newTestManager(t, config.Args{
		Host: srv.host, Port: uint(srv.port), Size: 32, Threads: 2, Count: 3, JsonFile: filename,
	}, registry, 10*time.Millisecond)

	if err := pm.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec struct {
			RunID   string `json:"run_id"`
			Success bool   `json:"success"`
			Bytes   int    `json:"bytes"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		if rec.RunID != pm.RunID() {
			t.Errorf("run_id = %s, want %s", rec.RunID, pm.RunID())
		}
		if !rec.Success || rec.Bytes != 32 {
			t.Errorf("record success/bytes = %v/%d, want true/32", rec.Success, rec.Bytes)
		}
		lines++
	}
	if lines != 6 {
		t.Errorf("JSON lines = %d, want 6", lines)
	}

	got, err := testutil.GatherAndCount(registry, "tcpping_probes_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if got != 2 {
		t.Errorf("tcpping_probes_total series = %d, want 2 (one per worker)", got)
	}
}
