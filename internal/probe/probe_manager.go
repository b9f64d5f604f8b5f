package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/tkjaer/tcpping/internal/config"
	"github.com/tkjaer/tcpping/internal/output"
	"github.com/tkjaer/tcpping/internal/shared"
)

type outputConfig struct {
	jsonOutput bool
	jsonFile   string
	registry   prometheus.Registerer
}

// ProbeManager launches the configured number of workers and waits for all
// of them. Workers share nothing but the read-only Config.
type ProbeManager struct {
	config       Config
	runID        string
	outputChan   chan shared.Result
	outputs      *output.OutputManager
	outputConfig outputConfig

	interval time.Duration
	timeout  time.Duration
	runFunc  func(ctx context.Context, w *Worker) error
}

// NewProbeManager creates a probe manager from parsed arguments. reg may be
// nil, in which case no metrics are recorded.
func NewProbeManager(a config.Args, reg prometheus.Registerer) (*ProbeManager, error) {
	pm := &ProbeManager{
		config: Config{
			Host:       a.Host,
			Port:       uint16(a.Port),
			PacketSize: int(a.Size),
			Workers:    int(a.Threads),
			Count:      a.Count,
			Persistent: a.KeepAlive,
		},
		runID:      uuid.NewString(),
		outputChan: make(chan shared.Result, 100),
		outputConfig: outputConfig{
			jsonOutput: a.Json,
			jsonFile:   a.JsonFile,
			registry:   reg,
		},
		interval: InterProbeDelay,
		timeout:  ProbeTimeout,
		runFunc: func(ctx context.Context, w *Worker) error {
			return w.Run(ctx)
		},
	}

	om, err := pm.createOutputs()
	if err != nil {
		return nil, err
	}
	pm.outputs = om

	return pm, nil
}

// RunID identifies this invocation in JSON output
func (pm *ProbeManager) RunID() string {
	return pm.runID
}

// createOutputs creates and registers the output handlers
func (pm *ProbeManager) createOutputs() (*output.OutputManager, error) {
	om := &output.OutputManager{}
	om.Register(output.NewLogOutput(slog.Default()))

	if pm.outputConfig.jsonOutput || pm.outputConfig.jsonFile != "" {
		jsonOut, err := output.NewJSONOutput(pm.outputConfig.jsonFile, pm.runID)
		if err != nil {
			return nil, fmt.Errorf("creating JSON output: %w", err)
		}
		om.Register(jsonOut)
	}

	if pm.outputConfig.registry != nil {
		metricsOut, err := output.NewMetricsOutput(pm.outputConfig.registry)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		om.Register(metricsOut)
	}

	return om, nil
}

// Run starts every worker and blocks until all have exited. A worker that
// fails or panics is logged and does not affect its siblings.
func (pm *ProbeManager) Run(ctx context.Context) error {
	var outputWg sync.WaitGroup
	outputWg.Add(1)
	go func() {
		defer outputWg.Done()
		pm.outputRoutine()
	}()

	slog.Debug("Starting workers", "workers", pm.config.Workers, "run_id", pm.runID)

	var wg conc.WaitGroup
	for i := range pm.config.Workers {
		w := newWorker(i, &pm.config, pm.outputChan)
		w.interval = pm.interval
		w.timeout = pm.timeout
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(func() {
				if err := pm.runFunc(ctx, w); err != nil {
					slog.Error("Worker error", "worker", i, "error", err)
				}
			})
			if r := pc.Recovered(); r != nil {
				slog.Error("Worker panicked", "worker", i, "panic", r.Value, "stack", string(r.Stack))
			}
		})
	}
	wg.Wait()
	slog.Debug("All workers finished")

	// Close output channel to signal outputRoutine to exit
	close(pm.outputChan)
	outputWg.Wait()

	return nil
}

// outputRoutine forwards worker results to every registered output
func (pm *ProbeManager) outputRoutine() {
	for res := range pm.outputChan {
		pm.outputs.Report(res)
	}
	if err := pm.outputs.Close(); err != nil {
		slog.Warn("Failed to close outputs", "error", err)
	}
}
