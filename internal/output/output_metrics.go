package output

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkjaer/tcpping/internal/shared"
)

// MetricsOutput exposes probe outcomes as Prometheus metrics
type MetricsOutput struct {
	probesTotal *prometheus.CounterVec
	lastRTT     *prometheus.GaugeVec
}

// NewMetricsOutput creates the collectors and registers them with reg
func NewMetricsOutput(reg prometheus.Registerer) (*MetricsOutput, error) {
	m := &MetricsOutput{
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcpping_probes_total",
				Help: "Total number of probes by result (success or error kind)",
			},
			[]string{"worker", "target", "result"},
		),
		lastRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tcpping_last_rtt_seconds",
				Help: "Round-trip time of the last successful probe in seconds",
			},
			[]string{"worker", "target"},
		),
	}

	for _, c := range []prometheus.Collector{m.probesTotal, m.lastRTT} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsOutput) Report(res shared.Result) {
	worker := strconv.Itoa(res.Worker)

	result := "success"
	if !res.Ok() {
		result = string(res.ErrorKind)
		if result == "" {
			result = "error"
		}
	}
	m.probesTotal.WithLabelValues(worker, res.Target, result).Inc()

	if res.Ok() {
		m.lastRTT.WithLabelValues(worker, res.Target).Set(res.RTT.Seconds())
	}
}

func (m *MetricsOutput) Close() error {
	return nil
}
