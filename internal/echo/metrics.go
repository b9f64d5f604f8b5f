package echo

import "github.com/prometheus/client_golang/prometheus"

type serverMetrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	bytesEchoed       prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcpping_server_connections_total",
			Help: "Total number of accepted connections",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcpping_server_active_connections",
			Help: "Number of connections currently being echoed",
		}),
		bytesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcpping_server_bytes_echoed_total",
			Help: "Total number of bytes written back to clients",
		}),
	}
	for _, c := range []prometheus.Collector{m.connectionsTotal, m.activeConnections, m.bytesEchoed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The methods below are no-ops on a nil receiver so the server can run
// without metrics.

func (m *serverMetrics) connOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

func (m *serverMetrics) connClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *serverMetrics) echoed(n int) {
	if m == nil {
		return
	}
	m.bytesEchoed.Add(float64(n))
}
