package device

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes worker-loop counters through the Prometheus client,
// grounded on the metrics surface used elsewhere in the retrieval pack for
// long-running worker goroutines. Callers register it with their own
// prometheus.Registerer (or the default one via MustRegister).
type Metrics struct {
	TxFrames   prometheus.Counter
	RxFrames   prometheus.Counter
	Dropped    *prometheus.CounterVec
	IdleCycles prometheus.Counter
}

// NewMetrics constructs a Metrics with the given namespace prefix, ready to
// be registered with a prometheus.Registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TxFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_transmitted_total",
			Help: "Number of link-layer frames successfully handed to a driver.",
		}),
		RxFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Number of link-layer frames read from a driver.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Number of frames dropped by the worker loop, by reason.",
		}, []string{"reason"}),
		IdleCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "worker_idle_cycles_total",
			Help: "Number of worker iterations that found no work to do.",
		}),
	}
}

// Collectors returns every metric so callers can pass them to
// prometheus.Registerer.MustRegister in one call.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.TxFrames, m.RxFrames, m.Dropped, m.IdleCycles}
}

func (m *Metrics) incTx() { m.TxFrames.Inc() }
func (m *Metrics) incRx() { m.RxFrames.Inc() }
func (m *Metrics) incDropped(reason string) {
	if m.Dropped != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}
func (m *Metrics) incIdle() { m.IdleCycles.Inc() }

// noopMetrics is used by Worker when no Metrics were configured, so the hot
// path never needs a nil check.
var noopMetrics = &Metrics{
	TxFrames:   prometheus.NewCounter(prometheus.CounterOpts{Name: "_noop_tx"}),
	RxFrames:   prometheus.NewCounter(prometheus.CounterOpts{Name: "_noop_rx"}),
	Dropped:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "_noop_drop"}, []string{"reason"}),
	IdleCycles: prometheus.NewCounter(prometheus.CounterOpts{Name: "_noop_idle"}),
}
