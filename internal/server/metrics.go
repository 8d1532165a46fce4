package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	added     prometheus.Counter
	conflicts prometheus.Counter
	requests  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeturner",
			Name:      "snapshots_added_total",
			Help:      "Snapshots stored through PUT.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeturner",
			Name:      "snapshot_conflicts_total",
			Help:      "PUTs rejected because the snapshot already exists.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeturner",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
	}
	for _, c := range []prometheus.Collector{m.added, m.conflicts, m.requests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
