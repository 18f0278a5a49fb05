package notion

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestsTotal counts HTTP attempts by method and status ("error" for
// network failures).
var RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docsync",
	Subsystem: "notion",
	Name:      "requests_total",
	Help:      "HTTP attempts against the remote API, by method and status.",
}, []string{"method", "status"})

// RetriesTotal counts scheduled retries by reason.
var RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docsync",
	Subsystem: "notion",
	Name:      "retries_total",
	Help:      "Retries scheduled after failed attempts, by reason.",
}, []string{"reason"})

// RegisterMetrics registers the transport collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{RequestsTotal, RetriesTotal} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
