package diff

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/docsync/internal/ir"
)

// OpsTotal counts executed edit-script ops by type. Emitted once per
// successful Execute.
var OpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docsync",
	Subsystem: "diff",
	Name:      "ops_total",
	Help:      "Edit-script operations applied, by op type.",
}, []string{"op_type"})

// RemoteCalls counts remote block-tree calls issued by the executor.
var RemoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docsync",
	Subsystem: "diff",
	Name:      "remote_calls_total",
	Help:      "Remote block API calls issued by the diff executor, by method.",
}, []string{"method"})

// Remote call method labels.
const (
	methodUpdate = "update"
	methodDelete = "delete"
	methodAppend = "append_children"
)

// RegisterMetrics registers the diff collectors with reg.
// Registering twice with the same registerer is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{OpsTotal, RemoteCalls} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func emitOpMetrics(ops []ir.DiffOp) {
	for opType, n := range ir.CountOps(ops) {
		OpsTotal.WithLabelValues(string(opType)).Add(float64(n))
	}
}
