// Package metrics exposes the operator's Prometheus instrumentation,
// registered on the default registerer and served from the run command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "containerd_operator_reconciliations_total",
		Help: "Reconciliation passes by result.",
	}, []string{"result"})

	TLSMaterialWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "containerd_operator_tls_material_written_total",
		Help: "TLS material files written to the config directory.",
	})

	TLSMaterialRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "containerd_operator_tls_material_removed_total",
		Help: "Stale TLS material files removed from the config directory.",
	})

	RestartsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "containerd_operator_restarts_requested_total",
		Help: "Times a containerd service restart was requested.",
	})
)

// Result labels for Reconciliations.
const (
	ResultSuccess = "success"
	ResultBlocked = "blocked"
	ResultError   = "error"
)
