package operator

import (
	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/reconciler"
)

// StatusKind mirrors the workload status vocabulary of a charm agent.
type StatusKind string

const (
	StatusActive  StatusKind = "active"
	StatusBlocked StatusKind = "blocked"
	StatusWaiting StatusKind = "waiting"
)

// Status is the operator's externally visible condition. Version is only
// populated when the runtime answered a version probe.
type Status struct {
	Kind    StatusKind
	Message string
	Version string
}

// Status returns the condition computed after the last handled event.
func (o *Operator) Status() Status {
	return o.status
}

// refreshStatus recomputes the published status. Precedence: a blocked
// reconciliation beats everything, then a missing containerd process, then
// active with the probed version.
func (o *Operator) refreshStatus() {
	if state, msg := o.rec.Status(); state == reconciler.StateBlocked {
		o.status = Status{Kind: StatusBlocked, Message: msg}
		return
	}

	if !o.runningProbe() {
		o.status = Status{Kind: StatusWaiting, Message: "Waiting for containerd to start"}
		return
	}

	status := Status{Kind: StatusActive, Message: "Container runtime available"}
	version, err := hostfacts.ContainerdVersion(o.runner)
	if err != nil {
		o.log.Warn().Err(err).Msg("Could not determine containerd version")
	} else {
		status.Version = version
	}
	o.status = status
}
