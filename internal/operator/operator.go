// Package operator is the event layer above the reconciler. It consumes
// configuration and relation events from a single channel, persists relation
// records to the unit store, runs reconciliations and restarts the containerd
// service when a pass asks for it. Events are handled strictly one at a time,
// which is what makes a reconciliation a function of settled inputs.
package operator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/internal/reconciler"
	"github.com/container-registry/containerd-operator/internal/registry"
	"github.com/container-registry/containerd-operator/internal/render"
	"github.com/container-registry/containerd-operator/pkg/config"
)

// ServiceName is the systemd unit the operator manages.
const ServiceName = "containerd.service"

// EventKind enumerates the hooks the operator reacts to.
type EventKind int

const (
	EventConfigChanged EventKind = iota
	EventRegistryChanged
	EventRegistryDeparted
	EventEndpointChanged
	EventEndpointDeparted
	EventUntrustedChanged
	EventUntrustedDeparted
	EventUpdateStatus
)

func (k EventKind) String() string {
	switch k {
	case EventConfigChanged:
		return "config-changed"
	case EventRegistryChanged:
		return "registry-changed"
	case EventRegistryDeparted:
		return "registry-departed"
	case EventEndpointChanged:
		return "endpoint-changed"
	case EventEndpointDeparted:
		return "endpoint-departed"
	case EventUntrustedChanged:
		return "untrusted-changed"
	case EventUntrustedDeparted:
		return "untrusted-departed"
	case EventUpdateStatus:
		return "update-status"
	default:
		return "unknown"
	}
}

// Event carries one hook invocation. Only the payload matching the kind is
// set; departed and tick events carry none.
type Event struct {
	Kind      EventKind
	Registry  *registry.Entry
	Endpoint  *reconciler.Endpoint
	Untrusted *render.UntrustedRuntime
}

type Options struct {
	Reconciler *reconciler.Reconciler
	Store      kv.Store
	Manager    *config.Manager
	Runner     hostfacts.Runner
	Log        *zerolog.Logger

	// RunningProbe defaults to the host process scan; injected by tests.
	RunningProbe func() bool
	// QueueSize bounds the event channel; senders block when it is full.
	QueueSize int
}

type Operator struct {
	rec          *reconciler.Reconciler
	store        kv.Store
	cm           *config.Manager
	runner       hostfacts.Runner
	log          *zerolog.Logger
	runningProbe func() bool
	events       chan Event

	status Status
}

func New(opts Options) *Operator {
	probe := opts.RunningProbe
	if probe == nil {
		probe = hostfacts.ContainerdRunning
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 16
	}
	return &Operator{
		rec:          opts.Reconciler,
		store:        opts.Store,
		cm:           opts.Manager,
		runner:       opts.Runner,
		log:          opts.Log,
		runningProbe: probe,
		events:       make(chan Event, size),
		status:       Status{Kind: StatusWaiting, Message: "containerd not reconciled yet"},
	}
}

// Dispatch queues an event for the run loop. Blocks when the queue is full so
// bursty watchers cannot outrun reconciliation.
func (o *Operator) Dispatch(ctx context.Context, ev Event) error {
	select {
	case o.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until the context is cancelled. An initial
// config-changed pass brings the host in line with whatever the process
// found on startup.
func (o *Operator) Run(ctx context.Context) error {
	o.handle(ctx, Event{Kind: EventConfigChanged})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

func (o *Operator) handle(ctx context.Context, ev Event) {
	o.log.Debug().Str("event", ev.Kind.String()).Msg("Handling event")

	switch ev.Kind {
	case EventConfigChanged:
		_, warnings, err := o.cm.Reload()
		if err != nil {
			o.log.Error().Err(err).Msg("Failed to reload config")
			return
		}
		for _, w := range warnings {
			o.log.Warn().Msg(string(w))
		}

	case EventRegistryChanged:
		if err := o.store.Set(kv.KeyRegistry, ev.Registry); err != nil {
			o.log.Error().Err(err).Msg("Failed to persist relation registry")
			return
		}
	case EventRegistryDeparted:
		if err := o.store.Unset(kv.KeyRegistry); err != nil {
			o.log.Error().Err(err).Msg("Failed to remove relation registry")
			return
		}

	case EventEndpointChanged:
		if err := o.store.Set(kv.KeyEndpoint, ev.Endpoint); err != nil {
			o.log.Error().Err(err).Msg("Failed to persist endpoint record")
			return
		}
	case EventEndpointDeparted:
		if err := o.store.Unset(kv.KeyEndpoint); err != nil {
			o.log.Error().Err(err).Msg("Failed to remove endpoint record")
			return
		}

	case EventUntrustedChanged:
		if err := o.store.Set(kv.KeyUntrusted, ev.Untrusted); err != nil {
			o.log.Error().Err(err).Msg("Failed to persist untrusted runtime record")
			return
		}
	case EventUntrustedDeparted:
		if err := o.store.Unset(kv.KeyUntrusted); err != nil {
			o.log.Error().Err(err).Msg("Failed to remove untrusted runtime record")
			return
		}

	case EventUpdateStatus:
		// The tick only checks for proxy drift and refreshes the status; a
		// full reconciliation on every tick would be wasted work.
		if err := o.syncProxy(ctx); err != nil {
			o.log.Error().Err(err).Msg("Proxy sync failed")
		}
		o.restartIfRequested()
		o.refreshStatus()
		return
	}

	o.reconcile(ctx)
}

// reconcile runs a full pass and realizes its side effects: the proxy
// drop-in, the service restart and the published status.
func (o *Operator) reconcile(ctx context.Context) {
	if err := o.rec.Reconcile(ctx); err != nil {
		o.log.Error().Err(err).Msg("Reconciliation failed, will retry on the next event")
		o.refreshStatus()
		return
	}
	if err := o.syncProxy(ctx); err != nil {
		o.log.Error().Err(err).Msg("Proxy sync failed")
	}
	o.restartIfRequested()
	o.refreshStatus()
}

// syncProxy renders or removes the proxy drop-in. A change to a systemd
// drop-in needs a daemon-reload before the restart picks it up.
func (o *Operator) syncProxy(ctx context.Context) error {
	changed, err := o.rec.SyncProxy(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := o.runner.Output("systemctl", "daemon-reload"); err != nil {
		return err
	}
	return nil
}

func (o *Operator) restartIfRequested() {
	if !o.rec.RestartRequested() {
		return
	}
	if _, err := o.runner.Output("systemctl", "restart", ServiceName); err != nil {
		o.log.Error().Err(err).Str("service", ServiceName).Msg("Failed to restart service")
		return
	}
	o.log.Info().Str("service", ServiceName).Msg("Restarted service")
}
