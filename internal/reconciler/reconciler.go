// Package reconciler computes the desired containerd configuration from
// charm config, relation records and probed host facts, and drives the TLS
// material sync and render that realize it. One reconciliation is a single
// synchronous pass; retry with unchanged inputs is the recovery mechanism
// for anything that fails midway.
package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/internal/metrics"
	"github.com/container-registry/containerd-operator/internal/registry"
	"github.com/container-registry/containerd-operator/internal/render"
	"github.com/container-registry/containerd-operator/internal/tlssync"
	"github.com/container-registry/containerd-operator/pkg/config"
)

// Endpoint is the record published by the container-runtime relation: an
// optional sandbox image override plus the remote applications on the other
// side, used to pick the sandbox registry default.
type Endpoint struct {
	SandboxImage string   `json:"sandbox_image,omitempty"`
	RemoteApps   []string `json:"remote_apps,omitempty"`
}

// Options wires the reconciler's collaborators. Everything is injected so a
// pass is a function of its inputs plus the store.
type Options struct {
	FS         afero.Fs
	Store      kv.Store
	Manager    *config.Manager
	Runner     hostfacts.Runner
	Log        *zerolog.Logger
	ConfigDir  string // /etc/containerd
	CertsDir   string // /etc/containerd/certs.d
	ServiceDir string // /etc/systemd/system/containerd.service.d
}

type Reconciler struct {
	fs         afero.Fs
	store      kv.Store
	cm         *config.Manager
	runner     hostfacts.Runner
	log        *zerolog.Logger
	configDir  string
	certsDir   string
	serviceDir string

	state            State
	statusMsg        string
	restartRequested bool
}

func New(opts Options) *Reconciler {
	return &Reconciler{
		fs:         opts.FS,
		store:      opts.Store,
		cm:         opts.Manager,
		runner:     opts.Runner,
		log:        opts.Log,
		configDir:  opts.ConfigDir,
		certsDir:   opts.CertsDir,
		serviceDir: opts.ServiceDir,
	}
}

// Status returns the current state and, when blocked, the reason.
func (r *Reconciler) Status() (State, string) {
	return r.state, r.statusMsg
}

// RestartRequested reports whether a pass asked for a service restart and
// clears the request.
func (r *Reconciler) RestartRequested() bool {
	requested := r.restartRequested
	r.restartRequested = false
	return requested
}

// Reconcile runs one full pass: validate, diff TLS material, merge the
// relation registry, resolve runtime and sandbox image, render, commit the
// config snapshot and request a restart.
//
// Invalid configuration is not an error: it moves the state machine to
// Blocked and leaves all prior on-disk state untouched. Only filesystem and
// store failures return a non-nil error.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.state = StateValidating
	cfg := r.cm.Config()

	gpuActive, err := hostfacts.DetectGPU(r.runner, cfg.GPUDriver)
	if err != nil {
		r.block(err.Error())
		return nil
	}

	if msg := registry.Validate(cfg.CustomRegistries); msg != "" {
		r.block(fmt.Sprintf("Invalid custom_registries: %s", msg))
		return nil
	}
	r.state = StateReconciling

	registries := registry.Normalize(registry.ParseDefault(cfg.CustomRegistries, registry.List{}))

	// Only a changed custom_registries value leaves stale material behind;
	// first run has nothing to clean up.
	var oldList registry.List
	if oldRaw, changed := r.cm.PreviousCustomRegistries(); changed && oldRaw != "" {
		oldList = registry.Normalize(registry.ParseDefault(oldRaw, registry.List{}))
	}

	written, removed, err := tlssync.Sync(r.fs, r.configDir, registries, oldList, r.log)
	metrics.TLSMaterialWritten.Add(float64(written))
	metrics.TLSMaterialRemoved.Add(float64(removed))
	if err != nil {
		metrics.Reconciliations.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("sync tls material: %w", err)
	}
	r.state = StateTLSSynced

	// The relation registry is authoritative and always appended last. Its
	// TLS fields are already paths; the synchronizer never touches them.
	var relationRegistry registry.Entry
	haveRelation, err := r.store.Get(kv.KeyRegistry, &relationRegistry)
	if err != nil {
		return fmt.Errorf("load relation registry: %w", err)
	}
	if haveRelation {
		registries = append(registries, relationRegistry)
	}

	var endpoint *Endpoint
	var ep Endpoint
	if found, err := r.store.Get(kv.KeyEndpoint, &ep); err != nil {
		return fmt.Errorf("load endpoint record: %w", err)
	} else if found {
		endpoint = &ep
	}

	var untrusted *render.UntrustedRuntime
	var ut render.UntrustedRuntime
	if found, err := r.store.Get(kv.KeyUntrusted, &ut); err != nil {
		return fmt.Errorf("load untrusted runtime record: %w", err)
	} else if found {
		untrusted = &ut
	}

	var rel *registry.Entry
	if haveRelation {
		rel = &relationRegistry
	}

	renderCtx := render.Context{
		SandboxImage:  r.resolveSandboxImage(endpoint, rel),
		RuntimeName:   resolveRuntime(cfg.Runtime, gpuActive),
		ConfigVersion: cfg.ConfigVersion,
		Registries:    registries,
		Untrusted:     untrusted,
		Proxy:         hostfacts.ResolveProxy(cfg),
	}
	r.state = StateContextReady

	if err := render.Write(r.fs, r.configDir, r.certsDir, renderCtx, r.log); err != nil {
		metrics.Reconciliations.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("render containerd config: %w", err)
	}

	if err := r.cm.CommitSnapshot(); err != nil {
		return fmt.Errorf("commit config snapshot: %w", err)
	}

	r.statusMsg = ""
	r.restartRequested = true
	metrics.Reconciliations.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.RestartsRequested.Inc()
	r.log.Info().
		Int("registries", len(registries)).
		Str("runtime", renderCtx.RuntimeName).
		Str("sandbox_image", renderCtx.SandboxImage).
		Msg("Reconciliation complete, restart requested")
	return nil
}

// SyncProxy renders or removes the systemd proxy drop-in when the effective
// proxy settings drift from the cached snapshot. Returns whether the service
// needs a daemon-reload and restart.
func (r *Reconciler) SyncProxy(ctx context.Context) (bool, error) {
	current := hostfacts.ResolveProxy(r.cm.Config())

	changed, err := hostfacts.ProxyChanged(r.store, current)
	if err != nil {
		return false, fmt.Errorf("compare proxy snapshot: %w", err)
	}
	if !changed {
		return false, nil
	}

	restart, err := render.SyncProxyConf(r.fs, r.serviceDir, current, r.log)
	if err != nil {
		return false, err
	}

	if err := r.store.Set(kv.KeyConfigCache, current); err != nil {
		return false, fmt.Errorf("cache proxy snapshot: %w", err)
	}
	if restart {
		r.restartRequested = true
		metrics.RestartsRequested.Inc()
	}
	return restart, nil
}

func (r *Reconciler) block(reason string) {
	r.state = StateBlocked
	r.statusMsg = reason
	metrics.Reconciliations.WithLabelValues(metrics.ResultBlocked).Inc()
	r.log.Warn().Str("reason", reason).Msg("Reconciliation blocked")
}

// resolveRuntime substitutes the auto sentinel with the GPU-appropriate
// runtime; explicit values pass through untouched.
func resolveRuntime(configured string, gpuActive bool) string {
	if configured != config.RuntimeAuto {
		return configured
	}
	if gpuActive {
		return config.RuntimeNvidia
	}
	return config.RuntimeRunc
}
