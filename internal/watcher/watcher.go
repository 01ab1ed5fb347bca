// Package watcher turns filesystem activity into operator events: a write to
// the charm config file becomes config-changed, and JSON records appearing in
// or vanishing from the relations directory become the matching relation
// events.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/container-registry/containerd-operator/internal/operator"
	"github.com/container-registry/containerd-operator/internal/reconciler"
	"github.com/container-registry/containerd-operator/internal/registry"
	"github.com/container-registry/containerd-operator/internal/render"
)

// Relation record file names under the relations directory.
const (
	RegistryFile  = "registry.json"
	EndpointFile  = "endpoint.json"
	UntrustedFile = "untrusted.json"
)

// Watch blocks until the context is cancelled, dispatching events to op.
// The relations directory is optional; pass "" to watch only the config file.
func Watch(ctx context.Context, log *zerolog.Logger, op *operator.Operator, configPath, relationsDir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
		log.Info().Msg("Stopped watching for changes")
	}()

	// Watch the directory, not the file: editors and charm agents replace
	// config files by rename, which drops a file-level watch.
	if err := w.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if relationsDir != "" {
		if err := os.MkdirAll(relationsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create relations directory: %w", err)
		}
		if err := w.Add(relationsDir); err != nil {
			return fmt.Errorf("failed to watch relations directory: %w", err)
		}
	}
	log.Info().Str("config", configPath).Str("relations", relationsDir).Msg("Watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			log.Debug().Str("event", event.String()).Msg("Received fsnotify event")
			if ev, ok := translate(log, event, configPath, relationsDir); ok {
				if err := op.Dispatch(ctx, ev); err != nil {
					return err
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher encountered an error")
		}
	}
}

// translate maps one fsnotify event to an operator event. Events on files we
// do not track report ok=false.
func translate(log *zerolog.Logger, event fsnotify.Event, configPath, relationsDir string) (operator.Event, bool) {
	written := event.Op&(fsnotify.Write|fsnotify.Create) != 0
	removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0

	if filepath.Clean(event.Name) == filepath.Clean(configPath) {
		if written {
			return operator.Event{Kind: operator.EventConfigChanged}, true
		}
		return operator.Event{}, false
	}

	if relationsDir == "" || filepath.Dir(event.Name) != filepath.Clean(relationsDir) {
		return operator.Event{}, false
	}

	switch filepath.Base(event.Name) {
	case RegistryFile:
		if removed {
			return operator.Event{Kind: operator.EventRegistryDeparted}, true
		}
		var e registry.Entry
		if !decodeRecord(log, event.Name, written, &e) {
			return operator.Event{}, false
		}
		return operator.Event{Kind: operator.EventRegistryChanged, Registry: &e}, true

	case EndpointFile:
		if removed {
			return operator.Event{Kind: operator.EventEndpointDeparted}, true
		}
		var ep reconciler.Endpoint
		if !decodeRecord(log, event.Name, written, &ep) {
			return operator.Event{}, false
		}
		return operator.Event{Kind: operator.EventEndpointChanged, Endpoint: &ep}, true

	case UntrustedFile:
		if removed {
			return operator.Event{Kind: operator.EventUntrustedDeparted}, true
		}
		var u render.UntrustedRuntime
		if !decodeRecord(log, event.Name, written, &u) {
			return operator.Event{}, false
		}
		return operator.Event{Kind: operator.EventUntrustedChanged, Untrusted: &u}, true
	}

	return operator.Event{}, false
}

func decodeRecord(log *zerolog.Logger, path string, written bool, out any) bool {
	if !written {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read relation record")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to decode relation record")
		return false
	}
	return true
}
