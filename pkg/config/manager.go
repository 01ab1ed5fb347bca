package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager holds the current config plus the snapshot from the last committed
// reconciliation. The snapshot is what lets a reconciliation know which
// custom_registries value the on-disk TLS material corresponds to.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	prev     *Config
	path     string
	prevPath string
}

func NewManager(path, prevPath string) (*Manager, []Warning, error) {
	cfg, warnings, err := Load(path)
	if err != nil {
		return nil, warnings, err
	}

	prev, err := readSnapshot(prevPath)
	if err != nil {
		return nil, warnings, err
	}

	return &Manager{
		cfg:      cfg,
		prev:     prev,
		path:     path,
		prevPath: prevPath,
	}, warnings, nil
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Reload re-reads the config file and reports whether anything changed.
func (m *Manager) Reload() (bool, []Warning, error) {
	cfg, warnings, err := Load(m.path)
	if err != nil {
		return false, warnings, fmt.Errorf("failed to reload config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	changed := *cfg != *m.cfg
	m.cfg = cfg
	return changed, warnings, nil
}

// PreviousCustomRegistries returns the committed custom_registries value and
// whether the current value differs from it. No snapshot counts as changed:
// the first reconciliation has nothing to diff against but must still run.
func (m *Manager) PreviousCustomRegistries() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prev == nil {
		return "", true
	}
	return m.prev.CustomRegistries, m.prev.CustomRegistries != m.cfg.CustomRegistries
}

// CommitSnapshot persists the current config as the new previous snapshot.
// Called only after a reconciliation fully succeeds, so a crashed pass diffs
// against the last good state on retry.
func (m *Manager) CommitSnapshot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := *m.cfg
	data, err := json.MarshalIndent(&snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}

	dir := filepath.Dir(m.prevPath)
	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, m.prevPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}

	m.prev = &snapshot
	return nil
}

// readSnapshot loads the previous-config snapshot. Returns nil, nil when no
// snapshot exists yet.
func readSnapshot(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config snapshot: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config snapshot: %w", err)
	}
	return &cfg, nil
}
