// Package render turns a reconciled context into the on-disk containerd
// configuration: config.toml (v1 flat registry tables, or v2 with a
// hosts.toml per registry host) and the systemd proxy drop-in.
package render

import (
	"path/filepath"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/registry"
)

const (
	// ConfigFile is the containerd main configuration file name.
	ConfigFile = "config.toml"
	// HostsFile is the per-registry host configuration file name (v2).
	HostsFile = "hosts.toml"
)

// UntrustedRuntime describes a relation-supplied untrusted workload runtime.
type UntrustedRuntime struct {
	Name       string `json:"name"`
	BinaryPath string `json:"binary_path"`
}

// Binary is the bare executable name containerd references as BinaryName.
func (u UntrustedRuntime) Binary() string {
	return filepath.Base(u.BinaryPath)
}

// Context carries every template variable for one render. It is rebuilt from
// scratch on each reconciliation and never partially mutated.
type Context struct {
	SandboxImage  string
	RuntimeName   string
	ConfigVersion string
	Registries    registry.List
	Untrusted     *UntrustedRuntime
	Proxy         hostfacts.ProxySettings
}
