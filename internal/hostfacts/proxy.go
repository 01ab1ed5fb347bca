package hostfacts

import (
	"os"

	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/pkg/config"
)

// ProxySettings is the effective proxy environment for the containerd
// service. Stored under the config-cache record so drift can be detected on
// the periodic status pass.
type ProxySettings struct {
	HTTPProxy  string `json:"http_proxy"`
	HTTPSProxy string `json:"https_proxy"`
	NoProxy    string `json:"no_proxy"`
}

// Empty reports whether no proxy value is set at all, in which case the
// systemd drop-in must be removed rather than rendered.
func (p ProxySettings) Empty() bool {
	return p.HTTPProxy == "" && p.HTTPSProxy == "" && p.NoProxy == ""
}

// ResolveProxy computes the effective settings: explicit charm configuration
// wins, then the model-supplied environment, then the plain environment.
func ResolveProxy(cfg config.Config) ProxySettings {
	return ProxySettings{
		HTTPProxy:  firstNonEmpty(cfg.HTTPProxy, os.Getenv("JUJU_CHARM_HTTP_PROXY"), os.Getenv("http_proxy"), os.Getenv("HTTP_PROXY")),
		HTTPSProxy: firstNonEmpty(cfg.HTTPSProxy, os.Getenv("JUJU_CHARM_HTTPS_PROXY"), os.Getenv("https_proxy"), os.Getenv("HTTPS_PROXY")),
		NoProxy:    firstNonEmpty(cfg.NoProxy, os.Getenv("JUJU_CHARM_NO_PROXY"), os.Getenv("no_proxy"), os.Getenv("NO_PROXY")),
	}
}

// ProxyChanged compares the effective settings against the cached snapshot.
// An absent snapshot counts as changed: the first pass must always render.
func ProxyChanged(store kv.Store, current ProxySettings) (bool, error) {
	var cached ProxySettings
	found, err := store.Get(kv.KeyConfigCache, &cached)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return cached != current, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
