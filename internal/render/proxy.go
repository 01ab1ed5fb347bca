package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
)

const proxyConfFile = "proxy.conf"

// SyncProxyConf writes the systemd drop-in carrying the proxy environment
// for the containerd service, or removes it when no proxy is configured.
// Returns whether the unit needs a daemon-reload and restart.
func SyncProxyConf(fs afero.Fs, serviceDir string, p hostfacts.ProxySettings, log *zerolog.Logger) (bool, error) {
	path := filepath.Join(serviceDir, proxyConfFile)

	if p.Empty() {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
		if !exists {
			return false, nil
		}
		if err := fs.Remove(path); err != nil {
			return false, fmt.Errorf("remove %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Proxy cleaned, removed drop-in")
		return true, nil
	}

	if err := fs.MkdirAll(serviceDir, 0o755); err != nil {
		return false, fmt.Errorf("create service directory %s: %w", serviceDir, err)
	}

	var b strings.Builder
	b.WriteString("[Service]\n")
	for _, kv := range []struct{ key, value string }{
		{"HTTP_PROXY", p.HTTPProxy},
		{"HTTPS_PROXY", p.HTTPSProxy},
		{"NO_PROXY", p.NoProxy},
	} {
		if kv.value == "" {
			continue
		}
		fmt.Fprintf(&b, "Environment=%q\n", kv.key+"="+kv.value)
	}

	if err := afero.WriteFile(fs, path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Proxy changed, wrote drop-in")
	return true, nil
}
