package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Write renders the containerd configuration for ctx. configDir receives
// config.toml; certsDir receives the per-host hosts.toml tree when the v2
// schema is selected. Registry data is identical for both schemas; only the
// layout differs.
func Write(fs afero.Fs, configDir, certsDir string, ctx Context, log *zerolog.Logger) error {
	if err := fs.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", configDir, err)
	}

	var doc any
	if ctx.ConfigVersion == "v2" {
		doc = buildConfigV2(ctx, certsDir)
		if err := writeHostsFiles(fs, certsDir, ctx, log); err != nil {
			return err
		}
	} else {
		doc = buildConfigV1(ctx)
	}

	path := filepath.Join(configDir, ConfigFile)
	if err := writeTOML(fs, path, doc); err != nil {
		return err
	}
	log.Info().Str("path", path).Str("schema", ctx.ConfigVersion).Msg("Wrote containerd config")
	return nil
}

func writeHostsFiles(fs afero.Fs, certsDir string, ctx Context, log *zerolog.Logger) error {
	keep := make(map[string]bool, len(ctx.Registries))
	for _, e := range ctx.Registries {
		keep[e.EffectiveHost()] = true
	}
	if err := pruneHostsDirs(fs, certsDir, keep, log); err != nil {
		return err
	}

	for _, e := range ctx.Registries {
		host := e.EffectiveHost()
		dir := filepath.Join(certsDir, host)
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create hosts directory %s: %w", dir, err)
		}

		doc := buildHostsToml(hostsEntry{
			Server:     ensureScheme(e.URL),
			CA:         e.CA,
			Cert:       e.Cert,
			Key:        e.Key,
			SkipVerify: e.SkipVerify(),
		})
		if err := writeTOML(fs, filepath.Join(dir, HostsFile), doc); err != nil {
			return err
		}
	}
	return nil
}

// pruneHostsDirs owns the certs.d namespace the way tlssync owns the TLS
// material one: any host directory not backed by a current registry entry is
// removed, so containerd never keeps applying a departed registry's config.
// Pruning against the directory listing (rather than a remembered old list)
// also heals leftovers from a pass that crashed mid-render.
func pruneHostsDirs(fs afero.Fs, certsDir string, keep map[string]bool, log *zerolog.Logger) error {
	infos, err := afero.ReadDir(fs, certsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list hosts directory %s: %w", certsDir, err)
	}
	for _, info := range infos {
		if keep[info.Name()] {
			continue
		}
		path := filepath.Join(certsDir, info.Name())
		if err := fs.RemoveAll(path); err != nil {
			return fmt.Errorf("remove stale hosts directory %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Removed stale registry hosts directory")
	}
	return nil
}

func writeTOML(fs afero.Fs, path string, doc any) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if _, err := backupChanged(fs, path, buf.Bytes()); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ensureScheme defaults a bare host:port to https, which is what containerd
// expects in a hosts.toml server line.
func ensureScheme(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}
