// Package tlssync owns the {config_dir}/{host}.{ca,key,cert} namespace: it
// diffs the old and new registry lists and removes or writes the decoded TLS
// material accordingly. No other component touches these files.
package tlssync

import (
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/container-registry/containerd-operator/internal/registry"
)

// materials maps each on-disk suffix to the base64 input field and the
// derived path field it populates. Order matters only for log determinism.
var materials = []struct {
	suffix  string
	encoded func(e *registry.Entry) string
	target  func(e *registry.Entry) *string
}{
	{"ca", func(e *registry.Entry) string { return e.CAFile }, func(e *registry.Entry) *string { return &e.CA }},
	{"key", func(e *registry.Entry) string { return e.KeyFile }, func(e *registry.Entry) *string { return &e.Key }},
	{"cert", func(e *registry.Entry) string { return e.CertFile }, func(e *registry.Entry) *string { return &e.Cert }},
}

// Sync brings the TLS material under dir in line with newList, removing the
// files old entries had placed there first. Removal must complete before any
// write: an unchanged host with new cert content targets the same path in
// both phases.
//
// Entries in newList get their CA/Key/Cert path fields set as material is
// written. A field that fails base64 decoding is logged and skipped; the
// reconciliation carries on without it. Filesystem errors are fatal and the
// caller is expected to retry the whole pass with unchanged inputs.
func Sync(fs afero.Fs, dir string, newList, oldList registry.List, log *zerolog.Logger) (written, removed int, err error) {
	for i := range oldList {
		e := &oldList[i]
		for _, m := range materials {
			if m.encoded(e) == "" {
				continue
			}
			path := materialPath(dir, e.URL, m.suffix)
			exists, err := afero.Exists(fs, path)
			if err != nil {
				return written, removed, fmt.Errorf("stat %s: %w", path, err)
			}
			if !exists {
				continue
			}
			if err := fs.Remove(path); err != nil {
				return written, removed, fmt.Errorf("remove stale tls material %s: %w", path, err)
			}
			log.Debug().Str("path", path).Msg("Removed stale TLS material")
			removed++
		}
	}

	for i := range newList {
		e := &newList[i]
		for _, m := range materials {
			encoded := m.encoded(e)
			if encoded == "" {
				continue
			}
			contents, decodeErr := base64.StdEncoding.DecodeString(encoded)
			if decodeErr != nil {
				log.Warn().
					Str("registry", e.URL).
					Str("field", m.suffix).
					Msgf("%s:%s didn't look like base64 data... skipping", e.URL, m.suffix)
				continue
			}
			path := materialPath(dir, e.URL, m.suffix)
			if err := afero.WriteFile(fs, path, contents, 0o600); err != nil {
				return written, removed, fmt.Errorf("write tls material %s: %w", path, err)
			}
			*m.target(e) = path
			written++
			if m.suffix != "key" {
				describeCertificate(log, path, contents)
			}
		}
	}

	return written, removed, nil
}

func materialPath(dir, url, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s", registry.StripURL(url), suffix))
}
