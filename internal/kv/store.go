// Package kv is the unit-local persisted key-value store. It holds the small
// records that must survive across reconciliations even when the relation
// that produced them is transiently unavailable: the relation registry, the
// proxy snapshot and the untrusted runtime descriptor.
package kv

// Well-known record keys.
const (
	KeyRegistry    = "registry"
	KeyConfigCache = "config-cache"
	KeyUntrusted   = "untrusted"
	KeyEndpoint    = "containerd-endpoint"
)

// Store is injected into the reconciler so it stays a function of its
// explicit inputs plus this interface. Values are JSON-encoded.
type Store interface {
	// Get decodes the value for key into out and reports whether it existed.
	Get(key string, out any) (bool, error)
	// Set stores the JSON encoding of v under key, replacing any prior value.
	Set(key string, v any) error
	// Unset removes key. Removing an absent key is not an error.
	Unset(key string) error
	Close() error
}
