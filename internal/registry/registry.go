package registry

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	// DefaultHost is the registry host every rendered config must know about.
	DefaultHost = "docker.io"
	// DefaultURL is the upstream endpoint used when no override is configured.
	DefaultURL = "https://registry-1.docker.io"
)

var (
	ErrMalformedJSON = errors.New("Failed to decode json string")
	ErrNotAList      = errors.New("custom_registries is not a list")
)

// Entry describes one container registry endpoint consumable by containerd.
//
// CAFile, CertFile and KeyFile carry base64-encoded PEM material from
// configuration. CA, Cert and Key are the on-disk paths of the decoded
// material and are set by the TLS synchronizer, never by configuration.
type Entry struct {
	URL      string `json:"url"`
	Host     string `json:"host,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CA       string `json:"ca,omitempty"`
	Cert     string `json:"cert,omitempty"`
	Key      string `json:"key,omitempty"`

	// InsecureSkipVerify stays a pointer so the boundary can tell absence
	// from false; rendering treats both as "not enabled".
	InsecureSkipVerify *bool `json:"insecure_skip_verify,omitempty"`
}

// UnmarshalJSON decodes an entry leniently: a falsy non-string value in a
// string field (false, 0, null, "", an empty collection) counts as absent
// rather than failing the decode, the same presence rule Validate applies.
// Anything Validate accepts therefore parses.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for key, dst := range map[string]*string{
		"url":       &e.URL,
		"host":      &e.Host,
		"username":  &e.Username,
		"password":  &e.Password,
		"ca_file":   &e.CAFile,
		"cert_file": &e.CertFile,
		"key_file":  &e.KeyFile,
		"ca":        &e.CA,
		"cert":      &e.Cert,
		"key":       &e.Key,
	} {
		if s, ok := fields[key].(string); ok {
			*dst = s
		}
	}

	if b, ok := fields["insecure_skip_verify"].(bool); ok {
		e.InsecureSkipVerify = &b
	}
	return nil
}

// EffectiveHost is the deduplication key: the explicit host when present,
// otherwise host:port derived from the URL.
func (e Entry) EffectiveHost() string {
	if e.Host != "" {
		return e.Host
	}
	return StripURL(e.URL)
}

// SkipVerify reports whether TLS verification is disabled for the entry.
func (e Entry) SkipVerify() bool {
	return e.InsecureSkipVerify != nil && *e.InsecureSkipVerify
}

// List is an ordered set of registry entries. Order is insignificant for
// correctness but kept deterministic so repeated renders are byte-identical:
// docker.io default first, user entries next, the relation registry last.
type List []Entry

// StripURL keeps host:port from a registry URL.
//
//	http://10.10.10.10:8000   -> 10.10.10.10:8000
//	https://myregistry.io:8000/ -> myregistry.io:8000
//	myregistry.io:8000        -> myregistry.io:8000
func StripURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.Index(trimmed, "://"); i >= 0 {
		return trimmed[i+len("://"):]
	}
	return trimmed
}

// Parse decodes a JSON-encoded array of registry entries. It performs no
// semantic validation; Validate owns that so decode failures and schema
// violations surface as distinct messages.
func Parse(raw string) (List, error) {
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, ErrMalformedJSON
	}
	if _, ok := probe.([]any); !ok {
		return nil, ErrNotAList
	}
	var list List
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, ErrMalformedJSON
	}
	return list, nil
}

// ParseDefault is Parse with fallback semantics: any decode failure yields
// the provided default instead of an error.
func ParseDefault(raw string, def List) List {
	list, err := Parse(raw)
	if err != nil {
		return def
	}
	return list
}

// Normalize fills in missing hosts from URLs and guarantees a docker.io
// entry exists, inserted at position 0 so the default always renders first.
// The input list is not mutated.
func Normalize(entries List) List {
	out := make(List, len(entries))
	copy(out, entries)

	for i := range out {
		if out[i].Host == "" && out[i].URL != "" {
			out[i].Host = StripURL(out[i].URL)
		}
	}

	for _, e := range out {
		if e.Host == DefaultHost {
			return out
		}
	}
	return append(List{{Host: DefaultHost, URL: DefaultURL}}, out...)
}
