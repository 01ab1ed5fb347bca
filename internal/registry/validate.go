package registry

import (
	"encoding/json"
	"fmt"
	"sort"
)

var (
	requiredFields = []string{"url"}

	stringFields = []string{
		"url",
		"host",
		"username",
		"password",
		"ca_file",
		"cert_file",
		"key_file",
	}

	boolFields = []string{
		"insecure_skip_verify",
	}
)

// Validate checks the raw custom_registries value against the schema and
// returns a single-line description of the first violation found, scanning
// entries in order. An empty string means the value is valid.
//
// The messages here double as user-facing status output; do not reword them.
func Validate(raw string) string {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return ErrMalformedJSON.Error()
	}
	entries, ok := decoded.([]any)
	if !ok {
		return ErrNotAList.Error()
	}

	allowed := make(map[string]bool, len(stringFields)+len(boolFields))
	for _, f := range stringFields {
		allowed[f] = true
	}
	for _, f := range boolFields {
		allowed[f] = true
	}

	hosts := make(map[string]bool, len(entries))
	for idx, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			return fmt.Sprintf("registry #%d is not in object form", idx)
		}
		for _, field := range requiredFields {
			if _, ok := entry[field]; !ok {
				return fmt.Sprintf("registry #%d missing required field '%s'", idx, field)
			}
		}
		for _, field := range stringFields {
			value, ok := entry[field]
			if !ok {
				continue
			}
			if _, isStr := value.(string); truthy(value) && !isStr {
				return fmt.Sprintf("registry #%d field %s=%v is not a string", idx, field, value)
			}
		}
		for _, field := range boolFields {
			value, ok := entry[field]
			if !ok {
				continue
			}
			if _, isBool := value.(bool); !isBool {
				return fmt.Sprintf("registry #%d field %s='%v' is not a boolean", idx, field, value)
			}
		}
		for _, field := range sortedKeys(entry) {
			if !allowed[field] {
				return fmt.Sprintf("registry #%d field %s may not be specified", idx, field)
			}
		}

		host, _ := entry["host"].(string)
		if host == "" {
			url, _ := entry["url"].(string)
			host = StripURL(url)
		}
		if hosts[host] {
			return fmt.Sprintf("registry #%d defines %s more than once", idx, host)
		}
		hosts[host] = true
	}

	return ""
}

// truthy mirrors the loose presence check applied to string fields: empty
// strings, zero numbers, false and empty collections are ignored rather
// than type-checked.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
