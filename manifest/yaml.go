package manifest

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

// DecodeYAML decodes a YAML manifest into a JSON-compatible document that
// can be passed to [Validate] or [Parse].
func DecodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest: parse yaml: %w", err)
	}
	return normalizeYAML(raw), nil
}

// ParseYAML decodes and strictly validates a YAML manifest.
func ParseYAML(data []byte) (*Manifest, error) {
	doc, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}

// normalizeYAML rewrites maps with non-string keys so the document can be
// encoded as JSON.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalizeYAML(item)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return m
	case []any:
		a := make([]any, len(val))
		for i, item := range val {
			a[i] = normalizeYAML(item)
		}
		return a
	default:
		return val
	}
}
