package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Parameters is an opaque, nestable set of simulation inputs. A stored copy
// must be fully decoupled from the live template it was taken from.
type Parameters map[string]any

// Clone returns a deep copy of the parameters, sharing no references with the
// original.
func (p Parameters) Clone() (Parameters, error) {
	if p == nil {
		return Parameters{}, nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("could not encode parameters: %w", err)
	}

	dst := Parameters{}
	if err := json.Unmarshal(data, &dst); err != nil {
		return nil, fmt.Errorf("could not decode parameters: %w", err)
	}

	return dst, nil
}

// Flatten returns the parameters as sorted "dotted.key value" pairs, the flat
// format the external simulation programs consume.
func (p Parameters) Flatten() []string {
	flat := map[string]any{}
	flattenInto(flat, "", map[string]any(p))

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %v", k, flat[k]))
	}

	return lines
}

func flattenInto(dst map[string]any, prefix string, v any) {
	switch value := v.(type) {
	case Parameters:
		flattenInto(dst, prefix, map[string]any(value))
	case map[string]any:
		for k, child := range value {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(dst, key, child)
		}
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		dst[prefix] = strings.Join(parts, " ")
	default:
		dst[prefix] = value
	}
}
