// Package merge provides the map operations the preference store builds on:
// section-by-section deep merge, deep clone, dot-path access and diffing of
// nested documents.
//
// All functions treat map[string]any as an object and []any as an array,
// which is what encoding/json and gopkg.in/yaml.v3 produce.
package merge

import (
	"sort"
	"strings"
)

// DeepMerge recursively merges src into a copy of dst and returns it.
// Values in src override values in dst. Maps are merged key by key;
// every other type is replaced. Neither input is modified.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := Clone(dst)
	if out == nil {
		out = make(map[string]any)
	}
	mergeInto(out, src)
	return out
}

func mergeInto(dst, src map[string]any) {
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[key] = CloneValue(srcVal)
	}
}

// Clone returns a deep copy of a map.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue creates a deep copy of a value.
func CloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return val
	}
}

// GetByPath retrieves a value from a nested map using a dot-separated path.
func GetByPath(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[part]
		if !exists {
			return nil, false
		}
		current = val
	}

	return current, true
}

// SetByPath sets a value in a nested map using a dot-separated path,
// creating intermediate maps as needed. A non-map value standing in the way
// is replaced.
func SetByPath(data map[string]any, path string, value any) {
	if data == nil || path == "" {
		return
	}

	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}

	current[parts[len(parts)-1]] = value
}

// CanSet reports whether SetByPath can write path without replacing a
// non-map value on the way.
func CanSet(data map[string]any, path string) bool {
	if data == nil || path == "" {
		return false
	}

	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		val, exists := current[part]
		if !exists {
			return true
		}
		next, ok := val.(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	return true
}

// DeleteByPath removes a value from a nested map using a dot-separated path.
// Returns true if the value was found and deleted.
func DeleteByPath(data map[string]any, path string) bool {
	if data == nil || path == "" {
		return false
	}

	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return false
		}
		current = next
	}

	key := parts[len(parts)-1]
	if _, exists := current[key]; !exists {
		return false
	}
	delete(current, key)
	return true
}

// Flatten flattens a nested map into a single-level map with dot-separated keys.
// Empty nested maps are kept as leaves so they survive Unflatten.
func Flatten(data map[string]any) map[string]any {
	result := make(map[string]any)
	flattenInto(data, "", result)
	return result
}

func flattenInto(data map[string]any, prefix string, result map[string]any) {
	for key, val := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok && len(nested) > 0 {
			flattenInto(nested, fullKey, result)
			continue
		}
		result[fullKey] = val
	}
}

// Unflatten converts a flattened map with dot-separated keys back to a
// nested structure.
func Unflatten(data map[string]any) map[string]any {
	result := make(map[string]any)
	for _, path := range SortedKeys(data) {
		SetByPath(result, path, CloneValue(data[path]))
	}
	return result
}

// Diff returns the minimal partial document that turns old into new: every
// leaf that was added or changed, with its new value. Leaves removed in new
// are reported separately since a partial cannot express deletion.
func Diff(old, new map[string]any) (changed map[string]any, removed []string) {
	oldFlat := Flatten(old)
	newFlat := Flatten(new)

	changedFlat := make(map[string]any)
	for path, newVal := range newFlat {
		if oldVal, exists := oldFlat[path]; !exists || !Equal(oldVal, newVal) {
			changedFlat[path] = newVal
		}
	}

	for path := range oldFlat {
		if _, exists := newFlat[path]; !exists {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)

	return Unflatten(changedFlat), removed
}

// Equal compares two decoded values for deep equality. Numbers compare by
// value regardless of their Go type.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, v := range va {
			w, ok := vb[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if _, ok := b.(map[string]any); ok {
		return false
	}
	if _, ok := b.([]any); ok {
		return false
	}
	return a == b
}

// SortedKeys returns the keys of m in sorted order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
