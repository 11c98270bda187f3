package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

// payloadString renders a decoded JSON value as a step output string.
// Scalars render naturally; objects and arrays render as compact JSON so
// they stay usable as provider arguments.
func payloadString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// extractPath walks a dotted path through a decoded JSON payload. Numeric
// segments index into arrays. The second return reports whether every
// segment resolved.
func extractPath(payload interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), ".")
	if path == "" {
		return payload, payload != nil
	}

	cur := payload
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, false
		}
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// extractString resolves a dotted path and renders the result as a string.
func extractString(payload interface{}, path string) (string, bool) {
	v, ok := extractPath(payload, path)
	if !ok {
		return "", false
	}
	return payloadString(v), true
}

// flattenPayload folds a decoded JSON object into dotted scalar keys, so an
// existing resource's fields can answer capture paths without a second
// provider call. Arrays are indexed numerically.
func flattenPayload(prefix string, v interface{}, out map[string]string) {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, val := range node {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			flattenPayload(path, val, out)
		}
	case []interface{}:
		for i, val := range node {
			path := strconv.Itoa(i)
			if prefix != "" {
				path = prefix + "." + path
			}
			flattenPayload(path, val, out)
		}
	default:
		if prefix != "" {
			out[prefix] = payloadString(v)
		}
	}
}
