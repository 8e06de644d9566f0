package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Alert is a key-addressable alert payload. Values are whatever JSON decoding
// produces: strings, float64 or json.Number, bools, nil, nested maps and slices.
type Alert map[string]any

// Well-known field names. None of them is required.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldMessage   = "msg"
	FieldSeverity  = "severity"
	FieldState     = "state"
	FieldTimestamp = "timestamp"
)

// Lookup resolves a dotted path ("faults.0.ip") against the alert and returns
// its text form. The boolean is false when any path segment is missing.
func (a Alert) Lookup(path string) (string, bool) {
	if a == nil || path == "" {
		return "", false
	}
	if v, ok := a[path]; ok {
		return format(v), true
	}

	var cur any = map[string]any(a)
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = v
		case Alert:
			v, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", false
			}
			cur = node[i]
		default:
			return "", false
		}
	}
	return format(cur), true
}

// ID returns the alert's id field, or "" when unset.
func (a Alert) ID() string { return a.text(FieldID) }

// Title returns the alert's title field.
func (a Alert) Title() string { return a.text(FieldTitle) }

// Severity returns the alert's severity field.
func (a Alert) Severity() string { return a.text(FieldSeverity) }

func (a Alert) text(key string) string {
	s, _ := a.Lookup(key)
	return s
}

// Clone returns a shallow copy. Nested values are shared.
func (a Alert) Clone() Alert {
	out := make(Alert, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// format renders a decoded JSON value as template text.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case map[string]any, Alert, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
