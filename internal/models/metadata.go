package models

import (
	"fmt"
	"strconv"
	"strings"
)

// MetaString returns md[key] as a string, or "" when absent or nil.
func MetaString(md map[string]interface{}, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// MetaStringOr returns md[key] as a string, or def when the value is empty.
func MetaStringOr(md map[string]interface{}, key, def string) string {
	if s := MetaString(md, key); s != "" {
		return s
	}
	return def
}

// MetaBool interprets md[key] as a boolean flag. Accepts bools, numbers and
// the strings "true", "1" and "yes".
func MetaBool(md map[string]interface{}, key string) bool {
	v, ok := md[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "1" || s == "yes"
	default:
		return false
	}
}

// MetaInt interprets md[key] as an integer, returning 0 when it is not numeric.
func MetaInt(md map[string]interface{}, key string) int {
	switch t := md[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// CloneMetadata returns a shallow copy of md. A nil map yields an empty map.
func CloneMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
