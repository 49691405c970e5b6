package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// parseFlexibleTime handles the assorted timestamp encodings SQL drivers
// hand back (RFC3339, sqlite datetime text, and friends).
func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	dup := make(map[string]any, len(fields))
	for k, v := range fields {
		switch vv := v.(type) {
		case []string:
			dup[k] = append([]string(nil), vv...)
		case []any:
			dup[k] = append([]any(nil), vv...)
		default:
			dup[k] = v
		}
	}
	return dup
}

func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}
