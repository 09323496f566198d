package gateway

import (
	"encoding/json"

	"devicepair/internal/domain"
)

const redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"accessToken":   true,
	"refreshToken":  true,
	"token":         true,
}

// RedactEvent returns ev with token values in its payload replaced. Events
// without a JSON object payload are returned unchanged.
func RedactEvent(ev domain.Event) domain.Event {
	if len(ev.Payload) == 0 {
		return ev
	}
	var doc any
	if err := json.Unmarshal(ev.Payload, &doc); err != nil {
		return ev
	}
	if !redactValue(doc) {
		return ev
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return ev
	}
	ev.Payload = out
	return ev
}

// redactValue masks secrets in place and reports whether anything changed.
func redactValue(v any) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && secretKeys[k] && s != "" {
				t[k] = redacted
				changed = true
				continue
			}
			if redactValue(child) {
				changed = true
			}
		}
	case []any:
		for _, child := range t {
			if redactValue(child) {
				changed = true
			}
		}
	}
	return changed
}
