package model

import "time"

// SystemLog is an append-only audit entry. Context values for sensitive keys
// are masked before the entry is persisted.
type SystemLog struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// sensitiveKeys are masked in persisted log context.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"api_key":       true,
	"password":      true,
	"secret":        true,
	"x-api-key":     true,
}

// MaskContext returns a copy of ctx with sensitive values replaced by "***".
// Nested maps are masked recursively.
func MaskContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if sensitiveKeys[normalizeKey(k)] {
			out[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = MaskContext(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeKey(k string) string {
	b := make([]byte, 0, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}
