package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// Render substitutes {{field}} placeholders with payload values.
// Missing fields render as empty strings and malformed templates pass
// through untouched; rendering must never abort an action.
func Render(template string, payload map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:open])
		field := strings.TrimSpace(rest[open+2 : open+close])
		if value, ok := payload[field]; ok {
			b.WriteString(formatValue(value))
		}
		rest = rest[open+close+2:]
	}
}

// RenderMap renders every string value of a JSON-shaped map, descending
// into nested objects and arrays. Used for webhook bodies.
func RenderMap(body map[string]any, payload map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	rendered := make(map[string]any, len(body))
	for k, v := range body {
		rendered[k] = renderValue(v, payload)
	}
	return rendered
}

func renderValue(v any, payload map[string]any) any {
	switch typed := v.(type) {
	case string:
		return Render(typed, payload)
	case map[string]any:
		return RenderMap(typed, payload)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = renderValue(item, payload)
		}
		return out
	default:
		return v
	}
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		// JSON numbers decode as float64; render integers without the
		// trailing ".0".
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}
