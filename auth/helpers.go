package auth

import (
	"slices"
	"strconv"
	"strings"
)

// claimText returns the first non-empty claim among names. Numeric claims
// such as user_id are rendered without a fractional part.
func claimText(claims map[string]any, names ...string) string {
	for _, name := range names {
		var text string
		switch value := claims[name].(type) {
		case string:
			text = value
		case float64:
			text = strconv.FormatFloat(value, 'f', -1, 64)
		case int64:
			text = strconv.FormatInt(value, 10)
		case int:
			text = strconv.Itoa(value)
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// claimList accepts a JSON array or a space or comma separated string.
func claimList(claims map[string]any, name string) []string {
	var raw []string
	switch value := claims[name].(type) {
	case []string:
		raw = value
	case []any:
		for _, item := range value {
			if text, ok := item.(string); ok {
				raw = append(raw, text)
			}
		}
	case string:
		raw = strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" || slices.ContainsFunc(out, func(existing string) bool { return strings.EqualFold(existing, item) }) {
			continue
		}
		out = append(out, item)
	}
	slices.Sort(out)
	return out
}
