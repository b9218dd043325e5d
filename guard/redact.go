package guard

import (
	"regexp"
	"strings"
)

const redactedMarker = "[redacted]"

var (
	sensitiveKeyRe = regexp.MustCompile(`(?i)api[_-]?key|token|password|secret`)

	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{10,}\b`)
	kvRe     = regexp.MustCompile(`(?i)\b([A-Za-z0-9_-]{1,32})(\s*[:=]\s*)([A-Za-z0-9._-]{12,})`)
	skTokRe  = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`)
)

// RedactValue walks a JSON-ish payload and strips secret-looking material.
// Values under sensitive key names are replaced wholesale; string values
// anywhere are scanned for in-band token patterns. Best-effort belt and
// suspenders, not a guarantee.
func RedactValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			if sensitiveKeyRe.MatchString(k) {
				out[k] = redactedMarker
				continue
			}
			out[k] = RedactValue(vv)
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, vv := range x {
			out = append(out, RedactValue(vv))
		}
		return out
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			out = append(out, RedactString(s))
		}
		return out
	case string:
		return RedactString(x)
	default:
		return v
	}
}

// RedactString replaces in-band secret patterns inside a single string.
func RedactString(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	s = bearerRe.ReplaceAllString(s, "Bearer "+redactedMarker)
	s = skTokRe.ReplaceAllString(s, redactedMarker)
	s = kvRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := kvRe.FindStringSubmatch(m)
		if len(sub) != 4 {
			return m
		}
		if !sensitiveKeyRe.MatchString(sub[1]) {
			return m
		}
		return sub[1] + sub[2] + redactedMarker
	})
	return s
}
