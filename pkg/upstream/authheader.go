package upstream

import (
	"fmt"
	"strings"
)

// allowedPlaceholders is the closed set of substitutions an auth
// header template may reference.
var allowedPlaceholders = map[string]bool{
	"{key}":        true,
	"{project_id}": true,
}

// SplitAuthHeaderTemplate splits a ProviderType auth-header template
// into the header name and its value format. A template may carry the
// name explicitly ("Authorization: Bearer {key}", "x-api-key: {key}");
// a value-only template ("Bearer {key}") targets Authorization.
func SplitAuthHeaderTemplate(template string) (name, valueFormat string) {
	if i := strings.IndexByte(template, ':'); i > 0 {
		if candidate := template[:i]; isHeaderName(candidate) {
			return candidate, strings.TrimSpace(template[i+1:])
		}
	}
	return "Authorization", template
}

// isHeaderName reports whether s is a plausible HTTP header field
// name. Placeholder braces and spaces disqualify it, which keeps a
// value format containing a colon ("{key}:{project_id}") from being
// misread as a named header.
func isHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// ValidateAuthHeaderTemplate rejects a template whose value format is
// empty or contains any placeholder outside {key}/{project_id}.
// Called when a ProviderType enters the request plane, so a typo'd
// placeholder fails fast rather than silently forwarding the literal
// braces upstream.
func ValidateAuthHeaderTemplate(template string) error {
	_, valueFormat := SplitAuthHeaderTemplate(template)
	if strings.TrimSpace(valueFormat) == "" {
		return fmt.Errorf("upstream: auth header template %q has an empty value", template)
	}

	i := 0
	for i < len(valueFormat) {
		start := strings.IndexByte(valueFormat[i:], '{')
		if start < 0 {
			break
		}
		start += i
		end := strings.IndexByte(valueFormat[start:], '}')
		if end < 0 {
			return fmt.Errorf("upstream: unterminated placeholder in auth header template %q", template)
		}
		end += start

		placeholder := valueFormat[start : end+1]
		if !allowedPlaceholders[placeholder] {
			return fmt.Errorf("upstream: unknown placeholder %q in auth header template %q", placeholder, template)
		}
		i = end + 1
	}
	return nil
}

// RenderAuthHeader substitutes {key}/{project_id} in a value format.
func RenderAuthHeader(valueFormat, key, projectID string) string {
	r := strings.NewReplacer("{key}", key, "{project_id}", projectID)
	return r.Replace(valueFormat)
}
