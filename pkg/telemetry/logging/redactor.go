package logging

import (
	"log/slog"
	"regexp"
	"strings"

	"aperturegw/gateway/pkg/config"
)

// Redactor scrubs credential material and PII from log output. A
// gateway's logs sit one typo away from containing provider API keys,
// OAuth tokens, and client addresses; the redactor makes that typo
// survivable.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names; custom patterns with the same name replace
// the built-in.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternEmail       = "email"
	PatternIPv4        = "ipv4"
	PatternPassword    = "password"
)

var builtinPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	// Provider-style API keys: sk- prefixes and key=... carriers.
	{PatternAPIKey, `(sk-[a-zA-Z0-9]+|api[-_]?key[-_:]\s*[a-zA-Z0-9]+)`, "sk-***"},
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
	{PatternIPv4, `\b(?:\d{1,3}\.){3}\d{1,3}\b`, "*.*.*.*"},
	{PatternPassword, `(password|passwd|pwd)[:=]\s*\S+`, "$1: ***"},
}

// NewRedactor builds a Redactor from the built-in pattern set plus any
// custom patterns from configuration. A custom pattern that fails to
// compile is skipped.
func NewRedactor(custom []config.RedactPattern) *Redactor {
	r := &Redactor{}
	replaced := make(map[string]bool)

	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{p.Name, regex, p.Replacement})
		replaced[p.Name] = true
	}
	for _, p := range builtinPatterns {
		if replaced[p.name] {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{p.name, regexp.MustCompile(p.regex), p.replacement})
	}
	return r
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// sensitiveKeyFragments mark attribute keys whose values are secrets
// regardless of shape.
var sensitiveKeyFragments = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"authorization", "credential",
	"private_key", "privatekey",
	"code_verifier",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// RedactAttr scrubs one slog attribute: values under a sensitive key
// are masked outright (keeping a four-character hint), string values
// under other keys are pattern-scrubbed, and groups recurse.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		out := make([]slog.Attr, len(members))
		for i, m := range members {
			out[i] = r.RedactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// RedactArgs scrubs alternating key/value log arguments the same way
// RedactAttr scrubs attributes.
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	copy(out, args)

	for i := 1; i < len(out); i += 2 {
		if key, ok := out[i-1].(string); ok && isSensitiveKey(key) {
			if s, ok := out[i].(string); ok {
				out[i] = maskValue(s)
			} else {
				out[i] = "***"
			}
			continue
		}
		if s, ok := out[i].(string); ok {
			out[i] = r.RedactString(s)
		}
	}
	return out
}

// maskValue hides a secret while keeping a short prefix so operators
// can tell which credential was involved.
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "***"
	}
	return v[:4] + "***"
}
