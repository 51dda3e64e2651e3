// Package redact replaces sensitive field values with a fixed sentinel
// before they reach the delivery log.
package redact

import (
	"encoding/json"
	"strings"
)

// Sentinel is the irreversible replacement for a sensitive value.
const Sentinel = "***REDACTED***"

// defaultPatterns are matched case-insensitively as substrings of field
// and header names.
var defaultPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"auth",
	"authorization",
	"bearer",
	"api_key",
	"api-key",
	"apikey",
	"ssn",
	"social_security",
	"credit_card",
	"card_number",
}

// Policy decides which field names are sensitive and scrubs their values
// from nested payloads. It is pure with respect to its pattern set.
type Policy struct {
	patterns []string
}

// NewPolicy builds a policy from the default pattern set plus any extra
// patterns supplied by external configuration. Blank extras are ignored.
func NewPolicy(extra ...string) *Policy {
	patterns := make([]string, 0, len(defaultPatterns)+len(extra))
	patterns = append(patterns, defaultPatterns...)
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Policy{patterns: patterns}
}

// Patterns returns a copy of the active pattern set.
func (p *Policy) Patterns() []string {
	out := make([]string, len(p.patterns))
	copy(out, p.patterns)
	return out
}

// IsSensitive reports whether a field or header name matches any pattern,
// case-insensitively, by substring.
func (p *Policy) IsSensitive(name string) bool {
	lowered := strings.ToLower(name)
	for _, pattern := range p.patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// Redact walks maps and slices recursively, replacing the value of any
// sensitive key with the sentinel. String values that decode as JSON
// objects are decoded and recursed so secrets nested inside serialized
// fields do not slip through. The operation is idempotent.
func (p *Policy) Redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if p.IsSensitive(key) {
				out[key] = Sentinel
				continue
			}
			out[key] = p.Redact(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = p.Redact(inner)
		}
		return out
	case string:
		if nested, ok := decodeObject(v); ok {
			redacted, err := json.Marshal(p.Redact(nested))
			if err != nil {
				return v
			}
			return string(redacted)
		}
		return v
	default:
		return value
	}
}

// RedactHeaders scrubs a flat header map.
func (p *Policy) RedactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if p.IsSensitive(name) {
			out[name] = Sentinel
			continue
		}
		out[name] = value
	}
	return out
}

func decodeObject(s string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var nested map[string]any
	if err := json.Unmarshal([]byte(trimmed), &nested); err != nil {
		return nil, false
	}
	return nested, true
}
