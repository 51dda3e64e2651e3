package redact

import (
	"reflect"
	"strings"
	"testing"
)

func TestIsSensitiveDefaultPatterns(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	sensitive := []string{
		"password", "PASSWORD", "Passwd", "secret", "client_secret",
		"token", "access_token", "auth", "Authorization", "Bearer",
		"api_key", "API-KEY", "ApiKey", "ssn", "social_security",
		"credit_card", "card_number",
	}
	for _, name := range sensitive {
		if !policy.IsSensitive(name) {
			t.Errorf("IsSensitive(%q) = false, want true", name)
		}
	}

	control := []string{"name", "email", "status"}
	for _, name := range control {
		if policy.IsSensitive(name) {
			t.Errorf("IsSensitive(%q) = true, want false", name)
		}
	}
}

func TestIsSensitiveExtraPatterns(t *testing.T) {
	t.Parallel()

	policy := NewPolicy("pin", "  ", "IBAN")

	if !policy.IsSensitive("card_pin") {
		t.Error("IsSensitive(card_pin) = false, want true with extra pattern")
	}
	if !policy.IsSensitive("iban_number") {
		t.Error("IsSensitive(iban_number) = false, want true with extra pattern")
	}
	if policy.IsSensitive("email") {
		t.Error("IsSensitive(email) = true, want false")
	}
}

func TestRedactNestedPayload(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	payload := map[string]any{
		"name":     "A",
		"password": "p@ss",
		"profile": map[string]any{
			"email":     "a@example.com",
			"api_token": "tok-123",
			"tags":      []any{"x", map[string]any{"secret": "s"}},
		},
	}

	got, ok := policy.Redact(payload).(map[string]any)
	if !ok {
		t.Fatal("Redact() did not return a map")
	}

	if got["name"] != "A" {
		t.Errorf("name = %v, want A untouched", got["name"])
	}
	if got["password"] != Sentinel {
		t.Errorf("password = %v, want sentinel", got["password"])
	}

	profile := got["profile"].(map[string]any)
	if profile["email"] != "a@example.com" {
		t.Errorf("email = %v, want untouched", profile["email"])
	}
	if profile["api_token"] != Sentinel {
		t.Errorf("api_token = %v, want sentinel", profile["api_token"])
	}

	tags := profile["tags"].([]any)
	if tags[0] != "x" {
		t.Errorf("tags[0] = %v, want x", tags[0])
	}
	if tags[1].(map[string]any)["secret"] != Sentinel {
		t.Errorf("nested secret = %v, want sentinel", tags[1].(map[string]any)["secret"])
	}

	// Original payload must not be mutated.
	if payload["password"] != "p@ss" {
		t.Error("Redact() mutated its input")
	}
}

func TestRedactIdempotent(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	payload := map[string]any{
		"password": "p@ss",
		"nested":   map[string]any{"auth": "x", "name": "A"},
		"blob":     `{"token":"t","keep":"v"}`,
		"items":    []any{1.0, "two", map[string]any{"ssn": "123"}},
	}

	once := policy.Redact(payload)
	twice := policy.Redact(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("redact(redact(x)) = %#v, want %#v", twice, once)
	}
}

func TestRedactDecodesSerializedObjects(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	payload := map[string]any{
		"meta": `{"api_key":"k-123","plain":"ok"}`,
	}

	got := policy.Redact(payload).(map[string]any)
	meta, ok := got["meta"].(string)
	if !ok {
		t.Fatalf("meta = %T, want re-serialized string", got["meta"])
	}
	if strings.Contains(meta, "k-123") {
		t.Fatalf("meta still contains the secret: %s", meta)
	}
	if !strings.Contains(meta, Sentinel) {
		t.Fatalf("meta missing sentinel: %s", meta)
	}
	if !strings.Contains(meta, `"plain":"ok"`) {
		t.Fatalf("meta lost non-sensitive field: %s", meta)
	}
}

func TestRedactLeavesPlainStringsAlone(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	for _, v := range []string{"hello", "{not json", "[1,2]", ""} {
		if got := policy.Redact(v); got != v {
			t.Errorf("Redact(%q) = %v, want unchanged", v, got)
		}
	}
}

func TestRedactHeaders(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()

	headers := map[string]string{
		"Authorization": "Bearer t",
		"Content-Type":  "application/json",
		"X-Api-Key":     "k",
	}

	got := policy.RedactHeaders(headers)
	if got["Authorization"] != Sentinel {
		t.Errorf("Authorization = %q, want sentinel", got["Authorization"])
	}
	if got["X-Api-Key"] != Sentinel {
		t.Errorf("X-Api-Key = %q, want sentinel", got["X-Api-Key"])
	}
	if got["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q, want untouched", got["Content-Type"])
	}

	if headers["Authorization"] != "Bearer t" {
		t.Error("RedactHeaders() mutated its input")
	}

	if policy.RedactHeaders(nil) != nil {
		t.Error("RedactHeaders(nil) should stay nil")
	}
}
