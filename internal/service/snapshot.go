package service

import (
	"encoding/json"

	"github.com/hookrelay/relay-engine/internal/redact"
)

// encodePayloadSnapshot redacts and serializes a payload for storage.
// Returns the empty string for an empty payload.
func encodePayloadSnapshot(policy *redact.Policy, payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	redacted := policy.Redact(payload)
	encoded, err := json.Marshal(redacted)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// encodeHeaderSnapshot redacts and serializes a header map for storage.
func encodeHeaderSnapshot(policy *redact.Policy, headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	encoded, err := json.Marshal(policy.RedactHeaders(headers))
	if err != nil {
		return ""
	}
	return string(encoded)
}

// decodePayloadSnapshot restores a stored payload snapshot. The snapshot
// was redacted before persistence, so sensitive fields come back as the
// sentinel value.
func decodePayloadSnapshot(snapshot string) map[string]any {
	if snapshot == "" {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(snapshot), &payload); err != nil {
		return nil
	}
	return payload
}

func decodeHeaderSnapshot(snapshot string) map[string]string {
	if snapshot == "" {
		return nil
	}

	var headers map[string]string
	if err := json.Unmarshal([]byte(snapshot), &headers); err != nil {
		return nil
	}
	return headers
}
