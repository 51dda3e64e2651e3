// Package alert publishes failed-delivery events for operator tooling.
// The publisher is an optional collaborator: a nil Publisher disables
// alerting without touching the delivery pipeline.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FailureEvent is the broker payload emitted when a delivery completes in
// a failure status. Payloads are never included; the delivery log is the
// place to look them up.
type FailureEvent struct {
	LogID         int64     `json:"logId"`
	SourceID      string    `json:"sourceId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Endpoint      string    `json:"endpoint"`
	Status        string    `json:"status"`
	ResponseCode  *int      `json:"responseCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	IsRetry       bool      `json:"isRetry"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (e FailureEvent) Validate() error {
	if e.LogID <= 0 {
		return fmt.Errorf("logId is required")
	}
	if strings.TrimSpace(e.SourceID) == "" {
		return fmt.Errorf("sourceId is required")
	}
	if strings.TrimSpace(e.Status) == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}

// Publisher publishes failure events.
type Publisher interface {
	PublishFailure(ctx context.Context, event FailureEvent) error
	Close() error
}
