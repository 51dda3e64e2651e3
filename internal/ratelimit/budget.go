package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/hookrelay/relay-engine/internal/domain"
	"github.com/hookrelay/relay-engine/internal/repository"
)

const (
	DefaultMaxManualRetries  = 3
	DefaultMaxRetriesPerHour = 10

	globalWindow = time.Hour
)

// RetryBudget enforces the two retry ceilings: how many times a single
// record may be retried, and how many retries may be issued globally in
// the trailing hour. Both counts are derived from the delivery log at
// call time, so there is no separate counter state that can drift.
type RetryBudget struct {
	deliveries        repository.DeliveryRepository
	maxManualRetries  int
	maxRetriesPerHour int
}

func NewRetryBudget(deliveries repository.DeliveryRepository, maxManualRetries, maxRetriesPerHour int) (*RetryBudget, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if maxManualRetries <= 0 {
		maxManualRetries = DefaultMaxManualRetries
	}
	if maxRetriesPerHour <= 0 {
		maxRetriesPerHour = DefaultMaxRetriesPerHour
	}

	return &RetryBudget{
		deliveries:        deliveries,
		maxManualRetries:  maxManualRetries,
		maxRetriesPerHour: maxRetriesPerHour,
	}, nil
}

// Check returns nil when a retry of the given record may be issued.
// Per-record exhaustion is permanent for that record (ErrNotRetryable);
// the global ceiling is transient (ErrRateLimited, try again later).
func (b *RetryBudget) Check(ctx context.Context, recordID int64) error {
	issued, err := b.deliveries.CountRetriesOf(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to count retries of record %d: %w", recordID, err)
	}
	if issued >= int64(b.maxManualRetries) {
		return fmt.Errorf("%w: record %d already retried %d times", domain.ErrNotRetryable, recordID, issued)
	}

	global, err := b.deliveries.CountInWindow(ctx, globalWindow, repository.WindowFilter{RetriesOnly: true})
	if err != nil {
		return fmt.Errorf("failed to count retries in window: %w", err)
	}
	if global >= int64(b.maxRetriesPerHour) {
		return fmt.Errorf("%w: %d retries issued in the last hour", domain.ErrRateLimited, global)
	}

	return nil
}
