package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hookrelay/relay-engine/internal/alert"
	"github.com/hookrelay/relay-engine/internal/deliverer"
	"github.com/hookrelay/relay-engine/internal/domain"
	"github.com/hookrelay/relay-engine/internal/observability"
	"github.com/hookrelay/relay-engine/internal/ratelimit"
	"github.com/hookrelay/relay-engine/internal/redact"
	"github.com/hookrelay/relay-engine/internal/repository"
	"go.uber.org/zap"
)

// RetryCoordinator re-issues failed deliveries on operator request. Each
// retry becomes a new record linked to its origin via retry_of; the
// original record is never touched.
//
// The replayed request is reconstructed from the stored snapshot, which
// was redacted before persistence. A field scrubbed at the original send
// is therefore replayed as the redaction sentinel, not the original
// secret; keeping secrets out of the store wins over replay fidelity.
type RetryCoordinator struct {
	deliveries repository.DeliveryRepository
	deliverer  deliverer.Deliverer
	budget     *ratelimit.RetryBudget
	policy     *redact.Policy
	alerts     alert.Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger

	timeout time.Duration
	now     func() time.Time
}

func NewRetryCoordinator(
	deliveries repository.DeliveryRepository,
	dlv deliverer.Deliverer,
	budget *ratelimit.RetryBudget,
	policy *redact.Policy,
	alerts alert.Publisher,
	metrics *observability.Metrics,
	timeout time.Duration,
	logger *zap.Logger,
) (*RetryCoordinator, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if dlv == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if budget == nil {
		return nil, fmt.Errorf("retry budget is required")
	}
	if policy == nil {
		policy = redact.NewPolicy()
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryCoordinator{
		deliveries: deliveries,
		deliverer:  dlv,
		budget:     budget,
		policy:     policy,
		alerts:     alerts,
		metrics:    metrics,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
	}, nil
}

// Retry re-issues the delivery recorded under logID. It returns the new
// record, or a named rejection: ErrNotRetryable when the record can never
// be retried (wrong status, per-record budget spent), ErrRateLimited when
// the global hourly budget is exhausted.
func (c *RetryCoordinator) Retry(ctx context.Context, logID int64) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	original, err := c.deliveries.GetByID(ctx, logID)
	if err != nil {
		return nil, err
	}

	if !original.Status.IsFailure() {
		c.metrics.IncRetryRejected("not_retryable")
		return nil, fmt.Errorf("%w: record %d has status %s", domain.ErrNotRetryable, logID, original.Status)
	}

	// Budget counts are taken before creating the retry record so the
	// new pending row does not count against itself.
	priorRetries, err := c.deliveries.CountRetriesOf(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("failed to count retries of record %d: %w", logID, err)
	}
	if err := c.budget.Check(ctx, logID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotRetryable):
			c.metrics.IncRetryRejected("not_retryable")
		case errors.Is(err, domain.ErrRateLimited):
			c.metrics.IncRetryRejected("rate_limited")
		}
		return nil, err
	}

	retry := &domain.Delivery{
		SourceID:       original.SourceID,
		CorrelationID:  uuid.NewString(),
		Endpoint:       original.Endpoint,
		Method:         original.Method,
		Status:         domain.StatusPending,
		RequestPayload: original.RequestPayload,
		RequestHeaders: original.RequestHeaders,
		RetryOf:        &original.ID,
	}

	ctx = observability.WithCorrelationID(ctx, retry.CorrelationID)
	logger := observability.ContextLogger(ctx, c.logger)

	if err := c.deliveries.Create(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to create retry record: %w", err)
	}

	logger.Info("retrying delivery",
		zap.Int64("originalId", original.ID),
		zap.Int64("retryId", retry.ID),
		zap.Int64("attempt", priorRetries+1),
	)

	start := c.now()
	outcome, err := c.deliverer.Execute(ctx, deliverer.Request{
		Endpoint: retry.Endpoint,
		Method:   retry.Method,
		Payload:  decodePayloadSnapshot(retry.RequestPayload),
		Headers:  decodeHeaderSnapshot(retry.RequestHeaders),
		Timeout:  c.timeout,
	})
	if err != nil {
		// Leave the retry record pending: an aborted attempt is
		// diagnostic evidence, not a success.
		logger.Error("retry aborted before completion",
			zap.Int64("retryId", retry.ID),
			zap.Error(err),
		)
		return nil, err
	}

	attempt := int(priorRetries) + 1
	completion := completionFromOutcome(c.policy, outcome, c.now().Sub(start))
	completion.RetryCount = &attempt
	if err := c.deliveries.Complete(ctx, retry.ID, completion); err != nil {
		logger.Error("failed to complete retry record",
			zap.Int64("retryId", retry.ID),
			zap.Error(err),
		)
	}

	c.metrics.ObserveDelivery(outcome.Status.String(), true, outcome.Latency)
	c.publishFailureAlert(ctx, logger, retry, outcome)

	completed, err := c.deliveries.GetByID(ctx, retry.ID)
	if err != nil {
		return retry, nil
	}
	return completed, nil
}

func (c *RetryCoordinator) publishFailureAlert(
	ctx context.Context,
	logger *zap.Logger,
	retry *domain.Delivery,
	outcome deliverer.Outcome,
) {
	if c.alerts == nil || !outcome.Status.IsFailure() {
		return
	}

	event := alert.FailureEvent{
		LogID:         retry.ID,
		SourceID:      retry.SourceID,
		CorrelationID: retry.CorrelationID,
		Endpoint:      retry.Endpoint,
		Status:        outcome.Status.String(),
		ErrorMessage:  outcome.ErrorMessage,
		IsRetry:       true,
		OccurredAt:    c.now().UTC(),
	}
	if outcome.IsHTTP() {
		code := outcome.Code
		event.ResponseCode = &code
	}

	if err := c.alerts.PublishFailure(ctx, event); err != nil {
		logger.Error("failed to publish failure alert",
			zap.Int64("retryId", retry.ID),
			zap.Error(err),
		)
	}
}
