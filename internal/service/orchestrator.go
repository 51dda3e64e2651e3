package service

import (
	"context"
	"fmt"
	"strings"
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

const (
	defaultSendTimeout     = 10 * time.Second
	defaultStatsWindow     = 24 * time.Hour
	recentErrorsStatsLimit = 10
)

// SendInput describes one fresh outbound delivery.
type SendInput struct {
	SourceID string
	Endpoint string
	Method   string
	Payload  map[string]any
	Headers  map[string]string
	Timeout  time.Duration
}

// Statistics is the aggregate view consumed by dashboards.
type Statistics struct {
	Count        int64
	SuccessRate  float64
	AvgLatencyMs float64
	RecentErrors []domain.Delivery
}

// OrchestratorOptions carries the policy switches for fresh sends.
type OrchestratorOptions struct {
	// LoggingEnabled controls the audit trail only. Disabling it never
	// blocks or alters delivery; Send just reports log id 0.
	LoggingEnabled bool
	DefaultTimeout time.Duration
}

// Orchestrator is the entry point for fresh deliveries: it redacts the
// request, opens a pending log record, executes the call, and completes
// the record. The caller receives the raw outcome; only the redacted copy
// is persisted.
type Orchestrator struct {
	deliveries repository.DeliveryRepository
	deliverer  deliverer.Deliverer
	policy     *redact.Policy
	throttle   ratelimit.Throttle
	alerts     alert.Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger

	loggingEnabled bool
	defaultTimeout time.Duration
	now            func() time.Time
}

func NewOrchestrator(
	deliveries repository.DeliveryRepository,
	dlv deliverer.Deliverer,
	policy *redact.Policy,
	throttle ratelimit.Throttle,
	alerts alert.Publisher,
	metrics *observability.Metrics,
	opts OrchestratorOptions,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if dlv == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if policy == nil {
		policy = redact.NewPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultSendTimeout
	}

	return &Orchestrator{
		deliveries:     deliveries,
		deliverer:      dlv,
		policy:         policy,
		throttle:       throttle,
		alerts:         alerts,
		metrics:        metrics,
		logger:         logger,
		loggingEnabled: opts.LoggingEnabled,
		defaultTimeout: opts.DefaultTimeout,
		now:            time.Now,
	}, nil
}

// Send delivers one payload and audits the attempt. The returned outcome
// is the raw, unredacted result for downstream business logic; the log id
// is 0 when the audit trail is disabled or the insert failed. Logging
// failures never block delivery.
func (o *Orchestrator) Send(ctx context.Context, input SendInput) (deliverer.Outcome, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	method, err := domain.NormalizeMethod(input.Method)
	if err != nil {
		return deliverer.Outcome{}, 0, err
	}

	record := &domain.Delivery{
		SourceID:       strings.TrimSpace(input.SourceID),
		CorrelationID:  uuid.NewString(),
		Endpoint:       strings.TrimSpace(input.Endpoint),
		Method:         method,
		Status:         domain.StatusPending,
		RequestPayload: encodePayloadSnapshot(o.policy, input.Payload),
		RequestHeaders: encodeHeaderSnapshot(o.policy, input.Headers),
	}
	if err := record.Validate(); err != nil {
		return deliverer.Outcome{}, 0, err
	}

	ctx = observability.WithCorrelationID(ctx, record.CorrelationID)
	logger := observability.ContextLogger(ctx, o.logger)

	if o.throttle != nil {
		// The throttle fails open: a broken limiter backend must not
		// take delivery down with it.
		if err := o.throttle.Wait(ctx, record.SourceID); err != nil {
			if ctx.Err() != nil {
				return deliverer.Outcome{}, 0, ctx.Err()
			}
			logger.Warn("send throttle unavailable, proceeding",
				zap.String("sourceId", record.SourceID),
				zap.Error(err),
			)
		}
	}

	start := o.now()
	var logID int64
	if o.loggingEnabled {
		if err := o.deliveries.Create(ctx, record); err != nil {
			logger.Error("failed to create delivery log record",
				zap.String("sourceId", record.SourceID),
				zap.Error(err),
			)
		} else {
			logID = record.ID
		}
	}

	outcome, err := o.deliverer.Execute(ctx, deliverer.Request{
		Endpoint: record.Endpoint,
		Method:   record.Method,
		Payload:  input.Payload,
		Headers:  input.Headers,
		Timeout:  o.timeoutFor(input.Timeout),
	})
	if err != nil {
		// Unexpected deliverer misuse: leave the record pending as
		// evidence of the aborted attempt.
		logger.Error("delivery aborted before completion",
			zap.Int64("logId", logID),
			zap.Error(err),
		)
		return deliverer.Outcome{}, logID, err
	}

	if logID != 0 {
		o.complete(ctx, logger, logID, outcome, o.now().Sub(start), nil)
	}

	o.metrics.ObserveDelivery(outcome.Status.String(), false, outcome.Latency)
	o.publishFailureAlert(ctx, logger, record, logID, outcome)

	return outcome, logID, nil
}

// Statistics aggregates delivery counters for dashboards. An empty source
// id aggregates across all sources.
func (o *Orchestrator) Statistics(ctx context.Context, sourceID string, window time.Duration) (*Statistics, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = defaultStatsWindow
	}

	var source *string
	if trimmed := strings.TrimSpace(sourceID); trimmed != "" {
		source = &trimmed
	}

	count, err := o.deliveries.CountInWindow(ctx, window, repository.WindowFilter{SourceID: source})
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	successRate, err := o.deliveries.SuccessRateInWindow(ctx, window, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compute success rate: %w", err)
	}
	avgLatency, err := o.deliveries.AvgLatencyInWindow(ctx, window, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average latency: %w", err)
	}
	recentErrors, err := o.deliveries.RecentErrors(ctx, recentErrorsStatsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent errors: %w", err)
	}

	return &Statistics{
		Count:        count,
		SuccessRate:  successRate,
		AvgLatencyMs: avgLatency,
		RecentErrors: recentErrors,
	}, nil
}

func (o *Orchestrator) timeoutFor(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return o.defaultTimeout
}

func (o *Orchestrator) complete(
	ctx context.Context,
	logger *zap.Logger,
	logID int64,
	outcome deliverer.Outcome,
	elapsed time.Duration,
	retryCount *int,
) {
	completion := completionFromOutcome(o.policy, outcome, elapsed)
	completion.RetryCount = retryCount

	if err := o.deliveries.Complete(ctx, logID, completion); err != nil {
		logger.Error("failed to complete delivery log record",
			zap.Int64("logId", logID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publishFailureAlert(
	ctx context.Context,
	logger *zap.Logger,
	record *domain.Delivery,
	logID int64,
	outcome deliverer.Outcome,
) {
	if o.alerts == nil || !outcome.Status.IsFailure() || logID == 0 {
		return
	}

	event := alert.FailureEvent{
		LogID:         logID,
		SourceID:      record.SourceID,
		CorrelationID: record.CorrelationID,
		Endpoint:      record.Endpoint,
		Status:        outcome.Status.String(),
		ErrorMessage:  outcome.ErrorMessage,
		IsRetry:       record.IsRetry(),
		OccurredAt:    o.now().UTC(),
	}
	if outcome.IsHTTP() {
		code := outcome.Code
		event.ResponseCode = &code
	}

	if err := o.alerts.PublishFailure(ctx, event); err != nil {
		logger.Error("failed to publish failure alert",
			zap.Int64("logId", logID),
			zap.Error(err),
		)
	}
}

// completionFromOutcome maps a deliverer outcome onto a store completion.
// Response payload and headers pass through redaction on the way in;
// request snapshots were redacted at creation.
func completionFromOutcome(policy *redact.Policy, outcome deliverer.Outcome, elapsed time.Duration) repository.Completion {
	completion := repository.Completion{
		ExecutionTime: elapsed.Seconds(),
	}

	if outcome.IsHTTP() {
		code := outcome.Code
		completion.ResponseCode = &code
		body := redactResponseBody(policy, outcome.Body)
		completion.ResponsePayload = &body
		if headers := encodeHeaderSnapshot(policy, outcome.Headers); headers != "" {
			completion.ResponseHeaders = &headers
		}
		return completion
	}

	message := outcome.ErrorMessage
	completion.ErrorMessage = &message
	return completion
}

func redactResponseBody(policy *redact.Policy, body string) string {
	redacted, ok := policy.Redact(body).(string)
	if !ok {
		return body
	}
	return redacted
}
