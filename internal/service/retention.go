package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hookrelay/relay-engine/internal/observability"
	"github.com/hookrelay/relay-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetention     = 90 * 24 * time.Hour
	defaultSweepInterval = 24 * time.Hour
)

// RetentionSweeper periodically deletes delivery records older than the
// retention threshold. The pipeline itself never self-schedules cleanup;
// this sweeper is the scheduled collaborator that calls into it.
type RetentionSweeper struct {
	deliveries repository.DeliveryRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
	retention  time.Duration
	interval   time.Duration
}

func NewRetentionSweeper(
	deliveries repository.DeliveryRepository,
	retention time.Duration,
	interval time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RetentionSweeper, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionSweeper{
		deliveries: deliveries,
		metrics:    metrics,
		logger:     logger,
		retention:  retention,
		interval:   interval,
	}, nil
}

func (s *RetentionSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run once at startup so overdue records do not wait a full interval.
	if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one purge pass and reports the number of deleted records.
func (s *RetentionSweeper) Sweep(ctx context.Context) error {
	deleted, err := s.deliveries.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		return fmt.Errorf("failed to purge expired delivery logs: %w", err)
	}

	s.metrics.AddLogsPurged(deleted)
	if deleted > 0 {
		s.logger.Info("purged expired delivery logs",
			zap.Int64("deleted", deleted),
			zap.Duration("retention", s.retention),
		)
	}
	return nil
}
