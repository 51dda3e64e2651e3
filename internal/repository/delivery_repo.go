package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hookrelay/relay-engine/internal/domain"
	"gorm.io/gorm"
)

// Completion carries the outcome of a finished delivery attempt. Exactly
// one of ResponseCode or ErrorMessage is set: an HTTP response was
// obtained, or the transport failed before one existed.
type Completion struct {
	ResponseCode    *int
	ResponsePayload *string
	ResponseHeaders *string
	ErrorMessage    *string
	ExecutionTime   float64
	RetryCount      *int
}

// Status derives the stored status from the outcome shape.
func (c Completion) Status() domain.Status {
	if c.ErrorMessage != nil {
		return domain.StatusError
	}
	if c.ResponseCode != nil {
		return domain.ClassifyHTTPStatus(*c.ResponseCode)
	}
	return domain.StatusUnknown
}

// WindowFilter narrows window-based aggregate queries.
type WindowFilter struct {
	Status      *domain.Status
	SourceID    *string
	RetriesOnly bool
}

// DeliveryRepository is the persistence port for delivery records.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	Complete(ctx context.Context, id int64, outcome Completion) error
	GetByID(ctx context.Context, id int64) (*domain.Delivery, error)
	ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.Delivery, error)
	RecentErrors(ctx context.Context, limit int) ([]domain.Delivery, error)
	CountInWindow(ctx context.Context, window time.Duration, filter WindowFilter) (int64, error)
	SuccessRateInWindow(ctx context.Context, window time.Duration, sourceID *string) (float64, error)
	AvgLatencyInWindow(ctx context.Context, window time.Duration, sourceID *string) (float64, error)
	CountRetriesOf(ctx context.Context, id int64) (int64, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

var _ DeliveryRepository = (*GormDeliveryRepo)(nil)

type GormDeliveryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db, now: time.Now}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

// Complete performs the single pending -> outcome transition. The update
// is a compare-and-set on status = PENDING, so concurrent completions of
// the same id resolve to exactly one winner and the losers observe
// ErrAlreadyCompleted.
func (r *GormDeliveryRepo) Complete(ctx context.Context, id int64, outcome Completion) error {
	updates := map[string]any{
		"status":           outcome.Status(),
		"response_code":    outcome.ResponseCode,
		"response_payload": outcome.ResponsePayload,
		"response_headers": outcome.ResponseHeaders,
		"error_message":    outcome.ErrorMessage,
		"execution_time":   outcome.ExecutionTime,
	}
	if outcome.RetryCount != nil {
		updates["retry_count"] = *outcome.RetryCount
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var model DeliveryModel
	err := r.db.WithContext(ctx).Select("id").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrAlreadyCompleted
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id int64) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.Delivery, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryModel{})
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	return r.list(query, limit)
}

func (r *GormDeliveryRepo) RecentErrors(ctx context.Context, limit int) ([]domain.Delivery, error) {
	query := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("status IN ?", failureStatuses())
	return r.list(query, limit)
}

func (r *GormDeliveryRepo) list(query *gorm.DB, limit int) ([]domain.Delivery, error) {
	if limit < 1 {
		limit = 50
	}

	var models []DeliveryModel
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

func (r *GormDeliveryRepo) CountInWindow(ctx context.Context, window time.Duration, filter WindowFilter) (int64, error) {
	query := r.windowQuery(ctx, window, filter.SourceID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RetriesOnly {
		query = query.Where("retry_of IS NOT NULL")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormDeliveryRepo) SuccessRateInWindow(ctx context.Context, window time.Duration, sourceID *string) (float64, error) {
	var total int64
	if err := r.windowQuery(ctx, window, sourceID).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	var succeeded int64
	err := r.windowQuery(ctx, window, sourceID).
		Where("status = ?", domain.StatusSuccess).
		Count(&succeeded).Error
	if err != nil {
		return 0, err
	}

	return float64(succeeded) / float64(total) * 100, nil
}

// AvgLatencyInWindow returns the mean execution time of completed records
// in the window, in milliseconds. Zero when the window is empty.
func (r *GormDeliveryRepo) AvgLatencyInWindow(ctx context.Context, window time.Duration, sourceID *string) (float64, error) {
	var avgSeconds float64
	err := r.windowQuery(ctx, window, sourceID).
		Where("execution_time IS NOT NULL").
		Select("COALESCE(AVG(execution_time), 0)").
		Scan(&avgSeconds).Error
	if err != nil {
		return 0, err
	}
	return avgSeconds * 1000, nil
}

func (r *GormDeliveryRepo) CountRetriesOf(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("retry_of = ?", id).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormDeliveryRepo) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-age)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&DeliveryModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) windowQuery(ctx context.Context, window time.Duration, sourceID *string) *gorm.DB {
	since := r.now().UTC().Add(-window)
	query := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("created_at >= ?", since)
	if sourceID != nil && *sourceID != "" {
		query = query.Where("source_id = ?", *sourceID)
	}
	return query
}

func failureStatuses() []domain.Status {
	return []domain.Status{domain.StatusError, domain.StatusClientError, domain.StatusServerError}
}
