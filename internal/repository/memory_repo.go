package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookrelay/relay-engine/internal/domain"
)

// MemoryDeliveryRepo is an in-memory DeliveryRepository with the same
// completion and windowing semantics as the Postgres implementation. It
// backs local development without a database and the test suites.
type MemoryDeliveryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Delivery
	now    func() time.Time
}

func NewMemoryDeliveryRepo() *MemoryDeliveryRepo {
	return &MemoryDeliveryRepo{
		nextID: 1,
		rows:   make(map[int64]*domain.Delivery),
		now:    time.Now,
	}
}

// SetClock overrides the repository clock. Test hook.
func (r *MemoryDeliveryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryDeliveryRepo) Create(_ context.Context, d *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *d
	stored.ID = r.nextID
	r.nextID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	r.rows[stored.ID] = &stored

	*d = stored
	return nil
}

func (r *MemoryDeliveryRepo) Complete(_ context.Context, id int64, outcome Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if row.Status != domain.StatusPending {
		return domain.ErrAlreadyCompleted
	}

	row.Status = outcome.Status()
	row.ResponseCode = outcome.ResponseCode
	row.ResponsePayload = outcome.ResponsePayload
	row.ResponseHeaders = outcome.ResponseHeaders
	row.ErrorMessage = outcome.ErrorMessage
	executionTime := outcome.ExecutionTime
	row.ExecutionTime = &executionTime
	if outcome.RetryCount != nil {
		row.RetryCount = *outcome.RetryCount
	}
	return nil
}

func (r *MemoryDeliveryRepo) GetByID(_ context.Context, id int64) (*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *MemoryDeliveryRepo) ListRecent(_ context.Context, sourceID string, limit int) ([]domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(limit, func(d *domain.Delivery) bool {
		return sourceID == "" || d.SourceID == sourceID
	}), nil
}

func (r *MemoryDeliveryRepo) RecentErrors(_ context.Context, limit int) ([]domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(limit, func(d *domain.Delivery) bool {
		return d.Status.IsFailure()
	}), nil
}

func (r *MemoryDeliveryRepo) collect(limit int, match func(*domain.Delivery) bool) []domain.Delivery {
	if limit < 1 {
		limit = 50
	}

	var out []domain.Delivery
	for _, row := range r.rows {
		if match(row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryDeliveryRepo) CountInWindow(_ context.Context, window time.Duration, filter WindowFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.now().UTC().Add(-window)
	var count int64
	for _, row := range r.rows {
		if row.CreatedAt.Before(since) {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.SourceID != nil && *filter.SourceID != "" && row.SourceID != *filter.SourceID {
			continue
		}
		if filter.RetriesOnly && row.RetryOf == nil {
			continue
		}
		count++
	}
	return count, nil
}

func (r *MemoryDeliveryRepo) SuccessRateInWindow(_ context.Context, window time.Duration, sourceID *string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.now().UTC().Add(-window)
	var total, succeeded int64
	for _, row := range r.rows {
		if row.CreatedAt.Before(since) || !matchSource(row, sourceID) {
			continue
		}
		total++
		if row.Status == domain.StatusSuccess {
			succeeded++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(succeeded) / float64(total) * 100, nil
}

func (r *MemoryDeliveryRepo) AvgLatencyInWindow(_ context.Context, window time.Duration, sourceID *string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.now().UTC().Add(-window)
	var sum float64
	var count int64
	for _, row := range r.rows {
		if row.CreatedAt.Before(since) || !matchSource(row, sourceID) || row.ExecutionTime == nil {
			continue
		}
		sum += *row.ExecutionTime
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count) * 1000, nil
}

func (r *MemoryDeliveryRepo) CountRetriesOf(_ context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, row := range r.rows {
		if row.RetryOf != nil && *row.RetryOf == id {
			count++
		}
	}
	return count, nil
}

func (r *MemoryDeliveryRepo) PurgeOlderThan(_ context.Context, age time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().UTC().Add(-age)
	var deleted int64
	for id, row := range r.rows {
		if row.CreatedAt.Before(cutoff) {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func matchSource(d *domain.Delivery, sourceID *string) bool {
	if sourceID == nil || *sourceID == "" {
		return true
	}
	return d.SourceID == *sourceID
}

var _ DeliveryRepository = (*MemoryDeliveryRepo)(nil)
