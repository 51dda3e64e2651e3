package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/hookrelay/relay-engine/internal/domain"
	"github.com/hookrelay/relay-engine/internal/repository"
)

func seedFailedDelivery(t *testing.T, repo *repository.MemoryDeliveryRepo, retryOf *int64) *domain.Delivery {
	t.Helper()

	d := &domain.Delivery{
		SourceID:      "form-1",
		CorrelationID: "corr",
		Endpoint:      "https://api.example.com/hook",
		Method:        "POST",
		Status:        domain.StatusPending,
		RetryOf:       retryOf,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	code := 500
	if err := repo.Complete(context.Background(), d.ID, repository.Completion{ResponseCode: &code}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	return d
}

func TestRetryBudgetAllowsWithinLimits(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryDeliveryRepo()
	original := seedFailedDelivery(t, repo, nil)

	budget, err := NewRetryBudget(repo, 2, 10)
	if err != nil {
		t.Fatalf("NewRetryBudget() error = %v", err)
	}

	if err := budget.Check(context.Background(), original.ID); err != nil {
		t.Fatalf("Check() error = %v, want nil", err)
	}
}

func TestRetryBudgetPerRecordExhaustion(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryDeliveryRepo()
	original := seedFailedDelivery(t, repo, nil)
	seedFailedDelivery(t, repo, &original.ID)
	seedFailedDelivery(t, repo, &original.ID)

	budget, err := NewRetryBudget(repo, 2, 10)
	if err != nil {
		t.Fatalf("NewRetryBudget() error = %v", err)
	}

	if err := budget.Check(context.Background(), original.ID); !errors.Is(err, domain.ErrNotRetryable) {
		t.Fatalf("Check() error = %v, want ErrNotRetryable", err)
	}
}

func TestRetryBudgetGlobalWindowExhaustion(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryDeliveryRepo()
	first := seedFailedDelivery(t, repo, nil)
	second := seedFailedDelivery(t, repo, nil)
	// One retry of `first` already issued this hour fills the global
	// budget of one; `second` is still within its per-record budget.
	seedFailedDelivery(t, repo, &first.ID)

	budget, err := NewRetryBudget(repo, 3, 1)
	if err != nil {
		t.Fatalf("NewRetryBudget() error = %v", err)
	}

	if err := budget.Check(context.Background(), second.ID); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Check() error = %v, want ErrRateLimited", err)
	}
}

func TestRetryBudgetDefaults(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryDeliveryRepo()
	budget, err := NewRetryBudget(repo, 0, 0)
	if err != nil {
		t.Fatalf("NewRetryBudget() error = %v", err)
	}

	if budget.maxManualRetries != DefaultMaxManualRetries {
		t.Errorf("maxManualRetries = %d, want %d", budget.maxManualRetries, DefaultMaxManualRetries)
	}
	if budget.maxRetriesPerHour != DefaultMaxRetriesPerHour {
		t.Errorf("maxRetriesPerHour = %d, want %d", budget.maxRetriesPerHour, DefaultMaxRetriesPerHour)
	}

	if _, err := NewRetryBudget(nil, 1, 1); err == nil {
		t.Error("NewRetryBudget(nil) should fail")
	}
}
