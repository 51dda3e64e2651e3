package service

import (
	"context"
	"sync"

	"github.com/hookrelay/relay-engine/internal/alert"
	"github.com/hookrelay/relay-engine/internal/deliverer"
	"github.com/hookrelay/relay-engine/internal/domain"
	"github.com/hookrelay/relay-engine/internal/repository"
)

type fakeDeliverer struct {
	mu       sync.Mutex
	requests []deliverer.Request
	execFn   func(ctx context.Context, req deliverer.Request) (deliverer.Outcome, error)
}

func (f *fakeDeliverer) Execute(ctx context.Context, req deliverer.Request) (deliverer.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.execFn != nil {
		return f.execFn(ctx, req)
	}
	return deliverer.Outcome{Status: domain.StatusSuccess, Code: 200, Body: `{"ok":true}`}, nil
}

func (f *fakeDeliverer) lastRequest() deliverer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return deliverer.Request{}
	}
	return f.requests[len(f.requests)-1]
}

type fakeAlerts struct {
	mu     sync.Mutex
	events []alert.FailureEvent
	err    error
}

func (f *fakeAlerts) PublishFailure(_ context.Context, event alert.FailureEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeAlerts) Close() error { return nil }

func (f *fakeAlerts) published() []alert.FailureEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]alert.FailureEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fakeThrottle struct {
	waitErr   error
	waitCalls int
}

func (f *fakeThrottle) Allow(context.Context, string) (bool, error) {
	return f.waitErr == nil, f.waitErr
}

func (f *fakeThrottle) Wait(context.Context, string) error {
	f.waitCalls++
	return f.waitErr
}

// failingCreateRepo forces Create to fail while delegating everything
// else to the in-memory repository.
type failingCreateRepo struct {
	*repository.MemoryDeliveryRepo
	createErr error
}

func (f *failingCreateRepo) Create(ctx context.Context, d *domain.Delivery) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemoryDeliveryRepo.Create(ctx, d)
}
