package alert

import (
	"testing"
	"time"
)

func TestFailureEventValidate(t *testing.T) {
	t.Parallel()

	code := 503
	valid := FailureEvent{
		LogID:        42,
		SourceID:     "form-1",
		Endpoint:     "https://api.example.com/hook",
		Status:       "SERVER_ERROR",
		ResponseCode: &code,
		OccurredAt:   time.Now().UTC(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(e *FailureEvent)
	}{
		{name: "missing log id", mutate: func(e *FailureEvent) { e.LogID = 0 }},
		{name: "missing source id", mutate: func(e *FailureEvent) { e.SourceID = " " }},
		{name: "missing status", mutate: func(e *FailureEvent) { e.Status = "" }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := valid
			tc.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Fatal("Validate() expected error")
			}
		})
	}
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewAMQPPublisher("  "); err == nil {
		t.Fatal("expected error for blank url")
	}
}
