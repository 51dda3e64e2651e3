package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDeliveryCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.ObserveDelivery("SUCCESS", false, 120*time.Millisecond)
	metrics.ObserveDelivery("server_error", true, 300*time.Millisecond)
	metrics.IncRetryRejected("rate_limited")
	metrics.AddLogsPurged(7)
	metrics.AddLogsPurged(0)

	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("success", "fresh")); got != 1 {
		t.Fatalf("deliveries_total{success,fresh} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("server_error", "retry")); got != 1 {
		t.Fatalf("deliveries_total{server_error,retry} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryRejectedTotal.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("retry_rejected_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.logsPurgedTotal); got != 7 {
		t.Fatalf("logs_purged_total = %v, want 7", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.ObserveDelivery("success", false, time.Second)
	metrics.IncRetryRejected("not_retryable")
	metrics.AddLogsPurged(3)
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
