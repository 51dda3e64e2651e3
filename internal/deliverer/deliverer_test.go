package deliverer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hookrelay/relay-engine/internal/domain"
)

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeader = r.Header.Get("X-Source")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("X-Request-ID", "resp-1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	d := NewHTTPDeliverer(0)
	outcome, err := d.Execute(context.Background(), Request{
		Endpoint: server.URL,
		Method:   "POST",
		Payload:  map[string]any{"name": "A"},
		Headers:  map[string]string{"X-Source": "form-1"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if outcome.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", outcome.Status)
	}
	if outcome.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", outcome.Code)
	}
	if outcome.Body != `{"ok":true}` {
		t.Fatalf("body = %q", outcome.Body)
	}
	if outcome.Headers["X-Request-Id"] != "resp-1" && outcome.Headers["X-Request-ID"] != "resp-1" {
		t.Fatalf("response headers missing X-Request-ID: %v", outcome.Headers)
	}
	if outcome.ErrorMessage != "" {
		t.Fatalf("error message = %q, want empty", outcome.ErrorMessage)
	}
	if !outcome.IsHTTP() {
		t.Fatal("IsHTTP() = false, want true")
	}
	if gotBody["name"] != "A" {
		t.Fatalf("request body name = %v, want A", gotBody["name"])
	}
	if gotHeader != "form-1" {
		t.Fatalf("X-Source header = %q, want form-1", gotHeader)
	}
}

func TestExecuteClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code int
		want domain.Status
	}{
		{code: 204, want: domain.StatusSuccess},
		{code: 299, want: domain.StatusSuccess},
		{code: 404, want: domain.StatusClientError},
		{code: 429, want: domain.StatusClientError},
		{code: 503, want: domain.StatusServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(strconv.Itoa(tc.code), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer server.Close()

			d := NewHTTPDeliverer(0)
			outcome, err := d.Execute(context.Background(), Request{
				Endpoint: server.URL,
				Method:   "POST",
			})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if outcome.Status != tc.want {
				t.Fatalf("status for %d = %s, want %s", tc.code, outcome.Status, tc.want)
			}
			if outcome.Code != tc.code {
				t.Fatalf("code = %d, want %d", outcome.Code, tc.code)
			}
		})
	}
}

func TestExecuteGETSendsQueryParams(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewHTTPDeliverer(0)
	outcome, err := d.Execute(context.Background(), Request{
		Endpoint: server.URL,
		Method:   "GET",
		Payload:  map[string]any{"name": "A", "count": 3.0, "active": true},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", outcome.Status)
	}

	if gotQuery["name"] != "A" {
		t.Errorf("query name = %q, want A", gotQuery["name"])
	}
	if gotQuery["count"] != "3" {
		t.Errorf("query count = %q, want 3", gotQuery["count"])
	}
	if gotQuery["active"] != "true" {
		t.Errorf("query active = %q, want true", gotQuery["active"])
	}
}

func TestExecuteTransportFailure(t *testing.T) {
	t.Parallel()

	// Reserved TEST-NET-1 address: connection will fail fast or time out.
	d := NewHTTPDeliverer(0)
	outcome, err := d.Execute(context.Background(), Request{
		Endpoint: "http://192.0.2.1:9/hook",
		Method:   "POST",
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, transport failures belong in the outcome", err)
	}

	if outcome.Status != domain.StatusError {
		t.Fatalf("status = %s, want ERROR", outcome.Status)
	}
	if outcome.Code != 0 {
		t.Fatalf("code = %d, want 0 for transport failure", outcome.Code)
	}
	if outcome.ErrorMessage == "" {
		t.Fatal("transport failure must carry a message")
	}
	if outcome.IsHTTP() {
		t.Fatal("IsHTTP() = true, want false")
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	d := NewHTTPDeliverer(0)
	outcome, err := d.Execute(context.Background(), Request{
		Endpoint: server.URL,
		Method:   "POST",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if outcome.Status != domain.StatusError {
		t.Fatalf("status = %s, want ERROR", outcome.Status)
	}
	if outcome.ErrorMessage == "" {
		t.Fatal("timeout must carry a message")
	}
}

func TestNewHTTPDelivererWithClientRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPDelivererWithClient(time.Second, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	d := NewHTTPDeliverer(0)

	if _, err := d.Execute(context.Background(), Request{Endpoint: "", Method: "POST"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty endpoint error = %v, want ErrValidation", err)
	}
	if _, err := d.Execute(context.Background(), Request{Endpoint: "http://x", Method: "TRACE"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad method error = %v, want ErrValidation", err)
	}
}
