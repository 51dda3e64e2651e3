package deliverer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hookrelay/relay-engine/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Request describes one outbound call. Timeout is per attempt; zero falls
// back to the deliverer default.
type Request struct {
	Endpoint string
	Method   string
	Payload  map[string]any
	Headers  map[string]string
	Timeout  time.Duration
}

// Outcome is the structured result of exactly one network call. Either an
// HTTP response was obtained (Code/Body/Headers set, ErrorMessage empty)
// or the transport failed (ErrorMessage set, no code).
type Outcome struct {
	Status       domain.Status
	Code         int
	Body         string
	Headers      map[string]string
	ErrorMessage string
	Latency      time.Duration
}

// IsHTTP reports whether an HTTP response was obtained at all.
func (o Outcome) IsHTTP() bool {
	return o.Status != domain.StatusError
}

// Deliverer is the outbound delivery port.
type Deliverer interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// HTTPDeliverer executes deliveries over HTTP. It performs exactly one
// network call per Execute and never retries internally, which keeps
// per-attempt latency accounting honest; retry policy lives upstream.
type HTTPDeliverer struct {
	client  *resty.Client
	timeout time.Duration
	now     func() time.Time
}

func NewHTTPDeliverer(timeout time.Duration) *HTTPDeliverer {
	client := resty.New()
	client.SetRetryCount(0)

	d, _ := NewHTTPDelivererWithClient(timeout, client)
	return d
}

func NewHTTPDelivererWithClient(timeout time.Duration, client *resty.Client) (*HTTPDeliverer, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client.SetRetryCount(0)

	return &HTTPDeliverer{
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Execute runs the call and classifies the result. Transport failures
// (DNS, connect, TLS, timeout) come back as an ERROR outcome with a
// human-readable message, never as an HTTP status. The returned error is
// reserved for misuse of the deliverer itself.
func (d *HTTPDeliverer) Execute(ctx context.Context, req Request) (Outcome, error) {
	if d == nil || d.client == nil {
		return Outcome{}, fmt.Errorf("deliverer is not initialized")
	}

	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return Outcome{}, fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return Outcome{}, fmt.Errorf("%w: invalid endpoint %q", domain.ErrValidation, req.Endpoint)
	}
	method, err := domain.NormalizeMethod(req.Method)
	if err != nil {
		return Outcome{}, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := d.client.R().SetContext(ctx)

	// GET and DELETE carry the payload as query parameters the way form
	// forwarders encode them; everything else goes as a JSON body.
	switch method {
	case "GET", "DELETE":
		r.SetQueryParams(flattenParams(req.Payload))
	default:
		r.SetHeader("Content-Type", "application/json")
		if req.Payload != nil {
			r.SetBody(req.Payload)
		}
	}
	for name, value := range req.Headers {
		r.SetHeader(name, value)
	}

	start := d.now()
	response, execErr := r.Execute(method, endpoint)
	latency := d.now().Sub(start)

	if execErr != nil {
		return Outcome{
			Status:       domain.StatusError,
			ErrorMessage: transportErrorMessage(execErr, timeout),
			Latency:      latency,
		}, nil
	}
	if response == nil {
		return Outcome{
			Status:       domain.StatusError,
			ErrorMessage: "no response received",
			Latency:      latency,
		}, nil
	}

	code := response.StatusCode()
	return Outcome{
		Status:  domain.ClassifyHTTPStatus(code),
		Code:    code,
		Body:    response.String(),
		Headers: flattenHeader(response.Header()),
		Latency: latency,
	}, nil
}

func transportErrorMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Sprintf("request to %s failed: %v", urlErr.URL, urlErr.Err)
	}
	return err.Error()
}

func flattenParams(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}

	params := make(map[string]string, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			params[key] = v
		case bool:
			params[key] = strconv.FormatBool(v)
		case float64:
			params[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			params[key] = strconv.Itoa(v)
		case int64:
			params[key] = strconv.FormatInt(v, 10)
		case nil:
			params[key] = ""
		default:
			params[key] = fmt.Sprintf("%v", v)
		}
	}
	return params
}

func flattenHeader(header map[string][]string) map[string]string {
	if len(header) == 0 {
		return nil
	}

	flat := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}
