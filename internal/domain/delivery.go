package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery record.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSuccess     Status = "SUCCESS"
	StatusClientError Status = "CLIENT_ERROR"
	StatusServerError Status = "SERVER_ERROR"
	StatusError       Status = "ERROR"
	StatusUnknown     Status = "UNKNOWN"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusClientError, StatusServerError, StatusError, StatusUnknown:
		return true
	}
	return false
}

// IsFinal reports whether a record in this status has completed its
// single pending -> outcome transition.
func (s Status) IsFinal() bool {
	return s.IsValid() && s != StatusPending
}

// IsFailure reports whether this status makes a record eligible for retry.
// SUCCESS needs no retry, PENDING has not finished, and UNKNOWN means the
// endpoint answered with something we cannot classify, so replaying it
// blindly is not safe.
func (s Status) IsFailure() bool {
	switch s {
	case StatusError, StatusClientError, StatusServerError:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// ClassifyHTTPStatus maps an HTTP response code onto a delivery status.
// Informational and redirect codes that leak through classify as UNKNOWN.
func ClassifyHTTPStatus(code int) Status {
	switch {
	case code >= 200 && code <= 299:
		return StatusSuccess
	case code >= 400 && code <= 499:
		return StatusClientError
	case code >= 500 && code <= 599:
		return StatusServerError
	default:
		return StatusUnknown
	}
}

// Methods accepted for outbound deliveries.
var allowedMethods = map[string]struct{}{
	"GET":    {},
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
}

func NormalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = "POST"
	}
	if _, ok := allowedMethods[m]; !ok {
		return "", fmt.Errorf("%w: unsupported method %q", ErrValidation, method)
	}
	return m, nil
}

// Delivery is one logged attempt to call an external endpoint.
//
// Payload and header snapshots are stored as redacted serialized text and
// are write-once at creation. Response fields and ErrorMessage are set
// exactly once, at completion, and are mutually exclusive: an HTTP outcome
// carries a code, a transport failure carries a message.
type Delivery struct {
	ID            int64
	SourceID      string
	CorrelationID string
	Endpoint      string
	Method        string
	Status        Status

	RequestPayload string
	RequestHeaders string

	ResponseCode    *int
	ResponsePayload *string
	ResponseHeaders *string
	ErrorMessage    *string
	ExecutionTime   *float64

	RetryCount int
	RetryOf    *int64

	CreatedAt time.Time
}

// IsRetry reports whether this record was issued as a retry of another.
func (d *Delivery) IsRetry() bool {
	return d != nil && d.RetryOf != nil
}

func (d *Delivery) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: delivery is required", ErrValidation)
	}
	if strings.TrimSpace(d.SourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrValidation)
	}
	endpoint := strings.TrimSpace(d.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}
	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return fmt.Errorf("%w: invalid endpoint %q", ErrValidation, d.Endpoint)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported endpoint scheme %q", ErrValidation, parsed.Scheme)
	}
	if _, ok := allowedMethods[d.Method]; !ok {
		return fmt.Errorf("%w: unsupported method %q", ErrValidation, d.Method)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, d.Status)
	}
	return nil
}
