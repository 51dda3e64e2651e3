package domain

import (
	"errors"
	"testing"
)

func TestClassifyHTTPStatusBoundaries(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code int
		want Status
	}{
		{code: 199, want: StatusUnknown},
		{code: 200, want: StatusSuccess},
		{code: 299, want: StatusSuccess},
		{code: 300, want: StatusUnknown},
		{code: 399, want: StatusUnknown},
		{code: 400, want: StatusClientError},
		{code: 499, want: StatusClientError},
		{code: 500, want: StatusServerError},
		{code: 599, want: StatusServerError},
		{code: 600, want: StatusUnknown},
	}

	for _, tc := range testCases {
		if got := ClassifyHTTPStatus(tc.code); got != tc.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestStatusIsFailure(t *testing.T) {
	t.Parallel()

	failures := []Status{StatusError, StatusClientError, StatusServerError}
	for _, s := range failures {
		if !s.IsFailure() {
			t.Errorf("%s.IsFailure() = false, want true", s)
		}
	}

	nonFailures := []Status{StatusPending, StatusSuccess, StatusUnknown}
	for _, s := range nonFailures {
		if s.IsFailure() {
			t.Errorf("%s.IsFailure() = true, want false", s)
		}
	}
}

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseStatusFromString(" client_error ")
	if err != nil {
		t.Fatalf("ParseStatusFromString() error = %v", err)
	}
	if got != StatusClientError {
		t.Fatalf("ParseStatusFromString() = %s, want CLIENT_ERROR", got)
	}

	if _, err := ParseStatusFromString("bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseStatusFromString(bogus) error = %v, want ErrValidation", err)
	}
}

func TestNormalizeMethod(t *testing.T) {
	t.Parallel()

	got, err := NormalizeMethod("")
	if err != nil {
		t.Fatalf("NormalizeMethod(\"\") error = %v", err)
	}
	if got != "POST" {
		t.Fatalf("NormalizeMethod(\"\") = %s, want POST", got)
	}

	got, err = NormalizeMethod(" get ")
	if err != nil {
		t.Fatalf("NormalizeMethod(get) error = %v", err)
	}
	if got != "GET" {
		t.Fatalf("NormalizeMethod(get) = %s, want GET", got)
	}

	if _, err := NormalizeMethod("TRACE"); !errors.Is(err, ErrValidation) {
		t.Fatalf("NormalizeMethod(TRACE) error = %v, want ErrValidation", err)
	}
}

func TestDeliveryValidate(t *testing.T) {
	t.Parallel()

	valid := &Delivery{
		SourceID: "form-7",
		Endpoint: "https://api.example.com/leads",
		Method:   "POST",
		Status:   StatusPending,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(d *Delivery)
	}{
		{name: "missing source id", mutate: func(d *Delivery) { d.SourceID = "" }},
		{name: "missing endpoint", mutate: func(d *Delivery) { d.Endpoint = "" }},
		{name: "invalid endpoint", mutate: func(d *Delivery) { d.Endpoint = "not a url" }},
		{name: "ftp endpoint", mutate: func(d *Delivery) { d.Endpoint = "ftp://example.com" }},
		{name: "bad method", mutate: func(d *Delivery) { d.Method = "TRACE" }},
		{name: "bad status", mutate: func(d *Delivery) { d.Status = "DONE" }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := *valid
			tc.mutate(&d)
			if err := d.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}
