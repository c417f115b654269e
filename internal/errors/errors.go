// Package errors defines the typed failures recorded on crawl resources.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a per-resource failure.
type Kind int

const (
	// KindUnknown is an uncategorized failure.
	KindUnknown Kind = iota
	// KindMalformedURL marks a candidate URL the fetcher cannot parse.
	KindMalformedURL
	// KindHTTPStatus marks a completed exchange with a non-success status.
	KindHTTPStatus
	// KindTransport marks a failure to complete the HTTP exchange at all.
	KindTransport
	// KindParse marks an unreadable or unparsable response body.
	KindParse
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindMalformedURL:
		return "malformed_url"
	case KindHTTPStatus:
		return "http_status"
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// ResourceError is a failure tied to a single fetched resource. Its Error
// text is written verbatim into the report, so the constructors keep the
// wording stable.
type ResourceError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can probe with errors.Is.
func (e *ResourceError) Is(target error) bool {
	t, ok := target.(*ResourceError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewMalformedURL reports a resolved candidate the fetcher cannot parse.
func NewMalformedURL(url string) *ResourceError {
	return &ResourceError{
		Kind:    KindMalformedURL,
		URL:     url,
		Message: "Non-parsable URL",
	}
}

// NewHTTPStatus reports a completed request that returned a non-success
// status code.
func NewHTTPStatus(url string, code int) *ResourceError {
	return &ResourceError{
		Kind:       KindHTTPStatus,
		URL:        url,
		StatusCode: code,
		Message:    fmt.Sprintf("HTTP status code is [%d]", code),
	}
}

// NewTransport reports a request that never produced a response.
func NewTransport(url string, cause error) *ResourceError {
	msg := "transport failure"
	if cause != nil {
		msg = cause.Error()
	}
	return &ResourceError{
		Kind:    KindTransport,
		URL:     url,
		Message: msg,
		Cause:   cause,
	}
}

// NewParse reports a response body that could not be read or parsed.
func NewParse(url string, cause error) *ResourceError {
	msg := "unparsable response body"
	if cause != nil {
		msg = cause.Error()
	}
	return &ResourceError{
		Kind:    KindParse,
		URL:     url,
		Message: msg,
		Cause:   cause,
	}
}

// NewHostSuspended reports a fetch skipped because the host's breaker is
// open after repeated consecutive failures.
func NewHostSuspended(url, host string) *ResourceError {
	return &ResourceError{
		Kind:    KindTransport,
		URL:     url,
		Message: fmt.Sprintf("host %s suspended after repeated failures", host),
	}
}

// Categorize wraps an arbitrary fetch error as a ResourceError. Errors that
// already carry a Kind pass through untouched; everything else coming out of
// an HTTP client is a transport failure.
func Categorize(err error, url string) *ResourceError {
	if err == nil {
		return nil
	}

	var resErr *ResourceError
	if errors.As(err, &resErr) {
		return resErr
	}

	return NewTransport(url, err)
}

// Retryable reports whether a retry could plausibly change the outcome.
// Recorded HTTP statuses are results, not failures, and are never retried;
// neither is a fetch abandoned by cancellation.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var resErr *ResourceError
	if errors.As(err, &resErr) {
		return resErr.Kind == KindTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// KindOf extracts the Kind from an error chain.
func KindOf(err error) Kind {
	var resErr *ResourceError
	if errors.As(err, &resErr) {
		return resErr.Kind
	}
	return KindUnknown
}

// StatusCode extracts the HTTP status code from an error chain, or 0.
func StatusCode(err error) int {
	var resErr *ResourceError
	if errors.As(err, &resErr) {
		return resErr.StatusCode
	}
	return 0
}
