// Package broadcast holds what every partner subscriber shares: the failure
// taxonomy and the JSON call helper. Subpackages add rate limiting, retries,
// token caching and the per-partner gateways.
package broadcast

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory is the normalized failure taxonomy for partner calls.
type ErrorCategory string

const (
	// ErrorTimeout means the partner did not answer in time or the connection failed.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorPartnerOutage means the partner answered with a 5xx status.
	ErrorPartnerOutage ErrorCategory = "partner_outage"

	// ErrorRateLimited means the partner answered 429.
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorNotFound means the partner does not know the record (404).
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRejected is any other 4xx business rejection.
	ErrorRejected ErrorCategory = "rejected"

	// ErrorAuthentication means no token could be obtained.
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorBadResponse covers unexpected statuses and unreadable bodies.
	ErrorBadResponse ErrorCategory = "bad_response"

	ErrorInternal ErrorCategory = "internal"
)

// PartnerError wraps a failed partner call with its category. Retryable errors
// are transport failures; the others are definitive upstream answers.
type PartnerError struct {
	Category   ErrorCategory
	Partner    string
	StatusCode int
	Message    string
	Body       any
	Underlying error
	Retryable  bool
}

func (e *PartnerError) Error() string {
	msg := fmt.Sprintf("partner %s [%s]", e.Partner, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *PartnerError) Unwrap() error {
	return e.Underlying
}

// NewPartnerError builds a PartnerError. Timeouts, outages and 429s are retryable.
func NewPartnerError(category ErrorCategory, partner, message string, underlying error) *PartnerError {
	return &PartnerError{
		Category:   category,
		Partner:    partner,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorPartnerOutage || category == ErrorRateLimited,
	}
}

// FromStatus classifies a non-success HTTP status.
func FromStatus(partner string, status int, body any) *PartnerError {
	var category ErrorCategory
	switch {
	case status == http.StatusNotFound:
		category = ErrorNotFound
	case status == http.StatusTooManyRequests:
		category = ErrorRateLimited
	case status >= 500:
		category = ErrorPartnerOutage
	case status >= 400:
		category = ErrorRejected
	default:
		category = ErrorBadResponse
	}
	e := NewPartnerError(category, partner, http.StatusText(status), nil)
	e.StatusCode = status
	e.Body = body
	return e
}

// IsRetryable reports whether err is a transport failure worth another attempt.
func IsRetryable(err error) bool {
	var pe *PartnerError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func CategoryOf(err error) ErrorCategory {
	var pe *PartnerError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// FeedbackStatus is the status recorded in Broadcast Feedback for a failed
// call: definitive 4xx answers keep their status, everything else is 500.
func FeedbackStatus(err error) int {
	var pe *PartnerError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 && !pe.Retryable {
		return pe.StatusCode
	}
	return http.StatusInternalServerError
}
