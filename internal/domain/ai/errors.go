package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("ai returned empty completion")

// ProviderError wraps a failed provider call with enough context to decide
// whether it is worth retrying.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify turns a raw provider failure into a ProviderError. Quota errors
// also wrap ErrQuotaExceeded so the HTTP edge can map them to 429.
func Classify(provider string, statusCode int, code string, err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(code)
	pe := &ProviderError{Provider: provider, StatusCode: statusCode, Code: code, Err: err}

	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		pe.Err = fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		return pe
	case strings.Contains(lower, "rate") || strings.Contains(lower, "overloaded") || strings.Contains(lower, "timeout"):
		pe.Transient = true
		return pe
	}

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusGatewayTimeout:
		pe.Transient = true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusNotFound:
		pe.Transient = false
	case 0:
		// no response at all: network or context failure
		pe.Transient = isTransientCause(err)
	default:
		pe.Transient = statusCode >= http.StatusInternalServerError
	}
	return pe
}

// IsTransient reports whether a failed completion may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return isTransientCause(err)
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}
