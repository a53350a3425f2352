// internal/core/errors.go
package core

import (
	"fmt"
	"strings"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Caller input errors: never retried, never trigger fallback.
	ErrInvalidSymbol    = &Error{Code: "INVALID_SYMBOL", Message: "symbol cannot be parsed"}
	ErrMarketUnresolved = &Error{Code: "MARKET_UNRESOLVED", Message: "market cannot be resolved"}

	// Provider errors. Unavailable is transient and advances the fallback
	// chain; empty is an authoritative "no data" from one provider.
	ErrProviderUnavailable = &Error{Code: "PROVIDER_UNAVAILABLE", Message: "provider unavailable"}
	ErrProviderEmpty       = &Error{Code: "PROVIDER_EMPTY", Message: "provider returned no data"}

	// NormalizeFailed means a provider response violated its expected shape.
	// For fallback it behaves like unavailable but is logged distinctly.
	ErrNormalizeFailed = &Error{Code: "NORMALIZE_FAILED", Message: "response normalization failed"}

	// ErrFetchExhausted is the terminal state: every adapter failed.
	ErrFetchExhausted = &Error{Code: "FETCH_EXHAUSTED", Message: "all providers failed"}

	// Cache errors
	ErrCacheFailed = &Error{Code: "CACHE_FAILED", Message: "cache operation failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// Attempt records the outcome of one adapter call inside a fallback chain.
type Attempt struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Reason   string `json:"reason,omitempty"`
}

// FetchFailure is the aggregate terminal error: every adapter in the resolved
// chain was tried and at least one failed hard. It lists what was attempted
// and why each attempt failed.
type FetchFailure struct {
	Symbol   string
	Kind     DataKind
	Attempts []Attempt
}

// Error implements the error interface.
func (f *FetchFailure) Error() string {
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		if a.Reason != "" {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", a.Provider, a.Code, a.Reason))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Code))
		}
	}
	return fmt.Sprintf("[FETCH_EXHAUSTED] all providers failed for %s/%s: %s",
		f.Symbol, f.Kind, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, core.ErrFetchExhausted) match the aggregate failure.
func (f *FetchFailure) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == ErrFetchExhausted.Code
	}
	return false
}
