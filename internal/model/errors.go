package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cart error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrValidation    = errors.New("validation failed")
	ErrStockExceeded = errors.New("stock exceeded")
	ErrNetwork       = errors.New("network failure")
	ErrServer        = errors.New("server error")
	ErrMergeConflict = errors.New("merge conflict")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
)

// CartError is the structured error carried through the engine and out of the HTTP surface.
// Implements error interface and supports unwrapping.
type CartError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Key        string `json:"key,omitempty"` // Product key the error is about, if any
	StatusCode int    `json:"-"`             // HTTP status, not serialized
	Err        error  `json:"-"`             // Wrapped error, not serialized
}

func (e *CartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CartError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400 error for invalid input (bad quantity, missing product).
func NewValidationError(field, reason string) *CartError {
	return &CartError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewStockExceededError creates a 409 error when the requested quantity exceeds known stock.
func NewStockExceededError(key ProductKey, requested, available int) *CartError {
	return &CartError{
		Code:       "STOCK_EXCEEDED",
		Message:    fmt.Sprintf("requested %d of %s, only %d available", requested, key, available),
		Key:        key.String(),
		StatusCode: 409,
		Err:        ErrStockExceeded,
	}
}

// NewNetworkError creates a 503 error for transient connectivity failures.
// The underlying cause stays reachable through errors.Is/As.
func NewNetworkError(service string, err error) *CartError {
	return &CartError{
		Code:       "NETWORK_ERROR",
		Message:    fmt.Sprintf("%s unreachable", service),
		StatusCode: 503,
		Err:        fmt.Errorf("%w: %w", ErrNetwork, err),
	}
}

// NewServerError creates a 502 error for non-2xx application errors from the remote service.
func NewServerError(service string, err error) *CartError {
	return &CartError{
		Code:       "SERVER_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrServer, err),
	}
}

// NewMergeConflictError creates an error describing a stock-capped or partially applied merge.
func NewMergeConflictError(keys []string) *CartError {
	return &CartError{
		Code:       "MERGE_CONFLICT",
		Message:    fmt.Sprintf("merge adjusted %d line item(s)", len(keys)),
		StatusCode: 409,
		Err:        fmt.Errorf("%w: %v", ErrMergeConflict, keys),
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *CartError {
	return &CartError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *CartError {
	return &CartError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *CartError {
	return &CartError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *CartError {
	return &CartError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsRetryable reports whether err is a transient connectivity failure worth retrying.
// Server, validation and stock errors are never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// WithKey returns a copy of e annotated with the product key it concerns.
func (e *CartError) WithKey(key ProductKey) *CartError {
	c := *e
	c.Key = key.String()
	return &c
}
