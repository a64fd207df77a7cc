package client

import (
	"errors"
	"fmt"
)

// ErrTimeout means the estimator did not answer within the request timeout.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string   { return "estimator timeout: " + e.Err.Error() }
func (e ErrTimeout) Unwrap() error   { return e.Err }
func (e ErrTimeout) Retryable() bool { return true }

// ErrConnection means the estimator host could not be reached.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string   { return "estimator unreachable: " + e.Err.Error() }
func (e ErrConnection) Unwrap() error   { return e.Err }
func (e ErrConnection) Retryable() bool { return true }

// ErrForbidden means the estimator refused the caller (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string   { return "estimator refused request: " + e.Err.Error() }
func (e ErrForbidden) Unwrap() error   { return e.Err }
func (e ErrForbidden) Retryable() bool { return false }

// ErrNotFound means the configured estimator URL does not exist (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string   { return "estimator endpoint not found: " + e.Err.Error() }
func (e ErrNotFound) Unwrap() error   { return e.Err }
func (e ErrNotFound) Retryable() bool { return false }

// ErrRateLimited means the estimator asked us to slow down (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string   { return "estimator rate limited: " + e.Err.Error() }
func (e ErrRateLimited) Unwrap() error   { return e.Err }
func (e ErrRateLimited) Retryable() bool { return true }

// ErrBadRequest means the estimator rejected the product name (other 4xx).
type ErrBadRequest struct {
	Status int
	Err    error
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("estimator rejected request (%d): %v", e.Status, e.Err)
}
func (e ErrBadRequest) Unwrap() error   { return e.Err }
func (e ErrBadRequest) Retryable() bool { return false }

// ErrServer means the estimator failed while scraping (5xx).
type ErrServer struct {
	Status int
	Err    error
}

func (e ErrServer) Error() string {
	return fmt.Sprintf("estimator failure (%d): %v", e.Status, e.Err)
}
func (e ErrServer) Unwrap() error   { return e.Err }
func (e ErrServer) Retryable() bool { return true }

// errorTypeLabel maps err to the error_type label of the metrics.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var badRequest ErrBadRequest
	if errors.As(err, &badRequest) {
		return "bad_request"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server"
	}
	return "other"
}

// retryable reports whether another attempt may succeed. Errors that do not
// describe the estimator's answer, such as decode failures, are final.
func retryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
