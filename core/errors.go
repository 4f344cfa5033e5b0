package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthRejected        = "AUTH_REJECTED"
	ErrorNoCredentials       = "NO_CREDENTIALS"
	ErrorRefreshFailed       = "REFRESH_FAILED"
	ErrorRateLimited         = "RATE_LIMITED"
	ErrorUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrorUpstreamRejected    = "UPSTREAM_REJECTED"
	ErrorPartialFetch        = "PARTIAL_FETCH"
	ErrorValidation          = "VALIDATION"
	ErrorQueueExhausted      = "QUEUE_EXHAUSTED"
	ErrorJobAlreadyRunning   = "JOB_ALREADY_RUNNING"
	ErrorBadInput            = "BAD_INPUT"
	ErrorNotFound            = "NOT_FOUND"
	ErrorInternal            = "INTERNAL_ERROR"
)

// NewError builds a taxonomy error with the category and status code that
// belong to textCode.
func NewError(textCode string, message string, metadata map[string]any) *goerrors.Error {
	category := categoryForTextCode(textCode)
	err := goerrors.New(strings.TrimSpace(message), category).
		WithCode(httpStatusForTextCode(textCode, category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// WrapError attaches a taxonomy code to a lower level cause.
func WrapError(cause error, textCode string, message string, metadata map[string]any) *goerrors.Error {
	if cause == nil {
		return NewError(textCode, message, metadata)
	}
	category := categoryForTextCode(textCode)
	err := goerrors.Wrap(cause, category, strings.TrimSpace(message)).
		WithCode(httpStatusForTextCode(textCode, category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func ErrNoCredentials(shopID int64) error {
	return NewError(
		ErrorNoCredentials,
		fmt.Sprintf("core: no token on file for shop %d; run the authorization flow first", shopID),
		map[string]any{"shop_id": shopID},
	)
}

func ErrJobAlreadyRunning(job string) error {
	return NewError(
		ErrorJobAlreadyRunning,
		fmt.Sprintf("core: job %q is already running", job),
		map[string]any{"job": job},
	)
}

// TextCode returns the taxonomy code carried by err, or "" when err is not a
// go-errors value.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(strings.ToUpper(richErr.TextCode))
	}
	return ""
}

func HasTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == strings.ToUpper(strings.TrimSpace(code))
}

// IsRetryable reports whether an outer operation may retry after backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch TextCode(err) {
	case ErrorRefreshFailed, ErrorRateLimited, ErrorUpstreamUnavailable:
		return true
	case "":
		return MapError(err).Category == goerrors.CategoryRateLimit
	default:
		return false
	}
}

// MapError normalizes any error into a go-errors envelope with a taxonomy
// text code and an HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorUpstreamUnavailable, err.Error(), nil)
	case strings.Contains(msg, "no token on file"), strings.Contains(msg, "no credentials"):
		return NewError(ErrorNoCredentials, err.Error(), nil)
	case strings.Contains(msg, "already running"):
		return NewError(ErrorJobAlreadyRunning, err.Error(), nil)
	case strings.Contains(msg, "too many request"), strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return NewError(ErrorRateLimited, err.Error(), nil)
	case strings.Contains(msg, "not found"):
		return NewError(ErrorNotFound, err.Error(), nil)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return NewError(ErrorBadInput, err.Error(), nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Code == 0 {
		err.Code = httpStatusForTextCode(err.TextCode, err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func categoryForTextCode(textCode string) goerrors.Category {
	switch strings.ToUpper(strings.TrimSpace(textCode)) {
	case ErrorAuthRejected:
		return goerrors.CategoryAuth
	case ErrorNoCredentials, ErrorNotFound:
		return goerrors.CategoryNotFound
	case ErrorRefreshFailed, ErrorUpstreamUnavailable, ErrorUpstreamRejected:
		return goerrors.CategoryExternal
	case ErrorRateLimited:
		return goerrors.CategoryRateLimit
	case ErrorPartialFetch, ErrorQueueExhausted:
		return goerrors.CategoryOperation
	case ErrorValidation:
		return goerrors.CategoryValidation
	case ErrorBadInput:
		return goerrors.CategoryBadInput
	case ErrorJobAlreadyRunning:
		return goerrors.CategoryConflict
	default:
		return goerrors.CategoryInternal
	}
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthRejected
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryConflict:
		return ErrorJobAlreadyRunning
	case goerrors.CategoryExternal:
		return ErrorUpstreamUnavailable
	default:
		return ErrorInternal
	}
}

func httpStatusForTextCode(textCode string, category goerrors.Category) int {
	switch strings.ToUpper(strings.TrimSpace(textCode)) {
	case ErrorRefreshFailed, ErrorUpstreamRejected:
		return http.StatusBadGateway
	case ErrorUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
