package errs

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeMessageConflict  = "MESSAGE_CONFLICT"
	CodeWebhookConflict  = "WEBHOOK_CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeNotFound         = "NOT_FOUND"
	CodeBadInput         = "BAD_INPUT"
	CodeLeaseContention  = "LEASE_CONTENTION"
	CodeInternal         = "INTERNAL_ERROR"
)

// Conflict reports a duplicate identifier.
func Conflict(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(textCode)
}

// Transient wraps a store failure that is safe to retry at the caller's discretion.
func Transient(source error, message string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(CodeStoreUnavailable)
}

// NotFound reports a missing entity.
func NotFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(CodeNotFound)
}

// BadInput reports an invalid request.
func BadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeBadInput)
}

// LeaseContention reports that a poll lost too many lease races in a row.
func LeaseContention(message string) error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(CodeLeaseContention)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return hasCategory(err, goerrors.CategoryConflict)
}

// IsTransient reports whether err is a transient store error.
func IsTransient(err error) bool {
	return hasCategory(err, goerrors.CategoryExternal)
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return hasCategory(err, goerrors.CategoryNotFound)
}

// IsLeaseContention reports whether err is a lease contention error.
func IsLeaseContention(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}

	return richErr.TextCode == CodeLeaseContention
}

// HTTPStatus returns the status code a transport should answer with for err.
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}

	return http.StatusInternalServerError
}

// Envelope returns the text code, category and public message for err.
// Errors that carry no envelope are reported as internal errors without details.
func Envelope(err error) (textCode, category, message string) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return CodeInternal, fmt.Sprint(goerrors.CategoryInternal), "An internal error occurred. Please try again later."
	}

	return richErr.TextCode, fmt.Sprint(richErr.Category), richErr.Message
}

func hasCategory(err error, category goerrors.Category) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}

	return richErr.Category == category
}
