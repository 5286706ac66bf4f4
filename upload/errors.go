package upload

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/damtools/go-aemupload/upload/network"
)

// Code classifies an upload failure into one of the categories callers can
// act on. HTTP responses are mapped onto these codes by FromStatusCode.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeNotSupported       Code = "not_supported"
	CodeInvalidOptions     Code = "invalid_options"
	CodeNotAuthorized      Code = "not_authorized"
	CodeUnexpectedAPIState Code = "unexpected_api_state"
	CodeAlreadyExists      Code = "already_exists"
	CodeForbidden          Code = "forbidden"
	CodeUserCancelled      Code = "user_cancelled"
	CodeTooLarge           Code = "too_large"
	CodeUnknown            Code = "unknown"
)

// Error is the typed error produced by the upload pipeline.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap ...
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code and message.
func NewError(code Code, format string, v ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// WrapError creates an Error wrapping an underlying cause.
func WrapError(code Code, err error, format string, v ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...), Err: err}
}

// CodeOf extracts the taxonomy code from err, or CodeUnknown if err is not
// an *Error.
func CodeOf(err error) Code {
	var uploadErr *Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Code
	}
	return CodeUnknown
}

// mapRemoteError converts a failure from the network collaborator into the
// taxonomy: repository responses map by status code, transport failures
// (already retried by the HTTP layer) map to CodeUnknown.
func mapRemoteError(err error, format string, v ...interface{}) error {
	var apiErr *network.APIError
	if errors.As(err, &apiErr) {
		mapped := FromStatusCode(apiErr.StatusCode, apiErr.Body)
		mapped.Message = fmt.Sprintf(format, v...) + ": " + mapped.Message
		return mapped
	}
	return WrapError(CodeUnknown, err, format, v...)
}

// FromStatusCode maps an HTTP response status to the error taxonomy.
// Retryable statuses (5xx) have already been retried by the HTTP layer by
// the time they reach this mapping.
func FromStatusCode(status int, detail string) *Error {
	switch status {
	case http.StatusBadRequest:
		return NewError(CodeInvalidOptions, "request rejected as invalid: %s", detail)
	case http.StatusUnauthorized:
		return NewError(CodeNotAuthorized, "request not authorized: %s", detail)
	case http.StatusForbidden:
		return NewError(CodeForbidden, "request forbidden: %s", detail)
	case http.StatusNotFound:
		return NewError(CodeNotFound, "remote path not found: %s", detail)
	case http.StatusConflict:
		return NewError(CodeAlreadyExists, "remote node already exists: %s", detail)
	case http.StatusNotImplemented:
		return NewError(CodeNotSupported, "operation not supported by the remote instance: %s", detail)
	default:
		return NewError(CodeUnknown, "HTTP %d: %s", status, detail)
	}
}
