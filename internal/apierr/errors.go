// Package apierr defines codegate's HTTP error envelope and the handful
// of sentinel errors the server layer maps to specific status codes.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is an HTTP-layer error carrying the status code to respond with
// alongside the underlying cause.
type Error struct {
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a codegate apierr.Error with the given status and
// message.
func New(status int, message string, cause error) *Error {
	return &Error{Status: status, Message: message, Cause: cause}
}

// NotFound, BadRequest, Internal, BadGateway, Conflict, Upstream, and
// PipelineError are convenience constructors for the status codes
// codegate's handlers return. Upstream and PipelineError both map to
// 502/400 respectively but carry distinct Messages so logs and error
// envelopes can distinguish "the provider misbehaved" from "a pipeline
// step rejected the request" at a glance.
func NotFound(message string, cause error) *Error  { return New(http.StatusNotFound, message, cause) }
func BadRequest(message string, cause error) *Error {
	return New(http.StatusBadRequest, message, cause)
}
func Internal(message string, cause error) *Error {
	return New(http.StatusInternalServerError, message, cause)
}
func BadGateway(message string, cause error) *Error {
	return New(http.StatusBadGateway, message, cause)
}
func Conflict(message string, cause error) *Error { return New(http.StatusConflict, message, cause) }
func Upstream(message string, cause error) *Error {
	return New(http.StatusBadGateway, "upstream provider error: "+message, cause)
}
func PipelineError(message string, cause error) *Error {
	return New(http.StatusBadRequest, "pipeline rejected request: "+message, cause)
}

// envelope is the JSON shape every error response carries.
type envelope struct {
	Error string `json:"error"`
}

// Write sends err to w as a JSON error envelope. If err is (or wraps) an
// *Error its Status is used; otherwise it's treated as an opaque 500.
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	status := http.StatusInternalServerError
	message := err.Error()
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		message = apiErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: message})
}
