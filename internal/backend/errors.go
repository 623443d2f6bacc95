package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GenericFailureMessage is used whenever the backend gives us nothing better.
const GenericFailureMessage = "Something went wrong. Please try again."

// TransportError means the request never completed: offline, timeout, or the
// session context was cancelled. No automatic retry is performed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request did not complete: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message returns the user-facing text for a transport failure.
func (e *TransportError) Message() string { return GenericFailureMessage }

// StatusError is a completed request that came back non-2xx. Message holds
// the backend's { "message" } body when present, else the generic fallback.
type StatusError struct {
	Op         string
	StatusCode int
	Msg        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Msg)
}

func (e *StatusError) Message() string { return e.Msg }

// errorMessage extracts { "message": "..." } from an error body. Anything
// unparseable falls back to the generic message.
func errorMessage(body io.Reader) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil || parsed.Message == "" {
		return GenericFailureMessage
	}
	return parsed.Message
}

func newStatusError(op string, resp *http.Response) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Msg:        errorMessage(resp.Body),
	}
}
