// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

// Package errors classifies every failure a conversion can end with.
//
// Callers match on the kind, never on the message:
//
//	if errors.Is(err, errors.ErrAlreadyRunning) {
//	    ...
//	}
//
//	var e *errors.Error
//	if errors.As(err, &e) && e.Kind == errors.KindWorkerExitNonZero {
//	    log.Printf("worker exited with %d", e.Code)
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Kind is the machine-readable failure class.
type Kind string

const (
	KindToolNotFound      Kind = "tool_not_found"
	KindToolFailed        Kind = "tool_failed"
	KindProbeTimeout      Kind = "probe_timeout"
	KindMalformedOutput   Kind = "malformed_output"
	KindInvalidRequest    Kind = "invalid_request"
	KindAlreadyRunning    Kind = "already_running"
	KindSpawnError        Kind = "spawn_error"
	KindStreamError       Kind = "stream_error"
	KindWorkerExitNonZero Kind = "worker_exit_non_zero"
	KindShutdownTimeout   Kind = "shutdown_timeout"
)

// HTTPStatus returns the status code the API answers with for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAlreadyRunning:
		return http.StatusConflict
	case KindMalformedOutput:
		return http.StatusUnprocessableEntity
	case KindProbeTimeout:
		return http.StatusGatewayTimeout
	case KindToolNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrToolNotFound      = &Error{Kind: KindToolNotFound, Message: "tool not found"}
	ErrToolFailed        = &Error{Kind: KindToolFailed, Message: "tool failed"}
	ErrProbeTimeout      = &Error{Kind: KindProbeTimeout, Message: "probe timed out"}
	ErrMalformedOutput   = &Error{Kind: KindMalformedOutput, Message: "malformed tool output"}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrAlreadyRunning    = &Error{Kind: KindAlreadyRunning, Message: "a conversion is already running"}
	ErrSpawnError        = &Error{Kind: KindSpawnError, Message: "worker could not be started"}
	ErrStreamError       = &Error{Kind: KindStreamError, Message: "worker output could not be read"}
	ErrWorkerExitNonZero = &Error{Kind: KindWorkerExitNonZero, Message: "worker exited with non-zero code"}
	ErrShutdownTimeout   = &Error{Kind: KindShutdownTimeout, Message: "worker did not exit in time"}
)

// Error is a classified failure. Code carries the worker exit code for
// KindWorkerExitNonZero and is zero otherwise.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindWorkerExitNonZero {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// Detail returns the message with its cause, suitable for UI display.
func (e *Error) Detail() string {
	return e.Error()
}

// Newf creates an error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// ExitNonZero reports a worker that terminated with code.
func ExitNonZero(code int) *Error {
	return &Error{Kind: KindWorkerExitNonZero, Code: code, Message: "worker exited with non-zero code"}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
