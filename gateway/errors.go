// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"

	"github.com/sightline-wm/sightline/tracer"
)

// Error codes returned in the response envelope. Clients dispatch on
// the code; the message is for humans.
const (
	// CodeBadRequest covers malformed JSON and invalid parameters.
	// The request had no side effects.
	CodeBadRequest = "bad_request"

	// CodeUnknownMethod is returned for methods the gateway does not
	// expose.
	CodeUnknownMethod = "unknown_method"

	// CodeEventNotFound: the referenced event was never assigned or
	// has been evicted from the buffer.
	CodeEventNotFound = "event_not_found"

	// CodeCorrelationNotFound: no retained event carries the given
	// correlation ID.
	CodeCorrelationNotFound = "correlation_not_found"

	// CodeTraceNotFound / CodeTemplateNotFound map the trace manager's
	// sentinel errors.
	CodeTraceNotFound    = "trace_not_found"
	CodeTemplateNotFound = "template_not_found"

	// CodeMatcherInvalid: the trace matcher can never match.
	CodeMatcherInvalid = "matcher_invalid"

	// CodeWMUnavailable: a live WM query failed or timed out.
	CodeWMUnavailable = "wm_unavailable"

	// CodeSnapshotFailed: diagnostic capture was cancelled or could
	// not be written to the requested path.
	CodeSnapshotFailed = "snapshot_failed"

	// CodeInternal covers everything that should not happen.
	CodeInternal = "internal"
)

// Error is a coded gateway error. Handlers return these (or wrapped
// component sentinels); the server encodes the code and message into
// the response envelope, so nothing crosses the wire as an unhandled
// fault.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Errorf builds a coded error.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// errorCode maps any handler error to its wire code.
func errorCode(err error) string {
	var coded *Error
	switch {
	case errors.As(err, &coded):
		return coded.Code
	case errors.Is(err, tracer.ErrTraceNotFound):
		return CodeTraceNotFound
	case errors.Is(err, tracer.ErrTemplateNotFound):
		return CodeTemplateNotFound
	default:
		return CodeInternal
	}
}

// errorMessage strips the code prefix a *Error would otherwise
// duplicate in the envelope.
func errorMessage(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}
