// Package errs defines the error taxonomy shared across the supervisor's
// repository, workspace, skill, plugin, hook, and permission layers.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on failure mode without
// string-matching messages.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidInput       Kind = "invalid_input"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindPermissionDenied   Kind = "permission_denied"
)

// Error is the structured error value returned by every component named in
// the data model: it carries enough for a caller to decide whether to retry,
// surface the message to a human, or just log and move on.
type Error struct {
	Kind            Kind
	Message         string
	SuggestedAction string
	Detail          error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Detail }

func NotFound(msg string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(msg, args...)}
}

func Conflict(msg string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(msg, args...)}
}

func InvalidInput(msg string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(msg, args...)}
}

func BackendUnavailable(suggestedAction string, detail error) error {
	return &Error{
		Kind:            KindBackendUnavailable,
		Message:         "storage backend unavailable",
		SuggestedAction: suggestedAction,
		Detail:          detail,
	}
}

func PermissionDenied(msg string, args ...any) error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(msg, args...)}
}

// Is lets callers do errs.Is(err, errs.KindNotFound).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
