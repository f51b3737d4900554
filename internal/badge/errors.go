package badge

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to it, typically by
// choosing an HTTP status code.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindNotFound       Kind = "not_found"
	KindUpstreamRender Kind = "upstream_render"
	KindStore          Kind = "store"
	KindInternal       Kind = "internal"
)

// FieldError describes a single invalid field of a request body.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Reason
	}
	return f.Field + ": " + f.Reason
}

// Error is the error type returned by badge operations.
// Message is safe to show to clients; Err is the internal cause and is only
// meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if len(e.Fields) > 0 {
		msg += fmt.Sprintf(" (%s", e.Fields[0])
		if len(e.Fields) > 1 {
			msg += fmt.Sprintf(" and %d more", len(e.Fields)-1)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Invalid returns a validation error listing the offending fields.
func Invalid(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// NotFound returns a not-found error for the named badge.
func NotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("badge %q not found", name)}
}

// Unauthorized returns an authentication error.
func Unauthorized(message string, err error) *Error {
	return &Error{Kind: KindAuth, Message: message, Err: err}
}

// RenderFailed wraps a failure of the rendering service.
func RenderFailed(message string, err error) *Error {
	return &Error{Kind: KindUpstreamRender, Message: message, Err: err}
}

// StoreFailed wraps a failure of the badge store.
func StoreFailed(message string, err error) *Error {
	return &Error{Kind: KindStore, Message: message, Err: err}
}
