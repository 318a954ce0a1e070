// Package fault is the error taxonomy shared by the publisher and invalidator.
// Every external-call failure is mapped onto a Kind at the call site and the
// Kind decides the response status.
package fault

import (
	"errors"
	"net/http"
	"strings"
)

type Kind string

const (
	OriginRejected      Kind = "origin_rejected"
	MalformedInput      Kind = "malformed_input"
	MissingField        Kind = "missing_field"
	StoreWriteFailed    Kind = "store_write_failed"
	ConfigMissing       Kind = "config_missing"
	CdnSubmissionFailed Kind = "cdn_submission_failed"
)

// Status maps a Kind to the HTTP status returned to the caller.
func Status(k Kind) int {
	switch k {
	case OriginRejected:
		return http.StatusForbidden
	case MalformedInput, MissingField:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a caller-facing message and the underlying cause.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []string // missing field names, MissingField only
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, fault.New(k, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Status() int { return Status(e.Kind) }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

func Wrap(k Kind, msg string, err error) *Error { return &Error{Kind: k, Msg: msg, Err: err} }

func Missing(fields ...string) *Error {
	return &Error{
		Kind:   MissingField,
		Msg:    "missing " + strings.Join(quote(fields), ", "),
		Fields: fields,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func quote(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = "'" + s + "'"
	}
	return out
}
