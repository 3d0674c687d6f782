// Package errors provides the structured error model used across vecstore.
//
// Every failure that crosses a package boundary is an *Errno carrying a
// globally unique code, an HTTP and a gRPC status mapping, and an
// English/Chinese message pair. Underlying errors are attached with
// WithCause and stay reachable through errors.Unwrap / errors.Is.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code
//	BB  (00-99): Category code
//	CCC (000-999): Sequence number
//
// Usage:
//
//	return errors.ErrInvalidFilter.WithMessagef("unsupported value for %q", key)
//	return errors.ErrEmbeddingFailed.WithCause(err)
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
)

// Errno is a coded failure of the vector index. The code's category decides
// the HTTP and gRPC status and whether a caller may retry.
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageZH string     `json:"message_zh,omitempty"`

	cause error
}

// New creates an Errno. Most callers use the predefined values instead.
func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	return &Errno{
		Code:      code,
		HTTP:      httpStatus,
		GRPCCode:  grpcCode,
		MessageEN: messageEN,
		MessageZH: messageZH,
	}
}

func (e *Errno) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
	}
	return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
}

func (e *Errno) Unwrap() error { return e.cause }

// Is matches by code, so a copy made by WithCause still matches its template.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && e.Code == t.Code
}

// WithCause returns a copy carrying cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := *e
	c.cause = cause
	return &c
}

// WithMessage returns a copy with the English message replaced.
func (e *Errno) WithMessage(msg string) *Errno {
	c := *e
	c.MessageEN = msg
	return &c
}

func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message returns the Chinese message for any zh locale tag when one exists.
func (e *Errno) Message(lang string) string {
	if e.MessageZH != "" && strings.HasPrefix(strings.ToLower(lang), "zh") {
		return e.MessageZH
	}
	return e.MessageEN
}

func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode == codes.OK {
		return codes.Internal
	}
	return e.GRPCCode
}

// Retryable reports whether repeating the same call can succeed: embedding
// rate limits, index or provider network failures and readiness timeouts.
// A cancelled context is never retryable, whatever the code says.
func (e *Errno) Retryable() bool {
	if e.cause != nil && stderrors.Is(e.cause, context.Canceled) {
		return false
	}
	_, category, _ := ParseCode(e.Code)
	return category == CategoryRateLimit || category == CategoryNetwork || category == CategoryTimeout
}

// LogFields returns key/value pairs for the structured logger.
func (e *Errno) LogFields() []any {
	fields := []any{"errno", e.Code, "retryable", e.Retryable(), "error", e.MessageEN}
	if e.cause != nil {
		fields = append(fields, "cause", e.cause.Error())
	}
	return fields
}

// Format prints the code, statuses and cause chain for %+v.
func (e *Errno) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		_, _ = fmt.Fprintf(s, "errno %d [http %d, grpc %s, retryable=%t]: %s",
			e.Code, e.HTTPStatus(), e.GRPCStatus(), e.Retryable(), e.MessageEN)
		if e.cause != nil {
			_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
		}
	case verb == 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	default:
		_, _ = fmt.Fprint(s, e.Error())
	}
}
