package chathub

import (
	"fmt"
)

// ErrorKind classifies failures surfaced by the chat client.
type ErrorKind int

const (
	KindAuth ErrorKind = iota + 1
	KindTransport
	KindStreamTimeout
	KindService
	KindUpload
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindStreamTimeout:
		return "stream_timeout"
	case KindService:
		return "service"
	case KindUpload:
		return "upload"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every network-facing operation in
// this package. Detail carries the raw service payload when there is one so
// callers can show it verbatim.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind, so errors.Is(err, ErrAuth) holds for every auth failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrAuth          = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrTransport     = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrStreamTimeout = &Error{Kind: KindStreamTimeout, Message: "no response from server"}
	ErrService       = &Error{Kind: KindService, Message: "service error"}
	ErrUpload        = &Error{Kind: KindUpload, Message: "image upload failed"}
	ErrCancelled     = &Error{Kind: KindCancelled, Message: "turn cancelled"}
)

func newError(kind ErrorKind, message, detail string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail, Cause: cause}
}

func transportError(message string, cause error) *Error {
	return newError(KindTransport, message, "", cause)
}

func cancelledError(cause error) *Error {
	return newError(KindCancelled, "turn cancelled", "", cause)
}
