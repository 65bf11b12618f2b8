package server

import "fmt"

// Code classifies a rejected operation. Codes are stable for callers and
// tests; the human-readable reason travels to the client.
type Code string

const (
	CodeNotFound                 Code = "not_found"
	CodeInvalidState             Code = "invalid_state"
	CodeFull                     Code = "full"
	CodeDuplicateUsername        Code = "duplicate_username"
	CodeAlreadyJoined            Code = "already_joined"
	CodeAlreadyExists            Code = "already_exists"
	CodeForbidden                Code = "forbidden"
	CodeInsufficientParticipants Code = "insufficient_participants"
)

// CodedError is a rejected domain operation. It is surfaced to the
// originating connection as a single error event and is never fatal.
type CodedError struct {
	Code   Code
	Reason string
}

func (e *CodedError) Error() string {
	return e.Reason
}

func coded(code Code, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
