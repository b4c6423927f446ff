package errors

import (
	stderrors "errors"
	"fmt"
)

// Failure taxonomy of the hub. Every failure is scoped to the single
// triggering event and connection; nothing here is process-fatal.
var (
	ErrAuthRejected        = fmt.Errorf("authentication rejected")
	ErrNotMember           = fmt.Errorf("not a member of this conversation")
	ErrPersistence         = fmt.Errorf("persistence failure")
	ErrNotMutualConnection = fmt.Errorf("can only call users who mutually follow you")
	ErrReceiverOffline     = fmt.Errorf("user is not online")
	ErrEmptyWords          = fmt.Errorf("no censored words have been found")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)

// Wire codes, matching what clients already branch on.
const (
	CodeNotMember       = "NOT_MEMBER"
	CodePersistence     = "PERSISTENCE_ERROR"
	CodeNotMutualFollow = "NOT_MUTUAL_FOLLOW"
	CodeUserOffline     = "USER_OFFLINE"
)

// Code maps a hub error to its machine-readable wire code. Errors with
// no dedicated code return the empty string; clients fall back to the
// message.
func Code(err error) string {
	switch {
	case stderrors.Is(err, ErrNotMember):
		return CodeNotMember
	case stderrors.Is(err, ErrPersistence):
		return CodePersistence
	case stderrors.Is(err, ErrNotMutualConnection):
		return CodeNotMutualFollow
	case stderrors.Is(err, ErrReceiverOffline):
		return CodeUserOffline
	default:
		return ""
	}
}
