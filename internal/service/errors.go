package service

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to handlers. Handlers translate these into typed
// response codes; the messages themselves are for logs, not end users.
var (
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrAssignmentInactive  = errors.New("assignment is not active")
	ErrAssignmentExpired   = errors.New("assignment period has ended")
	ErrNotSupervised       = errors.New("simulation does not use supervised rooms")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotWaiting   = errors.New("session is not in waiting state")
	ErrSessionClosed       = errors.New("session is already closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotInvited          = errors.New("student is not on the session roster")
	ErrNotThreadOwner      = errors.New("student does not own this message thread")
)

// StartBlockedError reports a refused non-forced start together with the
// connected/total counts so the caller can render "X/Y terhubung".
type StartBlockedError struct {
	Connected int
	Total     int
}

func (e *StartBlockedError) Error() string {
	return fmt.Sprintf("cannot start session: %d/%d participants connected", e.Connected, e.Total)
}
