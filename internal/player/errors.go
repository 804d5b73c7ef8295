// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"errors"
	"fmt"

	"github.com/nrdxhq/blockstranding/internal/observability"
)

// Sentinel errors for the delegation lifecycle. Every failure returned by this
// package and its controllers wraps exactly one of these, with an oops code
// attached, so callers branch with errors.Is.
var (
	ErrAlreadyExists     = errors.New("player already exists")
	ErrNotFound          = errors.New("player not found")
	ErrNotOwner          = errors.New("caller is not the owner or an authorized payer")
	ErrAlreadyDelegated  = errors.New("player is already delegated")
	ErrInvalidTransition = errors.New("invalid authority transition")
	ErrWrongAuthority    = errors.New("executing context does not hold authority")
	ErrNotDelegated      = errors.New("player is not delegated")
	ErrCommitFailed      = errors.New("commit from delegated context failed")
	ErrCounterOverflow   = errors.New("counter overflow")
	// ErrHandoffFailed means the delegated context could not take the record.
	// The entity stays in Delegating until a resume completes the hand-off.
	ErrHandoffFailed = errors.New("hand-off to delegated context failed")
)

// Error codes attached to the sentinels above.
const (
	CodeAlreadyExists     = "PLAYER_ALREADY_EXISTS"
	CodeNotFound          = "PLAYER_NOT_FOUND"
	CodeNotOwner          = "PLAYER_NOT_OWNER"
	CodeAlreadyDelegated  = "PLAYER_ALREADY_DELEGATED"
	CodeInvalidTransition = "AUTHORITY_INVALID_TRANSITION"
	CodeWrongAuthority    = "PLAYER_WRONG_AUTHORITY"
	CodeNotDelegated      = "PLAYER_NOT_DELEGATED"
	CodeCommitFailed      = "RECONCILE_COMMIT_FAILED"
	CodeCounterOverflow   = "PLAYER_COUNTER_OVERFLOW"
	CodeHandoffFailed     = "DELEGATION_HANDOFF_FAILED"
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// statuses maps sentinels to metric status labels.
var statuses = []struct {
	err    error
	status string
}{
	{ErrAlreadyExists, "already_exists"},
	{ErrNotFound, "not_found"},
	{ErrNotOwner, "not_owner"},
	{ErrAlreadyDelegated, "already_delegated"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrWrongAuthority, "wrong_authority"},
	{ErrNotDelegated, "not_delegated"},
	{ErrCommitFailed, "commit_failed"},
	{ErrCounterOverflow, "counter_overflow"},
	{ErrHandoffFailed, "handoff_failed"},
}

// Status returns the metric status label for the result of an operation.
func Status(err error) string {
	if err == nil {
		return observability.StatusSuccess
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "invalid"
	}
	return "error"
}
