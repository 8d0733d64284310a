// Package services implements the moderation engine: the guarded push feed
// store, per-action lifecycle tracking, decision dispatch, post-history
// paging and the cache reconciliation policy.
//
// This file centralizes the service-level error values so handlers can map
// them to HTTP results consistently.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/flashback-dashboard/internal/pushapi"
)

var (
	// ErrAuth is returned when the push access token is missing or empty.
	// It is the same value the push client returns.
	ErrAuth = pushapi.ErrAuth

	// ErrActionNotFound indicates that no push in the current feed references
	// the requested action id.
	ErrActionNotFound = errors.New("action not found")

	// ErrPushNotFound indicates that the push iden does not exist remotely.
	ErrPushNotFound = errors.New("push not found")

	// ErrInvalidDecision is returned for decisions other than Accept, Reject
	// or Skip.
	ErrInvalidDecision = errors.New("decision must be accept, reject or skip")

	// ErrEmptyAnswer is returned when an answer edit carries no text.
	ErrEmptyAnswer = errors.New("answer is empty")

	// ErrInvalidTransition is returned when a lifecycle change is not allowed,
	// for example retrying an action that is not failed.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidFilter is returned for unknown history views.
	ErrInvalidFilter = errors.New("filter must be all, posted or skipped")

	// ErrInvalidCursor indicates that the stored last-visible document for a
	// filter could not be loaded, so older pages cannot be requested.
	ErrInvalidCursor = errors.New("invalid last visible document")

	// ErrDuplicateRecord is returned when a history record with the same
	// action id already exists for the user.
	ErrDuplicateRecord = errors.New("history record already exists")

	// errCacheCorrupt marks malformed JSON in local storage. It is handled
	// by deleting the key and never leaves this package.
	errCacheCorrupt = errors.New("corrupt cache entry")
)

// DispatchError wraps a transport failure while responding to an action.
// The action is flipped to failed when the operation was a decision.
type DispatchError struct {
	ActionID string
	Op       string // accept|reject|skip|update answer
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to %s action %s: %v", e.Op, e.ActionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
