package services

import (
	"fmt"
	"sync"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/parser"
)

// IsHandled reports whether a moderator response for actionID is present in
// the feed: a push titled Accept, Reject or Skip whose body carries the
// action marker.
func IsHandled(feed domain.Feed, actionID string) bool {
	for _, p := range feed.Pushes {
		if domain.IsResponseTitle(p.Title) && parser.References(p.Body, actionID) {
			return true
		}
	}
	return false
}

// StateTracker holds the lifecycle state of every action seen in one user
// session. States live in memory only.
type StateTracker struct {
	userID string
	broker *Broker

	mu     sync.Mutex
	states map[string]domain.LifecycleState
}

// NewStateTracker returns an empty tracker publishing changes on b.
func NewStateTracker(userID string, b *Broker) *StateTracker {
	return &StateTracker{userID: userID, broker: b, states: make(map[string]domain.LifecycleState)}
}

// Sync classifies records against feed. New ids start pending or done.
// Known ids only move to done when the feed shows a response; a failed
// action stays failed until the user retries.
func (t *StateTracker) Sync(feed domain.Feed, records []domain.ActionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		handled := IsHandled(feed, r.ActionID)
		cur, known := t.states[r.ActionID]
		switch {
		case !known && handled:
			t.setLocked(r.ActionID, domain.StateDone)
		case !known:
			t.setLocked(r.ActionID, domain.StatePending)
		case handled && cur != domain.StateDone:
			t.setLocked(r.ActionID, domain.StateDone)
		}
	}
}

// State returns the state of id and whether it is tracked.
func (t *StateTracker) State(id string) (domain.LifecycleState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	return s, ok
}

// States returns a copy of all tracked states.
func (t *StateTracker) States() map[string]domain.LifecycleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.LifecycleState, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}
	return out
}

// MarkDone records a confirmed response.
func (t *StateTracker) MarkDone(id string) error { return t.transition(id, domain.StateDone) }

// MarkFailed records a failed dispatch.
func (t *StateTracker) MarkFailed(id string) error { return t.transition(id, domain.StateFailed) }

// Retry moves a failed action back to pending.
func (t *StateTracker) Retry(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.states[id]; !ok || cur != domain.StateFailed {
		return fmt.Errorf("%w: %s is not failed", ErrInvalidTransition, id)
	}
	t.setLocked(id, domain.StatePending)
	return nil
}

func (t *StateTracker) transition(id string, next domain.LifecycleState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.states[id]
	if !ok {
		cur = domain.StatePending
	}
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	if ok && cur == next {
		return nil
	}
	t.setLocked(id, next)
	return nil
}

func (t *StateTracker) setLocked(id string, s domain.LifecycleState) {
	t.states[id] = s
	t.broker.Publish(Event{Type: EventActionState, UserID: t.userID, ActionID: id, State: s.String()})
}
