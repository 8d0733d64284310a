package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ActionIDKey is the field every decoded record carries.
const ActionIDKey = "Action ID"

// ActionRecord is one decoded "Action ID" block. Fields always contains
// ActionIDKey plus whichever recognised keys the block carried.
type ActionRecord struct {
	ActionID string            `json:"action_id"`
	Fields   map[string]string `json:"fields"`
}

// Field returns the value stored under key, or "".
func (r ActionRecord) Field(key string) string { return r.Fields[key] }

// LifecycleState is the per-session classification of an action record.
type LifecycleState int

const (
	StatePending LifecycleState = iota
	StateDone
	StateFailed
)

// transitions lists the allowed moves out of each state. Done has none.
var transitions = map[LifecycleState][]LifecycleState{
	StatePending: {StateDone, StateFailed},
	StateFailed:  {StatePending, StateDone},
	StateDone:    nil,
}

// CanTransition reports whether moving from s to next is allowed.
// Re-asserting the current state is always allowed.
func (s LifecycleState) CanTransition(next LifecycleState) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s LifecycleState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its lowercase name.
func (s LifecycleState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON accepts the names written by MarshalJSON.
func (s *LifecycleState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, st := range []LifecycleState{StatePending, StateDone, StateFailed} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown lifecycle state %q", name)
}

// Decision is a moderator's final answer on an action.
type Decision string

const (
	DecisionAccept Decision = "Accept"
	DecisionReject Decision = "Reject"
	DecisionSkip   Decision = "Skip"
)

// ParseDecision canonicalises user input ("accept", " SKIP ") to a Decision.
func ParseDecision(s string) (Decision, bool) {
	d := Decision(cases.Title(language.Und).String(strings.TrimSpace(strings.ToLower(s))))
	return d, d.Valid()
}

// Valid reports whether d is one of the three protocol titles.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAccept, DecisionReject, DecisionSkip:
		return true
	}
	return false
}

// Verb is the lowercase verb used in notifications ("failed to accept").
func (d Decision) Verb() string { return strings.ToLower(string(d)) }

// IsResponseTitle reports whether a push title marks a moderator response.
func IsResponseTitle(title string) bool { return Decision(title).Valid() }
