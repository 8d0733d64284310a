package services

import (
	"context"
	"fmt"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

// ActionView is one decoded record with its lifecycle state.
type ActionView struct {
	ActionID string                `json:"action_id"`
	Fields   map[string]string     `json:"fields"`
	State    domain.LifecycleState `json:"state" swaggertype:"string" enums:"pending,done,failed"`
}

// FeedView is what the dashboard renders for the push feed.
type FeedView struct {
	Loaded bool `json:"loaded"`
	// NewAnswers is the number of active pushes in the feed.
	NewAnswers int          `json:"new_answers"`
	Actions    []ActionView `json:"actions"`
}

// View builds the FeedView of userID from the session's current state.
func (s *Sessions) View(userID string) FeedView {
	sess := s.Get(userID)
	feed, loaded := sess.Feed.Snapshot()
	states := sess.Tracker.States()
	recs := sess.Feed.Records()

	v := FeedView{Loaded: loaded, NewAnswers: len(feed.Pushes), Actions: make([]ActionView, 0, len(recs))}
	for _, r := range recs {
		v.Actions = append(v.Actions, ActionView{ActionID: r.ActionID, Fields: r.Fields, State: states[r.ActionID]})
	}
	return v
}

// Load runs the guarded fetch, or a forced refresh, and returns the view.
// On a fetch error the view still reflects the last good feed.
func (s *Sessions) Load(ctx context.Context, userID, token string, fetchAll, force bool) (FeedView, error) {
	sess := s.Get(userID)
	var err error
	if force {
		_, err = sess.Feed.Refresh(ctx, token, fetchAll)
	} else {
		_, err = sess.Feed.Fetch(ctx, token, fetchAll)
	}
	return s.View(userID), err
}

// Retry moves a failed action of userID back to pending.
func (s *Sessions) Retry(userID, actionID string) error {
	tr := s.Get(userID).Tracker
	if _, ok := tr.State(actionID); !ok {
		return fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	return tr.Retry(actionID)
}
