package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/parser"
	"github.com/tbourn/flashback-dashboard/internal/pushapi"
)

// Dispatcher sends moderator decisions back through the push feed. It is the
// only component that creates or deletes pushes.
//
// A response is a two step workflow: post a new push carrying the decision,
// then delete the original. The second step is best effort; a stale push left
// behind is tolerated because the parser keeps the first occurrence of an
// action id.
//
// Calls for the same (user, action) are serialized, so a decision racing an
// identical one sees it as done instead of posting twice.
type Dispatcher struct {
	Pushes   PushWriter
	Sessions *Sessions
	Accepted *AcceptedIDs
	Broker   *Broker
	// FetchAll controls how the feed is reloaded after an edit or delete.
	FetchAll bool

	mu    sync.Mutex
	locks map[string]*actionLock
}

type actionLock struct {
	mu   sync.Mutex
	refs int
}

// lock holds the (userID, actionID) lock until the returned func is called.
// Entries are dropped once nobody waits on them.
func (d *Dispatcher) lock(userID, actionID string) func() {
	key := userID + "/" + actionID
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*actionLock)
	}
	l, ok := d.locks[key]
	if !ok {
		l = &actionLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}
}

// Respond records decision for actionID. An action already answered is a
// no-op. On a transport failure the action becomes failed, exactly one
// error notification is published and a *DispatchError is returned.
func (d *Dispatcher) Respond(ctx context.Context, userID, token, actionID string, decision domain.Decision) error {
	if !decision.Valid() {
		return ErrInvalidDecision
	}
	if strings.TrimSpace(token) == "" {
		return ErrAuth
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("action_id", actionID),
			attribute.String("decision", string(decision)),
		),
	)
	defer span.End()

	defer d.lock(userID, actionID)()

	sess := d.Sessions.Get(userID)
	if st, ok := sess.Tracker.State(actionID); ok && st == domain.StateDone {
		span.AddEvent("already done")
		return nil
	}

	feed, _ := sess.Feed.Snapshot()
	if IsHandled(feed, actionID) {
		_ = sess.Tracker.MarkDone(actionID)
		span.AddEvent("already answered remotely")
		return nil
	}
	push, ok := findPush(feed, actionID)
	if !ok {
		return ErrActionNotFound
	}

	// a user-initiated dispatch on a failed action is the retry
	if st, ok := sess.Tracker.State(actionID); ok && st == domain.StateFailed {
		_ = sess.Tracker.Retry(actionID)
	}

	if _, err := d.Pushes.CreatePush(ctx, token, string(decision), push.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		_ = sess.Tracker.MarkFailed(actionID)
		d.Broker.Notify(userID, LevelError, "failed to "+decision.Verb())
		return &DispatchError{ActionID: actionID, Op: decision.Verb(), Err: err}
	}

	d.deleteOriginal(ctx, token, push.Iden, actionID)

	if decision == domain.DecisionAccept && d.Accepted != nil {
		if err := d.Accepted.Add(ctx, userID, actionID); err != nil {
			log.Warn().Err(err).Str("action_id", actionID).Msg("could not remember accepted action")
		}
	}

	_ = sess.Tracker.MarkDone(actionID)
	d.Broker.Notify(userID, LevelInfo, decision.Verb()+" sent for action "+actionID)
	return nil
}

// UpdateAnswer replaces the generated answer of actionID by re-posting the
// push under its existing title with the answer line rewritten, then
// deleting the original. The feed is reloaded afterwards so later decisions
// see the new push.
func (d *Dispatcher) UpdateAnswer(ctx context.Context, userID, token, actionID, answer string) error {
	if strings.TrimSpace(token) == "" {
		return ErrAuth
	}
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "UpdateAnswer",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("action_id", actionID),
		),
	)
	defer span.End()

	defer d.lock(userID, actionID)()

	sess := d.Sessions.Get(userID)
	feed, _ := sess.Feed.Snapshot()
	push, ok := findPush(feed, actionID)
	if !ok {
		return ErrActionNotFound
	}

	body := parser.ReplaceGeneratedAnswer(push.Body, answer)
	if _, err := d.Pushes.CreatePush(ctx, token, push.Title, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		d.Broker.Notify(userID, LevelError, "failed to update answer")
		return &DispatchError{ActionID: actionID, Op: "update answer", Err: err}
	}
	d.deleteOriginal(ctx, token, push.Iden, actionID)
	d.Broker.Notify(userID, LevelInfo, "answer updated")

	d.reload(ctx, sess, token)
	return nil
}

// DeletePush removes a push by iden (admin tooling) and reloads the feed.
func (d *Dispatcher) DeletePush(ctx context.Context, userID, token, iden string) error {
	if strings.TrimSpace(token) == "" {
		return ErrAuth
	}
	if err := d.Pushes.DeletePush(ctx, token, iden); err != nil {
		var se *pushapi.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return ErrPushNotFound
		}
		return err
	}
	d.reload(ctx, d.Sessions.Get(userID), token)
	return nil
}

// deleteOriginal is the fire-and-forget second step. It only runs after a
// successful create. Deleting after a failed create too, as earlier clients
// of the bot did, would lose an action whose response never reached the feed.
func (d *Dispatcher) deleteOriginal(ctx context.Context, token, iden, actionID string) {
	if err := d.Pushes.DeletePush(ctx, token, iden); err != nil {
		log.Warn().Err(err).
			Str("iden", iden).
			Str("action_id", actionID).
			Msg("could not delete original push; a stale copy remains")
	}
}

func (d *Dispatcher) reload(ctx context.Context, sess *Session, token string) {
	if _, err := sess.Feed.Refresh(ctx, token, d.FetchAll); err != nil {
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("feed reload after dispatch failed")
	}
}

// findPush returns the first push whose body references actionID.
func findPush(feed domain.Feed, actionID string) (domain.PushItem, bool) {
	for _, p := range feed.Pushes {
		if parser.References(p.Body, actionID) {
			return p, true
		}
	}
	return domain.PushItem{}, false
}
