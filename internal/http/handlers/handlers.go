package handlers

import (
	"context"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

// FeedService is the push feed as seen by one user: the guarded fetch, the
// decoded records with their lifecycle state and the retry transition.
type FeedService interface {
	Load(ctx context.Context, userID, token string, fetchAll, force bool) (services.FeedView, error)
	View(userID string) services.FeedView
	Retry(userID, actionID string) error
}

// ActionDispatcher sends decisions and edits back through the push API.
type ActionDispatcher interface {
	Respond(ctx context.Context, userID, token, actionID string, decision domain.Decision) error
	UpdateAnswer(ctx context.Context, userID, token, actionID, answer string) error
	DeletePush(ctx context.Context, userID, token, iden string) error
}

// HistoryService pages post history and keeps the local cache reconciled.
type HistoryService interface {
	LoadInitial(ctx context.Context, userID string, filter domain.Filter) (services.HistoryView, error)
	LoadMore(ctx context.Context, userID string, filter domain.Filter) (services.Page, error)
	LoadNewer(ctx context.Context, userID string, filter domain.Filter) (services.Page, error)
	AddRecord(ctx context.Context, userID string, rec *domain.HistoryRecord) error
}

// DecisionRecorder stores the outcome of a decision under its
// Idempotency-Key so a resend is replayed instead of dispatched twice.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, userID, actionID, key, decision string, status int) error
}

// EventSource streams events for one user.
type EventSource interface {
	Subscribe(userID string) (<-chan services.Event, func())
}

// Handlers groups the dashboard endpoints over their services. Recorder and
// Events may be nil; the decision endpoint then skips recording and the
// event stream answers 503.
type Handlers struct {
	feed     FeedService
	dispatch ActionDispatcher
	history  HistoryService
	recorder DecisionRecorder
	events   EventSource
}

// New binds the handlers to their services.
func New(feed FeedService, dispatch ActionDispatcher, history HistoryService, recorder DecisionRecorder, events EventSource) *Handlers {
	return &Handlers{feed: feed, dispatch: dispatch, history: history, recorder: recorder, events: events}
}
