package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/parser"
)

// FeedService owns the aggregated push feed of one user session and the
// records decoded from it. It is the only writer of that state.
//
// Fetch is guarded: a call while another fetch is in flight, or after one
// completed in this session, is a no-op. Reset re-arms it for an explicit
// refresh.
type FeedService struct {
	UserID  string
	Fetcher FeedFetcher
	Parser  *parser.Parser
	Tracker *StateTracker
	Broker  *Broker

	mu       sync.Mutex
	inFlight bool
	fetched  bool
	feed     *domain.Feed
	records  []domain.ActionRecord
}

// Fetch loads the feed unless the guard says otherwise. It reports whether a
// fetch was performed. On error the previous feed is kept.
func (s *FeedService) Fetch(ctx context.Context, token string, fetchAll bool) (bool, error) {
	s.mu.Lock()
	if s.inFlight || s.fetched {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	tr := otel.Tracer("services/FeedService")
	ctx, span := tr.Start(ctx, "Fetch",
		trace.WithAttributes(
			attribute.String("user_id", s.UserID),
			attribute.Bool("fetch_all", fetchAll),
		),
	)
	defer span.End()

	feed, err := s.Fetcher.FetchPage(ctx, token, fetchAll, func(page domain.Feed) {
		s.Broker.Publish(Event{Type: EventFeedPage, UserID: s.UserID, Count: len(page.Pushes)})
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("user_id", s.UserID).Msg("push feed fetch failed; keeping previous feed")
		return false, err
	}

	s.fetched = true
	s.feed = feed
	s.records = s.Parser.ParseFeed(feed.Pushes)
	s.Tracker.Sync(*feed, s.records)
	span.SetAttributes(attribute.Int("pushes", len(feed.Pushes)), attribute.Int("records", len(s.records)))

	s.Broker.Publish(Event{Type: EventFeedUpdated, UserID: s.UserID, Count: len(s.records)})
	return true, nil
}

// Reset clears the completed flag so the next Fetch hits the network.
func (s *FeedService) Reset() {
	s.mu.Lock()
	s.fetched = false
	s.mu.Unlock()
}

// Refresh is Reset followed by Fetch.
func (s *FeedService) Refresh(ctx context.Context, token string, fetchAll bool) (bool, error) {
	s.Reset()
	return s.Fetch(ctx, token, fetchAll)
}

// Loaded reports whether a feed has been stored in this session.
func (s *FeedService) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed != nil
}

// Snapshot returns a copy of the current feed and whether one is loaded.
func (s *FeedService) Snapshot() (domain.Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feed == nil {
		return domain.Feed{}, false
	}
	return s.feed.Clone(), true
}

// Records returns the decoded records of the current feed.
func (s *FeedService) Records() []domain.ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Session bundles the per-user engine state.
type Session struct {
	UserID  string
	Feed    *FeedService
	Tracker *StateTracker
}

// Sessions creates and caches one Session per user id.
type Sessions struct {
	Fetcher FeedFetcher
	Parser  *parser.Parser
	Broker  *Broker

	mu     sync.Mutex
	byUser map[string]*Session
}

// NewSessions returns an empty registry.
func NewSessions(f FeedFetcher, p *parser.Parser, b *Broker) *Sessions {
	return &Sessions{Fetcher: f, Parser: p, Broker: b, byUser: make(map[string]*Session)}
}

// Get returns the session of userID, creating it on first use.
func (s *Sessions) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byUser[userID]; ok {
		return sess
	}
	tr := NewStateTracker(userID, s.Broker)
	sess := &Session{
		UserID:  userID,
		Tracker: tr,
		Feed: &FeedService{
			UserID:  userID,
			Fetcher: s.Fetcher,
			Parser:  s.Parser,
			Tracker: tr,
			Broker:  s.Broker,
		},
	}
	s.byUser[userID] = sess
	return sess
}
