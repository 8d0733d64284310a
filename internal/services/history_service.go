package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// DefaultHistoryPageSize is the number of documents requested per query.
const DefaultHistoryPageSize = 10

// readableLayout formats time_of_post for display.
const readableLayout = "2006-01-02 15:04:05"

// HistoryItem is a HistoryRecord with its display timestamp.
type HistoryItem struct {
	domain.HistoryRecord
	ReadableTimeOfPost string `json:"readable_time_of_post"`
}

func readableTime(t time.Time) string { return t.Local().Format(readableLayout) }

func toItems(recs []domain.HistoryRecord) []HistoryItem {
	out := make([]HistoryItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, HistoryItem{HistoryRecord: r, ReadableTimeOfPost: readableTime(r.TimeOfPost)})
	}
	return out
}

// Page is one paginator result. Records holds only ids not yet seen in the
// filter's session.
type Page struct {
	Filter  domain.Filter `json:"filter"`
	Records []HistoryItem `json:"records"`
	Cursor  string        `json:"cursor,omitempty"`
	Seen    int           `json:"seen"`
}

// HistoryView is the full cached list of a filter.
type HistoryView struct {
	Filter    domain.Filter `json:"filter"`
	Records   []HistoryItem `json:"records"`
	FromCache bool          `json:"from_cache"`
	Seen      int           `json:"seen"`
	Plan      Plan          `json:"plan"`
}

type sessionKey struct {
	user   string
	filter domain.Filter
}

// pageSession is the paging state of one (user, filter). The seen set is
// scoped to it, so a record shown under "all" is still new under "posted".
type pageSession struct {
	mu      sync.Mutex
	initial bool
	seen    map[int64]struct{}
}

// HistoryService pages through the post-history document store and keeps
// the local post cache and cursors in sync.
type HistoryService struct {
	DB         *gorm.DB
	Repo       HistoryRepo
	Cache      *PostCache
	Reconciler *Reconciler
	Sessions   *Sessions
	Broker     *Broker
	PageSize   int

	mu       sync.Mutex
	sessions map[sessionKey]*pageSession
	cursors  map[sessionKey]*domain.HistoryRecord
	counts   map[sessionKey]int
}

// NewHistoryService wires a HistoryService. pageSize <= 0 selects
// DefaultHistoryPageSize.
func NewHistoryService(db *gorm.DB, r HistoryRepo, cache *PostCache, rec *Reconciler, sessions *Sessions, b *Broker, pageSize int) *HistoryService {
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	return &HistoryService{
		DB:         db,
		Repo:       r,
		Cache:      cache,
		Reconciler: rec,
		Sessions:   sessions,
		Broker:     b,
		PageSize:   pageSize,
		sessions:   make(map[sessionKey]*pageSession),
		cursors:    make(map[sessionKey]*domain.HistoryRecord),
		counts:     make(map[sessionKey]int),
	}
}

func validFilter(f domain.Filter) bool { return slices.Contains(domain.Filters, f) }

func (s *HistoryService) session(userID string, f domain.Filter) *pageSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := sessionKey{userID, f}
	if ps, ok := s.sessions[k]; ok {
		return ps
	}
	ps := &pageSession{initial: true, seen: make(map[int64]struct{})}
	s.sessions[k] = ps
	return ps
}

func (s *HistoryService) cursor(userID string, f domain.Filter) *domain.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[sessionKey{userID, f}]
}

func (s *HistoryService) setCursor(userID string, f domain.Filter, doc domain.HistoryRecord) {
	s.mu.Lock()
	s.cursors[sessionKey{userID, f}] = &doc
	s.mu.Unlock()
}

// Seen returns how many records each filter session has surfaced.
func (s *HistoryService) Seen(userID string) map[domain.Filter]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Filter]int, len(domain.Filters))
	for _, f := range domain.Filters {
		out[f] = s.counts[sessionKey{userID, f}]
	}
	return out
}

// ResetSession starts a fresh paging session for (userID, f): the seen set,
// the in-memory cursor and the seen counter are cleared. Stored cursors are
// kept for LoadMore.
func (s *HistoryService) ResetSession(userID string, f domain.Filter) {
	ps := s.session(userID, f)
	ps.mu.Lock()
	ps.initial = true
	ps.seen = make(map[int64]struct{})
	ps.mu.Unlock()

	s.mu.Lock()
	k := sessionKey{userID, f}
	delete(s.cursors, k)
	delete(s.counts, k)
	s.mu.Unlock()
}

// FetchPage returns the next page of not-yet-seen records for filter.
//
// Cursor mode (minExclusive nil) resumes after cursor, or after the
// session's last-visible document when cursor is nil. The very first call
// of a session may start from the top; a later call with no cursor at all
// aborts with an empty page.
//
// Threshold mode (minExclusive set) returns every unseen action id above
// it, following the range page by page until a short page ends it.
//
// A non-empty query result holding only seen ids is skipped over by
// continuing after its last document, until a page yields something new or
// the store runs out of documents.
func (s *HistoryService) FetchPage(ctx context.Context, userID string, filter domain.Filter, cursor *domain.HistoryRecord, minExclusive *int64) (Page, error) {
	if !validFilter(filter) {
		return Page{}, ErrInvalidFilter
	}

	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "FetchPage",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("filter", string(filter)),
			attribute.Bool("threshold", minExclusive != nil),
		),
	)
	defer span.End()

	ps := s.session(userID, filter)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	threshold := minExclusive != nil
	if cursor == nil {
		cursor = s.cursor(userID, filter)
	}
	if !threshold && cursor == nil && !ps.initial {
		log.Warn().Str("user_id", userID).Str("filter", string(filter)).
			Msg("no last visible document after initial fetch; aborting page")
		span.AddEvent("aborted: no cursor")
		return Page{Filter: filter, Records: []HistoryItem{}}, nil
	}
	ps.initial = false

	var after *domain.HistoryRecord
	if !threshold {
		after = cursor
	}

	var (
		fresh   []domain.HistoryRecord
		lastDoc domain.HistoryRecord
		queries int
	)
	for {
		docs, err := s.Repo.QueryHistory(ctx, s.DB, repo.HistoryQuery{
			UserID:               userID,
			Status:               filter.Status(),
			Limit:                s.PageSize,
			StartAfter:           after,
			MinExclusiveActionID: minExclusive,
		})
		queries++
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")
			return Page{}, err
		}
		if len(docs) == 0 {
			break
		}

		lastDoc = docs[len(docs)-1]
		for _, d := range docs {
			if _, ok := ps.seen[d.ActionID]; ok {
				continue
			}
			ps.seen[d.ActionID] = struct{}{}
			fresh = append(fresh, d)
		}
		after = &lastDoc

		// the range above the threshold is drained in one call; a later
		// threshold starts above its top, so nothing below may be left behind
		if threshold {
			if len(docs) < s.PageSize {
				break
			}
			continue
		}
		if len(fresh) > 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("queries", queries), attribute.Int("records", len(fresh)))
	if len(fresh) == 0 {
		return Page{Filter: filter, Records: []HistoryItem{}}, nil
	}
	return s.commit(ctx, userID, filter, lastDoc, fresh, threshold)
}

// commit persists cursors and the post cache for a page with new records.
func (s *HistoryService) commit(ctx context.Context, userID string, filter domain.Filter, lastDoc domain.HistoryRecord, fresh []domain.HistoryRecord, threshold bool) (Page, error) {
	add := CachedPosts{domain.FilterAll: fresh}
	last := map[domain.Filter]domain.HistoryRecord{filter: lastDoc}
	for _, r := range fresh {
		switch r.Status {
		case domain.StatusPosted:
			add[domain.FilterPosted] = append(add[domain.FilterPosted], r)
			if filter == domain.FilterAll {
				last[domain.FilterPosted] = r
			}
		case domain.StatusSkipped:
			add[domain.FilterSkipped] = append(add[domain.FilterSkipped], r)
			if filter == domain.FilterAll {
				last[domain.FilterSkipped] = r
			}
		}
	}

	for f, doc := range last {
		// a threshold page must not move an existing older-page cursor
		if threshold {
			if id, err := s.Cache.Cursor(ctx, userID, f); err == nil && id != "" {
				continue
			}
		}
		if err := s.Cache.SetCursor(ctx, userID, f, doc.ID); err != nil {
			return Page{}, err
		}
		s.setCursor(userID, f, doc)
	}

	if _, err := s.Cache.Merge(ctx, userID, add); err != nil {
		return Page{}, err
	}

	s.mu.Lock()
	for f, recs := range add {
		s.counts[sessionKey{userID, f}] += len(recs)
	}
	seen := s.counts[sessionKey{userID, filter}]
	s.mu.Unlock()

	s.Broker.Publish(Event{Type: EventHistoryUpdated, UserID: userID, Filter: string(filter), Count: len(fresh)})

	cursorID := ""
	if c := s.cursor(userID, filter); c != nil {
		cursorID = c.ID
	}
	return Page{Filter: filter, Records: toItems(fresh), Cursor: cursorID, Seen: seen}, nil
}

// LoadInitial reconciles the cache against the live feed, then serves the
// cached view of filter or loads its first page from the store.
func (s *HistoryService) LoadInitial(ctx context.Context, userID string, filter domain.Filter) (HistoryView, error) {
	if !validFilter(filter) {
		return HistoryView{}, ErrInvalidFilter
	}

	var feed *domain.Feed
	if s.Sessions != nil {
		if f, ok := s.Sessions.Get(userID).Feed.Snapshot(); ok {
			feed = &f
		}
	}

	plan, err := s.Reconciler.Decide(ctx, userID, filter, feed)
	if err != nil {
		return HistoryView{}, s.failed(userID, err)
	}

	// Decide has already dropped the materialized ids, so forced filters
	// other than the requested one are refreshed now or never.
	for _, f := range plan.Force {
		if f == filter {
			continue
		}
		if _, err := s.LoadNewer(ctx, userID, f); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("filter", string(f)).Msg("forced history refresh failed")
		}
	}
	if plan.UseCache {
		return s.view(ctx, userID, filter, true, plan)
	}

	s.ResetSession(userID, filter)
	if _, err := s.FetchPage(ctx, userID, filter, nil, nil); err != nil {
		return HistoryView{}, s.failed(userID, err)
	}
	return s.view(ctx, userID, filter, false, plan)
}

// LoadMore returns the next older page. When the session holds no cursor
// it is recreated from the stored last-visible document id.
func (s *HistoryService) LoadMore(ctx context.Context, userID string, filter domain.Filter) (Page, error) {
	if !validFilter(filter) {
		return Page{}, ErrInvalidFilter
	}
	cur := s.cursor(userID, filter)
	if cur == nil {
		id, err := s.Cache.Cursor(ctx, userID, filter)
		if err != nil {
			return Page{}, s.failed(userID, err)
		}
		if id != "" {
			doc, err := s.Repo.GetHistoryDoc(ctx, s.DB, userID, id)
			if errors.Is(err, repo.ErrNotFound) {
				return Page{}, ErrInvalidCursor
			}
			if err != nil {
				return Page{}, s.failed(userID, err)
			}
			s.setCursor(userID, filter, *doc)
			cur = doc
		}
	}
	page, err := s.FetchPage(ctx, userID, filter, cur, nil)
	if err != nil {
		return Page{}, s.failed(userID, err)
	}
	return page, nil
}

// LoadNewer fetches records above the highest cached action id of filter.
// With an empty cache it starts a fresh session from the top.
func (s *HistoryService) LoadNewer(ctx context.Context, userID string, filter domain.Filter) (Page, error) {
	if !validFilter(filter) {
		return Page{}, ErrInvalidFilter
	}
	cached, err := s.Cache.Load(ctx, userID)
	if err != nil {
		return Page{}, s.failed(userID, err)
	}
	var page Page
	if recs := cached[filter]; len(recs) > 0 {
		top := recs[0].ActionID
		page, err = s.FetchPage(ctx, userID, filter, nil, &top)
	} else {
		s.ResetSession(userID, filter)
		page, err = s.FetchPage(ctx, userID, filter, nil, nil)
	}
	if err != nil {
		return Page{}, s.failed(userID, err)
	}
	return page, nil
}

// AddRecord inserts a history document for userID. Used by admin and demo
// tooling; the upstream pipeline normally writes these.
func (s *HistoryService) AddRecord(ctx context.Context, userID string, rec *domain.HistoryRecord) error {
	if rec.Status != domain.StatusPosted && rec.Status != domain.StatusSkipped {
		return ErrInvalidFilter
	}
	rec.UserID = userID
	rec.GeneratedAnswer = strings.TrimSpace(rec.GeneratedAnswer)
	if err := s.Repo.CreateHistory(ctx, s.DB, rec); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateRecord
		}
		return err
	}
	s.Broker.Publish(Event{Type: EventHistoryUpdated, UserID: userID, Filter: rec.Status, Count: 1})
	return nil
}

func (s *HistoryService) view(ctx context.Context, userID string, filter domain.Filter, fromCache bool, plan Plan) (HistoryView, error) {
	cached, err := s.Cache.Load(ctx, userID)
	if err != nil {
		return HistoryView{}, s.failed(userID, err)
	}
	return HistoryView{
		Filter:    filter,
		Records:   toItems(cached[filter]),
		FromCache: fromCache,
		Seen:      s.Seen(userID)[filter],
		Plan:      plan,
	}, nil
}

// failed publishes the load failure notification and passes err through.
func (s *HistoryService) failed(userID string, err error) error {
	s.Broker.Notify(userID, LevelError, "failed to load history")
	return err
}
