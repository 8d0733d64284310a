package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/parser"
	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// ----- storage -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

type kvShim struct{}

func (kvShim) GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	return repo.GetValue(ctx, db, key)
}
func (kvShim) PutValue(ctx context.Context, db *gorm.DB, key, value string) error {
	return repo.PutValue(ctx, db, key, value)
}
func (kvShim) DeleteValue(ctx context.Context, db *gorm.DB, key string) error {
	return repo.DeleteValue(ctx, db, key)
}

// historyShim proxies to the GORM store and counts queries.
type historyShim struct {
	mu      sync.Mutex
	queries int
}

func (h *historyShim) QueryHistory(ctx context.Context, db *gorm.DB, q repo.HistoryQuery) ([]domain.HistoryRecord, error) {
	h.mu.Lock()
	h.queries++
	h.mu.Unlock()
	return repo.QueryHistory(ctx, db, q)
}
func (h *historyShim) GetHistoryDoc(ctx context.Context, db *gorm.DB, userID, docID string) (*domain.HistoryRecord, error) {
	return repo.GetHistoryDoc(ctx, db, userID, docID)
}
func (h *historyShim) CreateHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.CreateHistory(ctx, db, rec)
}

func (h *historyShim) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queries
}

// ----- push feed -----

// fakePushes is an in-memory push service implementing FeedFetcher and
// PushWriter.
type fakePushes struct {
	mu        sync.Mutex
	pushes    []domain.PushItem
	fetchErr  error
	createErr error
	deleteErr error
	// createDelay holds CreatePush open to widen race windows.
	createDelay time.Duration

	fetches int
	creates []domain.PushItem
	deletes []string
	next    int
}

func (f *fakePushes) FetchPage(ctx context.Context, token string, fetchAll bool, onPage func(domain.Feed)) (*domain.Feed, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrAuth
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return &domain.Feed{}, f.fetchErr
	}
	page := domain.Feed{Pushes: append([]domain.PushItem(nil), f.pushes...)}
	if onPage != nil {
		onPage(page)
	}
	return &page, nil
}

func (f *fakePushes) CreatePush(ctx context.Context, token, title, body string) (*domain.PushItem, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := domain.PushItem{Iden: fmt.Sprintf("new%d", f.next), Title: title, Body: body, Active: true}
	f.next++
	f.creates = append(f.creates, p)
	if f.createErr != nil {
		return nil, f.createErr
	}
	// newest first, like the remote feed
	f.pushes = append([]domain.PushItem{p}, f.pushes...)
	return &p, nil
}

func (f *fakePushes) DeletePush(ctx context.Context, token, iden string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, iden)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, p := range f.pushes {
		if p.Iden == iden {
			f.pushes = append(f.pushes[:i], f.pushes[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakePushes) calls() (creates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.deletes)
}

func botPush(iden, id string) domain.PushItem {
	return domain.PushItem{
		Iden:  iden,
		Title: "FlashbackBot",
		Body:  "Action ID: " + id + "\nUsername: u" + id + "\nGenerated Answer: answer " + id + "\n",
	}
}

var errBoom = errors.New("boom")

// ----- events -----

// collect drains ch until no event arrives for a short while.
func collect(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}

func notifications(evs []Event, level string) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Type == EventNotification && ev.Level == level {
			out = append(out, ev)
		}
	}
	return out
}

// ----- wiring -----

type harness struct {
	db         *gorm.DB
	pushes     *fakePushes
	broker     *Broker
	sessions   *Sessions
	accepted   *AcceptedIDs
	dispatcher *Dispatcher
	history    *HistoryService
	store      *historyShim
}

func newHarness(t *testing.T, pushes ...domain.PushItem) *harness {
	t.Helper()
	db := newServiceDB(t)
	fp := &fakePushes{pushes: pushes}
	b := NewBroker(64)
	sessions := NewSessions(fp, parser.New(nil), b)
	accepted := &AcceptedIDs{DB: db, Repo: kvShim{}}
	cache := &PostCache{DB: db, Repo: kvShim{}}
	store := &historyShim{}
	return &harness{
		db:         db,
		pushes:     fp,
		broker:     b,
		sessions:   sessions,
		accepted:   accepted,
		dispatcher: &Dispatcher{Pushes: fp, Sessions: sessions, Accepted: accepted, Broker: b, FetchAll: true},
		history: NewHistoryService(db, store, cache,
			&Reconciler{Accepted: accepted, Cache: cache}, sessions, b, 10),
		store: store,
	}
}

// seedHistory inserts records with action ids 1..n; odd ids are posted,
// even ids skipped unless allPosted is set.
func seedHistory(t *testing.T, db *gorm.DB, userID string, n int, allPosted bool) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		status := domain.StatusPosted
		if !allPosted && i%2 == 0 {
			status = domain.StatusSkipped
		}
		rec := &domain.HistoryRecord{
			UserID:          userID,
			ActionID:        int64(i),
			GeneratedAnswer: fmt.Sprintf("answer %d", i),
			Status:          status,
			TimeOfPost:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.CreateHistory(context.Background(), db, rec); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}
