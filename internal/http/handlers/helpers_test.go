package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

type loadCall struct {
	user, token string
	all, force  bool
}

type fakeFeed struct {
	view     services.FeedView
	err      error
	retryErr error
	loads    []loadCall
	retried  []string
}

func (f *fakeFeed) Load(_ context.Context, userID, token string, fetchAll, force bool) (services.FeedView, error) {
	f.loads = append(f.loads, loadCall{userID, token, fetchAll, force})
	return f.view, f.err
}
func (f *fakeFeed) View(string) services.FeedView { return f.view }
func (f *fakeFeed) Retry(_ string, actionID string) error {
	f.retried = append(f.retried, actionID)
	return f.retryErr
}

type fakeDispatch struct {
	respondErr, answerErr, deleteErr error
	decisions                        []domain.Decision
	answers                          []string
	deleted                          []string
	tokens                           []string
}

func (d *fakeDispatch) Respond(_ context.Context, _, token, _ string, decision domain.Decision) error {
	d.tokens = append(d.tokens, token)
	d.decisions = append(d.decisions, decision)
	return d.respondErr
}
func (d *fakeDispatch) UpdateAnswer(_ context.Context, _, token, _, answer string) error {
	d.tokens = append(d.tokens, token)
	d.answers = append(d.answers, answer)
	return d.answerErr
}
func (d *fakeDispatch) DeletePush(_ context.Context, _, token, iden string) error {
	d.tokens = append(d.tokens, token)
	d.deleted = append(d.deleted, iden)
	return d.deleteErr
}

type fakeHistory struct {
	view    services.HistoryView
	page    services.Page
	err     error
	addErr  error
	calls   []string
	filters []domain.Filter
	added   []*domain.HistoryRecord
}

func (h *fakeHistory) record(op string, f domain.Filter) {
	h.calls = append(h.calls, op)
	h.filters = append(h.filters, f)
}
func (h *fakeHistory) LoadInitial(_ context.Context, _ string, f domain.Filter) (services.HistoryView, error) {
	h.record("initial", f)
	return h.view, h.err
}
func (h *fakeHistory) LoadMore(_ context.Context, _ string, f domain.Filter) (services.Page, error) {
	h.record("more", f)
	return h.page, h.err
}
func (h *fakeHistory) LoadNewer(_ context.Context, _ string, f domain.Filter) (services.Page, error) {
	h.record("newer", f)
	return h.page, h.err
}
func (h *fakeHistory) AddRecord(_ context.Context, userID string, rec *domain.HistoryRecord) error {
	rec.UserID = userID
	h.added = append(h.added, rec)
	return h.addErr
}

type fakeRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *fakeRecorder) RecordDecision(_ context.Context, userID, actionID, key, decision string, status int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, userID+"/"+actionID+"/"+key+"/"+decision)
	return nil
}

// newTestRouter mounts h the way the production router does, minus the
// ambient middleware that is tested on its own.
func newTestRouter(h *Handlers, lookup middleware.IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	r.GET("/feed", h.GetFeed)
	r.POST("/feed/refresh", h.RefreshFeed)
	r.GET("/actions", h.ListActions)
	r.POST("/actions/:id/decision", h.Decide)
	r.PUT("/actions/:id/answer", h.UpdateAnswer)
	r.POST("/actions/:id/retry", h.RetryAction)
	r.DELETE("/pushes/:iden", h.DeletePush)
	r.GET("/history", h.GetHistory)
	r.POST("/history", h.CreateHistory)
	r.GET("/history/more", h.MoreHistory)
	r.GET("/history/newer", h.NewerHistory)
	r.GET("/events", h.Events)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isStr := body.(string); isStr {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "u1")
	req.Header.Set(middleware.HeaderAccessToken, "tok")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func sampleView() services.FeedView {
	return services.FeedView{
		Loaded:     true,
		NewAnswers: 2,
		Actions: []services.ActionView{
			{ActionID: "2", Fields: map[string]string{domain.ActionIDKey: "2"}, State: domain.StatePending},
			{ActionID: "1", Fields: map[string]string{domain.ActionIDKey: "1"}, State: domain.StateDone},
		},
	}
}

func sampleRecord(id int64) services.HistoryItem {
	return services.HistoryItem{
		HistoryRecord:      domain.HistoryRecord{ID: "doc", ActionID: id, Status: domain.StatusPosted, TimeOfPost: time.Unix(0, 0)},
		ReadableTimeOfPost: "1970-01-01 00:00:00",
	}
}
