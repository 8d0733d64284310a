package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

func TestDecide_SendsAndRecordsKey(t *testing.T) {
	disp := &fakeDispatch{}
	rec := &fakeRecorder{}
	r := newTestRouter(New(&fakeFeed{}, disp, &fakeHistory{}, rec, nil), nil)

	w := do(t, r, http.MethodPost, "/actions/42/decision", DecisionRequest{Decision: " SKIP "},
		map[string]string{middleware.HeaderIdempotencyKey: "k1"})
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	got := decode[DecisionResponse](t, w)
	if got.ActionID != "42" || got.Decision != domain.DecisionSkip || got.Replayed {
		t.Fatalf("resp = %+v", got)
	}
	if len(disp.decisions) != 1 || disp.decisions[0] != domain.DecisionSkip || disp.tokens[0] != "tok" {
		t.Fatalf("dispatch = %+v", disp)
	}
	if len(rec.keys) != 1 || rec.keys[0] != "u1/42/k1/Skip" {
		t.Fatalf("recorded = %v", rec.keys)
	}

	// without a key nothing is recorded
	do(t, r, http.MethodPost, "/actions/43/decision", DecisionRequest{Decision: "accept"}, nil)
	if len(rec.keys) != 1 {
		t.Fatalf("recorded = %v", rec.keys)
	}
}

func TestDecide_ReplaySkipsDispatch(t *testing.T) {
	disp := &fakeDispatch{}
	lookup := func(_ context.Context, userID, actionID, key string, _ time.Time) (*middleware.Replay, error) {
		if userID == "u1" && actionID == "42" && key == "k1" {
			return &middleware.Replay{Decision: "Accept", Status: http.StatusOK}, nil
		}
		return nil, nil
	}
	r := newTestRouter(New(&fakeFeed{}, disp, &fakeHistory{}, &fakeRecorder{}, nil), lookup)

	w := do(t, r, http.MethodPost, "/actions/42/decision", DecisionRequest{Decision: "accept"},
		map[string]string{middleware.HeaderIdempotencyKey: "k1"})
	got := decode[DecisionResponse](t, w)
	if w.Code != http.StatusOK || !got.Replayed || got.Decision != domain.DecisionAccept {
		t.Fatalf("code=%d resp=%+v", w.Code, got)
	}
	if len(disp.decisions) != 0 {
		t.Fatalf("replay must not dispatch")
	}
}

func TestDecide_Errors(t *testing.T) {
	disp := &fakeDispatch{}
	r := newTestRouter(New(&fakeFeed{}, disp, &fakeHistory{}, nil, nil), nil)

	if w := do(t, r, http.MethodPost, "/actions/1/decision", "{", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/actions/1/decision", DecisionRequest{Decision: "maybe"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad decision = %d", w.Code)
	}
	if len(disp.decisions) != 0 {
		t.Fatalf("invalid input must not dispatch")
	}

	disp.respondErr = &services.DispatchError{ActionID: "1", Op: "reject", Err: errors.New("push api 500")}
	w := do(t, r, http.MethodPost, "/actions/1/decision", DecisionRequest{Decision: "reject"}, nil)
	if w.Code != http.StatusBadGateway || decode[ErrorResponse](t, w).Code != ErrCodeDispatchFailed {
		t.Fatalf("dispatch failure: %d %s", w.Code, w.Body.String())
	}

	disp.respondErr = services.ErrActionNotFound
	if w := do(t, r, http.MethodPost, "/actions/9/decision", DecisionRequest{Decision: "accept"}, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown action = %d", w.Code)
	}
}

func TestUpdateAnswer(t *testing.T) {
	disp := &fakeDispatch{}
	r := newTestRouter(New(&fakeFeed{}, disp, &fakeHistory{}, nil, nil), nil)

	if w := do(t, r, http.MethodPut, "/actions/5/answer", AnswerRequest{Answer: "   "}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank answer = %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/actions/5/answer", AnswerRequest{Answer: "new text"}, nil); w.Code != http.StatusNoContent {
		t.Fatalf("code = %d", w.Code)
	}
	if len(disp.answers) != 1 || disp.answers[0] != "new text" {
		t.Fatalf("answers = %v", disp.answers)
	}

	disp.answerErr = services.ErrAuth
	if w := do(t, r, http.MethodPut, "/actions/5/answer", AnswerRequest{Answer: "x"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("auth = %d", w.Code)
	}
}

func TestDeletePush(t *testing.T) {
	disp := &fakeDispatch{}
	r := newTestRouter(New(&fakeFeed{}, disp, &fakeHistory{}, nil, nil), nil)

	if w := do(t, r, http.MethodDelete, "/pushes/abc", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("code = %d", w.Code)
	}
	if len(disp.deleted) != 1 || disp.deleted[0] != "abc" {
		t.Fatalf("deleted = %v", disp.deleted)
	}

	disp.deleteErr = services.ErrPushNotFound
	if w := do(t, r, http.MethodDelete, "/pushes/abc", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing = %d", w.Code)
	}
	disp.deleteErr = errors.New("connection reset")
	if w := do(t, r, http.MethodDelete, "/pushes/abc", nil, nil); w.Code != http.StatusBadGateway {
		t.Fatalf("transport = %d", w.Code)
	}
}
