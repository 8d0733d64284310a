package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestContext(h http.Header) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	for k, vv := range h {
		c.Request.Header[k] = vv
	}
	return c
}

func TestIdentity_UserAndToken(t *testing.T) {
	c := newTestContext(nil)
	if got := UserID(c); got != DefaultUserID {
		t.Fatalf("fallback user = %q", got)
	}
	if got := PushToken(c); got != "" {
		t.Fatalf("token = %q", got)
	}

	r := gin.New()
	r.Use(Identity())
	var user, token string
	r.GET("/", func(c *gin.Context) {
		user, token = UserID(c), PushToken(c)
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, " mod-7 ")
	req.Header.Set(HeaderAccessToken, "o.secret")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if user != "mod-7" || token != "o.secret" {
		t.Fatalf("identity = %q %q", user, token)
	}
}

func TestIdentity_UpstreamUserWins(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, "from-auth"); c.Next() }, Identity())
	var user string
	r.GET("/", func(c *gin.Context) { user = UserID(c) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "spoofed")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if user != "from-auth" {
		t.Fatalf("user = %q", user)
	}
}

func TestIdempotencyValidator_NoHeaderSkipsLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (*Replay, error) {
		called = true
		return nil, nil
	}
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/actions/:id/decision", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Errorf("no key expected")
		}
		c.Status(http.StatusAccepted)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/actions/5/decision", nil))
	if w.Code != http.StatusAccepted || called {
		t.Fatalf("code=%d called=%v", w.Code, called)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 8}, nil))
	r.POST("/actions/:id/decision", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for _, key := range []string{"has space", "way-too-long-key"} {
		req := httptest.NewRequest(http.MethodPost, "/actions/5/decision", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: code=%d body=%s", key, w.Code, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_ReplayKeyedByAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	type call struct{ user, action, key string }
	var calls []call
	lookup := func(_ context.Context, user, action, key string, _ time.Time) (*Replay, error) {
		calls = append(calls, call{user, action, key})
		if action == "5" {
			return &Replay{Decision: "accept", Status: http.StatusAccepted}, nil
		}
		return nil, nil
	}

	r := gin.New()
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	var replay *Replay
	var bypass bool
	r.POST("/actions/:id/decision", func(c *gin.Context) {
		replay, _ = ReplayOf(c)
		bypass = IsRateBypass(c)
		c.Status(http.StatusAccepted)
	})

	send := func(id string) {
		req := httptest.NewRequest(http.MethodPost, "/actions/"+id+"/decision", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-1")
		req.Header.Set(HeaderUserID, "u1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	send("5")
	if replay == nil || replay.Decision != "accept" || !bypass {
		t.Fatalf("replay=%+v bypass=%v", replay, bypass)
	}
	send("6")
	if replay != nil || bypass {
		t.Fatalf("action 6 must not replay")
	}
	if len(calls) != 2 || calls[0] != (call{"u1", "5", "k-1"}) {
		t.Fatalf("calls = %+v", calls)
	}
}
