package pushapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

// pagedServer serves len(pages) pages chained by cursors "c1", "c2", ...
// failAt (1-based) makes that page return failStatus instead.
func pagedServer(t *testing.T, pages [][]string, failAt, failStatus int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1))
		if r.Header.Get("Access-Token") != "tok" {
			t.Errorf("missing Access-Token header")
		}
		if r.URL.Query().Get("active") != "true" {
			t.Errorf("request %d missing active=true: %s", n, r.URL.RawQuery)
		}
		wantCursor := ""
		if n > 1 {
			wantCursor = fmt.Sprintf("c%d", n-1)
		}
		if got := r.URL.Query().Get("cursor"); got != wantCursor {
			t.Errorf("request %d cursor = %q, want %q", n, got, wantCursor)
		}
		if n == failAt {
			w.WriteHeader(failStatus)
			_, _ = io.WriteString(w, `{"error":"nope"}`)
			return
		}
		resp := map[string]any{"accounts": n}
		var pushes []domain.PushItem
		for _, iden := range pages[n-1] {
			pushes = append(pushes, domain.PushItem{Iden: iden, Title: "bot", Body: "Action ID: 1\n"})
		}
		resp["pushes"] = pushes
		if n < len(pages) {
			resp["cursor"] = fmt.Sprintf("c%d", n)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func idens(f *domain.Feed) string {
	var out []string
	for _, p := range f.Pushes {
		out = append(out, p.Iden)
	}
	return strings.Join(out, ",")
}

func TestFetchPage_EmptyTokenIsAuthError(t *testing.T) {
	srv, hits := pagedServer(t, [][]string{{"a"}}, 0, 0)
	c := NewClient(srv.URL, time.Second)
	if _, err := c.FetchPage(context.Background(), "  ", true, nil); !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("no request should be made without a token")
	}
}

func TestFetchPage_SinglePage(t *testing.T) {
	srv, hits := pagedServer(t, [][]string{{"a", "b"}, {"c"}}, 0, 0)
	c := NewClient(srv.URL, time.Second)
	feed, err := c.FetchPage(context.Background(), "tok", false, nil)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if idens(feed) != "a,b" || atomic.LoadInt32(hits) != 1 {
		t.Fatalf("feed = %s hits = %d", idens(feed), *hits)
	}
	if feed.Cursor != "c1" {
		t.Fatalf("cursor = %q", feed.Cursor)
	}
}

func TestFetchPage_AllPagesMergedInOrder(t *testing.T) {
	srv, _ := pagedServer(t, [][]string{{"a", "b"}, {"c"}, {"d"}}, 0, 0)
	c := NewClient(srv.URL, time.Second)

	var seen []int
	feed, err := c.FetchPage(context.Background(), "tok", true, func(p domain.Feed) {
		seen = append(seen, len(p.Pushes))
	})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if idens(feed) != "a,b,c,d" {
		t.Fatalf("pushes = %s", idens(feed))
	}
	if fmt.Sprint(seen) != "[2 1 1]" {
		t.Fatalf("callback saw raw pages %v", seen)
	}
	if string(feed.Extra["accounts"]) != "3" || feed.Cursor != "" {
		t.Fatalf("last page must win for scalar fields: %+v", feed)
	}
}

func TestFetchPage_NonSuccessReturnsPartial(t *testing.T) {
	srv, hits := pagedServer(t, [][]string{{"a"}, {"b"}, {"c"}}, 3, http.StatusTooManyRequests)
	c := NewClient(srv.URL, time.Second)
	before := testutil.ToFloat64(apiReqs.WithLabelValues("list", "429"))

	feed, err := c.FetchPage(context.Background(), "tok", true, nil)
	if err != nil {
		t.Fatalf("partial fetch must not fail: %v", err)
	}
	if idens(feed) != "a,b" || atomic.LoadInt32(hits) != 3 {
		t.Fatalf("feed = %s hits = %d", idens(feed), *hits)
	}
	if got := testutil.ToFloat64(apiReqs.WithLabelValues("list", "429")); got != before+1 {
		t.Fatalf("429 counter = %v, want %v", got, before+1)
	}
}

func TestFetchPage_SinglePageStatusError(t *testing.T) {
	srv, _ := pagedServer(t, [][]string{{"a"}}, 1, http.StatusUnauthorized)
	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchPage(context.Background(), "tok", false, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want StatusError 401", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("status errors must match ErrTransport")
	}
}

func TestFetchPage_TimeoutKeepsMergedPages(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 2 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = io.WriteString(w, `{"pushes":[{"iden":"a"}],"cursor":"next"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond)
	feed, err := c.FetchPage(context.Background(), "tok", true, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if feed == nil || idens(feed) != "a" {
		t.Fatalf("accumulator must keep the first page, got %+v", feed)
	}
}

func TestCreateAndDeletePush(t *testing.T) {
	var gotCreate createPushRequest
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Access-Token") != "tok" {
			t.Errorf("missing token")
		}
		switch r.Method {
		case http.MethodPost:
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("content type = %q", r.Header.Get("Content-Type"))
			}
			_ = json.NewDecoder(r.Body).Decode(&gotCreate)
			_, _ = io.WriteString(w, `{"iden":"new1","title":"Accept","body":"b"}`)
		case http.MethodDelete:
			deleted = strings.TrimPrefix(r.URL.Path, "/pushes/")
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/pushes/", time.Second)
	p, err := c.CreatePush(context.Background(), "tok", "Accept", "b")
	if err != nil {
		t.Fatalf("CreatePush: %v", err)
	}
	if p.Iden != "new1" || gotCreate != (createPushRequest{Type: "note", Title: "Accept", Body: "b"}) {
		t.Fatalf("create = %+v / %+v", p, gotCreate)
	}
	if err := c.DeletePush(context.Background(), "tok", "old1"); err != nil {
		t.Fatalf("DeletePush: %v", err)
	}
	if deleted != "old1" {
		t.Fatalf("deleted = %q", deleted)
	}
	if err := c.DeletePush(context.Background(), "", "x"); !errors.Is(err, ErrAuth) {
		t.Fatalf("delete without token: %v", err)
	}
}
