package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const body = "Action ID: 7\nUsername: ann\nGenerated Answer: hello\nsecond line\n"

func TestParseCmd_Stdin(t *testing.T) {
	t.Setenv("PUSH_KNOWN_KEYS", "")
	out, err := run(t, body, "parse")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var recs []domain.ActionRecord
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(recs) != 1 || recs[0].ActionID != "7" || recs[0].Field("Generated Answer") != "hello\nsecond line" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestParseCmd_CustomKeys(t *testing.T) {
	out, err := run(t, body, "parse", "--keys", "Username")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var recs []domain.ActionRecord
	_ = json.Unmarshal([]byte(out), &recs)
	if len(recs) != 1 || recs[0].Field("Generated Answer") != "" {
		t.Fatalf("unknown keys must fold into the previous value: %+v", recs)
	}
}

func TestFeedCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Access-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pushes": []map[string]any{{"iden": "p1", "title": "FlashbackBot", "body": body}},
		})
	}))
	defer srv.Close()

	out, err := run(t, "", "feed", "--url", srv.URL, "--token", "tok", "--all=false")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !strings.Contains(out, `"action_id": "7"`) {
		t.Fatalf("out = %s", out)
	}

	t.Setenv("PUSH_TOKEN", "")
	if _, err := run(t, "", "feed", "--url", srv.URL); err == nil {
		t.Fatalf("missing token must fail")
	}
}

func TestHistoryCmd_AddAndList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dash.db")

	if _, err := run(t, "", "history", "add", "--db", db, "--user", "u1", "--action-id", "3",
		"--status", "skipped", "--username", "ann", "--quote-post", "a", "--quote-post", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := run(t, "", "history", "add", "--db", db, "--user", "u1", "--action-id", "3"); err == nil {
		t.Fatalf("duplicate action id must fail")
	}
	if _, err := run(t, "", "history", "add", "--db", db, "--action-id", "4", "--status", "pending"); err == nil {
		t.Fatalf("invalid status must fail")
	}

	out, err := run(t, "", "history", "list", "--db", db, "--user", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var recs []domain.HistoryRecord
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(recs) != 1 || recs[0].Status != domain.StatusSkipped || recs[0].OriginalPost.Quote == nil ||
		len(recs[0].OriginalPost.Quote.QuotedPost) != 2 {
		t.Fatalf("records = %+v", recs)
	}
}
