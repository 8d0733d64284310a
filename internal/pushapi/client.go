// Package pushapi talks to the remote push feed the bot publishes action
// records to. It fetches the feed page by page following the server's cursor
// and creates or deletes single pushes on behalf of the moderator.
//
// Every call carries the caller's access token in the Access-Token header;
// feed reads are always scoped to active pushes.
package pushapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

// DefaultBaseURL is the pushes collection of the hosted push service.
const DefaultBaseURL = "https://api.pushbullet.com/v2/pushes"

// maxErrorBody caps how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Client is a minimal push API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the pushes collection at baseURL. A zero
// timeout falls back to 15 seconds; a request never hangs indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the pushes collection URL.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchPage reads the push feed.
//
// With fetchAll false exactly one request is made and its page is returned
// merged into an empty accumulator. With fetchAll true pages are requested
// in cursor order until the server stops returning a cursor. A non-success
// status ends the loop and the pages merged so far are returned without
// error. A network or decode failure returns the pages merged so far
// together with an error matching ErrTransport; the failed page is never
// merged.
//
// onPage, when non-nil, receives each raw page after it was merged.
func (c *Client) FetchPage(ctx context.Context, token string, fetchAll bool, onPage func(domain.Feed)) (*domain.Feed, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrAuth
	}

	tr := otel.Tracer("pushapi/Client")
	ctx, span := tr.Start(ctx, "FetchPage",
		trace.WithAttributes(attribute.Bool("fetch_all", fetchAll)),
	)
	defer span.End()

	acc := &domain.Feed{}
	cursor := ""
	pages := 0
	for {
		page, err := c.getPage(ctx, token, cursor)
		if err != nil {
			var se *StatusError
			if fetchAll && errors.As(err, &se) {
				span.AddEvent("partial result", trace.WithAttributes(
					attribute.Int("status", se.Code),
					attribute.Int("pages", pages),
				))
				return acc, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return acc, err
		}

		acc.Merge(*page)
		pages++
		apiPages.Inc()
		if onPage != nil {
			onPage(*page)
		}

		if !fetchAll || page.Cursor == "" {
			span.SetAttributes(attribute.Int("pages", pages), attribute.Int("pushes", len(acc.Pushes)))
			return acc, nil
		}
		cursor = page.Cursor
	}
}

func (c *Client) getPage(ctx context.Context, token, cursor string) (*domain.Feed, error) {
	q := url.Values{}
	q.Set("active", "true")
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page domain.Feed
	if err := c.do(ctx, "list", http.MethodGet, c.baseURL+"?"+q.Encode(), token, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type createPushRequest struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreatePush posts a new note push.
func (c *Client) CreatePush(ctx context.Context, token, title, body string) (*domain.PushItem, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrAuth
	}

	tr := otel.Tracer("pushapi/Client")
	ctx, span := tr.Start(ctx, "CreatePush", trace.WithAttributes(attribute.String("title", title)))
	defer span.End()

	var out domain.PushItem
	err := c.do(ctx, "create", http.MethodPost, c.baseURL, token,
		createPushRequest{Type: "note", Title: title, Body: body}, &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	return &out, nil
}

// DeletePush removes the push identified by iden.
func (c *Client) DeletePush(ctx context.Context, token, iden string) error {
	if strings.TrimSpace(token) == "" {
		return ErrAuth
	}
	if iden == "" {
		return errors.New("delete push: empty iden")
	}

	tr := otel.Tracer("pushapi/Client")
	ctx, span := tr.Start(ctx, "DeletePush", trace.WithAttributes(attribute.String("iden", iden)))
	defer span.End()

	if err := c.do(ctx, "delete", http.MethodDelete, c.baseURL+"/"+url.PathEscape(iden), token, nil, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	return nil
}

// do performs one request and decodes a JSON response into result when
// result is non-nil.
func (c *Client) do(ctx context.Context, op, method, target, token string, body, result any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, op+": marshal request")
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return errors.Wrap(err, op+": create request")
	}
	req.Header.Set("Access-Token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiLat.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		apiReqs.WithLabelValues(op, "error").Inc()
		return wrapTransport(op, errors.Wrap(err, "send request"))
	}
	defer resp.Body.Close()
	apiReqs.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapTransport(op, errors.Wrap(err, "read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &StatusError{Op: op, Code: resp.StatusCode, Body: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return wrapTransport(op, errors.Wrap(err, "unmarshal response"))
		}
	}
	return nil
}
