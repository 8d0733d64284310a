package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name      string
		opt       SecurityOptions
		forwarded string
		wantHSTS  string
		wantCache string
	}{
		{name: "baseline"},
		{name: "hsts over http is skipped", opt: SecurityOptions{EnableHSTS: true}},
		{
			name:      "hsts behind tls proxy",
			opt:       SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
			forwarded: "https",
			wantHSTS:  "max-age=3600; includeSubDomains; preload",
		},
		{name: "no-store", opt: SecurityOptions{NoStore: true}, wantCache: "no-store"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID(), SecurityHeaders(tc.opt))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tc.forwarded)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			h := w.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" {
				t.Fatalf("baseline headers missing: %v", h)
			}
			if got := h.Get("Strict-Transport-Security"); got != tc.wantHSTS {
				t.Fatalf("hsts = %q", got)
			}
			if got := h.Get("Cache-Control"); got != tc.wantCache {
				t.Fatalf("cache-control = %q", got)
			}
			if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, ETag" {
				t.Fatalf("expose = %q", got)
			}
		})
	}
}
