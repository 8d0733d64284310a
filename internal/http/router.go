// Package httpapi wires the Gin transport to the dashboard services: the
// middleware chain, the repository shims the services depend on, and the
// versioned API routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/config"
	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/http/handlers"
	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/parser"
	"github.com/tbourn/flashback-dashboard/internal/repo"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

// kvRepoShim adapts the repo key-value functions to services.KVRepo.
type kvRepoShim struct{}

func (kvRepoShim) GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	return repo.GetValue(ctx, db, key)
}

func (kvRepoShim) PutValue(ctx context.Context, db *gorm.DB, key, value string) error {
	return repo.PutValue(ctx, db, key, value)
}

func (kvRepoShim) DeleteValue(ctx context.Context, db *gorm.DB, key string) error {
	return repo.DeleteValue(ctx, db, key)
}

// historyRepoShim adapts the repo history functions to services.HistoryRepo.
type historyRepoShim struct{}

func (historyRepoShim) QueryHistory(ctx context.Context, db *gorm.DB, q repo.HistoryQuery) ([]domain.HistoryRecord, error) {
	return repo.QueryHistory(ctx, db, q)
}

func (historyRepoShim) GetHistoryDoc(ctx context.Context, db *gorm.DB, userID, docID string) (*domain.HistoryRecord, error) {
	return repo.GetHistoryDoc(ctx, db, userID, docID)
}

func (historyRepoShim) CreateHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.CreateHistory(ctx, db, rec)
}

// decisionStore persists decision outcomes for Idempotency-Key replays.
type decisionStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// RecordDecision implements handlers.DecisionRecorder. A key recorded twice
// keeps its first outcome.
func (s decisionStore) RecordDecision(ctx context.Context, userID, actionID, key, decision string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, actionID, key, decision, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

func (s decisionStore) lookup(ctx context.Context, userID, actionID, key string, now time.Time) (*middleware.Replay, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, actionID, key, now)
	if err != nil || rec == nil {
		return nil, err
	}
	return &middleware.Replay{Decision: rec.Decision, Status: rec.Status}, nil
}

// PushClient is the push API as the services consume it.
type PushClient interface {
	services.FeedFetcher
	services.PushWriter
}

// Services is the dependency graph behind the routes.
type Services struct {
	DB       *gorm.DB
	Broker   *services.Broker
	Sessions *services.Sessions
	Dispatch *services.Dispatcher
	History  *services.HistoryService
}

// NewServices builds the services over db and the push API client.
func NewServices(db *gorm.DB, pushes PushClient, cfg config.Config) Services {
	broker := services.NewBroker(64)
	sessions := services.NewSessions(pushes, parser.New(cfg.Push.KnownKeys), broker)
	accepted := &services.AcceptedIDs{DB: db, Repo: kvRepoShim{}, Scope: cfg.AcceptedScope}
	cache := &services.PostCache{DB: db, Repo: kvRepoShim{}}

	return Services{
		DB:       db,
		Broker:   broker,
		Sessions: sessions,
		Dispatch: &services.Dispatcher{
			Pushes:   pushes,
			Sessions: sessions,
			Accepted: accepted,
			Broker:   broker,
			FetchAll: true,
		},
		History: services.NewHistoryService(db, historyRepoShim{}, cache,
			&services.Reconciler{Accepted: accepted, Cache: cache},
			sessions, broker, cfg.HistoryPageSize),
	}
}

// RegisterRoutes attaches the middleware chain and every endpoint to r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID, then Identity so logs and limits know the caller
//  3. RedactingLogger, then Recovery so panics are logged in context
//  4. Body size limit and gzip
//  5. Metrics
//  6. Idempotency validator, before the rate limiter so replays bypass it
//  7. Rate limiter
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	store := decisionStore{db: svc.DB, ttl: cfg.IdempotencyTTL}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	// the event stream hijacks its connection and cannot be compressed
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{cfg.APIBasePath + "/events", "/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, store.lookup))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "If-None-Match",
		middleware.HeaderUserID, middleware.HeaderAccessToken, middleware.HeaderIdempotencyKey,
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  allowHeaders,
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header, for curl and health probes.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var events handlers.EventSource
	if svc.Broker != nil {
		events = svc.Broker
	}
	h := handlers.New(svc.Sessions, svc.Dispatch, svc.History, store, events)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/feed", h.GetFeed)
		api.POST("/feed/refresh", h.RefreshFeed)

		api.GET("/actions", h.ListActions)
		api.POST("/actions/:id/decision", h.Decide)
		api.PUT("/actions/:id/answer", h.UpdateAnswer)
		api.POST("/actions/:id/retry", h.RetryAction)
		api.DELETE("/pushes/:iden", h.DeletePush)

		api.GET("/history", h.GetHistory)
		api.POST("/history", h.CreateHistory)
		api.GET("/history/more", h.MoreHistory)
		api.GET("/history/newer", h.NewerHistory)

		api.GET("/events", h.Events)
	}
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
