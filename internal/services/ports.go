package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// FeedFetcher reads the remote push feed. *pushapi.Client implements it.
type FeedFetcher interface {
	FetchPage(ctx context.Context, token string, fetchAll bool, onPage func(domain.Feed)) (*domain.Feed, error)
}

// PushWriter creates and deletes single pushes. *pushapi.Client implements it.
type PushWriter interface {
	CreatePush(ctx context.Context, token, title, body string) (*domain.PushItem, error)
	DeletePush(ctx context.Context, token, iden string) error
}

// KVRepo is the local durable storage contract.
type KVRepo interface {
	// GetValue returns the stored value or repo.ErrNotFound.
	GetValue(ctx context.Context, db *gorm.DB, key string) (string, error)
	// PutValue inserts or replaces key.
	PutValue(ctx context.Context, db *gorm.DB, key, value string) error
	// DeleteValue removes key; missing keys are not an error.
	DeleteValue(ctx context.Context, db *gorm.DB, key string) error
}

// HistoryRepo is the post-history document store contract.
type HistoryRepo interface {
	// QueryHistory returns documents ordered by action_id descending.
	QueryHistory(ctx context.Context, db *gorm.DB, q repo.HistoryQuery) ([]domain.HistoryRecord, error)
	// GetHistoryDoc loads one document or returns repo.ErrNotFound.
	GetHistoryDoc(ctx context.Context, db *gorm.DB, userID, docID string) (*domain.HistoryRecord, error)
	// CreateHistory inserts a document; repo.ErrDuplicate on a repeated action id.
	CreateHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error
}
