// Package repo implements the data persistence layer for the dashboard,
// backed by GORM. This file provides the post-history document store.
//
// Documents live in one table scoped by user id. Reads are ordered by
// action_id descending and support the two pagination predicates the
// history paginator needs:
//
//   - StartAfter: resume strictly after a previously returned document
//   - MinExclusiveActionID: only documents with action_id > N
//
// Both may be combined; the caller decides which mode a request uses.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

// HistoryQuery describes one ordered range read.
type HistoryQuery struct {
	UserID               string
	Status               string // equality filter, "" for none
	Limit                int
	StartAfter           *domain.HistoryRecord
	MinExclusiveActionID *int64
}

// QueryHistory returns up to q.Limit documents ordered by action_id DESC.
func QueryHistory(ctx context.Context, db *gorm.DB, q HistoryQuery) ([]domain.HistoryRecord, error) {
	tx := db.WithContext(ctx).Model(&domain.HistoryRecord{}).Where("user_id = ?", q.UserID)
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.StartAfter != nil {
		tx = tx.Where("action_id < ?", q.StartAfter.ActionID)
	}
	if q.MinExclusiveActionID != nil {
		tx = tx.Where("action_id > ?", *q.MinExclusiveActionID)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []domain.HistoryRecord
	if err := tx.Order("action_id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistoryDoc loads a single document by id for the user, or ErrNotFound.
func GetHistoryDoc(ctx context.Context, db *gorm.DB, userID, docID string) (*domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	err := db.WithContext(ctx).Where("id = ? AND user_id = ?", docID, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateHistory inserts rec, assigning an id and server timestamp when they
// are unset. A second document for the same (user, action_id) yields
// ErrDuplicate.
func CreateHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TimeOfPost.IsZero() {
		rec.TimeOfPost = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
