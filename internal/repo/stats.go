// Package repo implements the data persistence layer for the dashboard,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

// HistoryStats returns the number of history documents a user has under
// status ("" for all) and the highest action id among them. With no rows
// both values are 0.
func HistoryStats(ctx context.Context, db *gorm.DB, userID, status string) (count int64, maxActionID int64, err error) {
	base := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.HistoryRecord{}).Where("user_id = ?", userID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		ActionID int64
	}
	if err = base().Select("action_id").Order("action_id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.ActionID, nil
}
