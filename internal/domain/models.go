// Package domain defines the data model of the moderation dashboard: the
// remote push feed and the action records decoded from it, and the GORM
// persistence models for post history and local durable storage.
package domain

import (
	"time"
)

// History statuses written by the upstream posting pipeline.
const (
	StatusPosted  = "posted"
	StatusSkipped = "skipped"
)

// Filter selects one of the history views.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterPosted  Filter = "posted"
	FilterSkipped Filter = "skipped"
)

// Filters lists every view in display order.
var Filters = []Filter{FilterAll, FilterPosted, FilterSkipped}

// ParseFilter maps query input to a Filter; empty means FilterAll.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterPosted, FilterSkipped:
		return Filter(s), true
	}
	return "", false
}

// Status returns the status equality predicate for f, or "" for FilterAll.
func (f Filter) Status() string {
	if f == FilterAll {
		return ""
	}
	return string(f)
}

// Quote is the post the original author was replying to.
type Quote struct {
	QuotedUser string   `json:"quoted_user"`
	QuotedPost []string `json:"quoted_post"`
}

// OriginalPost is the forum post the bot answered.
type OriginalPost struct {
	UniqueID int64  `json:"unique_id"`
	Username string `json:"username"`
	Quote    *Quote `json:"quote,omitempty"`
	Post     string `json:"post"`
}

// HistoryRecord is a permanent post-history document. ActionID is assigned
// upstream, unique and monotonically increasing; records are immutable
// except for Status.
//
// Fields:
//   - ID: opaque document id (UUID) used as the pagination cursor.
//   - UserID: owner of the history collection.
//   - ActionID: ordering key, descending means most recent.
//   - OriginalPost: stored as JSON.
//   - TimeOfPost: server timestamp set on creation.
type HistoryRecord struct {
	ID              string       `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string       `json:"user_id"          gorm:"type:varchar(64);not null;uniqueIndex:ux_history_user_action,priority:1;index:idx_history_user_status,priority:1"`
	ActionID        int64        `json:"action_id"        gorm:"not null;uniqueIndex:ux_history_user_action,priority:2"`
	OriginalPost    OriginalPost `json:"original_post"    gorm:"type:text;serializer:json"`
	GeneratedAnswer string       `json:"generated_answer" gorm:"type:text"`
	OriginalPostID  int64        `json:"original_post_id"`
	TimeOfPost      time.Time    `json:"time_of_post"`
	Status          string       `json:"status"           gorm:"type:varchar(16);not null;index:idx_history_user_status,priority:2"`
	CreatedAt       time.Time    `json:"-"`
}

// TableName returns the database table name for HistoryRecord.
func (HistoryRecord) TableName() string { return "history_records" }

// CacheEntry is one key of local durable storage (cursors, cached posts,
// accepted ids). Values are opaque strings, usually JSON.
type CacheEntry struct {
	Key       string    `gorm:"type:varchar(191);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string { return "cache_entries" }
