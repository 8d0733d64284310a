package domain

import "time"

// Idempotency records the outcome of a decision request, keyed by
// (user_id, action_id, key). A retried request with the same key replays
// the stored outcome instead of posting a second response push.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_action_key,priority:1"`
	ActionID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_action_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_action_key,priority:3"`
	Decision  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
