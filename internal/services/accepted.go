package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/config"
	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// legacyAcceptedKey is the storage key shared by every user of a device.
const legacyAcceptedKey = "acceptedPosts"

// AcceptedIDs is the locally persisted set of action ids the moderator
// accepted that may not yet be materialized in post history. It is the
// single writer of its storage key.
type AcceptedIDs struct {
	DB    *gorm.DB
	Repo  KVRepo
	Scope string // config.AcceptedScopeGlobal or config.AcceptedScopeUser

	mu sync.Mutex
}

// Key returns the storage key for userID under the configured scope.
func (a *AcceptedIDs) Key(userID string) string {
	if a.Scope == config.AcceptedScopeUser {
		return userID + "_acceptedPosts"
	}
	return legacyAcceptedKey
}

// List returns the stored ids in insertion order.
func (a *AcceptedIDs) List(ctx context.Context, userID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadLocked(ctx, userID)
}

// Add appends id unless it is already present.
func (a *AcceptedIDs) Add(ctx context.Context, userID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids, err := a.loadLocked(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return a.saveLocked(ctx, userID, append(ids, id))
}

// Remove drops every id in drop.
func (a *AcceptedIDs) Remove(ctx context.Context, userID string, drop ...string) error {
	if len(drop) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ids, err := a.loadLocked(ctx, userID)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(ids, func(id string) bool { return slices.Contains(drop, id) })
	return a.saveLocked(ctx, userID, kept)
}

func (a *AcceptedIDs) loadLocked(ctx context.Context, userID string) ([]string, error) {
	key := a.Key(userID)
	raw, err := a.Repo.GetValue(ctx, a.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Warn().Err(errCacheCorrupt).Str("key", key).Msg("dropping malformed accepted ids")
		if derr := a.Repo.DeleteValue(ctx, a.DB, key); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return ids, nil
}

func (a *AcceptedIDs) saveLocked(ctx context.Context, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return a.Repo.PutValue(ctx, a.DB, a.Key(userID), string(b))
}
