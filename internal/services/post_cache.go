package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// CachedPosts is the local mirror of loaded history, keyed by filter.
type CachedPosts map[domain.Filter][]domain.HistoryRecord

// PostCache owns the `${userId}_posts` and `${userId}_lastVisible_${filter}`
// storage keys. The history paginator is its only writer; the reconciler
// only reads.
type PostCache struct {
	DB   *gorm.DB
	Repo KVRepo

	mu sync.Mutex
}

func postsKey(userID string) string { return userID + "_posts" }

func cursorKey(userID string, f domain.Filter) string {
	return userID + "_lastVisible_" + string(f)
}

// Load returns the cached posts of userID. A missing key yields an empty
// map; malformed JSON is deleted and also yields an empty map.
func (c *PostCache) Load(ctx context.Context, userID string) (CachedPosts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, userID)
}

func (c *PostCache) loadLocked(ctx context.Context, userID string) (CachedPosts, error) {
	key := postsKey(userID)
	raw, err := c.Repo.GetValue(ctx, c.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return CachedPosts{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := CachedPosts{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn().Err(errCacheCorrupt).Str("key", key).Msg("dropping malformed post cache")
		if derr := c.Repo.DeleteValue(ctx, c.DB, key); derr != nil {
			return nil, derr
		}
		return CachedPosts{}, nil
	}
	return out, nil
}

// Merge adds recs to each listed filter, de-duplicated by action id and
// kept sorted by action id descending, and writes the result back.
func (c *PostCache) Merge(ctx context.Context, userID string, add CachedPosts) (CachedPosts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	for f, recs := range add {
		if len(recs) == 0 {
			continue
		}
		cur[f] = mergeRecords(cur[f], recs)
	}
	b, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	if err := c.Repo.PutValue(ctx, c.DB, postsKey(userID), string(b)); err != nil {
		return nil, err
	}
	return cur, nil
}

// Cursor returns the stored last-visible document id for f, or "".
func (c *PostCache) Cursor(ctx context.Context, userID string, f domain.Filter) (string, error) {
	v, err := c.Repo.GetValue(ctx, c.DB, cursorKey(userID, f))
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetCursor stores the last-visible document id for f.
func (c *PostCache) SetCursor(ctx context.Context, userID string, f domain.Filter, docID string) error {
	return c.Repo.PutValue(ctx, c.DB, cursorKey(userID, f), docID)
}

// ClearCursor forgets the last-visible document of f.
func (c *PostCache) ClearCursor(ctx context.Context, userID string, f domain.Filter) error {
	return c.Repo.DeleteValue(ctx, c.DB, cursorKey(userID, f))
}

func mergeRecords(have, add []domain.HistoryRecord) []domain.HistoryRecord {
	ids := make(map[int64]struct{}, len(have)+len(add))
	out := make([]domain.HistoryRecord, 0, len(have)+len(add))
	for _, list := range [][]domain.HistoryRecord{have, add} {
		for _, r := range list {
			if _, dup := ids[r.ActionID]; dup {
				continue
			}
			ids[r.ActionID] = struct{}{}
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.HistoryRecord) int {
		switch {
		case a.ActionID > b.ActionID:
			return -1
		case a.ActionID < b.ActionID:
			return 1
		}
		return 0
	})
	return out
}
