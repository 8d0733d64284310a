package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/repo"
)

// Poller refreshes the push feed of one configured user on a fixed interval
// and purges expired idempotency records on the same tick.
type Poller struct {
	Sessions *Sessions
	DB       *gorm.DB
	UserID   string
	Token    string
	Interval time.Duration
	FetchAll bool
}

// Run blocks until ctx is done. A zero interval returns immediately.
func (p *Poller) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return nil
	}
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	sess := p.Sessions.Get(p.UserID)
	if _, err := sess.Feed.Refresh(ctx, p.Token, p.FetchAll); err != nil {
		log.Warn().Err(err).Str("user_id", p.UserID).Msg("poll refresh failed")
	}
	if p.DB == nil {
		return
	}
	n, err := repo.PurgeExpiredIdempotency(ctx, p.DB, time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("idempotency purge failed")
		return
	}
	if n > 0 {
		log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
	}
}
