package services

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/parser"
)

// Plan is the outcome of a reconciliation.
type Plan struct {
	// UseCache means the cached view of the requested filter can be served
	// without touching the document store.
	UseCache bool `json:"use_cache"`
	// Force lists filters whose cache is stale and must be re-fetched.
	Force []domain.Filter `json:"force,omitempty"`
	// Materialized are accepted ids that left the live feed. They have been
	// removed from the accepted set already.
	Materialized []string `json:"materialized,omitempty"`
}

// Forced reports whether f must be re-fetched.
func (p Plan) Forced(f domain.Filter) bool { return slices.Contains(p.Force, f) }

// Reconciler decides between the local post cache and the document store.
//
// An accepted id that no push of the live feed references any more has
// been posted upstream since the cache was written. Such ids are dropped
// from the accepted set at once, whether or not the forced fetch finds the
// record yet, so the same id never forces twice.
type Reconciler struct {
	Accepted *AcceptedIDs
	Cache    *PostCache
}

// Decide builds the Plan for filter. feed is the session's live feed; when
// nil (no feed loaded yet) the accepted-id check is skipped. A loaded but
// empty feed references nothing, so every accepted id materializes.
func (r *Reconciler) Decide(ctx context.Context, userID string, filter domain.Filter, feed *domain.Feed) (Plan, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "Decide",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("filter", string(filter)),
			attribute.Bool("feed_loaded", feed != nil),
		),
	)
	defer span.End()

	var plan Plan
	if feed != nil {
		ids, err := r.Accepted.List(ctx, userID)
		if err != nil {
			return Plan{}, err
		}
		for _, id := range ids {
			if !referenced(*feed, id) {
				plan.Materialized = append(plan.Materialized, id)
			}
		}
		if len(plan.Materialized) > 0 {
			if err := r.Accepted.Remove(ctx, userID, plan.Materialized...); err != nil {
				return Plan{}, err
			}
			plan.Force = []domain.Filter{domain.FilterPosted, domain.FilterAll}
			log.Info().
				Str("user_id", userID).
				Strs("action_ids", plan.Materialized).
				Msg("accepted actions left the feed; forcing history fetch")
		}
	}

	if plan.Forced(filter) {
		span.SetAttributes(attribute.Bool("use_cache", false))
		return plan, nil
	}

	cached, err := r.Cache.Load(ctx, userID)
	if err != nil {
		return Plan{}, err
	}
	cursor, err := r.Cache.Cursor(ctx, userID, filter)
	if err != nil {
		return Plan{}, err
	}
	plan.UseCache = len(cached[filter]) > 0 && cursor != ""
	span.SetAttributes(attribute.Bool("use_cache", plan.UseCache))
	return plan, nil
}

func referenced(feed domain.Feed, id string) bool {
	for _, p := range feed.Pushes {
		if parser.References(p.Body, id) {
			return true
		}
	}
	return false
}
