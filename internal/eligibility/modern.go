package eligibility

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"intro-eligibility-api/internal/models"
)

// liveResolver is the modern strategy: a live catalog lookup of exactly the
// requested identifiers. Descriptors that already carry the account's live
// eligibility signal resolve immediately; the rest get one live per-offer
// query each. The per-product queries are independent and run concurrently;
// the resolver waits for all of them before returning.
type liveResolver struct {
	checker *Checker
}

func (r *liveResolver) resolve(ctx context.Context, userID string, ids []string) map[string]models.EligibilityStatus {
	c := r.checker

	descriptors, err := c.catalog.LiveProducts(ctx, userID, ids)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Strs("product_ids", ids).
			Msg("live catalog lookup failed, degrading to unknown")
		return nil
	}

	result := make(map[string]models.EligibilityStatus, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range descriptors {
		if !d.HasIntroOffer {
			result[d.ID] = models.EligibilityNoIntroOffer
			continue
		}

		if d.IntroOfferEligible != nil {
			if *d.IntroOfferEligible {
				result[d.ID] = models.EligibilityEligible
			} else {
				result[d.ID] = models.EligibilityIneligible
			}
			continue
		}

		productID := d.ID
		g.Go(func() error {
			status := r.queryOffer(gctx, userID, productID)
			mu.Lock()
			result[productID] = status
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return result
}

// queryOffer performs one live per-offer query with a slow-call diagnostic.
// The threshold is a logging aid only; the call is never cut short.
func (r *liveResolver) queryOffer(ctx context.Context, userID, productID string) models.EligibilityStatus {
	c := r.checker

	start := time.Now()
	eligible, err := c.querier.IsEligibleForIntroOffer(ctx, userID, productID)
	elapsed := time.Since(start)

	if elapsed > c.cfg.SlowQueryThreshold {
		c.log.Warn().
			Str("user_id", userID).
			Str("product_id", productID).
			Dur("elapsed", elapsed).
			Dur("threshold", c.cfg.SlowQueryThreshold).
			Msg("live eligibility query took unusually long")
	}

	if err != nil {
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("product_id", productID).
			Msg("live eligibility query failed, degrading to unknown")
		return models.EligibilityUnknown
	}

	if eligible {
		return models.EligibilityEligible
	}
	return models.EligibilityIneligible
}
