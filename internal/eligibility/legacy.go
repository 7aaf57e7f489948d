package eligibility

import (
	"context"
	"errors"

	"intro-eligibility-api/internal/backend"
	"intro-eligibility-api/internal/models"
)

// receiptResolver is the legacy strategy: inspect the stored receipt
// locally first, then resolve whatever the receipt could not answer through
// the catalog filter and the backend. The receipt is fetched with
// RefreshNever; a refresh can surface a credential prompt, which a passive
// eligibility check must never trigger.
type receiptResolver struct {
	checker *Checker
}

func (r *receiptResolver) resolve(ctx context.Context, userID string, ids []string) map[string]models.EligibilityStatus {
	c := r.checker

	blob, err := c.fetcher.ReceiptData(ctx, userID, models.RefreshNever)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("receipt fetch failed, resolving everything through the network")
		blob = nil
	}

	var local map[string]models.EligibilityStatus
	if len(blob) > 0 {
		local, err = c.calculator.CheckEligibility(blob, ids)
		if err != nil {
			c.log.Warn().
				Err(err).
				Str("user_id", userID).
				Strs("product_ids", ids).
				Msg("local receipt calculation failed, falling back to network resolution")
			local = nil
		}
	}

	result := make(map[string]models.EligibilityStatus, len(ids))
	var remaining []string
	for _, id := range ids {
		if status, ok := local[id]; ok {
			result[id] = status
		} else {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) == 0 {
		return result
	}

	for id, status := range r.resolveThroughBackend(ctx, userID, blob, remaining) {
		result[id] = status
	}
	return result
}

// resolveThroughBackend is the network resolution sub-path. The catalog
// filter resolves products without an intro offer locally so they are never
// sent to the backend; the filter and the backend answers partition the
// identifier set, so the union merge cannot collide.
func (r *receiptResolver) resolveThroughBackend(ctx context.Context, userID string, receipt []byte, ids []string) map[string]models.EligibilityStatus {
	c := r.checker

	result := make(map[string]models.EligibilityStatus, len(ids))
	toBackend := ids

	descriptors, err := c.catalog.Products(ctx, ids)
	if err != nil {
		// The filter is an optimization. Without it every identifier goes
		// to the backend.
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Strs("product_ids", ids).
			Msg("catalog filter failed, sending all identifiers to the backend")
	} else {
		noOffer := make(map[string]bool, len(descriptors))
		for _, d := range descriptors {
			if !d.HasIntroOffer {
				noOffer[d.ID] = true
			}
		}

		toBackend = nil
		for _, id := range ids {
			if noOffer[id] {
				result[id] = models.EligibilityNoIntroOffer
			} else {
				toBackend = append(toBackend, id)
			}
		}
	}

	if len(toBackend) == 0 {
		return result
	}

	answers, err := c.backend.GetIntroEligibility(ctx, userID, receipt, toBackend)
	if err != nil {
		reason := "transport"
		if errors.Is(err, backend.ErrDeclined) {
			reason = "backend"
		}
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("reason", reason).
			Strs("product_ids", toBackend).
			Msg("backend eligibility call failed, degrading to unknown")
		for _, id := range toBackend {
			result[id] = models.EligibilityUnknown
		}
		return result
	}

	for _, id := range toBackend {
		if status, ok := answers[id]; ok {
			result[id] = status
		} else {
			result[id] = models.EligibilityUnknown
		}
	}
	return result
}
