// Package receipt provides receipt blob storage/fetching and the local
// intro-offer eligibility calculator that inspects a receipt without any
// network access.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awa/go-iap/appstore"
	"github.com/rs/zerolog"

	"intro-eligibility-api/internal/database"
	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/models"
)

// ErrMalformedReceipt is returned when a blob cannot be parsed. Callers fall
// back to network resolution for every identifier.
var ErrMalformedReceipt = errors.New("receipt: malformed receipt blob")

// Fetcher supplies the stored receipt blob for a user.
type Fetcher struct {
	db  *database.DB
	log zerolog.Logger
}

// NewFetcher creates a fetcher backed by the receipt store.
func NewFetcher(db *database.DB) *Fetcher {
	return &Fetcher{db: db, log: logging.Component("receipt")}
}

// ReceiptData returns the user's receipt blob, or nil when the user has
// none. RefreshAlways would re-request the receipt from the store, which can
// surface a credential prompt on device; this deployment only serves stored
// blobs, so both policies read the same row and the policy is recorded for
// diagnostics only.
func (f *Fetcher) ReceiptData(ctx context.Context, userID string, policy models.RefreshPolicy) ([]byte, error) {
	if policy == models.RefreshAlways {
		f.log.Debug().Str("user_id", userID).Msg("refresh requested; serving stored receipt")
	}
	return f.db.GetReceipt(ctx, userID)
}

// Store persists a receipt blob for a user.
func (f *Fetcher) Store(ctx context.Context, userID string, blob []byte) error {
	return f.db.UpsertReceipt(ctx, userID, blob)
}

// Calculator derives per-product intro eligibility from a receipt blob.
// Blobs are App Store style receipt JSON; the in-app purchase entries carry
// the trial and intro-offer period flags.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a local eligibility calculator.
func NewCalculator() *Calculator {
	return &Calculator{log: logging.Component("receipt.calculator")}
}

// CheckEligibility parses the blob and derives eligibility for the given
// identifiers. Products absent from the receipt are absent from the result:
// the calculator only answers for products it has purchase history for, and
// the caller resolves the remainder through other layers. A blob that cannot
// be parsed is a hard error and resolves nothing.
func (c *Calculator) CheckEligibility(receiptBlob []byte, ids []string) (map[string]models.EligibilityStatus, error) {
	if len(receiptBlob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrMalformedReceipt)
	}

	var parsed appstore.Receipt
	if err := json.Unmarshal(receiptBlob, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}

	byProduct := make(map[string][]appstore.InApp)
	for _, entry := range parsed.InApp {
		byProduct[entry.ProductID] = append(byProduct[entry.ProductID], entry)
	}

	result := make(map[string]models.EligibilityStatus, len(ids))
	for _, id := range ids {
		entries, ok := byProduct[id]
		if !ok {
			continue // no purchase history, not covered locally
		}

		status := models.EligibilityEligible
		for _, entry := range entries {
			if entry.IsTrialPeriod == "true" || entry.IsInIntroOfferPeriod == "true" {
				status = models.EligibilityIneligible
				break
			}
		}
		result[id] = status
	}

	c.log.Debug().
		Int("requested", len(ids)).
		Int("covered", len(result)).
		Msg("local receipt calculation complete")

	return result, nil
}
