// Package eligibility implements the intro/trial eligibility resolution
// engine. For a set of product identifiers it produces one status per
// identifier by layering local receipt inspection, catalog lookups, live
// per-offer queries and backend resolution, degrading gracefully when any
// layer fails. The public contract is total: a check never fails, it always
// delivers a full status map.
package eligibility

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/models"
)

// ReceiptFetcher supplies the raw receipt blob for a user.
type ReceiptFetcher interface {
	ReceiptData(ctx context.Context, userID string, policy models.RefreshPolicy) ([]byte, error)
}

// LocalCalculator derives eligibility from a receipt blob without network
// access. A hard error means the blob resolved nothing; identifiers absent
// from a successful result are merely not covered locally.
type LocalCalculator interface {
	CheckEligibility(receiptBlob []byte, ids []string) (map[string]models.EligibilityStatus, error)
}

// ProductCatalog looks up product descriptors. Products is the legacy
// generation; LiveProducts additionally carries the per-account live signal.
type ProductCatalog interface {
	Products(ctx context.Context, ids []string) ([]models.ProductDescriptor, error)
	LiveProducts(ctx context.Context, userID string, ids []string) ([]models.ProductDescriptor, error)
}

// OfferQuerier answers a live per-offer eligibility question for an account.
type OfferQuerier interface {
	IsEligibleForIntroOffer(ctx context.Context, userID, productID string) (bool, error)
}

// BackendClient resolves eligibility authoritatively from a receipt.
type BackendClient interface {
	GetIntroEligibility(ctx context.Context, userID string, receipt []byte, ids []string) (map[string]models.EligibilityStatus, error)
}

const defaultSlowQueryThreshold = 2 * time.Second

// Config is the engine's explicit configuration. It is read once at
// construction; the engine never consults ambient process state.
type Config struct {
	// PreviewMode short-circuits every check to unknown without touching
	// any collaborator. Takes priority over everything else.
	PreviewMode bool
	// LiveQueryEnabled selects the modern live-query resolution strategy.
	LiveQueryEnabled bool
	// SlowQueryThreshold is the diagnostic logging threshold for live
	// per-offer queries. Not a timeout: slow calls complete normally.
	SlowQueryThreshold time.Duration
}

// Checker is the eligibility resolution engine. It holds no per-request
// state; the injected collaborators must be safe for concurrent use, and a
// single Checker serves any number of in-flight checks.
type Checker struct {
	cfg        Config
	fetcher    ReceiptFetcher
	calculator LocalCalculator
	catalog    ProductCatalog
	querier    OfferQuerier
	backend    BackendClient
	log        zerolog.Logger
}

// NewChecker creates an engine with the given configuration and
// collaborators.
func NewChecker(cfg Config, fetcher ReceiptFetcher, calculator LocalCalculator, catalog ProductCatalog, querier OfferQuerier, backend BackendClient) *Checker {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaultSlowQueryThreshold
	}
	return &Checker{
		cfg:        cfg,
		fetcher:    fetcher,
		calculator: calculator,
		catalog:    catalog,
		querier:    querier,
		backend:    backend,
		log:        logging.Component("eligibility"),
	}
}

// resolver is one resolution strategy. Selected per call so a Checker built
// with different capabilities behaves deterministically for its lifetime.
type resolver interface {
	resolve(ctx context.Context, userID string, ids []string) map[string]models.EligibilityStatus
}

func (c *Checker) selectResolver() resolver {
	if c.cfg.LiveQueryEnabled {
		return &liveResolver{c}
	}
	return &receiptResolver{c}
}

// CheckEligibility resolves intro/trial eligibility for every identifier in
// ids. The returned map always contains exactly one entry per distinct
// requested identifier; identifiers nothing could answer for map to unknown.
func (c *Checker) CheckEligibility(ctx context.Context, userID string, ids []string) map[string]models.EligibilityStatus {
	ids = dedupe(ids)

	if len(ids) == 0 {
		c.log.Warn().Str("user_id", userID).Msg("eligibility check requested for empty identifier set")
		return map[string]models.EligibilityStatus{}
	}

	if c.cfg.PreviewMode {
		result := make(map[string]models.EligibilityStatus, len(ids))
		for _, id := range ids {
			result[id] = models.EligibilityUnknown
		}
		return result
	}

	partial := c.selectResolver().resolve(ctx, userID, ids)
	return normalize(ids, partial)
}

// CheckEligibilityAsync runs the check in its own goroutine and delivers the
// result map on the returned channel. The channel is buffered, receives
// exactly one value, and is closed afterwards.
func (c *Checker) CheckEligibilityAsync(ctx context.Context, userID string, ids []string) <-chan map[string]models.EligibilityStatus {
	ch := make(chan map[string]models.EligibilityStatus, 1)
	go func() {
		defer close(ch)
		ch <- c.CheckEligibility(ctx, userID, ids)
	}()
	return ch
}

// CheckProductEligibility resolves a single product, defined purely in terms
// of the batch operation.
func (c *Checker) CheckProductEligibility(ctx context.Context, userID, productID string) models.EligibilityStatus {
	result := c.CheckEligibility(ctx, userID, []string{productID})
	if status, ok := result[productID]; ok {
		return status
	}
	return models.EligibilityUnknown
}

// normalize guarantees the total-map contract: one valid status per
// requested identifier, unknown for anything unanswered.
func normalize(ids []string, partial map[string]models.EligibilityStatus) map[string]models.EligibilityStatus {
	final := make(map[string]models.EligibilityStatus, len(ids))
	for _, id := range ids {
		if status, ok := partial[id]; ok && status.Valid() {
			final[id] = status
		} else {
			final[id] = models.EligibilityUnknown
		}
	}
	return final
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
