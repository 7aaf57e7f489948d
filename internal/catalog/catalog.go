// Package catalog provides product descriptor lookups for the eligibility
// engine. Descriptors are served from SQLite with a TTL-bounded cache in
// front; cache failures are transparent and fall through to the database.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"intro-eligibility-api/internal/cache"
	"intro-eligibility-api/internal/database"
	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/models"
)

const defaultCacheTTL = 5 * time.Minute

// Catalog looks up product descriptors and per-account live offer
// eligibility signals.
type Catalog struct {
	db    *database.DB
	cache cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCacheTTL overrides the descriptor cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Catalog) { c.ttl = ttl }
}

// New creates a catalog backed by db with c in front of descriptor reads.
func New(db *database.DB, ca cache.Cache, opts ...Option) *Catalog {
	c := &Catalog{
		db:    db,
		cache: ca,
		ttl:   defaultCacheTTL,
		log:   logging.Component("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert writes catalog products and invalidates their cache entries.
func (c *Catalog) Upsert(ctx context.Context, products []models.Product) (int, error) {
	n, err := c.db.UpsertProducts(ctx, products)
	if err != nil {
		return 0, err
	}

	for _, p := range products {
		if err := c.cache.Delete(ctx, cache.ProductKey(p.ID)); err != nil {
			c.log.Debug().Err(err).Str("product_id", p.ID).Msg("cache invalidation failed")
		}
	}

	return n, nil
}

// Products returns legacy-generation descriptors for the given identifiers.
// Identifiers unknown to the catalog are absent from the result. The live
// eligibility signal is never populated on this path.
func (c *Catalog) Products(ctx context.Context, ids []string) ([]models.ProductDescriptor, error) {
	products, err := c.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	descriptors := make([]models.ProductDescriptor, 0, len(products))
	for _, p := range products {
		descriptors = append(descriptors, models.ProductDescriptor{
			ID:            p.ID,
			HasIntroOffer: p.HasIntroOffer,
		})
	}
	return descriptors, nil
}

// LiveProducts returns modern-generation descriptors: each descriptor of a
// product with an intro offer carries the account's live eligibility signal.
func (c *Catalog) LiveProducts(ctx context.Context, userID string, ids []string) ([]models.ProductDescriptor, error) {
	products, err := c.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	withOffer := make([]string, 0, len(products))
	for _, p := range products {
		if p.HasIntroOffer {
			withOffer = append(withOffer, p.ID)
		}
	}

	redeemed, err := c.db.GetRedeemedProducts(ctx, userID, withOffer)
	if err != nil {
		return nil, err
	}

	descriptors := make([]models.ProductDescriptor, 0, len(products))
	for _, p := range products {
		d := models.ProductDescriptor{
			ID:            p.ID,
			HasIntroOffer: p.HasIntroOffer,
		}
		if p.HasIntroOffer {
			eligible := !redeemed[p.ID]
			d.IntroOfferEligible = &eligible
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// IsEligibleForIntroOffer answers a single live query: whether the account
// may still redeem the product's intro offer.
func (c *Catalog) IsEligibleForIntroOffer(ctx context.Context, userID, productID string) (bool, error) {
	redeemed, err := c.db.GetRedeemedProducts(ctx, userID, []string{productID})
	if err != nil {
		return false, err
	}
	return !redeemed[productID], nil
}

// RecordRedemption marks the product's intro offer as consumed by the user.
func (c *Catalog) RecordRedemption(ctx context.Context, userID, productID string, redeemedAt time.Time) error {
	return c.db.RecordRedemption(ctx, userID, productID, redeemedAt)
}

// loadProducts serves product rows from the cache, falling back to the
// database for misses and re-populating the cache on the way out.
func (c *Catalog) loadProducts(ctx context.Context, ids []string) ([]models.Product, error) {
	products := make([]models.Product, 0, len(ids))
	var misses []string

	for _, id := range ids {
		var p models.Product
		err := cache.GetJSON(ctx, c.cache, cache.ProductKey(id), &p)
		switch {
		case err == nil:
			products = append(products, p)
		case errors.Is(err, cache.ErrNotFound):
			misses = append(misses, id)
		default:
			c.log.Debug().Err(err).Str("product_id", id).Msg("cache read failed")
			misses = append(misses, id)
		}
	}

	if len(misses) == 0 {
		return products, nil
	}

	loaded, err := c.db.GetProducts(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, p := range loaded {
		if err := cache.SetJSON(ctx, c.cache, cache.ProductKey(p.ID), p, c.ttl); err != nil {
			c.log.Debug().Err(err).Str("product_id", p.ID).Msg("cache write failed")
		}
	}

	return append(products, loaded...), nil
}
