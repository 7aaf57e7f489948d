package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intro-eligibility-api/internal/cache"
	"intro-eligibility-api/internal/database"
	"intro-eligibility-api/internal/models"
)

func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dbPath := "./test_catalog_" + time.Now().Format("20060102150405.000000000") + ".db"
	db, err := database.NewDB(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})

	return New(db, cache.NewInMemoryCache())
}

func seedProducts(t *testing.T, c *Catalog) {
	t.Helper()
	_, err := c.Upsert(context.Background(), []models.Product{
		{ID: "com.example.trial", DisplayName: "Trial Sub", HasIntroOffer: true, IntroOfferType: "free_trial"},
		{ID: "com.example.plain", DisplayName: "Plain Sub", HasIntroOffer: false},
	})
	require.NoError(t, err)
}

func TestProducts_LegacyDescriptors(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)

	descriptors, err := c.Products(context.Background(), []string{"com.example.trial", "com.example.plain"})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	byID := make(map[string]models.ProductDescriptor)
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	assert.True(t, byID["com.example.trial"].HasIntroOffer)
	assert.False(t, byID["com.example.plain"].HasIntroOffer)
	assert.Nil(t, byID["com.example.trial"].IntroOfferEligible, "legacy lookups carry no live signal")
}

func TestProducts_UnknownIdentifierAbsent(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)

	descriptors, err := c.Products(context.Background(), []string{"com.example.nope"})
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestLiveProducts_SignalBeforeRedemption(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)

	descriptors, err := c.LiveProducts(context.Background(), "user-1", []string{"com.example.trial", "com.example.plain"})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	byID := make(map[string]models.ProductDescriptor)
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	require.NotNil(t, byID["com.example.trial"].IntroOfferEligible)
	assert.True(t, *byID["com.example.trial"].IntroOfferEligible)
	assert.Nil(t, byID["com.example.plain"].IntroOfferEligible, "no offer, no signal")
}

func TestLiveProducts_SignalAfterRedemption(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)
	ctx := context.Background()

	require.NoError(t, c.RecordRedemption(ctx, "user-1", "com.example.trial", time.Now()))

	descriptors, err := c.LiveProducts(ctx, "user-1", []string{"com.example.trial"})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.NotNil(t, descriptors[0].IntroOfferEligible)
	assert.False(t, *descriptors[0].IntroOfferEligible)

	// Other accounts are unaffected.
	descriptors, err = c.LiveProducts(ctx, "user-2", []string{"com.example.trial"})
	require.NoError(t, err)
	require.NotNil(t, descriptors[0].IntroOfferEligible)
	assert.True(t, *descriptors[0].IntroOfferEligible)
}

func TestIsEligibleForIntroOffer(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)
	ctx := context.Background()

	eligible, err := c.IsEligibleForIntroOffer(ctx, "user-1", "com.example.trial")
	require.NoError(t, err)
	assert.True(t, eligible)

	require.NoError(t, c.RecordRedemption(ctx, "user-1", "com.example.trial", time.Now()))

	eligible, err = c.IsEligibleForIntroOffer(ctx, "user-1", "com.example.trial")
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestUpsert_InvalidatesCache(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)
	ctx := context.Background()

	// Prime the cache.
	_, err := c.Products(ctx, []string{"com.example.plain"})
	require.NoError(t, err)

	// Flip the intro offer flag and read again.
	_, err = c.Upsert(ctx, []models.Product{
		{ID: "com.example.plain", DisplayName: "Plain Sub", HasIntroOffer: true, IntroOfferType: "pay_up_front"},
	})
	require.NoError(t, err)

	descriptors, err := c.Products(ctx, []string{"com.example.plain"})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.True(t, descriptors[0].HasIntroOffer)
}

func TestProducts_ServedFromCache(t *testing.T) {
	c := setupTestCatalog(t)
	seedProducts(t, c)
	ctx := context.Background()

	first, err := c.Products(ctx, []string{"com.example.trial"})
	require.NoError(t, err)

	second, err := c.Products(ctx, []string{"com.example.trial"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
