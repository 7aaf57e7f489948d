package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intro-eligibility-api/internal/backend"
	"intro-eligibility-api/internal/cache"
	"intro-eligibility-api/internal/catalog"
	"intro-eligibility-api/internal/database"
	"intro-eligibility-api/internal/eligibility"
	"intro-eligibility-api/internal/events"
	"intro-eligibility-api/internal/models"
	"intro-eligibility-api/internal/receipt"
)

// setupService builds a service on a temp database with the given engine
// config and a stub backend that answers with the provided statuses.
func setupService(t *testing.T, cfg eligibility.Config, backendAnswers map[string]models.EligibilityStatus) (*Service, *catalog.Catalog, *receipt.Fetcher) {
	t.Helper()

	dbPath := "./test_service_" + time.Now().Format("20060102150405.000000000") + ".db"
	db, err := database.NewDB(dbPath)
	require.NoError(t, err)

	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"eligibility": backendAnswers})
	}))

	t.Cleanup(func() {
		backendServer.Close()
		db.Close()
		os.Remove(dbPath)
	})

	cat := catalog.New(db, cache.NewInMemoryCache())
	fetcher := receipt.NewFetcher(db)
	calculator := receipt.NewCalculator()
	backendClient := backend.NewClient(backendServer.URL, time.Second)

	checker := eligibility.NewChecker(cfg, fetcher, calculator, cat, cat, backendClient)
	svc := NewService(checker, cat, fetcher, events.NewManager(false))

	return svc, cat, fetcher
}

func TestCheckEligibility_ModernPath(t *testing.T) {
	svc, cat, _ := setupService(t, eligibility.Config{LiveQueryEnabled: true}, nil)
	ctx := context.Background()
	userID := uuid.New().String()

	_, err := cat.Upsert(ctx, []models.Product{
		{ID: "com.example.trial", DisplayName: "Trial Sub", HasIntroOffer: true, IntroOfferType: "free_trial"},
		{ID: "com.example.plain", DisplayName: "Plain Sub", HasIntroOffer: false},
	})
	require.NoError(t, err)

	response, err := svc.CheckEligibility(ctx, userID, []string{"com.example.trial", "com.example.plain"})
	require.NoError(t, err)

	assert.Equal(t, userID, response.UserID)
	assert.Equal(t, models.EligibilityEligible, response.Eligibility["com.example.trial"])
	assert.Equal(t, models.EligibilityNoIntroOffer, response.Eligibility["com.example.plain"])
}

func TestCheckEligibility_ModernPathAfterRedemption(t *testing.T) {
	svc, cat, _ := setupService(t, eligibility.Config{LiveQueryEnabled: true}, nil)
	ctx := context.Background()
	userID := uuid.New().String()

	_, err := cat.Upsert(ctx, []models.Product{
		{ID: "com.example.trial", DisplayName: "Trial Sub", HasIntroOffer: true, IntroOfferType: "free_trial"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordRedemption(ctx, userID, "com.example.trial"))

	response, err := svc.CheckEligibility(ctx, userID, []string{"com.example.trial"})
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligible, response.Eligibility["com.example.trial"])
}

func TestCheckEligibility_LegacyPathWithReceipt(t *testing.T) {
	svc, cat, _ := setupService(t, eligibility.Config{}, nil)
	ctx := context.Background()
	userID := uuid.New().String()

	_, err := cat.Upsert(ctx, []models.Product{
		{ID: "com.example.sub", DisplayName: "Sub", HasIntroOffer: true, IntroOfferType: "free_trial"},
	})
	require.NoError(t, err)

	blob := []byte(`{"bundle_id":"com.example.app","in_app":[{"product_id":"com.example.sub","is_trial_period":"true"}]}`)
	require.NoError(t, svc.StoreReceipt(ctx, userID, blob))

	response, err := svc.CheckEligibility(ctx, userID, []string{"com.example.sub"})
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligible, response.Eligibility["com.example.sub"])
}

func TestCheckEligibility_LegacyPathBackendFallback(t *testing.T) {
	svc, cat, _ := setupService(t, eligibility.Config{}, map[string]models.EligibilityStatus{
		"com.example.sub": models.EligibilityEligible,
	})
	ctx := context.Background()
	userID := uuid.New().String()

	_, err := cat.Upsert(ctx, []models.Product{
		{ID: "com.example.sub", DisplayName: "Sub", HasIntroOffer: true, IntroOfferType: "free_trial"},
	})
	require.NoError(t, err)

	// No receipt stored: everything resolves through the network sub-path.
	response, err := svc.CheckEligibility(ctx, userID, []string{"com.example.sub"})
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityEligible, response.Eligibility["com.example.sub"])
}

func TestCheckEligibility_PreviewMode(t *testing.T) {
	svc, _, _ := setupService(t, eligibility.Config{PreviewMode: true, LiveQueryEnabled: true}, nil)
	userID := uuid.New().String()

	response, err := svc.CheckEligibility(context.Background(), userID, []string{"com.example.a", "com.example.b"})
	require.NoError(t, err)

	assert.Equal(t, models.EligibilityUnknown, response.Eligibility["com.example.a"])
	assert.Equal(t, models.EligibilityUnknown, response.Eligibility["com.example.b"])
}

func TestCheckEligibility_InvalidUserID(t *testing.T) {
	svc, _, _ := setupService(t, eligibility.Config{LiveQueryEnabled: true}, nil)

	_, err := svc.CheckEligibility(context.Background(), "", []string{"com.example.a"})
	assert.Error(t, err)
}

func TestCheckEligibility_InvalidProductID(t *testing.T) {
	svc, _, _ := setupService(t, eligibility.Config{LiveQueryEnabled: true}, nil)
	userID := uuid.New().String()

	_, err := svc.CheckEligibility(context.Background(), userID, []string{"not valid!!"})
	assert.Error(t, err)
}

func TestCheckProductEligibility_Single(t *testing.T) {
	svc, cat, _ := setupService(t, eligibility.Config{LiveQueryEnabled: true}, nil)
	ctx := context.Background()
	userID := uuid.New().String()

	_, err := cat.Upsert(ctx, []models.Product{
		{ID: "com.example.plain", DisplayName: "Plain", HasIntroOffer: false},
	})
	require.NoError(t, err)

	response, err := svc.CheckProductEligibility(ctx, userID, "com.example.plain")
	require.NoError(t, err)

	assert.Equal(t, "com.example.plain", response.ProductID)
	assert.Equal(t, models.EligibilityNoIntroOffer, response.Status)
}

func TestUpsertProducts_Validation(t *testing.T) {
	svc, _, _ := setupService(t, eligibility.Config{}, nil)
	ctx := context.Background()

	_, err := svc.UpsertProducts(ctx, nil)
	assert.Error(t, err, "empty product list is rejected")

	_, err = svc.UpsertProducts(ctx, []models.Product{
		{ID: "com.example.sub", DisplayName: "Sub", HasIntroOffer: true},
	})
	assert.Error(t, err, "intro offer without a type is rejected")
}

func TestStoreReceipt_EmptyBlob(t *testing.T) {
	svc, _, _ := setupService(t, eligibility.Config{}, nil)
	userID := uuid.New().String()

	err := svc.StoreReceipt(context.Background(), userID, nil)
	assert.Error(t, err)
}
