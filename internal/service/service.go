package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"intro-eligibility-api/internal/catalog"
	"intro-eligibility-api/internal/eligibility"
	"intro-eligibility-api/internal/events"
	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/models"
	"intro-eligibility-api/internal/receipt"
	"intro-eligibility-api/internal/tracing"
	"intro-eligibility-api/internal/validation"
)

const maxProductsPerUpsert = 500

// Service provides business logic for the intro eligibility API.
type Service struct {
	checker  *eligibility.Checker
	catalog  *catalog.Catalog
	receipts *receipt.Fetcher
	events   *events.Manager
	log      zerolog.Logger
}

// NewService creates a new service instance.
func NewService(checker *eligibility.Checker, cat *catalog.Catalog, receipts *receipt.Fetcher, ev *events.Manager) *Service {
	return &Service{
		checker:  checker,
		catalog:  cat,
		receipts: receipts,
		events:   ev,
		log:      logging.Component("service"),
	}
}

// CheckEligibility resolves intro/trial eligibility for a set of product
// identifiers. Input validation can fail; the resolution itself cannot,
// every identifier receives a status.
func (s *Service) CheckEligibility(ctx context.Context, userID string, productIDs []string) (models.CheckEligibilityResponse, error) {
	if err := validation.ValidateUserID(userID, "user_id"); err != nil {
		return models.CheckEligibilityResponse{}, err
	}
	if err := validation.ValidateProductIDs(productIDs); err != nil {
		return models.CheckEligibilityResponse{}, err
	}

	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.CheckEligibility")
	defer span.End()

	result := s.checker.CheckEligibility(ctx, userID, productIDs)

	s.events.PublishEligibilityChecked(ctx, userID, result)

	return models.CheckEligibilityResponse{
		UserID:      userID,
		Eligibility: result,
		CheckedAt:   time.Now().UTC(),
	}, nil
}

// CheckProductEligibility resolves a single product.
func (s *Service) CheckProductEligibility(ctx context.Context, userID, productID string) (models.ProductEligibilityResponse, error) {
	if err := validation.ValidateUserID(userID, "user_id"); err != nil {
		return models.ProductEligibilityResponse{}, err
	}
	if err := validation.ValidateProductID(productID, "product_id"); err != nil {
		return models.ProductEligibilityResponse{}, err
	}

	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.CheckProductEligibility")
	defer span.End()

	status := s.checker.CheckProductEligibility(ctx, userID, productID)

	s.events.PublishEligibilityChecked(ctx, userID, map[string]models.EligibilityStatus{productID: status})

	return models.ProductEligibilityResponse{
		UserID:    userID,
		ProductID: productID,
		Status:    status,
	}, nil
}

// UpsertProducts seeds or updates catalog products.
func (s *Service) UpsertProducts(ctx context.Context, products []models.Product) (int, error) {
	if len(products) == 0 {
		return 0, fmt.Errorf("no products provided")
	}
	if len(products) > maxProductsPerUpsert {
		return 0, fmt.Errorf("cannot process more than %d products per request", maxProductsPerUpsert)
	}

	for i, p := range products {
		if err := validation.ValidateProduct(p); err != nil {
			return 0, fmt.Errorf("invalid product at index %d: %w", i, err)
		}
	}

	upserted, err := s.catalog.Upsert(ctx, products)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert products: %w", err)
	}

	s.events.PublishProductUpserted(ctx, products, upserted)

	return upserted, nil
}

// StoreReceipt stores a user's receipt blob.
func (s *Service) StoreReceipt(ctx context.Context, userID string, blob []byte) error {
	if err := validation.ValidateUserID(userID, "user_id"); err != nil {
		return err
	}
	if len(blob) == 0 {
		return fmt.Errorf("receipt blob is empty")
	}

	if err := s.receipts.Store(ctx, userID, blob); err != nil {
		return fmt.Errorf("failed to store receipt: %w", err)
	}

	s.events.PublishReceiptStored(ctx, userID, len(blob))

	return nil
}

// RecordRedemption marks a product's intro offer as consumed by the user.
func (s *Service) RecordRedemption(ctx context.Context, userID, productID string) error {
	if err := validation.ValidateUserID(userID, "user_id"); err != nil {
		return err
	}
	if err := validation.ValidateProductID(productID, "product_id"); err != nil {
		return err
	}

	if err := s.catalog.RecordRedemption(ctx, userID, productID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}

	s.events.PublishRedemptionRecorded(ctx, userID, productID)

	return nil
}
