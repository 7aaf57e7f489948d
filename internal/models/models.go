package models

import "time"

// EligibilityStatus is the per-product answer to "can this account redeem
// the product's introductory or trial offer?".
type EligibilityStatus string

const (
	// EligibilityUnknown means no layer could produce an answer. Absence of
	// information always resolves to unknown, never to a missing map entry.
	EligibilityUnknown EligibilityStatus = "unknown"
	// EligibilityIneligible means the account cannot redeem the offer.
	EligibilityIneligible EligibilityStatus = "ineligible"
	// EligibilityEligible means the account can redeem the offer.
	EligibilityEligible EligibilityStatus = "eligible"
	// EligibilityNoIntroOffer means the product defines no introductory
	// offer at all, so the question does not apply.
	EligibilityNoIntroOffer EligibilityStatus = "no_intro_offer_exists"
)

// Valid reports whether s is one of the defined status values.
func (s EligibilityStatus) Valid() bool {
	switch s {
	case EligibilityUnknown, EligibilityIneligible, EligibilityEligible, EligibilityNoIntroOffer:
		return true
	}
	return false
}

// RefreshPolicy controls whether a receipt fetch may go back to the store
// for a fresh copy. Refreshing can trigger a credential prompt on device,
// so passive checks must always use RefreshNever.
type RefreshPolicy int

const (
	RefreshNever RefreshPolicy = iota
	RefreshAlways
)

// Product is a catalog entry for a purchasable product.
type Product struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	HasIntroOffer  bool      `json:"has_intro_offer"`
	IntroOfferType string    `json:"intro_offer_type,omitempty"` // "free_trial", "pay_as_you_go", "pay_up_front"
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// ProductDescriptor is what a catalog lookup returns to the eligibility
// engine. IntroOfferEligible carries the live per-account signal and is nil
// when the lookup generation cannot supply it (legacy catalog queries).
type ProductDescriptor struct {
	ID                 string `json:"id"`
	HasIntroOffer      bool   `json:"has_intro_offer"`
	IntroOfferEligible *bool  `json:"intro_offer_eligible,omitempty"`
}

// IntroRedemption records that a user has already consumed the introductory
// offer for a product. It feeds the live eligibility signal.
type IntroRedemption struct {
	UserID     string    `json:"user_id"`
	ProductID  string    `json:"product_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// CheckEligibilityRequest is the request body for a batch eligibility check.
type CheckEligibilityRequest struct {
	UserID     string   `json:"user_id"`
	ProductIDs []string `json:"product_ids"`
}

// CheckEligibilityResponse maps every requested product identifier to a
// status. The key set always equals the requested identifier set.
type CheckEligibilityResponse struct {
	UserID      string                       `json:"user_id"`
	Eligibility map[string]EligibilityStatus `json:"eligibility"`
	CheckedAt   time.Time                    `json:"checked_at"`
}

// ProductEligibilityResponse is the single-product answer.
type ProductEligibilityResponse struct {
	UserID    string            `json:"user_id"`
	ProductID string            `json:"product_id"`
	Status    EligibilityStatus `json:"status"`
}

// UpsertProductsRequest is the request body for seeding catalog products.
type UpsertProductsRequest struct {
	Products []Product `json:"products"`
}

// UpsertProductsResponse reports how many products were written.
type UpsertProductsResponse struct {
	Upserted int `json:"upserted"`
}

// StoreReceiptRequest carries a base64-encoded receipt blob for a user.
type StoreReceiptRequest struct {
	Receipt string `json:"receipt"` // base64
}

// RecordRedemptionRequest marks an intro offer as consumed for a user.
type RecordRedemptionRequest struct {
	ProductID string `json:"product_id"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
