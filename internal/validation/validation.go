package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"intro-eligibility-api/internal/models"
)

var (
	// Product identifiers follow reverse-DNS style: dot-separated segments
	// of letters, digits, underscores and hyphens, e.g.
	// "com.example.premium.monthly".
	productIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)
	userIDRegex    = regexp.MustCompile(`^[A-Za-z0-9$_.:-]{1,128}$`)
)

const (
	maxProductIDLength = 255
	maxBatchSize       = 100
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateProduct checks a catalog product before it is written.
func ValidateProduct(p models.Product) error {
	if err := ValidateProductID(p.ID, "id"); err != nil {
		return err
	}

	if p.DisplayName == "" {
		return &ValidationError{
			Field:   "display_name",
			Message: "is required",
		}
	}

	switch p.IntroOfferType {
	case "", "free_trial", "pay_as_you_go", "pay_up_front":
	default:
		return &ValidationError{
			Field:   "intro_offer_type",
			Message: "must be one of free_trial, pay_as_you_go, pay_up_front",
		}
	}

	if p.HasIntroOffer && p.IntroOfferType == "" {
		return &ValidationError{
			Field:   "intro_offer_type",
			Message: "is required when has_intro_offer is set",
		}
	}

	return nil
}

// ValidateProductIDs checks a batch of requested product identifiers.
// Duplicates are rejected so that the result map partition stays unambiguous.
func ValidateProductIDs(ids []string) error {
	if len(ids) > maxBatchSize {
		return &ValidationError{
			Field:   "product_ids",
			Message: fmt.Sprintf("cannot contain more than %d identifiers", maxBatchSize),
		}
	}

	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if err := ValidateProductID(id, fmt.Sprintf("product_ids[%d]", i)); err != nil {
			return err
		}

		if seen[id] {
			return &ValidationError{
				Field:   "product_ids",
				Message: fmt.Sprintf("duplicate product identifier: %s", id),
			}
		}
		seen[id] = true
	}

	return nil
}

// ValidateProductID checks a single product identifier.
func ValidateProductID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	if len(id) > maxProductIDLength {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("cannot exceed %d characters", maxProductIDLength),
		}
	}

	if !productIDRegex.MatchString(id) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a dot-separated alphanumeric identifier",
		}
	}

	return nil
}

// ValidateUserID checks an app user identifier.
func ValidateUserID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	if !userIDRegex.MatchString(id) {
		return &ValidationError{
			Field:   fieldName,
			Message: "contains invalid characters or exceeds 128 characters",
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
