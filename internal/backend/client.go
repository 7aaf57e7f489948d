// Package backend is the narrow client for the remote entitlements backend.
// One call, one attempt: no retries, no caching. The engine converts every
// failure into unknown statuses for the affected identifiers.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"intro-eligibility-api/internal/models"
)

// ErrDeclined marks responses where the backend was reachable but answered
// with an error status. Distinguished from transport failures in logs only;
// callers degrade both to unknown.
var ErrDeclined = errors.New("backend: request declined")

const defaultTimeout = 10 * time.Second

// Client talks to the entitlements backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type introEligibilityRequest struct {
	UserID     string   `json:"user_id"`
	Receipt    string   `json:"receipt"` // base64
	ProductIDs []string `json:"product_ids"`
}

type introEligibilityResponse struct {
	Eligibility map[string]models.EligibilityStatus `json:"eligibility"`
}

// GetIntroEligibility asks the backend for authoritative per-identifier
// eligibility given the user's receipt. Identifiers the backend does not
// answer for are absent from the result.
func (c *Client) GetIntroEligibility(ctx context.Context, userID string, receipt []byte, ids []string) (map[string]models.EligibilityStatus, error) {
	if len(ids) == 0 {
		return map[string]models.EligibilityStatus{}, nil
	}

	payload, err := json.Marshal(introEligibilityRequest{
		UserID:     userID,
		Receipt:    base64.StdEncoding.EncodeToString(receipt),
		ProductIDs: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intro-eligibility", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrDeclined, resp.StatusCode)
	}

	var body introEligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("backend: decode response: %w", err)
	}

	result := make(map[string]models.EligibilityStatus, len(body.Eligibility))
	for id, status := range body.Eligibility {
		if !status.Valid() {
			status = models.EligibilityUnknown
		}
		result[id] = status
	}

	return result, nil
}
