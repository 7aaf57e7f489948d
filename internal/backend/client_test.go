package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intro-eligibility-api/internal/models"
)

func TestGetIntroEligibility_Success(t *testing.T) {
	var got introEligibilityRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/intro-eligibility", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(introEligibilityResponse{
			Eligibility: map[string]models.EligibilityStatus{
				"p1": models.EligibilityEligible,
				"p2": models.EligibilityIneligible,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	receipt := []byte("receipt-bytes")

	result, err := client.GetIntroEligibility(context.Background(), "user-1", receipt, []string{"p1", "p2"})
	require.NoError(t, err)

	assert.Equal(t, models.EligibilityEligible, result["p1"])
	assert.Equal(t, models.EligibilityIneligible, result["p2"])
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(receipt), got.Receipt)
	assert.ElementsMatch(t, []string{"p1", "p2"}, got.ProductIDs)
}

func TestGetIntroEligibility_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)

	_, err := client.GetIntroEligibility(context.Background(), "user-1", nil, []string{"p1"})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestGetIntroEligibility_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing is listening anymore

	client := NewClient(server.URL, time.Second)

	_, err := client.GetIntroEligibility(context.Background(), "user-1", nil, []string{"p1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeclined, "transport failures are not declined responses")
}

func TestGetIntroEligibility_EmptyIdentifierSet(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)

	result, err := client.GetIntroEligibility(context.Background(), "user-1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.False(t, called)
}

func TestGetIntroEligibility_UnknownStatusNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"eligibility":{"p1":"definitely-not-a-status"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)

	result, err := client.GetIntroEligibility(context.Background(), "user-1", nil, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityUnknown, result["p1"])
}
