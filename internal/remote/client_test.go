package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "coinflow/pkg/errors"
)

func TestApplyBalanceDelta_SendsIdempotencyKeyAndBearer(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody map[string]int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/token":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"token": "tok-123", "expires_in": 900,
			})
		case "/api/v1/ledger/balance-delta":
			gotKey = r.Header.Get("Idempotency-Key")
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode(map[string]int64{"new_balance": 175})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.Authenticate(context.Background(), "inst-1", "secret-secret-secret"))

	newBalance, err := c.ApplyBalanceDelta(context.Background(), 75, "attempt-1")
	require.NoError(t, err)

	assert.Equal(t, int64(175), newBalance)
	assert.Equal(t, "attempt-1", gotKey)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, int64(75), gotBody["amount"])
}

func TestApplyBalanceDelta_HTTPErrorIsRemoteCallFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "balance delta must be non-zero"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ApplyBalanceDelta(context.Background(), 10, "attempt-1")
	assert.ErrorIs(t, err, pkgerrors.ErrRemoteCall)
	assert.ErrorContains(t, err, "balance delta must be non-zero")
}

func TestApplyBalanceDelta_TransportFailureIsRemoteCallFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL)
	_, err := c.ApplyBalanceDelta(context.Background(), 10, "attempt-1")
	assert.ErrorIs(t, err, pkgerrors.ErrRemoteCall)
}

func TestAllocateUserSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ledger/sequence", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int64{"sequential_id": 12})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	seq, err := c.AllocateUserSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), seq)
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]int64{"balance": 420})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(420), balance)
}
