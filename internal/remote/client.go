// Package remote is the agent's HTTP client for the ledger service RPCs.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	pkgerrors "coinflow/pkg/errors"
)

// Client talks to the ledger service. It holds the bearer token obtained
// from the installation credential exchange.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenRequest struct {
	InstallationID     string `json:"installation_id"`
	InstallationSecret string `json:"installation_secret"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// Authenticate exchanges the installation credential for a bearer token.
func (c *Client) Authenticate(ctx context.Context, installationID, secret string) error {
	var resp tokenResponse
	err := c.post(ctx, "/api/v1/auth/token", tokenRequest{
		InstallationID:     installationID,
		InstallationSecret: secret,
	}, "", &resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

type sequenceResponse struct {
	SequentialID int64 `json:"sequential_id"`
}

// AllocateUserSequence asks the ledger service for this user's sequential
// id, creating the ledger row on first call. Safe to retry: an existing
// ledger returns its already-assigned id.
func (c *Client) AllocateUserSequence(ctx context.Context) (int64, error) {
	var resp sequenceResponse
	if err := c.post(ctx, "/api/v1/ledger/sequence", struct{}{}, "", &resp); err != nil {
		return 0, err
	}
	return resp.SequentialID, nil
}

type deltaRequest struct {
	Amount int64 `json:"amount"`
}

type deltaResponse struct {
	NewBalance int64 `json:"new_balance"`
}

// ApplyBalanceDelta submits a signed delta. attemptID is sent as the
// Idempotency-Key so a retry after a lost acknowledgment replays the
// server's cached response instead of applying the delta twice.
func (c *Client) ApplyBalanceDelta(ctx context.Context, delta int64, attemptID string) (int64, error) {
	var resp deltaResponse
	if err := c.post(ctx, "/api/v1/ledger/balance-delta", deltaRequest{Amount: delta}, attemptID, &resp); err != nil {
		return 0, err
	}
	return resp.NewBalance, nil
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// GetBalance reads the confirmed server-side balance.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ledger/balance", nil)
	if err != nil {
		return 0, err
	}
	c.setAuth(req)

	var resp balanceResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, idempotencyKey string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	c.setAuth(req)

	return c.do(req, out)
}

func (c *Client) setAuth(req *http.Request) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrRemoteCall, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return pkgerrors.Wrap(pkgerrors.ErrRemoteCall, fmt.Sprintf("%d: %s", resp.StatusCode, apiErr.Error))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
