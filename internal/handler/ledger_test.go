package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coinflow/internal/domain"
	"coinflow/internal/ledger"
	"coinflow/internal/middleware"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
	"coinflow/pkg/validator"
)

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) AllocateSequence(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserLedger), args.Error(1)
}

func (m *MockLedgerRepo) ApplyDelta(ctx context.Context, uid uuid.UUID, delta int64) (int64, error) {
	args := m.Called(ctx, uid, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) FindByUID(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserLedger), args.Error(1)
}

func newLedgerHandler(repo *MockLedgerRepo) *LedgerHandler {
	service := ledger.NewService(repo, logger.NewNop())
	return NewLedgerHandler(service, validator.New(), nil, logger.NewNop())
}

func authedRequest(t *testing.T, method, target, body string, uid uuid.UUID) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithUserUID(req.Context(), uid))
}

func TestApplyBalanceDelta_RejectsZeroAmount(t *testing.T) {
	repo := &MockLedgerRepo{}
	h := newLedgerHandler(repo)

	req := authedRequest(t, http.MethodPost, "/api/v1/ledger/balance-delta",
		`{"amount": 0}`, uuid.New())
	w := httptest.NewRecorder()
	h.ApplyBalanceDelta(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "ApplyDelta")
}

func TestApplyBalanceDelta_Success(t *testing.T) {
	uid := uuid.New()
	repo := &MockLedgerRepo{}
	repo.On("ApplyDelta", mock.Anything, uid, int64(100)).Return(int64(100), nil)
	h := newLedgerHandler(repo)

	req := authedRequest(t, http.MethodPost, "/api/v1/ledger/balance-delta",
		`{"amount": 100}`, uid)
	w := httptest.NewRecorder()
	h.ApplyBalanceDelta(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp["new_balance"])
	repo.AssertExpectations(t)
}

func TestApplyBalanceDelta_UnknownLedgerIs404(t *testing.T) {
	uid := uuid.New()
	repo := &MockLedgerRepo{}
	repo.On("ApplyDelta", mock.Anything, uid, int64(100)).
		Return(int64(0), pkgerrors.ErrLedgerNotFound)
	h := newLedgerHandler(repo)

	req := authedRequest(t, http.MethodPost, "/api/v1/ledger/balance-delta",
		`{"amount": 100}`, uid)
	w := httptest.NewRecorder()
	h.ApplyBalanceDelta(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyBalanceDelta_RequiresAuth(t *testing.T) {
	h := newLedgerHandler(&MockLedgerRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/balance-delta",
		strings.NewReader(`{"amount": 100}`))
	w := httptest.NewRecorder()
	h.ApplyBalanceDelta(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAllocateSequence_Success(t *testing.T) {
	uid := uuid.New()
	repo := &MockLedgerRepo{}
	repo.On("AllocateSequence", mock.Anything, uid).
		Return(&domain.UserLedger{UID: uid, SequentialID: 7}, nil)
	h := newLedgerHandler(repo)

	req := authedRequest(t, http.MethodPost, "/api/v1/ledger/sequence", "", uid)
	w := httptest.NewRecorder()
	h.AllocateSequence(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp["sequential_id"])
}

func TestGetBalance_Success(t *testing.T) {
	uid := uuid.New()
	repo := &MockLedgerRepo{}
	repo.On("FindByUID", mock.Anything, uid).
		Return(&domain.UserLedger{UID: uid, Balance: 350}, nil)
	h := newLedgerHandler(repo)

	req := authedRequest(t, http.MethodGet, "/api/v1/ledger/balance", "", uid)
	w := httptest.NewRecorder()
	h.GetBalance(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(350), resp["balance"])
}
