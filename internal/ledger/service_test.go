package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) AllocateSequence(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserLedger), args.Error(1)
}

func (m *MockRepository) ApplyDelta(ctx context.Context, uid uuid.UUID, delta int64) (int64, error) {
	args := m.Called(ctx, uid, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FindByUID(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserLedger), args.Error(1)
}

func TestAllocateUserSequence(t *testing.T) {
	uid := uuid.New()
	repo := &MockRepository{}
	repo.On("AllocateSequence", mock.Anything, uid).
		Return(&domain.UserLedger{UID: uid, SequentialID: 42}, nil)

	s := NewService(repo, logger.NewNop())
	seq, err := s.AllocateUserSequence(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	repo.AssertExpectations(t)
}

func TestApplyBalanceDelta_RejectsZero(t *testing.T) {
	repo := &MockRepository{}
	s := NewService(repo, logger.NewNop())

	_, err := s.ApplyBalanceDelta(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, pkgerrors.ErrZeroDelta)

	// The repository is never touched for a zero delta.
	repo.AssertNotCalled(t, "ApplyDelta")
}

func TestApplyBalanceDelta_PassesThroughSignedDelta(t *testing.T) {
	uid := uuid.New()
	repo := &MockRepository{}
	repo.On("ApplyDelta", mock.Anything, uid, int64(150)).Return(int64(250), nil)

	s := NewService(repo, logger.NewNop())
	newBalance, err := s.ApplyBalanceDelta(context.Background(), uid, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(250), newBalance)
	repo.AssertExpectations(t)
}

func TestApplyBalanceDelta_UnknownLedger(t *testing.T) {
	uid := uuid.New()
	repo := &MockRepository{}
	repo.On("ApplyDelta", mock.Anything, uid, int64(100)).
		Return(int64(0), pkgerrors.ErrLedgerNotFound)

	s := NewService(repo, logger.NewNop())
	_, err := s.ApplyBalanceDelta(context.Background(), uid, 100)
	assert.ErrorIs(t, err, pkgerrors.ErrLedgerNotFound)
}

func TestGetBalance(t *testing.T) {
	uid := uuid.New()
	repo := &MockRepository{}
	repo.On("FindByUID", mock.Anything, uid).
		Return(&domain.UserLedger{UID: uid, Balance: 500}, nil)

	s := NewService(repo, logger.NewNop())
	balance, err := s.GetBalance(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}
