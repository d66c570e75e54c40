// Package ledger implements the authoritative remote ledger: sequential
// user-id allocation and atomic balance mutation.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
)

// Repository is the persistence boundary. Both operations must be atomic
// under concurrent callers: AllocateSequence runs in a single database
// transaction around the counter, and ApplyDelta is a single-statement
// read-modify-write, never an unconditional overwrite.
type Repository interface {
	AllocateSequence(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error)
	ApplyDelta(ctx context.Context, uid uuid.UUID, delta int64) (int64, error)
	FindByUID(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error)
}

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// AllocateUserSequence returns the user's sequential id, assigning one and
// creating the ledger row on first call. Retries are safe: an existing
// ledger returns its already-assigned id without burning a counter value.
func (s *Service) AllocateUserSequence(ctx context.Context, uid uuid.UUID) (int64, error) {
	ledger, err := s.repo.AllocateSequence(ctx, uid)
	if err != nil {
		return 0, err
	}

	s.logger.Info("User sequence allocated", map[string]interface{}{
		"uid":           uid,
		"sequential_id": ledger.SequentialID,
	})
	return ledger.SequentialID, nil
}

// ApplyBalanceDelta adds a signed delta to the user's balance and returns
// the new value. A zero delta is a caller error, distinguishable from
// "nothing to do". The delta is never applied to a ledger that does not
// exist.
func (s *Service) ApplyBalanceDelta(ctx context.Context, uid uuid.UUID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, pkgerrors.ErrZeroDelta
	}

	newBalance, err := s.repo.ApplyDelta(ctx, uid, delta)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Balance delta applied", map[string]interface{}{
		"uid":         uid,
		"delta":       delta,
		"new_balance": newBalance,
	})
	return newBalance, nil
}

// GetBalance reads the current confirmed balance.
func (s *Service) GetBalance(ctx context.Context, uid uuid.UUID) (int64, error) {
	ledger, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return 0, err
	}
	return ledger.Balance, nil
}
