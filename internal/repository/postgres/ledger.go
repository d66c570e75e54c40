// Package postgres implements the ledger service repositories over sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
)

const userSequenceCounter = "user_sequence"

// LedgerRepository persists user ledgers and the global sequence counter.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AllocateSequence assigns the next sequential id to uid and creates its
// ledger row, all in one transaction: the counter row is locked, read,
// incremented, and the ledger row inserted before commit, so concurrent
// calls can never receive the same id. If uid already has a ledger its
// existing id is returned and the counter is untouched.
func (r *LedgerRepository) AllocateSequence(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing domain.UserLedger
	err = tx.GetContext(ctx, &existing,
		`SELECT uid, sequential_id, balance, last_update, created_at
		   FROM user_ledgers WHERE uid = $1`, uid)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var current int64
	err = tx.GetContext(ctx, &current,
		`SELECT value FROM ledger_counters WHERE name = $1 FOR UPDATE`, userSequenceCounter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read sequence counter")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_counters SET value = value + 1 WHERE name = $1`, userSequenceCounter); err != nil {
		return nil, pkgerrors.Wrap(err, "advance sequence counter")
	}

	var ledger domain.UserLedger
	err = tx.GetContext(ctx, &ledger,
		`INSERT INTO user_ledgers (uid, sequential_id, balance, last_update, created_at)
		 VALUES ($1, $2, 0, now(), now())
		 RETURNING uid, sequential_id, balance, last_update, created_at`,
		uid, current)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create user ledger")
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// ApplyDelta mutates the balance with a single-statement read-modify-write
// so concurrent deltas serialize inside the database.
func (r *LedgerRepository) ApplyDelta(ctx context.Context, uid uuid.UUID, delta int64) (int64, error) {
	var newBalance int64
	err := r.db.GetContext(ctx, &newBalance,
		`UPDATE user_ledgers
		    SET balance = balance + $2,
		        last_update = now()
		  WHERE uid = $1
		  RETURNING balance`,
		uid, delta)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, pkgerrors.ErrLedgerNotFound
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *LedgerRepository) FindByUID(ctx context.Context, uid uuid.UUID) (*domain.UserLedger, error) {
	var ledger domain.UserLedger
	err := r.db.GetContext(ctx, &ledger,
		`SELECT uid, sequential_id, balance, last_update, created_at
		   FROM user_ledgers WHERE uid = $1`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrLedgerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}
