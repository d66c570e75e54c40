// Package domain holds the core types shared by the agent and the ledger service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawTransaction is a purchase event as delivered by the platform stream.
// The id and product id in the envelope are untrusted until the signed
// payload has been verified against the platform key.
type RawTransaction struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	SignedPayload string `json:"signed_payload"`
}

// Transaction is a RawTransaction whose signature checked out.
type Transaction struct {
	ID        string
	ProductID string
}

// RewardType discriminates the reward variants in the catalog.
type RewardType string

const (
	RewardConsumable  RewardType = "consumable"
	RewardEntitlement RewardType = "entitlement"
)

// RewardKind is the catalog value a product id maps to. Exactly one of
// Coins or Entitlement is meaningful, selected by Type.
type RewardKind struct {
	Type        RewardType
	Coins       int64
	Entitlement string
}

// ApplyResult classifies the outcome of applying a verified transaction.
type ApplyResult string

const (
	ApplyApplied          ApplyResult = "applied"
	ApplyAlreadyProcessed ApplyResult = "already_processed"
	ApplyUnknownProduct   ApplyResult = "unknown_product"
)

// ReconcileOutcome classifies the outcome of one reconciliation attempt.
type ReconcileOutcome string

const (
	ReconcileConfirmed ReconcileOutcome = "confirmed"
	ReconcileDeferred  ReconcileOutcome = "deferred"
	ReconcileFailed    ReconcileOutcome = "failed"
)

// ReconcileResult reports what a reconciliation attempt did. Settled is the
// delta confirmed by the ledger service; Remaining is the pending credit
// left over (non-zero when new rewards accrued during the remote call).
type ReconcileResult struct {
	Outcome   ReconcileOutcome
	Settled   int64
	Remaining int64
	Reason    string
}

// UserLedger is the server-owned ledger row. The balance is only ever
// mutated through an atomic read-modify-write; the sequential id is
// assigned exactly once per user.
type UserLedger struct {
	UID          uuid.UUID `json:"uid" db:"uid"`
	SequentialID int64     `json:"sequential_id" db:"sequential_id"`
	Balance      int64     `json:"balance" db:"balance"`
	LastUpdate   time.Time `json:"last_update" db:"last_update"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Installation is a device installation credential. The secret is stored
// bcrypt-hashed; presenting it yields a bearer token scoped to UserUID.
type Installation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserUID    uuid.UUID `json:"user_uid" db:"user_uid"`
	SecretHash string    `json:"-" db:"secret_hash"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
