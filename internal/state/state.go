// Package state owns the client-persisted reconciliation state: the
// processed-transaction set, the pending-credit scalar, and entitlement
// flags. All durable writes go through the store; in-memory mirrors are
// refreshed only after a write commits, so a crash at any point leaves the
// durable state consistent with "the operation did not happen".
package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"coinflow/internal/store"
	pkgerrors "coinflow/pkg/errors"
)

const (
	keyPendingCredit     = "pending_credit"
	keyReconcileAttempt  = "reconcile_attempt"
	processedKeyPrefix   = "processed/"
	entitlementKeyPrefix = "entitlement/"
)

// attemptRecord binds a reconcile attempt id to the snapshot it submits.
type attemptRecord struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// State is safe for concurrent use. The stream consumer increments pending
// credit while the reconciler decrements it; both paths serialize on mu so
// there is no read-modify-write window.
type State struct {
	mu sync.Mutex
	db store.Store

	pending       int64
	processed     map[string]struct{}
	entitlements  map[string]struct{}
	attemptID     string
	attemptAmount int64
}

// Load opens the reconciliation state from the durable store, reading the
// processed set and pending credit into memory once at startup.
func Load(db store.Store) (*State, error) {
	s := &State{
		db:           db,
		processed:    make(map[string]struct{}),
		entitlements: make(map[string]struct{}),
	}

	raw, err := db.Get(keyPendingCredit)
	switch {
	case err == nil:
		if len(raw) != 8 {
			return nil, errors.New("corrupt pending credit record")
		}
		s.pending = int64(binary.BigEndian.Uint64(raw))
	case errors.Is(err, store.ErrKeyNotFound):
		// First run: pending credit starts at zero.
	default:
		return nil, pkgerrors.Wrap(err, "load pending credit")
	}

	processedKeys, err := db.Keys(processedKeyPrefix)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load processed set")
	}
	for _, k := range processedKeys {
		s.processed[strings.TrimPrefix(k, processedKeyPrefix)] = struct{}{}
	}

	entitlementKeys, err := db.Keys(entitlementKeyPrefix)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load entitlements")
	}
	for _, k := range entitlementKeys {
		s.entitlements[strings.TrimPrefix(k, entitlementKeyPrefix)] = struct{}{}
	}

	raw, err = db.Get(keyReconcileAttempt)
	switch {
	case err == nil:
		var rec attemptRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, pkgerrors.Wrap(err, "load reconcile attempt")
		}
		s.attemptID = rec.ID
		s.attemptAmount = rec.Amount
	case errors.Is(err, store.ErrKeyNotFound):
		// No attempt in flight.
	default:
		return nil, pkgerrors.Wrap(err, "load reconcile attempt")
	}

	return s, nil
}

// IsProcessed reports whether the transaction id has already been applied.
func (s *State) IsProcessed(txID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[txID]
	return ok
}

// Pending returns the backend-unconfirmed credit amount.
func (s *State) Pending() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// HasEntitlement reports whether the named entitlement has been granted.
func (s *State) HasEntitlement(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entitlements[name]
	return ok
}

// CommitReward durably records a consumable reward: pending credit grows by
// coins and the transaction id joins the processed set, in one atomic
// batch. A transaction id is marked processed iff its credit is durable.
func (s *State) CommitReward(txID string, coins int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.pending + coins
	err := s.db.WriteBatch(func(b store.Batch) error {
		b.Put(keyPendingCredit, encodeInt64(next))
		b.Put(processedKeyPrefix+txID, []byte{1})
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrStorageWrite, err.Error())
	}

	s.pending = next
	s.processed[txID] = struct{}{}
	return nil
}

// CommitEntitlement durably records an entitlement grant together with the
// processed-id marker. Granting is idempotent: the flag is set regardless
// of its prior value.
func (s *State) CommitEntitlement(txID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WriteBatch(func(b store.Batch) error {
		b.Put(entitlementKeyPrefix+name, []byte{1})
		b.Put(processedKeyPrefix+txID, []byte{1})
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrStorageWrite, err.Error())
	}

	s.entitlements[name] = struct{}{}
	s.processed[txID] = struct{}{}
	return nil
}

// CurrentAttempt returns the reconcile attempt still awaiting settlement,
// if any. A retry after a lost acknowledgment must reuse this id and
// amount so the ledger service recognizes the duplicate.
func (s *State) CurrentAttempt() (id string, amount int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID, s.attemptAmount, s.attemptID != ""
}

// BeginAttempt durably records a reconcile attempt before its remote call.
// The record survives crashes and remote failures until SettlePending
// clears it, so every resubmission of this snapshot carries the same id.
func (s *State) BeginAttempt(id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(attemptRecord{ID: id, Amount: amount})
	if err != nil {
		return err
	}
	if err := s.db.Put(keyReconcileAttempt, raw); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrStorageWrite, err.Error())
	}

	s.attemptID = id
	s.attemptAmount = amount
	return nil
}

// SettlePending decrements pending credit by the confirmed snapshot n and
// retires the in-flight attempt record, in one atomic batch. It
// deliberately subtracts rather than zeroing: credit that accrued while the
// confirm call was in flight survives for the next reconcile round.
func (s *State) SettlePending(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.pending - n
	if next < 0 {
		return errors.New("settle amount exceeds pending credit")
	}
	err := s.db.WriteBatch(func(b store.Batch) error {
		b.Put(keyPendingCredit, encodeInt64(next))
		b.Delete(keyReconcileAttempt)
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrStorageWrite, err.Error())
	}

	s.pending = next
	s.attemptID = ""
	s.attemptAmount = 0
	return nil
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}
