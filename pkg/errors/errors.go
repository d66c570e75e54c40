// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Client-side reconciliation errors
var (
	// ErrVerificationFailed marks a transaction whose signed payload did not
	// verify. Terminal for that event: discard, acknowledge, never retry.
	ErrVerificationFailed = errors.New("transaction verification failed")

	// ErrAlreadyProcessed is benign: the transaction id is already in the
	// processed set, so the event is acknowledged without any credit.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrUnknownProduct marks a product id missing from the reward catalog.
	// Acknowledge and log, but never guess a reward amount.
	ErrUnknownProduct = errors.New("unknown product id")

	// ErrStorageWrite is retryable: the event must stay unacknowledged so the
	// upstream source redelivers it.
	ErrStorageWrite = errors.New("durable storage write failed")

	// ErrRemoteCall is retryable: pending credit is left untouched.
	ErrRemoteCall = errors.New("remote ledger call failed")

	// ErrReconcileInFlight means another reconcile attempt holds the
	// single-flight guard. Benign; do not retry immediately.
	ErrReconcileInFlight = errors.New("reconciliation already in progress")

	ErrKeyNotFound = errors.New("key not found")
)

// Ledger service errors
var (
	ErrZeroDelta          = errors.New("balance delta must be non-zero")
	ErrLedgerNotFound     = errors.New("user ledger not found")
	ErrLedgerExists       = errors.New("user ledger already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
