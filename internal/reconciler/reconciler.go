// Package reconciler confirms locally accrued pending credit with the
// remote ledger.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinflow/internal/domain"
	"coinflow/internal/state"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
)

// LedgerClient is the slice of the remote client the reconciler needs.
type LedgerClient interface {
	ApplyBalanceDelta(ctx context.Context, delta int64, attemptID string) (int64, error)
}

// Reconciler drives the confirm-with-backend loop. At most one attempt is
// in flight at a time: overlapping attempts could snapshot the same
// pending value and double-submit it.
type Reconciler struct {
	state  *state.State
	client LedgerClient
	logger logger.Logger
	mu     sync.Mutex
}

func New(st *state.State, client LedgerClient, log logger.Logger) *Reconciler {
	return &Reconciler{state: st, client: client, logger: log}
}

// Reconcile snapshots the current pending credit, submits it as one delta,
// and on success settles exactly that snapshot. Credit that accrued during
// the remote call stays pending for the next round. On failure the pending
// value is untouched; the caller schedules the retry.
func (r *Reconciler) Reconcile(ctx context.Context) (domain.ReconcileResult, error) {
	if !r.mu.TryLock() {
		return domain.ReconcileResult{
			Outcome: domain.ReconcileDeferred,
			Reason:  "attempt already in flight",
		}, pkgerrors.ErrReconcileInFlight
	}
	defer r.mu.Unlock()

	// An attempt id is minted once per snapshot and persisted until that
	// snapshot settles. If the server committed the delta but the
	// acknowledgment was lost, the retry resubmits the same amount under
	// the same key and the server replays its recorded response instead of
	// crediting twice.
	attemptID, snapshot, inFlight := r.state.CurrentAttempt()
	if !inFlight {
		snapshot = r.state.Pending()
		if snapshot == 0 {
			return domain.ReconcileResult{Outcome: domain.ReconcileConfirmed}, nil
		}
		attemptID = uuid.New().String()
		if err := r.state.BeginAttempt(attemptID, snapshot); err != nil {
			r.logger.Error("Failed to record reconcile attempt", map[string]interface{}{
				"attempt_id": attemptID,
				"delta":      snapshot,
				"error":      err.Error(),
			})
			return domain.ReconcileResult{
				Outcome:   domain.ReconcileFailed,
				Remaining: snapshot,
				Reason:    err.Error(),
			}, err
		}
	}

	newBalance, err := r.client.ApplyBalanceDelta(ctx, snapshot, attemptID)
	if err != nil {
		r.logger.Error("Balance delta rejected, keeping pending credit", map[string]interface{}{
			"attempt_id": attemptID,
			"delta":      snapshot,
			"error":      err.Error(),
		})
		return domain.ReconcileResult{
			Outcome:   domain.ReconcileFailed,
			Remaining: snapshot,
			Reason:    err.Error(),
		}, err
	}

	if err := r.state.SettlePending(snapshot); err != nil {
		// The server applied the delta but the local decrement failed.
		// The attempt record stays in place, so the retry resubmits under
		// the same key and the server replays rather than re-applies.
		r.logger.Error("Failed to settle confirmed credit", map[string]interface{}{
			"attempt_id": attemptID,
			"delta":      snapshot,
			"error":      err.Error(),
		})
		return domain.ReconcileResult{
			Outcome: domain.ReconcileFailed,
			Settled: snapshot,
			Reason:  err.Error(),
		}, err
	}

	remaining := r.state.Pending()
	r.logger.Info("Pending credit confirmed", map[string]interface{}{
		"attempt_id":  attemptID,
		"settled":     snapshot,
		"remaining":   remaining,
		"new_balance": newBalance,
	})

	return domain.ReconcileResult{
		Outcome:   domain.ReconcileConfirmed,
		Settled:   snapshot,
		Remaining: remaining,
	}, nil
}

// RunPeriodic reconciles immediately (app-launch semantics) and then on
// every tick until the context is cancelled.
func (r *Reconciler) RunPeriodic(ctx context.Context, interval time.Duration) {
	if _, err := r.Reconcile(ctx); err != nil && err != pkgerrors.ErrReconcileInFlight {
		r.logger.Warn("Startup reconcile failed, will retry on timer", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && err != pkgerrors.ErrReconcileInFlight {
				r.logger.Warn("Periodic reconcile failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}
