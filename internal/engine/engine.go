// Package engine applies verified transactions exactly once.
package engine

import (
	"errors"

	"coinflow/internal/catalog"
	"coinflow/internal/domain"
	"coinflow/internal/state"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
)

// Engine is the dedup-and-apply core. It is driven by a single stream
// consumer, one event at a time; the durable state handles its own
// locking, so the engine itself needs none.
type Engine struct {
	state   *state.State
	catalog *catalog.Catalog
	logger  logger.Logger
}

func New(st *state.State, cat *catalog.Catalog, log logger.Logger) *Engine {
	return &Engine{state: st, catalog: cat, logger: log}
}

// Apply credits the reward for a verified transaction.
//
// The outcomes AlreadyProcessed and UnknownProduct are terminal for the
// event: the caller must still acknowledge it upstream so redelivery
// stops, but no state changes. A non-nil error means the durable write
// failed; the caller must leave the event unacknowledged so the platform
// redelivers it. The processed-set check makes that redelivery safe.
func (e *Engine) Apply(tx *domain.Transaction) (domain.ApplyResult, error) {
	if e.state.IsProcessed(tx.ID) {
		e.logger.Debug("Transaction already processed", map[string]interface{}{
			"transaction_id": tx.ID,
		})
		return domain.ApplyAlreadyProcessed, nil
	}

	kind, err := e.catalog.Lookup(tx.ProductID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUnknownProduct) {
			e.logger.Warn("Unknown product id, no reward credited", map[string]interface{}{
				"transaction_id": tx.ID,
				"product_id":     tx.ProductID,
			})
			return domain.ApplyUnknownProduct, nil
		}
		return "", err
	}

	switch kind.Type {
	case domain.RewardConsumable:
		if err := e.state.CommitReward(tx.ID, kind.Coins); err != nil {
			return "", err
		}
		e.logger.Info("Reward credited", map[string]interface{}{
			"transaction_id": tx.ID,
			"product_id":     tx.ProductID,
			"coins":          kind.Coins,
			"pending":        e.state.Pending(),
		})
	case domain.RewardEntitlement:
		if err := e.state.CommitEntitlement(tx.ID, kind.Entitlement); err != nil {
			return "", err
		}
		e.logger.Info("Entitlement granted", map[string]interface{}{
			"transaction_id": tx.ID,
			"product_id":     tx.ProductID,
			"entitlement":    kind.Entitlement,
		})
	default:
		// The catalog validates types at load time; this is unreachable.
		return domain.ApplyUnknownProduct, nil
	}

	return domain.ApplyApplied, nil
}
