package stream

import (
	"context"
	"errors"
	"time"

	"coinflow/internal/domain"
	"coinflow/pkg/logger"
)

// TransactionVerifier validates a raw transaction's signed payload.
type TransactionVerifier interface {
	Verify(raw domain.RawTransaction) (*domain.Transaction, error)
}

// Applier is the dedup-and-apply engine as the supervisor sees it.
type Applier interface {
	Apply(tx *domain.Transaction) (domain.ApplyResult, error)
}

// Supervisor keeps a subscription to the transaction stream alive and
// processes events one at a time: verify, apply, acknowledge. When the
// subscription dies it re-dials with capped exponential backoff instead
// of letting reconciliation silently stop.
type Supervisor struct {
	dial       DialFunc
	verifier   TransactionVerifier
	engine     Applier
	logger     logger.Logger
	backoffMax time.Duration
}

func NewSupervisor(dial DialFunc, v TransactionVerifier, e Applier, log logger.Logger, backoffMax time.Duration) *Supervisor {
	if backoffMax <= 0 {
		backoffMax = time.Minute
	}
	return &Supervisor{dial: dial, verifier: v, engine: e, logger: log, backoffMax: backoffMax}
}

// Run blocks until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		src, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("Stream dial failed", map[string]interface{}{
				"error":       err.Error(),
				"retry_after": backoff.String(),
			})
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.backoffMax)
			continue
		}

		s.logger.Info("Transaction stream connected", nil)
		backoff = time.Second

		err = s.consume(ctx, src)
		_ = src.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Transaction stream terminated, reconnecting", map[string]interface{}{
			"error": errString(err),
		})
	}
}

// consume pulls events until the source dies. Each event is processed to
// completion before the next is read.
func (s *Supervisor) consume(ctx context.Context, src Source) error {
	for {
		raw, err := src.Next(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, src, raw)
	}
}

// handle runs one event through verify → apply → finish.
//
// Ordering is the crash-safety mechanism: the event is acknowledged only
// after the apply's durable write succeeded. A storage failure leaves the
// event unacknowledged so the platform redelivers it; dedup makes the
// redelivery idempotent. Verification failures and unknown products are
// terminal and still acknowledged, otherwise a single bad event would
// wedge delivery of everything behind it.
func (s *Supervisor) handle(ctx context.Context, src Source, raw domain.RawTransaction) {
	tx, err := s.verifier.Verify(raw)
	if err != nil {
		s.logger.Warn("Discarding unverified transaction", map[string]interface{}{
			"transaction_id": raw.ID,
		})
		s.finish(ctx, src, raw.ID)
		return
	}

	result, err := s.engine.Apply(tx)
	if err != nil {
		// Leave unacknowledged: the durable write failed and the platform
		// must redeliver this event.
		s.logger.Error("Apply failed, leaving transaction unacknowledged", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return
	}

	if result == domain.ApplyAlreadyProcessed {
		s.logger.Debug("Acknowledging redelivered transaction", map[string]interface{}{
			"transaction_id": tx.ID,
		})
	}
	s.finish(ctx, src, tx.ID)
}

func (s *Supervisor) finish(ctx context.Context, src Source, transactionID string) {
	if err := src.Finish(ctx, transactionID); err != nil {
		// The platform will redeliver; dedup absorbs it.
		s.logger.Warn("Failed to acknowledge transaction", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled.Error()
	}
	return err.Error()
}
