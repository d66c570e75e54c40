package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coinflow/internal/ledger"
	"coinflow/internal/middleware"
	"coinflow/pkg/cache"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
	"coinflow/pkg/validator"
)

const balanceCacheTTL = 30 * time.Second

// LedgerHandler serves the sequence-allocation and balance-delta RPCs.
type LedgerHandler struct {
	service   *ledger.Service
	validator *validator.Validator
	cache     *cache.RedisCache
	logger    logger.Logger
}

func NewLedgerHandler(service *ledger.Service, val *validator.Validator, c *cache.RedisCache, log logger.Logger) *LedgerHandler {
	return &LedgerHandler{service: service, validator: val, cache: c, logger: log}
}

// AllocateSequence handles POST /api/v1/ledger/sequence.
func (h *LedgerHandler) AllocateSequence(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserUIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	seq, err := h.service.AllocateUserSequence(r.Context(), uid)
	if err != nil {
		h.logger.Error("Sequence allocation failed", map[string]interface{}{
			"uid":   uid,
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to allocate sequence")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"sequential_id": seq})
}

type balanceDeltaRequest struct {
	Amount int64 `json:"amount" validate:"required"`
}

// ApplyBalanceDelta handles POST /api/v1/ledger/balance-delta.
func (h *LedgerHandler) ApplyBalanceDelta(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserUIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req balanceDeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	newBalance, err := h.service.ApplyBalanceDelta(r.Context(), uid, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrZeroDelta):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pkgerrors.ErrLedgerNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("Balance delta failed", map[string]interface{}{
				"uid":   uid,
				"delta": req.Amount,
				"error": err.Error(),
			})
			respondError(w, http.StatusInternalServerError, "Failed to apply balance delta")
		}
		return
	}

	// The confirmed balance changed; drop the cached read.
	if h.cache != nil {
		_ = h.cache.Delete(r.Context(), balanceCacheKey(uid.String()))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"new_balance": newBalance})
}

// GetBalance handles GET /api/v1/ledger/balance with a short-lived cache.
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserUIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	key := balanceCacheKey(uid.String())
	if h.cache != nil {
		var cached int64
		if err := h.cache.Get(r.Context(), key, &cached); err == nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{"balance": cached, "cached": true})
			return
		}
	}

	balance, err := h.service.GetBalance(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrLedgerNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Balance read failed", map[string]interface{}{
			"uid":   uid,
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to read balance")
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(r.Context(), key, balance, balanceCacheTTL)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

func balanceCacheKey(uid string) string {
	return fmt.Sprintf("balance:%s", uid)
}
