package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"coinflow/internal/auth"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
	"coinflow/pkg/validator"
)

// AuthHandler exchanges installation credentials for bearer tokens.
type AuthHandler struct {
	service   *auth.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewAuthHandler(service *auth.Service, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{service: service, validator: val, logger: log}
}

type tokenRequest struct {
	InstallationID     string `json:"installation_id" validate:"required,uuid4"`
	InstallationSecret string `json:"installation_secret" validate:"required,min=16"`
}

// IssueToken handles POST /api/v1/auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	installationID, err := uuid.Parse(req.InstallationID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid installation id")
		return
	}

	token, expiresIn, err := h.service.IssueToken(r.Context(), installationID, req.InstallationSecret)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("Token issuance failed", map[string]interface{}{
			"installation_id": req.InstallationID,
			"error":           err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": expiresIn,
	})
}
