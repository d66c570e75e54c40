// Package auth exchanges installation credentials for bearer tokens.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/logger"
)

// InstallationRepository looks up device installation credentials.
type InstallationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Installation, error)
}

type Service struct {
	installations InstallationRepository
	jwtSecret     string
	expiration    time.Duration
	logger        logger.Logger
}

func NewService(repo InstallationRepository, jwtSecret string, expiration time.Duration, log logger.Logger) *Service {
	return &Service{
		installations: repo,
		jwtSecret:     jwtSecret,
		expiration:    expiration,
		logger:        log,
	}
}

// IssueToken verifies the installation secret and returns a signed bearer
// token carrying the owning user's uid. Lookup failure and secret mismatch
// are indistinguishable to the caller.
func (s *Service) IssueToken(ctx context.Context, installationID uuid.UUID, secret string) (string, int64, error) {
	inst, err := s.installations.FindByID(ctx, installationID)
	if err != nil {
		return "", 0, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(inst.SecretHash), []byte(secret)); err != nil {
		s.logger.Warn("Installation secret mismatch", map[string]interface{}{
			"installation_id": installationID,
		})
		return "", 0, pkgerrors.ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"uid":             inst.UserUID.String(),
		"installation_id": inst.ID.String(),
		"iat":             now.Unix(),
		"exp":             now.Add(s.expiration).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", 0, err
	}
	return token, int64(s.expiration.Seconds()), nil
}

// HashSecret bcrypt-hashes an installation secret for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
