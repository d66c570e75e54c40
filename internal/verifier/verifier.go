// Package verifier validates the platform signature on raw transactions.
package verifier

import (
	"crypto/ecdsa"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
)

// payloadClaims is the claim set the platform signs into each transaction
// payload (a compact JWS).
type payloadClaims struct {
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
	jwt.RegisteredClaims
}

// Verifier checks signed transaction payloads against the platform's
// public signing key.
type Verifier struct {
	key *ecdsa.PublicKey
}

// New builds a Verifier around an already-parsed platform key.
func New(key *ecdsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// NewFromPEMFile loads the platform public key from a PEM file.
func NewFromPEMFile(path string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read platform key")
	}
	key, err := jwt.ParseECPublicKeyFromPEM(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse platform key")
	}
	return &Verifier{key: key}, nil
}

// Verify checks the signed payload and returns the trusted transaction.
// Any signature, algorithm, or envelope mismatch yields
// ErrVerificationFailed; such an event can never become valid, so the
// caller discards it (but still acknowledges it upstream).
func (v *Verifier) Verify(raw domain.RawTransaction) (*domain.Transaction, error) {
	claims := &payloadClaims{}
	token, err := jwt.ParseWithClaims(raw.SignedPayload, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return nil, pkgerrors.ErrVerificationFailed
	}

	// The envelope fields are attacker-controlled; only the signed claims
	// are trusted, and the two must agree.
	if claims.TransactionID == "" || claims.TransactionID != raw.ID {
		return nil, pkgerrors.ErrVerificationFailed
	}
	if claims.ProductID == "" || claims.ProductID != raw.ProductID {
		return nil, pkgerrors.ErrVerificationFailed
	}

	return &domain.Transaction{
		ID:        claims.TransactionID,
		ProductID: claims.ProductID,
	}, nil
}
