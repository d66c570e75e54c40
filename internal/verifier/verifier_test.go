package verifier

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
)

func newSigningKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func signPayload(t *testing.T, key *ecdsa.PrivateKey, txID, productID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"transaction_id": txID,
		"product_id":     productID,
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerify_AcceptsValidPayload(t *testing.T) {
	key := newSigningKey(t)
	v := New(&key.PublicKey)

	raw := domain.RawTransaction{
		ID:            "T1",
		ProductID:     "coinseta",
		SignedPayload: signPayload(t, key, "T1", "coinseta"),
	}

	tx, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "T1", tx.ID)
	assert.Equal(t, "coinseta", tx.ProductID)
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	signerKey := newSigningKey(t)
	otherKey := newSigningKey(t)
	v := New(&otherKey.PublicKey)

	raw := domain.RawTransaction{
		ID:            "T1",
		ProductID:     "coinseta",
		SignedPayload: signPayload(t, signerKey, "T1", "coinseta"),
	}

	_, err := v.Verify(raw)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationFailed)
}

func TestVerify_RejectsEnvelopeMismatch(t *testing.T) {
	key := newSigningKey(t)
	v := New(&key.PublicKey)

	// The envelope claims a different transaction than the signed payload:
	// only the signed claims are trusted, and the two must agree.
	raw := domain.RawTransaction{
		ID:            "T2",
		ProductID:     "coinseta",
		SignedPayload: signPayload(t, key, "T1", "coinseta"),
	}
	_, err := v.Verify(raw)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationFailed)

	raw = domain.RawTransaction{
		ID:            "T1",
		ProductID:     "coinsetb",
		SignedPayload: signPayload(t, key, "T1", "coinseta"),
	}
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationFailed)
}

func TestVerify_RejectsGarbagePayload(t *testing.T) {
	key := newSigningKey(t)
	v := New(&key.PublicKey)

	_, err := v.Verify(domain.RawTransaction{
		ID:            "T1",
		ProductID:     "coinseta",
		SignedPayload: "not-a-jws",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationFailed)
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	key := newSigningKey(t)
	v := New(&key.PublicKey)

	// alg=none tokens must never pass, whatever the claims say.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"transaction_id": "T1",
		"product_id":     "coinseta",
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(domain.RawTransaction{
		ID:            "T1",
		ProductID:     "coinseta",
		SignedPayload: unsigned,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationFailed)
}
