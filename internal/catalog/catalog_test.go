package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
)

func TestParse_ValidCatalog(t *testing.T) {
	cat, err := Parse([]byte(`
products:
  - id: coinseta
    type: consumable
    coins: 100
  - id: promonthly
    type: entitlement
    entitlement: pro
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	kind, err := cat.Lookup("coinseta")
	require.NoError(t, err)
	assert.Equal(t, domain.RewardConsumable, kind.Type)
	assert.Equal(t, int64(100), kind.Coins)

	kind, err = cat.Lookup("promonthly")
	require.NoError(t, err)
	assert.Equal(t, domain.RewardEntitlement, kind.Type)
	assert.Equal(t, "pro", kind.Entitlement)
}

func TestParse_RejectsDuplicateProductID(t *testing.T) {
	_, err := Parse([]byte(`
products:
  - id: coinseta
    type: consumable
    coins: 100
  - id: coinseta
    type: consumable
    coins: 300
`))
	assert.ErrorContains(t, err, "duplicate product id")
}

func TestParse_RejectsConsumableWithoutCoins(t *testing.T) {
	_, err := Parse([]byte(`
products:
  - id: coinseta
    type: consumable
`))
	assert.ErrorContains(t, err, "positive coin amount")
}

func TestParse_RejectsEntitlementWithoutName(t *testing.T) {
	_, err := Parse([]byte(`
products:
  - id: promonthly
    type: entitlement
`))
	assert.ErrorContains(t, err, "capability")
}

func TestParse_RejectsUnsupportedType(t *testing.T) {
	_, err := Parse([]byte(`
products:
  - id: mystery
    type: lootbox
    coins: 1
`))
	assert.Error(t, err)
}

func TestLookup_UnknownProduct(t *testing.T) {
	cat, err := Parse([]byte(`
products:
  - id: coinseta
    type: consumable
    coins: 100
`))
	require.NoError(t, err)

	_, err = cat.Lookup("coinsetz")
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownProduct)
}
