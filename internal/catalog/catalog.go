// Package catalog maps store product ids to reward kinds. The table is
// read-only external configuration: the engine consults it but never owns
// the mapping, and an unknown product id is a configuration gap, not a
// reason to guess a reward.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
	"coinflow/pkg/validator"
)

type productEntry struct {
	ID          string `yaml:"id" validate:"required"`
	Type        string `yaml:"type" validate:"required,oneof=consumable entitlement"`
	Coins       int64  `yaml:"coins" validate:"min=0"`
	Entitlement string `yaml:"entitlement"`
}

type catalogFile struct {
	Products []productEntry `yaml:"products" validate:"required,dive"`
}

// Catalog is an immutable product-id lookup table.
type Catalog struct {
	kinds map[string]domain.RewardKind
}

// LoadFile reads and validates a YAML catalog.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read catalog")
	}
	return Parse(raw)
}

// Parse builds a Catalog from YAML bytes.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, pkgerrors.Wrap(err, "parse catalog")
	}
	if err := validator.New().Validate(&file); err != nil {
		return nil, err
	}

	kinds := make(map[string]domain.RewardKind, len(file.Products))
	for _, p := range file.Products {
		if _, dup := kinds[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.ID)
		}
		switch domain.RewardType(p.Type) {
		case domain.RewardConsumable:
			if p.Coins <= 0 {
				return nil, fmt.Errorf("consumable %q must map to a positive coin amount", p.ID)
			}
			kinds[p.ID] = domain.RewardKind{Type: domain.RewardConsumable, Coins: p.Coins}
		case domain.RewardEntitlement:
			if p.Entitlement == "" {
				return nil, fmt.Errorf("entitlement %q must name the capability it grants", p.ID)
			}
			kinds[p.ID] = domain.RewardKind{Type: domain.RewardEntitlement, Entitlement: p.Entitlement}
		default:
			return nil, fmt.Errorf("product %q has unsupported type %q", p.ID, p.Type)
		}
	}

	return &Catalog{kinds: kinds}, nil
}

// Lookup resolves a product id to its reward kind.
func (c *Catalog) Lookup(productID string) (domain.RewardKind, error) {
	kind, ok := c.kinds[productID]
	if !ok {
		return domain.RewardKind{}, pkgerrors.ErrUnknownProduct
	}
	return kind, nil
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.kinds)
}
