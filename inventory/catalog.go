/*
catalog.go - Part catalog management

PURPOSE:
  Minimal catalog surface so the engine is exercisable end to end: create,
  look up, list, edit descriptive fields, deactivate. Counters are not
  writable here; they exist only through the ledger. Parts are never
  deleted, only deactivated.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CreatePartInput struct {
	PartNumber string
	Name       string
	Category   string
	Supplier   string
	Location   string
	UnitCost   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// UpdatePartInput carries partial descriptive edits; nil fields keep the
// stored value. Quantity counters are deliberately absent.
type UpdatePartInput struct {
	Name      *string
	Category  *string
	Supplier  *string
	Location  *string
	UnitCost  *decimal.Decimal
	UnitPrice *decimal.Decimal
	Active    *bool
}

// PartCatalog manages catalog rows and exposes the movement history.
type PartCatalog struct {
	store Store
	log   zerolog.Logger
}

func NewPartCatalog(store Store, log zerolog.Logger) *PartCatalog {
	return &PartCatalog{store: store, log: log.With().Str("component", "catalog").Logger()}
}

func (c *PartCatalog) CreatePart(ctx context.Context, in CreatePartInput) (Part, error) {
	if strings.TrimSpace(in.PartNumber) == "" {
		return Part{}, fmt.Errorf("%w: part_number is required", ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return Part{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.UnitCost.IsNegative() || in.UnitPrice.IsNegative() {
		return Part{}, fmt.Errorf("%w: unit cost and price must not be negative", ErrValidation)
	}

	now := time.Now().UTC()
	part := Part{
		ID:         PartID(uuid.NewString()),
		PartNumber: strings.TrimSpace(in.PartNumber),
		Name:       in.Name,
		Category:   in.Category,
		Supplier:   in.Supplier,
		Location:   in.Location,
		UnitCost:   in.UnitCost,
		UnitPrice:  in.UnitPrice,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.CreatePart(ctx, part); err != nil {
		return Part{}, err
	}
	c.log.Info().Str("part_id", string(part.ID)).Str("part_number", part.PartNumber).Msg("part created")
	return part, nil
}

func (c *PartCatalog) GetPart(ctx context.Context, id PartID) (Part, error) {
	return c.store.GetPart(ctx, id)
}

func (c *PartCatalog) GetPartByNumber(ctx context.Context, number string) (Part, error) {
	return c.store.GetPartByNumber(ctx, number)
}

func (c *PartCatalog) ListParts(ctx context.Context) ([]Part, error) {
	return c.store.ListParts(ctx)
}

// UpdatePart edits descriptive fields only; the store contract keeps the
// counters out of reach.
func (c *PartCatalog) UpdatePart(ctx context.Context, id PartID, in UpdatePartInput) (Part, error) {
	part, err := c.store.GetPart(ctx, id)
	if err != nil {
		return Part{}, err
	}
	if in.Name != nil {
		part.Name = *in.Name
	}
	if in.Category != nil {
		part.Category = *in.Category
	}
	if in.Supplier != nil {
		part.Supplier = *in.Supplier
	}
	if in.Location != nil {
		part.Location = *in.Location
	}
	if in.UnitCost != nil {
		if in.UnitCost.IsNegative() {
			return Part{}, fmt.Errorf("%w: unit_cost must not be negative", ErrValidation)
		}
		part.UnitCost = *in.UnitCost
	}
	if in.UnitPrice != nil {
		if in.UnitPrice.IsNegative() {
			return Part{}, fmt.Errorf("%w: unit_price must not be negative", ErrValidation)
		}
		part.UnitPrice = *in.UnitPrice
	}
	if in.Active != nil {
		part.Active = *in.Active
	}
	part.UpdatedAt = time.Now().UTC()

	if err := c.store.UpdatePartDetails(ctx, part); err != nil {
		return Part{}, fmt.Errorf("%w: update part: %v", ErrPersistence, err)
	}
	return part, nil
}

// Movements returns the part's stock movement history, oldest first.
func (c *PartCatalog) Movements(ctx context.Context, id PartID) ([]StockMovement, error) {
	if _, err := c.store.GetPart(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListMovements(ctx, id)
}
