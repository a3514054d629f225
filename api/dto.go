/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ALIAS NORMALIZATION:
  Historic clients send quantity fields in camelCase (quantityOrdered,
  quantityReceived, quantityRequested). Aliases are folded into the
  canonical snake_case fields in UnmarshalJSON, once, at this boundary.
  Nothing past the DTO layer knows the aliases exist.

VALIDATION:
  Request DTOs carry go-playground/validator tags and are checked in the
  handlers before any domain call. Domain inputs re-validate their own
  invariants; the DTO layer only rejects obviously malformed requests.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/delivery.go, inventory/jobpart.go: canonical input types
*/
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parts-engine/inventory"
)

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the JSON body for all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

const dateLayout = "2006-01-02"

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// =============================================================================
// PARTS
// =============================================================================

// PartDTO represents a catalog part in API responses.
type PartDTO struct {
	ID          string          `json:"id"`
	PartNumber  string          `json:"part_number"`
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Supplier    string          `json:"supplier,omitempty"`
	Location    string          `json:"location,omitempty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	QtyInStock  int             `json:"qty_in_stock"`
	QtyReserved int             `json:"qty_reserved"`
	QtyOnOrder  int             `json:"qty_on_order"`
	Active      bool            `json:"active"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

func toPartDTO(p inventory.Part) PartDTO {
	return PartDTO{
		ID:          string(p.ID),
		PartNumber:  p.PartNumber,
		Name:        p.Name,
		Category:    p.Category,
		Supplier:    p.Supplier,
		Location:    p.Location,
		UnitCost:    p.UnitCost,
		UnitPrice:   p.UnitPrice,
		QtyInStock:  p.QtyInStock,
		QtyReserved: p.QtyReserved,
		QtyOnOrder:  p.QtyOnOrder,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreatePartRequest is the request to create a catalog part.
type CreatePartRequest struct {
	PartNumber string           `json:"part_number" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	Category   string           `json:"category"`
	Supplier   string           `json:"supplier"`
	Location   string           `json:"location"`
	UnitCost   *decimal.Decimal `json:"unit_cost"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
}

func (r CreatePartRequest) toInput() inventory.CreatePartInput {
	in := inventory.CreatePartInput{
		PartNumber: r.PartNumber,
		Name:       r.Name,
		Category:   r.Category,
		Supplier:   r.Supplier,
		Location:   r.Location,
	}
	if r.UnitCost != nil {
		in.UnitCost = *r.UnitCost
	}
	if r.UnitPrice != nil {
		in.UnitPrice = *r.UnitPrice
	}
	return in
}

// UpdatePartRequest carries partial descriptive edits. Quantity counters
// are not part of this contract: they move only through deliveries and
// job parts.
type UpdatePartRequest struct {
	Name      *string          `json:"name"`
	Category  *string          `json:"category"`
	Supplier  *string          `json:"supplier"`
	Location  *string          `json:"location"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Active    *bool            `json:"active"`
}

func (r UpdatePartRequest) toInput() inventory.UpdatePartInput {
	return inventory.UpdatePartInput{
		Name:      r.Name,
		Category:  r.Category,
		Supplier:  r.Supplier,
		Location:  r.Location,
		UnitCost:  r.UnitCost,
		UnitPrice: r.UnitPrice,
		Active:    r.Active,
	}
}

// =============================================================================
// DELIVERIES
// =============================================================================

// DeliveryDTO represents a delivery with its items.
type DeliveryDTO struct {
	ID             string            `json:"id"`
	Supplier       string            `json:"supplier"`
	OrderReference string            `json:"order_reference,omitempty"`
	Status         string            `json:"status"`
	ExpectedDate   string            `json:"expected_date,omitempty"`
	ReceivedDate   string            `json:"received_date,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Items          []DeliveryItemDTO `json:"items"`
	CreatedAt      string            `json:"created_at,omitempty"`
	UpdatedAt      string            `json:"updated_at,omitempty"`
}

// DeliveryItemDTO represents one part line of a delivery.
type DeliveryItemDTO struct {
	ID                  string          `json:"id"`
	DeliveryID          string          `json:"delivery_id"`
	PartID              string          `json:"part_id"`
	JobID               string          `json:"job_id,omitempty"`
	QuantityOrdered     int             `json:"quantity_ordered"`
	QuantityReceived    int             `json:"quantity_received"`
	QuantityOutstanding int             `json:"quantity_outstanding"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Status              string          `json:"status"`
	Notes               string          `json:"notes,omitempty"`
	CreatedAt           string          `json:"created_at,omitempty"`
	UpdatedAt           string          `json:"updated_at,omitempty"`
}

func toDeliveryDTO(d inventory.Delivery) DeliveryDTO {
	items := make([]DeliveryItemDTO, len(d.Items))
	for i, item := range d.Items {
		items[i] = toDeliveryItemDTO(item)
	}
	return DeliveryDTO{
		ID:             string(d.ID),
		Supplier:       d.Supplier,
		OrderReference: d.OrderReference,
		Status:         string(d.Status),
		ExpectedDate:   formatDate(d.ExpectedDate),
		ReceivedDate:   formatDate(d.ReceivedDate),
		Notes:          d.Notes,
		Items:          items,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
}

func toDeliveryItemDTO(item inventory.DeliveryItem) DeliveryItemDTO {
	return DeliveryItemDTO{
		ID:                  string(item.ID),
		DeliveryID:          string(item.DeliveryID),
		PartID:              string(item.PartID),
		JobID:               string(item.JobID),
		QuantityOrdered:     item.QuantityOrdered,
		QuantityReceived:    item.QuantityReceived,
		QuantityOutstanding: item.Outstanding(),
		UnitCost:            item.UnitCost,
		UnitPrice:           item.UnitPrice,
		Status:              string(item.Status),
		Notes:               item.Notes,
		CreatedAt:           item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           item.UpdatedAt.Format(time.RFC3339),
	}
}

// DeliveryItemRequest is one part line in a create/add request.
type DeliveryItemRequest struct {
	PartID           string           `json:"part_id" validate:"required"`
	JobID            string           `json:"job_id"`
	QuantityOrdered  int              `json:"quantity_ordered" validate:"gte=0"`
	QuantityReceived int              `json:"quantity_received" validate:"gte=0"`
	UnitCost         *decimal.Decimal `json:"unit_cost"`
	UnitPrice        *decimal.Decimal `json:"unit_price"`
	Notes            string           `json:"notes"`
}

// UnmarshalJSON folds camelCase quantity aliases into the canonical fields.
func (r *DeliveryItemRequest) UnmarshalJSON(data []byte) error {
	type plain DeliveryItemRequest
	aux := struct {
		*plain
		QuantityOrderedAlias  *int `json:"quantityOrdered"`
		QuantityReceivedAlias *int `json:"quantityReceived"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.QuantityOrderedAlias != nil && r.QuantityOrdered == 0 {
		r.QuantityOrdered = *aux.QuantityOrderedAlias
	}
	if aux.QuantityReceivedAlias != nil && r.QuantityReceived == 0 {
		r.QuantityReceived = *aux.QuantityReceivedAlias
	}
	return nil
}

func (r DeliveryItemRequest) toInput() inventory.DeliveryItemInput {
	return inventory.DeliveryItemInput{
		PartID:           inventory.PartID(r.PartID),
		JobID:            inventory.JobID(r.JobID),
		QuantityOrdered:  r.QuantityOrdered,
		QuantityReceived: r.QuantityReceived,
		UnitCost:         r.UnitCost,
		UnitPrice:        r.UnitPrice,
		Notes:            r.Notes,
	}
}

// CreateDeliveryRequest is the request to record a delivery with items.
type CreateDeliveryRequest struct {
	Supplier       string                `json:"supplier" validate:"required"`
	OrderReference string                `json:"order_reference"`
	Status         string                `json:"status"`
	ExpectedDate   string                `json:"expected_date"`
	Notes          string                `json:"notes"`
	Items          []DeliveryItemRequest `json:"items" validate:"dive"`
}

func (r CreateDeliveryRequest) toInput(performedBy string) (inventory.CreateDeliveryInput, error) {
	expected, err := parseDate(r.ExpectedDate)
	if err != nil {
		return inventory.CreateDeliveryInput{}, err
	}
	items := make([]inventory.DeliveryItemInput, len(r.Items))
	for i, item := range r.Items {
		items[i] = item.toInput()
	}
	return inventory.CreateDeliveryInput{
		Supplier:       r.Supplier,
		OrderReference: r.OrderReference,
		Status:         inventory.DeliveryStatus(r.Status),
		ExpectedDate:   expected,
		Notes:          r.Notes,
		Items:          items,
		PerformedBy:    performedBy,
	}, nil
}

// UpdateDeliveryItemRequest carries partial edits to a delivery item.
type UpdateDeliveryItemRequest struct {
	QuantityOrdered  *int             `json:"quantity_ordered" validate:"omitempty,gte=0"`
	QuantityReceived *int             `json:"quantity_received" validate:"omitempty,gte=0"`
	UnitCost         *decimal.Decimal `json:"unit_cost"`
	UnitPrice        *decimal.Decimal `json:"unit_price"`
	Notes            *string          `json:"notes"`
}

// UnmarshalJSON folds camelCase quantity aliases into the canonical fields.
func (r *UpdateDeliveryItemRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateDeliveryItemRequest
	aux := struct {
		*plain
		QuantityOrderedAlias  *int `json:"quantityOrdered"`
		QuantityReceivedAlias *int `json:"quantityReceived"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.QuantityOrderedAlias != nil && r.QuantityOrdered == nil {
		r.QuantityOrdered = aux.QuantityOrderedAlias
	}
	if aux.QuantityReceivedAlias != nil && r.QuantityReceived == nil {
		r.QuantityReceived = aux.QuantityReceivedAlias
	}
	return nil
}

func (r UpdateDeliveryItemRequest) toInput(performedBy string) inventory.UpdateDeliveryItemInput {
	return inventory.UpdateDeliveryItemInput{
		QuantityOrdered:  r.QuantityOrdered,
		QuantityReceived: r.QuantityReceived,
		UnitCost:         r.UnitCost,
		UnitPrice:        r.UnitPrice,
		Notes:            r.Notes,
		PerformedBy:      performedBy,
	}
}

// =============================================================================
// JOB PARTS
// =============================================================================

// JobPartDTO represents a job part request/allocation.
type JobPartDTO struct {
	ID                string          `json:"id"`
	JobID             string          `json:"job_id"`
	PartID            string          `json:"part_id"`
	QuantityRequested int             `json:"quantity_requested"`
	QuantityAllocated int             `json:"quantity_allocated"`
	QuantityFitted    int             `json:"quantity_fitted"`
	Status            string          `json:"status"`
	Authorised        bool            `json:"authorised"`
	Origin            string          `json:"origin"`
	VHCItemID         string          `json:"vhc_item_id,omitempty"`
	Provenance        string          `json:"provenance"`
	Location          string          `json:"location,omitempty"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Notes             string          `json:"notes,omitempty"`
	RequestedBy       string          `json:"requested_by,omitempty"`
	AllocatedBy       string          `json:"allocated_by,omitempty"`
	PickedBy          string          `json:"picked_by,omitempty"`
	FittedBy          string          `json:"fitted_by,omitempty"`
	CreatedAt         string          `json:"created_at,omitempty"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

func toJobPartDTO(jp inventory.JobPart) JobPartDTO {
	return JobPartDTO{
		ID:                string(jp.ID),
		JobID:             string(jp.JobID),
		PartID:            string(jp.PartID),
		QuantityRequested: jp.QuantityRequested,
		QuantityAllocated: jp.QuantityAllocated,
		QuantityFitted:    jp.QuantityFitted,
		Status:            string(jp.Status),
		Authorised:        jp.Authorised,
		Origin:            string(jp.Origin),
		VHCItemID:         jp.VHCItemID,
		Provenance:        string(jp.Provenance),
		Location:          jp.Location,
		UnitCost:          jp.UnitCost,
		UnitPrice:         jp.UnitPrice,
		Notes:             jp.Notes,
		RequestedBy:       jp.RequestedBy,
		AllocatedBy:       jp.AllocatedBy,
		PickedBy:          jp.PickedBy,
		FittedBy:          jp.FittedBy,
		CreatedAt:         jp.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         jp.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateJobPartRequest is the request to attach a part to a job.
type CreateJobPartRequest struct {
	PartID            string           `json:"part_id" validate:"required"`
	QuantityRequested int              `json:"quantity_requested" validate:"gt=0"`
	AllocateFromStock bool             `json:"allocate_from_stock"`
	Origin            string           `json:"origin" validate:"omitempty,oneof=manual vhc"`
	VHCItemID         string           `json:"vhc_item_id"`
	Location          *string          `json:"location"`
	UnitCost          *decimal.Decimal `json:"unit_cost"`
	UnitPrice         *decimal.Decimal `json:"unit_price"`
	Notes             string           `json:"notes"`
}

// UnmarshalJSON folds the camelCase quantity alias into the canonical field.
func (r *CreateJobPartRequest) UnmarshalJSON(data []byte) error {
	type plain CreateJobPartRequest
	aux := struct {
		*plain
		QuantityRequestedAlias *int `json:"quantityRequested"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.QuantityRequestedAlias != nil && r.QuantityRequested == 0 {
		r.QuantityRequested = *aux.QuantityRequestedAlias
	}
	return nil
}

func (r CreateJobPartRequest) toInput(jobID, performedBy string) inventory.CreateJobPartInput {
	return inventory.CreateJobPartInput{
		JobID:             inventory.JobID(jobID),
		PartID:            inventory.PartID(r.PartID),
		QuantityRequested: r.QuantityRequested,
		AllocateFromStock: r.AllocateFromStock,
		Origin:            inventory.JobPartOrigin(r.Origin),
		VHCItemID:         r.VHCItemID,
		Location:          r.Location,
		UnitCost:          r.UnitCost,
		UnitPrice:         r.UnitPrice,
		Notes:             r.Notes,
		PerformedBy:       performedBy,
	}
}

// UpdateJobPartRequest carries partial edits to a job part.
type UpdateJobPartRequest struct {
	Status            *string `json:"status" validate:"omitempty,oneof=pending awaiting_stock allocated picked fitted cancelled"`
	Authorised        *bool   `json:"authorised"`
	QuantityRequested *int    `json:"quantity_requested" validate:"omitempty,gt=0"`
	Location          *string `json:"location"`
	Notes             *string `json:"notes"`
}

// UnmarshalJSON folds the camelCase quantity alias into the canonical field.
func (r *UpdateJobPartRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateJobPartRequest
	aux := struct {
		*plain
		QuantityRequestedAlias *int `json:"quantityRequested"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.QuantityRequestedAlias != nil && r.QuantityRequested == nil {
		r.QuantityRequested = aux.QuantityRequestedAlias
	}
	return nil
}

func (r UpdateJobPartRequest) toInput(performedBy string) inventory.UpdateJobPartInput {
	in := inventory.UpdateJobPartInput{
		Authorised:        r.Authorised,
		QuantityRequested: r.QuantityRequested,
		Location:          r.Location,
		Notes:             r.Notes,
		PerformedBy:       performedBy,
	}
	if r.Status != nil {
		status := inventory.JobPartStatus(*r.Status)
		in.Status = &status
	}
	return in
}

// =============================================================================
// MOVEMENTS, AUDIT, SCENARIOS
// =============================================================================

// StockMovementDTO represents one row of the movement history.
type StockMovementDTO struct {
	ID             string          `json:"id"`
	PartID         string          `json:"part_id"`
	DeliveryItemID string          `json:"delivery_item_id,omitempty"`
	JobPartID      string          `json:"job_part_id,omitempty"`
	Type           string          `json:"type"`
	Quantity       int             `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	PerformedBy    string          `json:"performed_by"`
	Reference      string          `json:"reference,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

func toMovementDTO(mv inventory.StockMovement) StockMovementDTO {
	return StockMovementDTO{
		ID:             string(mv.ID),
		PartID:         string(mv.PartID),
		DeliveryItemID: string(mv.DeliveryItemID),
		JobPartID:      string(mv.JobPartID),
		Type:           string(mv.Type),
		Quantity:       mv.Quantity,
		UnitCost:       mv.UnitCost,
		UnitPrice:      mv.UnitPrice,
		PerformedBy:    mv.PerformedBy,
		Reference:      mv.Reference,
		Notes:          mv.Notes,
		CreatedAt:      mv.CreatedAt.Format(time.RFC3339),
	}
}

// DriftFindingDTO is one counter whose stored value disagrees with the
// recomputed expectation.
type DriftFindingDTO struct {
	PartID   string `json:"part_id"`
	Counter  string `json:"counter"`
	Stored   int    `json:"stored"`
	Expected int    `json:"expected"`
}

// AuditRunDTO represents one drift audit run.
type AuditRunDTO struct {
	ID           string            `json:"id"`
	StartedAt    string            `json:"started_at"`
	CompletedAt  string            `json:"completed_at"`
	PartsChecked int               `json:"parts_checked"`
	DriftFound   int               `json:"drift_found"`
	Findings     []DriftFindingDTO `json:"findings,omitempty"`
}

func toAuditRunDTO(run inventory.AuditRun) AuditRunDTO {
	findings := make([]DriftFindingDTO, len(run.Findings))
	for i, f := range run.Findings {
		findings[i] = DriftFindingDTO{
			PartID:   string(f.PartID),
			Counter:  f.Counter,
			Stored:   f.Stored,
			Expected: f.Expected,
		}
	}
	return AuditRunDTO{
		ID:           run.ID,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		CompletedAt:  run.CompletedAt.Format(time.RFC3339),
		PartsChecked: run.PartsChecked,
		DriftFound:   run.DriftFound,
		Findings:     findings,
	}
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
