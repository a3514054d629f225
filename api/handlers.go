/*
handlers.go - HTTP API handlers for the parts inventory engine

PURPOSE:
  Exposes the reservation and delivery reconciliation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  inventory managers.

ENDPOINTS:
  Parts:
    GET    /api/parts                   List catalog parts
    POST   /api/parts                   Create part
    GET    /api/parts/{id}              Get part (with live counters)
    PUT    /api/parts/{id}              Update descriptive fields
    GET    /api/parts/{id}/movements    Stock movement history

  Deliveries:
    POST   /api/deliveries              Record delivery (header + items)
    GET    /api/deliveries              List deliveries
    GET    /api/deliveries/{id}         Get delivery with items
    DELETE /api/deliveries/{id}         Delete delivery (reverses stock)
    POST   /api/deliveries/{id}/items   Add item to delivery
    PUT    /api/delivery-items/{id}     Edit delivery item quantities
    DELETE /api/delivery-items/{id}     Remove delivery item

  Job parts:
    POST   /api/jobs/{jobID}/parts      Attach part to job
    GET    /api/jobs/{jobID}/parts      List job parts
    GET    /api/job-parts/{id}          Get job part
    PUT    /api/job-parts/{id}          Edit/progress job part
    DELETE /api/job-parts/{id}          Remove job part (releases stock)

  Audit:
    GET    /api/audit/runs              Drift audit history

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario

ACTOR IDENTITY:
  The X-Performed-By request header names the actor recorded on stock
  movements and job part actor fields. Absent header means "system". The
  value is opaque to the engine.

ERROR HANDLING:
  Domain errors are classified with errors.Is against the inventory
  sentinels:
  - 400: validation errors, malformed input
  - 404: part/row not found
  - 409: insufficient stock, ledger rejection
  - 500: persistence errors
  - 500 + code "reconciliation_failed": failed compensation; the response
    names the adjustments left unreversed so an operator can intervene.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - inventory/: domain logic
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/parts-engine/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog    *inventory.PartCatalog
	Deliveries *inventory.DeliveryManager
	JobParts   *inventory.JobPartManager
	AuditStore inventory.AuditStore

	log      zerolog.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given managers.
func NewHandler(catalog *inventory.PartCatalog, deliveries *inventory.DeliveryManager, jobParts *inventory.JobPartManager, auditStore inventory.AuditStore, log zerolog.Logger) *Handler {
	return &Handler{
		Catalog:    catalog,
		Deliveries: deliveries,
		JobParts:   jobParts,
		AuditStore: auditStore,
		log:        log.With().Str("component", "api").Logger(),
		validate:   validator.New(),
	}
}

// performedBy extracts the acting user from the request header.
func performedBy(r *http.Request) string {
	if actor := r.Header.Get("X-Performed-By"); actor != "" {
		return actor
	}
	return "system"
}

// decodeAndValidate decodes the JSON body into req and runs struct
// validation. Returns false after writing the error response.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// PART HANDLERS
// =============================================================================

// ListParts returns all catalog parts.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.Catalog.ListParts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list parts", err)
		return
	}
	dtos := make([]PartDTO, len(parts))
	for i, p := range parts {
		dtos[i] = toPartDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePart creates a new catalog part.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	var req CreatePartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	part, err := h.Catalog.CreatePart(r.Context(), req.toInput())
	if err != nil {
		h.writeDomainError(w, "Failed to create part", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartDTO(part))
}

// GetPart returns a single part with its live counters.
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request) {
	id := inventory.PartID(chi.URLParam(r, "id"))
	part, err := h.Catalog.GetPart(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get part", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartDTO(part))
}

// UpdatePart updates descriptive fields of a part. Counters are not
// editable here.
func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request) {
	id := inventory.PartID(chi.URLParam(r, "id"))
	var req UpdatePartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	part, err := h.Catalog.UpdatePart(r.Context(), id, req.toInput())
	if err != nil {
		h.writeDomainError(w, "Failed to update part", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartDTO(part))
}

// GetPartMovements returns the stock movement history of a part.
func (h *Handler) GetPartMovements(w http.ResponseWriter, r *http.Request) {
	id := inventory.PartID(chi.URLParam(r, "id"))
	movements, err := h.Catalog.Movements(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get movements", err)
		return
	}
	dtos := make([]StockMovementDTO, len(movements))
	for i, mv := range movements {
		dtos[i] = toMovementDTO(mv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// CreateDelivery records a delivery header with items and applies the
// stock accounting in one operation.
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := req.toInput(performedBy(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	delivery, err := h.Deliveries.CreateDelivery(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create delivery", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeliveryDTO(delivery))
}

// ListDeliveries returns all deliveries with their items.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.Deliveries.ListDeliveries(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list deliveries", err)
		return
	}
	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDelivery returns one delivery with its items.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id := inventory.DeliveryID(chi.URLParam(r, "id"))
	delivery, err := h.Deliveries.GetDelivery(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(delivery))
}

// DeleteDelivery removes a delivery and reverses the stock effect of all
// its items.
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id := inventory.DeliveryID(chi.URLParam(r, "id"))
	if err := h.Deliveries.DeleteDelivery(r.Context(), id, performedBy(r)); err != nil {
		h.writeDomainError(w, "Failed to delete delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// AddDeliveryItem appends one item to an existing delivery.
func (h *Handler) AddDeliveryItem(w http.ResponseWriter, r *http.Request) {
	id := inventory.DeliveryID(chi.URLParam(r, "id"))
	var req DeliveryItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.Deliveries.AddDeliveryItem(r.Context(), id, req.toInput(), performedBy(r))
	if err != nil {
		h.writeDomainError(w, "Failed to add delivery item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeliveryItemDTO(item))
}

// UpdateDeliveryItem edits quantities on a delivery item. Stock follows
// the delta between the stored and the new quantities.
func (h *Handler) UpdateDeliveryItem(w http.ResponseWriter, r *http.Request) {
	id := inventory.DeliveryItemID(chi.URLParam(r, "id"))
	var req UpdateDeliveryItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.Deliveries.UpdateDeliveryItem(r.Context(), id, req.toInput(performedBy(r)))
	if err != nil {
		h.writeDomainError(w, "Failed to update delivery item", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryItemDTO(item))
}

// DeleteDeliveryItem removes one item and reverses its net stock effect.
func (h *Handler) DeleteDeliveryItem(w http.ResponseWriter, r *http.Request) {
	id := inventory.DeliveryItemID(chi.URLParam(r, "id"))
	if err := h.Deliveries.DeleteDeliveryItem(r.Context(), id, performedBy(r)); err != nil {
		h.writeDomainError(w, "Failed to delete delivery item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// JOB PART HANDLERS
// =============================================================================

// CreateJobPart attaches a part to a job, optionally allocating from stock.
func (h *Handler) CreateJobPart(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var req CreateJobPartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	jp, err := h.JobParts.CreateJobPart(r.Context(), req.toInput(jobID, performedBy(r)))
	if err != nil {
		h.writeDomainError(w, "Failed to create job part", err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobPartDTO(jp))
}

// ListJobParts returns all parts attached to a job.
func (h *Handler) ListJobParts(w http.ResponseWriter, r *http.Request) {
	jobID := inventory.JobID(chi.URLParam(r, "jobID"))
	jobParts, err := h.JobParts.ListJobParts(r.Context(), jobID)
	if err != nil {
		h.writeDomainError(w, "Failed to list job parts", err)
		return
	}
	dtos := make([]JobPartDTO, len(jobParts))
	for i, jp := range jobParts {
		dtos[i] = toJobPartDTO(jp)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetJobPart returns a single job part.
func (h *Handler) GetJobPart(w http.ResponseWriter, r *http.Request) {
	id := inventory.JobPartID(chi.URLParam(r, "id"))
	jp, err := h.JobParts.GetJobPart(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get job part", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobPartDTO(jp))
}

// UpdateJobPart edits or progresses a job part through its lifecycle.
func (h *Handler) UpdateJobPart(w http.ResponseWriter, r *http.Request) {
	id := inventory.JobPartID(chi.URLParam(r, "id"))
	var req UpdateJobPartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	jp, err := h.JobParts.UpdateJobPart(r.Context(), id, req.toInput(performedBy(r)))
	if err != nil {
		h.writeDomainError(w, "Failed to update job part", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobPartDTO(jp))
}

// DeleteJobPart removes a job part and returns any held stock.
func (h *Handler) DeleteJobPart(w http.ResponseWriter, r *http.Request) {
	id := inventory.JobPartID(chi.URLParam(r, "id"))
	if err := h.JobParts.DeleteJobPart(r.Context(), id, performedBy(r)); err != nil {
		h.writeDomainError(w, "Failed to delete job part", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAuditRuns returns recent drift audit runs, newest first.
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.AuditStore.ListAuditRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list audit runs", err)
		return
	}
	dtos := make([]AuditRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAuditRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps inventory errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var recErr *inventory.ReconciliationError
	if errors.As(err, &recErr) {
		// Counters may be inconsistent: surface everything the operator
		// needs to reconcile by hand.
		h.log.Error().Err(err).Strs("unreversed", recErr.Unreversed).Msg("reconciliation failure")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   message,
			Code:    "reconciliation_failed",
			Details: err.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, inventory.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, inventory.ErrDuplicatePartNumber):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, inventory.ErrLedgerRejected):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, inventory.ErrInvalidStatus):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
