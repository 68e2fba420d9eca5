package api

import (
	"net/http"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// TOTALS
// =============================================================================

// GetTotals returns the reconciled CD balance.
// GET /api/depot/totals
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Depot.ComputeTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// SummaryByCenter aggregates dispatches per CD.
// GET /api/depot/centers
func (h *Handler) SummaryByCenter(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Depot.SummaryByCenter(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize centers", err)
		return
	}
	dtos := make([]CenterSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = CenterSummaryDTO{Center: s.Center, Sent: s.Sent, Returned: s.Returned, Pending: s.Pending()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DISPATCH HANDLERS
// =============================================================================

// ListDispatches returns dispatches newest first.
// GET /api/depot/dispatches?center=&from=&to=
func (h *Handler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	dispatches, err := h.Depot.ListDispatches(r.Context(), circulation.DispatchFilter{
		DateRange: rng,
		Center:    r.URL.Query().Get("center"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dispatches", err)
		return
	}
	dtos := make([]DispatchDTO, len(dispatches))
	for i, d := range dispatches {
		dtos[i] = toDispatchDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDispatch sends boxes from the CD to a store.
// POST /api/depot/dispatches
func (h *Handler) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	var req CreateDispatchRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, "date", req.Date)
	if !ok {
		return
	}
	id, err := h.Depot.CreateDispatch(r.Context(), req.Destination, date, req.Boxes)
	if err != nil {
		writeLedgerError(w, "Failed to create dispatch", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int64(id)})
}

// UpdateDispatch edits date, sent and returned of a dispatch.
// PUT /api/depot/dispatches/{id}
func (h *Handler) UpdateDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDispatchRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, "date", req.Date)
	if !ok {
		return
	}
	d, err := h.Depot.UpdateDispatchDetailed(r.Context(), circulation.DispatchID(id), date, req.Sent, req.Returned)
	if err != nil {
		writeLedgerError(w, "Failed to update dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, toDispatchDTO(d))
}

// DeleteDispatch removes a dispatch that has no returns.
// DELETE /api/depot/dispatches/{id}
func (h *Handler) DeleteDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Depot.DeleteDispatch(r.Context(), circulation.DispatchID(id)); err != nil {
		writeLedgerError(w, "Failed to delete dispatch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterDispatchReturn records boxes coming back from one dispatch.
// POST /api/depot/dispatches/{id}/returns
func (h *Handler) RegisterDispatchReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req QuantityRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Depot.RegisterDispatchReturn(r.Context(), circulation.DispatchID(id), req.Quantity)
	if err != nil {
		writeLedgerError(w, "Failed to register dispatch return", err)
		return
	}
	writeJSON(w, http.StatusOK, toDispatchDTO(d))
}

// ForceDeleteDispatch removes a dispatch regardless of its returns.
// DELETE /api/depot/dispatches/{id}/force
func (h *Handler) ForceDeleteDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Depot.ForceDeleteDispatch(r.Context(), circulation.DispatchID(id)); err != nil {
		writeLedgerError(w, "Failed to force delete dispatch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevertDispatch zeroes a dispatch's returned count.
// POST /api/depot/dispatches/{id}/revert
func (h *Handler) RevertDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.Depot.RevertDispatchToPending(r.Context(), circulation.DispatchID(id))
	if err != nil {
		writeLedgerError(w, "Failed to revert dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// DESTINATION HANDLERS
// =============================================================================

// PendingByDestination lists destinations still holding dispatched boxes.
// GET /api/depot/destinations?from=&to=
func (h *Handler) PendingByDestination(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	balances, err := h.Depot.PendingByDestination(r.Context(), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list destinations", err)
		return
	}
	dtos := make([]DestinationDTO, len(balances))
	for i, b := range balances {
		dtos[i] = DestinationDTO{Destination: b.Destination, Sent: b.Sent, Returned: b.Returned, Pending: b.Pending()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterDestinationReturn spreads a return over a destination's open
// dispatches, oldest first.
// POST /api/depot/destinations/returns
func (h *Handler) RegisterDestinationReturn(w http.ResponseWriter, r *http.Request) {
	var req DestinationReturnRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		applied int
		err     error
	)
	if req.All {
		applied, err = h.Depot.RegisterAllReturnsByDestination(r.Context(), req.Destination)
	} else {
		applied, err = h.Depot.RegisterReturnByDestination(r.Context(), req.Destination, req.Quantity)
	}
	if err != nil {
		writeLedgerError(w, "Failed to register destination return", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: applied})
}

// =============================================================================
// ORIGIN SHIPMENT HANDLERS
// =============================================================================

// ListShipments returns origin shipments newest first.
// GET /api/depot/shipments?from=&to=
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	shipments, err := h.Depot.ListOriginShipments(r.Context(), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shipments", err)
		return
	}
	dtos := make([]ShipmentDTO, len(shipments))
	for i, s := range shipments {
		dtos[i] = toShipmentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateShipment forwards boxes from the CD to the origin.
// POST /api/depot/shipments
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, "date", req.Date)
	if !ok {
		return
	}
	id, err := h.Depot.CreateOriginShipment(r.Context(), date, req.Boxes)
	if err != nil {
		writeLedgerError(w, "Failed to create shipment", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int64(id)})
}

// UpdateShipment edits an origin shipment.
// PUT /api/depot/shipments/{id}
func (h *Handler) UpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ShipmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, "date", req.Date)
	if !ok {
		return
	}
	s, err := h.Depot.UpdateOriginShipment(r.Context(), circulation.ShipmentID(id), date, req.Boxes)
	if err != nil {
		writeLedgerError(w, "Failed to update shipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(s))
}

// DeleteShipment removes an origin shipment, restoring CD stock.
// DELETE /api/depot/shipments/{id}
func (h *Handler) DeleteShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Depot.DeleteOriginShipment(r.Context(), circulation.ShipmentID(id)); err != nil {
		writeLedgerError(w, "Failed to delete shipment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
