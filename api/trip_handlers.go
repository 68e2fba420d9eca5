package api

import (
	"net/http"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// TRIP HANDLERS
// =============================================================================

// ListTrips returns trips newest first with their aggregates.
// GET /api/trips?driver_id=&status=&from=&to=
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	driverID, ok := queryID(w, r, "driver_id")
	if !ok {
		return
	}
	filter := circulation.TripFilter{
		DateRange: rng,
		DriverID:  circulation.DriverID(driverID),
		Status:    circulation.TripStatus(r.URL.Query().Get("status")),
	}

	summaries, err := h.Trips.ListTrips(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}
	dtos := make([]TripDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toTripDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTrip creates a trip with its line items.
// POST /api/trips
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, "date", req.Date)
	if !ok {
		return
	}
	items := make([]circulation.NewLineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = circulation.NewLineItem{Store: it.Store, Sent: it.Sent}
	}

	id, err := h.Trips.CreateTrip(r.Context(), circulation.DriverID(req.DriverID), date, items)
	if err != nil {
		writeLedgerError(w, "Failed to create trip", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int64(id)})
}

// DeleteTrip removes a trip and its line items. The return log is kept.
// DELETE /api/trips/{id}
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Trips.DeleteTrip(r.Context(), circulation.TripID(id)); err != nil {
		writeLedgerError(w, "Failed to delete trip", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTripStatus marks a trip completed or in progress.
// PUT /api/trips/{id}/status
func (h *Handler) SetTripStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Trips.SetTripStatus(r.Context(), circulation.TripID(id), circulation.TripStatus(req.Status)); err != nil {
		writeLedgerError(w, "Failed to set trip status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// ListLineItems returns a trip's line items.
// GET /api/trips/{id}/items
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.Trips.ListLineItems(r.Context(), circulation.TripID(id))
	if err != nil {
		writeLedgerError(w, "Failed to list line items", err)
		return
	}
	dtos := make([]LineItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toLineItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddLineItem adds a store to an existing trip.
// POST /api/trips/{id}/items
func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req LineItemInput
	if !decode(w, r, &req) {
		return
	}
	itemID, err := h.Trips.AddLineItem(r.Context(), circulation.TripID(id), req.Store, req.Sent)
	if err != nil {
		writeLedgerError(w, "Failed to add line item", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int64(itemID)})
}

// RemoveLineItem deletes a line item without returns.
// DELETE /api/items/{id}
func (h *Handler) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Trips.RemoveLineItem(r.Context(), circulation.LineItemID(id)); err != nil {
		writeLedgerError(w, "Failed to remove line item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RETURN HANDLERS
// =============================================================================

// RegisterReturn records boxes coming back from one store.
// POST /api/items/{id}/returns
func (h *Handler) RegisterReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req QuantityRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := h.Trips.RegisterReturn(r.Context(), circulation.LineItemID(id), req.Quantity, actingUser(r))
	if err != nil {
		writeLedgerError(w, "Failed to register return", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(item))
}

// RegisterAllReturns clears everything pending on a trip.
// POST /api/trips/{id}/returns/all
func (h *Handler) RegisterAllReturns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Trips.RegisterAllReturnsForTrip(r.Context(), circulation.TripID(id), actingUser(r))
	if err != nil {
		writeLedgerError(w, "Failed to register returns", err)
		return
	}
	writeJSON(w, http.StatusOK, BulkReturnDTO{Lines: res.Lines, Boxes: res.Boxes, BatchID: res.BatchID})
}

// BulkUpdateReturned overwrites returned counts on several lines at once.
// PUT /api/trips/{id}/items/returned
func (h *Handler) BulkUpdateReturned(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req BulkUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	updates := make([]circulation.ReturnedUpdate, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = circulation.ReturnedUpdate{LineItemID: circulation.LineItemID(u.LineItemID), Returned: u.Returned}
	}

	changed, err := h.Trips.BulkUpdateReturnedQuantities(r.Context(), circulation.TripID(id), updates)
	if err != nil {
		writeLedgerError(w, "Failed to update returned quantities", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: changed})
}

// =============================================================================
// RETURN AUDIT LOG HANDLERS
// =============================================================================

// ListReturnEvents returns the audit log newest first.
// GET /api/returns?trip_id=&store=&from=&to=
func (h *Handler) ListReturnEvents(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	tripID, ok := queryID(w, r, "trip_id")
	if !ok {
		return
	}
	events, err := h.Trips.ListReturnEvents(r.Context(), circulation.ReturnFilter{
		DateRange: rng,
		TripID:    circulation.TripID(tripID),
		Store:     r.URL.Query().Get("store"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list return events", err)
		return
	}
	dtos := make([]ReturnEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toReturnEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EditReturnEvent changes an entry's quantity and applies the difference
// to its line item.
// PUT /api/returns/{id}
func (h *Handler) EditReturnEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req QuantityRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Trips.EditReturnEvent(r.Context(), circulation.ReturnEventID(id), req.Quantity)
	if err != nil {
		writeLedgerError(w, "Failed to edit return event", err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnEventDTO(circulation.ReturnEventView{ReturnEvent: ev}))
}

// DeleteReturnEvent removes an entry and reverses it on its line item.
// DELETE /api/returns/{id}
func (h *Handler) DeleteReturnEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Trips.DeleteReturnEvent(r.Context(), circulation.ReturnEventID(id)); err != nil {
		writeLedgerError(w, "Failed to delete return event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// Dashboard returns global trip figures and the CD stock.
// GET /api/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.Trips.DashboardStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute dashboard", err)
		return
	}
	totals, err := h.Depot.ComputeTotals(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		Drivers:     stats.Drivers,
		ActiveTrips: stats.ActiveTrips,
		Sent:        stats.Sent,
		Returned:    stats.Returned,
		Pending:     stats.Pending(),
		ReturnRate:  stats.ReturnRate(),
		Stock:       totals.Stock,
	})
}

// PendingByStore lists stores still holding trip boxes.
// GET /api/dashboard/stores
func (h *Handler) PendingByStore(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Trips.PendingByStore(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list store balances", err)
		return
	}
	dtos := make([]StoreBalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = StoreBalanceDTO{Store: b.Store, Sent: b.Sent, Returned: b.Returned, Pending: b.Pending()}
	}
	writeJSON(w, http.StatusOK, dtos)
}
