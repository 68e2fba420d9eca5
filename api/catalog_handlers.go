package api

import (
	"net/http"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns all drivers by name.
// GET /api/drivers
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}
	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = toDriverDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDriver adds a driver.
// POST /api/drivers
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if !decode(w, r, &req) {
		return
	}
	registered, ok := parseDate(w, "registered_on", req.RegisteredOn)
	if !ok {
		return
	}

	d, err := h.Store.CreateDriver(r.Context(), circulation.Driver{
		Name:         req.Name,
		Contact:      req.Contact,
		RegisteredOn: registered,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDriverDTO(d))
}

// DeleteDriver removes a driver that has no trips.
// DELETE /api/drivers/{id}
func (h *Handler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteDriver(r.Context(), circulation.DriverID(id)); err != nil {
		writeLedgerError(w, "Failed to delete driver", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STORE HANDLERS
// =============================================================================

// ListStores returns the store catalog ordered by number.
// GET /api/stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.Store.ListStores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stores", err)
		return
	}
	dtos := make([]StoreDTO, len(stores))
	for i, s := range stores {
		dtos[i] = toStoreDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStore adds a store.
// POST /api/stores
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req StoreRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.Store.CreateStore(r.Context(), circulation.StoreEntry{
		Number:               req.Number,
		Name:                 req.Name,
		IsDistributionCenter: req.IsDistributionCenter,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create store", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreDTO(s))
}

// UpdateStore renames or renumbers a store, or toggles its CD flag.
// PUT /api/stores/{id}
func (h *Handler) UpdateStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StoreRequest
	if !decode(w, r, &req) {
		return
	}
	entry := circulation.StoreEntry{
		ID:                   circulation.StoreID(id),
		Number:               req.Number,
		Name:                 req.Name,
		IsDistributionCenter: req.IsDistributionCenter,
	}
	if err := h.Store.UpdateStore(r.Context(), entry); err != nil {
		writeLedgerError(w, "Failed to update store", err)
		return
	}
	writeJSON(w, http.StatusOK, toStoreDTO(entry))
}

// DeleteStore removes a catalog entry. Ledger rows keep their display string.
// DELETE /api/stores/{id}
func (h *Handler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteStore(r.Context(), circulation.StoreID(id)); err != nil {
		writeLedgerError(w, "Failed to delete store", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextStoreNumber suggests the number for a new store.
// GET /api/stores/next-number
func (h *Handler) NextStoreNumber(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.NextStoreNumber(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute next store number", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"number": n})
}

// GetCenter returns the detected distribution center.
// GET /api/stores/center
func (h *Handler) GetCenter(w http.ResponseWriter, r *http.Request) {
	center, err := h.Depot.Center(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to detect distribution center", err)
		return
	}
	writeJSON(w, http.StatusOK, CenterDTO{Center: center, Configured: center != ""})
}
