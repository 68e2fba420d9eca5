/*
handlers.go - HTTP API handlers for the crate circulation ledger

PURPOSE:
  Exposes the trip and distribution center ledgers via REST API. Handles
  HTTP request/response and JSON serialization, and delegates every rule
  to the ledgers.

ENDPOINTS:
  Catalog (catalog_handlers.go):
    GET/POST /api/drivers, DELETE /api/drivers/{id}
    GET/POST /api/stores, PUT/DELETE /api/stores/{id}
    GET      /api/stores/next-number, /api/stores/center

  Trips (trip_handlers.go):
    GET/POST /api/trips, DELETE /api/trips/{id}, PUT /api/trips/{id}/status
    GET/POST /api/trips/{id}/items, PUT /api/trips/{id}/items/returned
    POST     /api/trips/{id}/returns/all
    DELETE   /api/items/{id}, POST /api/items/{id}/returns
    GET      /api/returns, PUT/DELETE /api/returns/{id}
    GET      /api/dashboard, /api/dashboard/stores

  Distribution center (depot_handlers.go):
    GET      /api/depot/totals, /api/depot/centers
    GET/POST /api/depot/dispatches, PUT/DELETE /api/depot/dispatches/{id}
    POST     /api/depot/dispatches/{id}/returns
    POST     /api/depot/dispatches/{id}/revert     operator override
    DELETE   /api/depot/dispatches/{id}/force      operator override
    GET      /api/depot/destinations, POST /api/depot/destinations/returns
    GET/POST /api/depot/shipments, PUT/DELETE /api/depot/shipments/{id}

  Scenarios (scenarios.go):
    GET /api/scenarios, GET /api/scenarios/current, POST /api/scenarios/load

ACTING USER:
  Return registrations record the X-User header. Authentication happens in
  front of this service; a missing header is recorded as "system".

ERROR HANDLING:
  Ledger errors are mapped by writeLedgerError:
  - 400: Validation errors, invalid input
  - 404: Trip, line item, entry, dispatch or shipment not found
  - 409: Insufficient CD stock, audit reversal inconsistency
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/crate-ledger/circulation"
	"github.com/warp/crate-ledger/depot"
	"github.com/warp/crate-ledger/store/sqlite"
	"github.com/warp/crate-ledger/trips"
)

// UserHeader carries the already-authenticated acting user.
const UserHeader = "X-User"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Trips *trips.Ledger
	Depot *depot.Ledger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires both ledgers on top of store.
func NewHandler(store *sqlite.Store, opts circulation.Options) *Handler {
	return &Handler{
		Store: store,
		Trips: trips.NewLedger(store, opts),
		Depot: depot.NewLedger(store, opts),
	}
}

// Health reports whether the database answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeLedgerError maps a ledger error to its HTTP status. message is used
// for unexpected failures only; client errors carry their own text.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	var (
		vErr *circulation.ValidationError
		nErr *circulation.NotFoundError
		sErr *circulation.InsufficientStockError
		cErr *circulation.ConsistencyError
	)
	switch {
	case errors.As(err, &vErr):
		details := map[string]any{"field": vErr.Field, "message": vErr.Message}
		if vErr.Requested != 0 || vErr.Available != 0 {
			details["requested"] = vErr.Requested
			details["available"] = vErr.Available
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: vErr.Error(), Code: "validation", Details: details})
	case errors.As(err, &nErr):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: nErr.Error(), Code: "not_found",
			Details: map[string]any{"kind": nErr.Kind, "id": nErr.ID}})
	case errors.As(err, &sErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: sErr.Error(), Code: "insufficient_stock",
			Details: map[string]any{"requested": sErr.Requested, "available": sErr.Available}})
	case errors.As(err, &cErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: cErr.Error(), Code: "consistency",
			Details: map[string]any{"entry_id": cErr.EntryID, "line_item_id": cErr.LineItemID,
				"returned": cErr.Returned, "reversal": cErr.Reversal}})
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decode reads a JSON body, writing 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// parseDate parses an optional YYYY-MM-DD field, writing 400 on failure.
func parseDate(w http.ResponseWriter, field, value string) (time.Time, bool) {
	t, err := circulation.ParseDate(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field+", expected YYYY-MM-DD", err)
		return time.Time{}, false
	}
	return t, true
}

// dateRange reads ?from= and ?to=.
func dateRange(w http.ResponseWriter, r *http.Request) (circulation.DateRange, bool) {
	q := r.URL.Query()
	from, ok := parseDate(w, "from", q.Get("from"))
	if !ok {
		return circulation.DateRange{}, false
	}
	to, ok := parseDate(w, "to", q.Get("to"))
	if !ok {
		return circulation.DateRange{}, false
	}
	return circulation.DateRange{From: from, To: to}, true
}

// queryID reads an optional numeric query parameter; absent means 0.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}

func actingUser(r *http.Request) string {
	return r.Header.Get(UserHeader)
}
