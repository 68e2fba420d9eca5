/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario builds the store and driver catalog and
	then drives the ledgers, so every row passes the same validation as
	live traffic.

AVAILABLE SCENARIOS:

	empty-catalog:   Catalog only (CD + stores + drivers), no movements
	daily-routes:    Two drivers, three trips, partial and full returns
	cd-operations:   Trips into the CD, dispatches, returns, origin shipment
	audit-trail:     Individual and bulk returns plus a corrected entry

HOW SCENARIOS WORK:
 1. Reset database (clear all data, restart id sequences)
 2. Create catalog (stores, drivers)
 3. Create trips and register returns via the trip ledger
 4. Optionally dispatch and ship via the depot ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cd-operations"}

USAGE VIA CLI:

	boxctl scenario load cd-operations

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - cmd/boxctl: CLI entry point for ApplyScenario
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/crate-ledger/circulation"
)

// ErrUnknownScenario is returned by ApplyScenario for an unlisted id.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-catalog",
		Name:        "Empty Catalog",
		Description: "Distribution center, four stores and two drivers with no movements",
	},
	{
		ID:          "daily-routes",
		Name:        "Daily Routes",
		Description: "Three trips over two days with partial and complete returns",
	},
	{
		ID:          "cd-operations",
		Name:        "CD Operations",
		Description: "Boxes delivered to the CD, dispatched to stores, returned and forwarded to origin",
	},
	{
		ID:          "audit-trail",
		Name:        "Audit Trail",
		Description: "Individual and bulk returns with a corrected log entry",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.ApplyScenario(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ApplyScenario resets the database and loads the scenario with id.
func (h *Handler) ApplyScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "empty-catalog":
		load = h.loadEmptyCatalogScenario
	case "daily-routes":
		load = h.loadDailyRoutesScenario
	case "cd-operations":
		load = h.loadCDOperationsScenario
	case "audit-trail":
		load = h.loadAuditTrailScenario
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoCatalog holds the ids the loaders need.
type demoCatalog struct {
	center   string
	stores   []string
	drivers  []circulation.DriverID
	baseDate time.Time
}

func (h *Handler) seedCatalog(ctx context.Context) (demoCatalog, error) {
	cat := demoCatalog{baseDate: circulation.Today().AddDate(0, 0, -7)}

	entries := []circulation.StoreEntry{
		{Number: 1, Name: "CD Central", IsDistributionCenter: true},
		{Number: 5, Name: "Norte"},
		{Number: 7, Name: "Sur"},
		{Number: 12, Name: "Plaza Mayor"},
	}
	for _, e := range entries {
		created, err := h.Store.CreateStore(ctx, e)
		if err != nil {
			return cat, fmt.Errorf("failed to seed store %s: %w", e.Name, err)
		}
		if created.IsDistributionCenter {
			cat.center = created.Display()
		} else {
			cat.stores = append(cat.stores, created.Display())
		}
	}

	for _, d := range []circulation.Driver{
		{Name: "Pedro Ramírez", Contact: "555-0101", RegisteredOn: cat.baseDate.AddDate(0, -6, 0)},
		{Name: "Lucía Fernández", Contact: "555-0102", RegisteredOn: cat.baseDate.AddDate(0, -2, 0)},
	} {
		created, err := h.Store.CreateDriver(ctx, d)
		if err != nil {
			return cat, fmt.Errorf("failed to seed driver %s: %w", d.Name, err)
		}
		cat.drivers = append(cat.drivers, created.ID)
	}
	return cat, nil
}

func (h *Handler) loadEmptyCatalogScenario(ctx context.Context) error {
	_, err := h.seedCatalog(ctx)
	return err
}

func (h *Handler) loadDailyRoutesScenario(ctx context.Context) error {
	cat, err := h.seedCatalog(ctx)
	if err != nil {
		return err
	}
	norte, sur, plaza := cat.stores[0], cat.stores[1], cat.stores[2]

	// Day 1: Pedro delivers to all three stores, Norte returns 15 of 20
	trip1, err := h.Trips.CreateTrip(ctx, cat.drivers[0], cat.baseDate, []circulation.NewLineItem{
		{Store: norte, Sent: 20},
		{Store: sur, Sent: 12},
		{Store: plaza, Sent: 8},
	})
	if err != nil {
		return err
	}
	items, err := h.Trips.ListLineItems(ctx, trip1)
	if err != nil {
		return err
	}
	if _, err := h.Trips.RegisterReturn(ctx, items[0].ID, 15, "maria"); err != nil {
		return err
	}
	if _, err := h.Trips.RegisterReturn(ctx, items[1].ID, 12, "maria"); err != nil {
		return err
	}
	if err := h.Trips.SetTripStatus(ctx, trip1, circulation.TripCompleted); err != nil {
		return err
	}

	// Day 2: Lucía delivers twice, everything from the first run comes back
	trip2, err := h.Trips.CreateTrip(ctx, cat.drivers[1], cat.baseDate.AddDate(0, 0, 1), []circulation.NewLineItem{
		{Store: sur, Sent: 10},
		{Store: plaza, Sent: 6},
	})
	if err != nil {
		return err
	}
	if _, err := h.Trips.RegisterAllReturnsForTrip(ctx, trip2, "jose"); err != nil {
		return err
	}

	_, err = h.Trips.CreateTrip(ctx, cat.drivers[1], cat.baseDate.AddDate(0, 0, 1), []circulation.NewLineItem{
		{Store: norte, Sent: 5},
	})
	return err
}

func (h *Handler) loadCDOperationsScenario(ctx context.Context) error {
	cat, err := h.seedCatalog(ctx)
	if err != nil {
		return err
	}
	norte, sur := cat.stores[0], cat.stores[1]

	// 100 boxes reach the CD by trip
	if _, err := h.Trips.CreateTrip(ctx, cat.drivers[0], cat.baseDate, []circulation.NewLineItem{
		{Store: cat.center, Sent: 70},
		{Store: norte, Sent: 10},
	}); err != nil {
		return err
	}
	if _, err := h.Trips.CreateTrip(ctx, cat.drivers[1], cat.baseDate.AddDate(0, 0, 1), []circulation.NewLineItem{
		{Store: cat.center, Sent: 30},
	}); err != nil {
		return err
	}

	// The CD dispatches 40 to Norte and 20 to Sur
	toNorte, err := h.Depot.CreateDispatch(ctx, norte, cat.baseDate.AddDate(0, 0, 2), 40)
	if err != nil {
		return err
	}
	if _, err := h.Depot.CreateDispatch(ctx, sur, cat.baseDate.AddDate(0, 0, 2), 20); err != nil {
		return err
	}
	if _, err := h.Depot.CreateDispatch(ctx, norte, cat.baseDate.AddDate(0, 0, 3), 10); err != nil {
		return err
	}

	// Norte sends 15 back on the first dispatch, Sur 5 by destination
	if _, err := h.Depot.RegisterDispatchReturn(ctx, toNorte, 15); err != nil {
		return err
	}
	if _, err := h.Depot.RegisterReturnByDestination(ctx, sur, 5); err != nil {
		return err
	}

	// 25 go back to the manufacturer
	_, err = h.Depot.CreateOriginShipment(ctx, cat.baseDate.AddDate(0, 0, 4), 25)
	return err
}

func (h *Handler) loadAuditTrailScenario(ctx context.Context) error {
	cat, err := h.seedCatalog(ctx)
	if err != nil {
		return err
	}
	norte, sur, plaza := cat.stores[0], cat.stores[1], cat.stores[2]

	trip, err := h.Trips.CreateTrip(ctx, cat.drivers[0], cat.baseDate, []circulation.NewLineItem{
		{Store: norte, Sent: 20},
		{Store: sur, Sent: 15},
		{Store: plaza, Sent: 10},
	})
	if err != nil {
		return err
	}
	items, err := h.Trips.ListLineItems(ctx, trip)
	if err != nil {
		return err
	}

	// An operator mistypes 8 for 5, then fixes the log entry
	if _, err := h.Trips.RegisterReturn(ctx, items[0].ID, 8, "maria"); err != nil {
		return err
	}
	events, err := h.Trips.ListReturnEvents(ctx, circulation.ReturnFilter{TripID: trip})
	if err != nil {
		return err
	}
	if _, err := h.Trips.EditReturnEvent(ctx, events[0].ID, 5); err != nil {
		return err
	}

	if _, err := h.Trips.RegisterReturn(ctx, items[1].ID, 4, "jose"); err != nil {
		return err
	}
	// The rest of the trip comes back in one go
	_, err = h.Trips.RegisterAllReturnsForTrip(ctx, trip, "maria")
	return err
}
