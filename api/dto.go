/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types from
  circulation/ never go over the wire directly: ids become plain integers,
  dates become "YYYY-MM-DD" strings and derived values (pending, return
  rate) are materialized.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers only parse. Business validation happens in the ledgers, which
  return typed errors that writeLedgerError maps to a status code.

SEE ALSO:
  - handlers.go: Error mapping and helpers
  - circulation/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// CATALOG
// =============================================================================

type DriverDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Contact      string `json:"contact,omitempty"`
	RegisteredOn string `json:"registered_on"`
}

type CreateDriverRequest struct {
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	RegisteredOn string `json:"registered_on"`
}

type StoreDTO struct {
	ID                   int64  `json:"id"`
	Number               int    `json:"number"`
	Name                 string `json:"name"`
	Display              string `json:"display"`
	IsDistributionCenter bool   `json:"is_distribution_center"`
}

// StoreRequest creates or updates a catalog store. Number 0 on create
// assigns the next free number.
type StoreRequest struct {
	Number               int    `json:"number"`
	Name                 string `json:"name"`
	IsDistributionCenter bool   `json:"is_distribution_center"`
}

// CenterDTO reports the detected distribution center.
type CenterDTO struct {
	Center     string `json:"center"`
	Configured bool   `json:"configured"`
}

// =============================================================================
// TRIPS
// =============================================================================

type TripDTO struct {
	ID         int64           `json:"id"`
	DriverID   int64           `json:"driver_id"`
	DriverName string          `json:"driver_name,omitempty"`
	Date       string          `json:"date"`
	Status     string          `json:"status"`
	Stores     int             `json:"stores"`
	Sent       int             `json:"sent"`
	Returned   int             `json:"returned"`
	Pending    int             `json:"pending"`
	ReturnRate decimal.Decimal `json:"return_rate"`
}

type LineItemDTO struct {
	ID       int64  `json:"id"`
	TripID   int64  `json:"trip_id"`
	Store    string `json:"store"`
	Sent     int    `json:"sent"`
	Returned int    `json:"returned"`
	Pending  int    `json:"pending"`
}

type LineItemInput struct {
	Store string `json:"store"`
	Sent  int    `json:"sent"`
}

type CreateTripRequest struct {
	DriverID int64           `json:"driver_id"`
	Date     string          `json:"date"`
	Items    []LineItemInput `json:"items"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type ReturnedUpdateInput struct {
	LineItemID int64 `json:"line_item_id"`
	Returned   int   `json:"returned"`
}

type BulkUpdateRequest struct {
	Updates []ReturnedUpdateInput `json:"updates"`
}

type BulkReturnDTO struct {
	Lines   int    `json:"lines"`
	Boxes   int    `json:"boxes"`
	BatchID string `json:"batch_id,omitempty"`
}

type ReturnEventDTO struct {
	ID           int64  `json:"id"`
	TripID       int64  `json:"trip_id"`
	LineItemID   int64  `json:"line_item_id"`
	Store        string `json:"store"`
	Quantity     int    `json:"quantity"`
	Kind         string `json:"kind"`
	User         string `json:"user"`
	BatchID      string `json:"batch_id"`
	CreatedAt    string `json:"created_at"`
	LineExists   bool   `json:"line_exists"`
	LineSent     *int   `json:"line_sent,omitempty"`
	LineReturned *int   `json:"line_returned,omitempty"`
	LinePending  *int   `json:"line_pending,omitempty"`
}

// =============================================================================
// DISTRIBUTION CENTER
// =============================================================================

type TotalsDTO struct {
	Center            string `json:"center"`
	Configured        bool   `json:"configured"`
	ReceivedFromTrips int    `json:"received_from_trips"`
	Dispatched        int    `json:"dispatched"`
	DispatchReturns   int    `json:"dispatch_returns"`
	ForwardedToOrigin int    `json:"forwarded_to_origin"`
	Inflow            int    `json:"inflow"`
	Stock             int    `json:"stock"`
}

type DispatchDTO struct {
	ID          int64  `json:"id"`
	Center      string `json:"center"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Sent        int    `json:"sent"`
	Returned    int    `json:"returned"`
	Pending     int    `json:"pending"`
}

type CreateDispatchRequest struct {
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Boxes       int    `json:"boxes"`
}

// UpdateDispatchRequest edits a dispatch. An empty date keeps the current one.
type UpdateDispatchRequest struct {
	Date     string `json:"date"`
	Sent     int    `json:"sent"`
	Returned int    `json:"returned"`
}

type DestinationDTO struct {
	Destination string `json:"destination"`
	Sent        int    `json:"sent"`
	Returned    int    `json:"returned"`
	Pending     int    `json:"pending"`
}

// DestinationReturnRequest returns boxes by destination. All=true clears
// everything pending and ignores Quantity.
type DestinationReturnRequest struct {
	Destination string `json:"destination"`
	Quantity    int    `json:"quantity"`
	All         bool   `json:"all"`
}

type CenterSummaryDTO struct {
	Center   string `json:"center"`
	Sent     int    `json:"sent"`
	Returned int    `json:"returned"`
	Pending  int    `json:"pending"`
}

type ShipmentDTO struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
	Sent int    `json:"sent"`
}

type ShipmentRequest struct {
	Date  string `json:"date"`
	Boxes int    `json:"boxes"`
}

// =============================================================================
// DASHBOARD
// =============================================================================

type DashboardDTO struct {
	Drivers     int             `json:"drivers"`
	ActiveTrips int             `json:"active_trips"`
	Sent        int             `json:"sent"`
	Returned    int             `json:"returned"`
	Pending     int             `json:"pending"`
	ReturnRate  decimal.Decimal `json:"return_rate"`
	Stock       int             `json:"cd_stock"`
}

type StoreBalanceDTO struct {
	Store    string `json:"store"`
	Sent     int    `json:"sent"`
	Returned int    `json:"returned"`
	Pending  int    `json:"pending"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// GENERIC RESPONSES
// =============================================================================

// IDResponse is returned by create operations.
type IDResponse struct {
	ID int64 `json:"id"`
}

// CountResponse is returned by operations that report how much they changed.
type CountResponse struct {
	Count int `json:"count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toDriverDTO(d circulation.Driver) DriverDTO {
	return DriverDTO{
		ID:           int64(d.ID),
		Name:         d.Name,
		Contact:      d.Contact,
		RegisteredOn: circulation.FormatDate(d.RegisteredOn),
	}
}

func toStoreDTO(s circulation.StoreEntry) StoreDTO {
	return StoreDTO{
		ID:                   int64(s.ID),
		Number:               s.Number,
		Name:                 s.Name,
		Display:              s.Display(),
		IsDistributionCenter: s.IsDistributionCenter,
	}
}

func toTripDTO(t circulation.TripSummary) TripDTO {
	return TripDTO{
		ID:         int64(t.ID),
		DriverID:   int64(t.DriverID),
		DriverName: t.DriverName,
		Date:       circulation.FormatDate(t.Date),
		Status:     string(t.Status),
		Stores:     t.Stores,
		Sent:       t.Sent,
		Returned:   t.Returned,
		Pending:    t.Pending(),
		ReturnRate: t.ReturnRate(),
	}
}

func toLineItemDTO(l circulation.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:       int64(l.ID),
		TripID:   int64(l.TripID),
		Store:    l.Store,
		Sent:     l.Sent,
		Returned: l.Returned,
		Pending:  l.Pending(),
	}
}

func toReturnEventDTO(v circulation.ReturnEventView) ReturnEventDTO {
	dto := ReturnEventDTO{
		ID:         int64(v.ID),
		TripID:     int64(v.TripID),
		LineItemID: int64(v.LineItemID),
		Store:      v.Store,
		Quantity:   v.Quantity,
		Kind:       string(v.Kind),
		User:       v.User,
		BatchID:    v.BatchID,
		CreatedAt:  v.CreatedAt.UTC().Format(time.RFC3339),
		LineExists: v.LineExists,
	}
	if v.LineExists {
		sent, returned, pending := v.LineSent, v.LineReturned, v.LinePending()
		dto.LineSent, dto.LineReturned, dto.LinePending = &sent, &returned, &pending
	}
	return dto
}

func toTotalsDTO(t circulation.Totals) TotalsDTO {
	return TotalsDTO{
		Center:            t.Center,
		Configured:        t.Center != "",
		ReceivedFromTrips: t.ReceivedFromTrips,
		Dispatched:        t.Dispatched,
		DispatchReturns:   t.DispatchReturns,
		ForwardedToOrigin: t.ForwardedToOrigin,
		Inflow:            t.Inflow,
		Stock:             t.Stock,
	}
}

func toDispatchDTO(d circulation.Dispatch) DispatchDTO {
	return DispatchDTO{
		ID:          int64(d.ID),
		Center:      d.Center,
		Destination: d.Destination,
		Date:        circulation.FormatDate(d.Date),
		Sent:        d.Sent,
		Returned:    d.Returned,
		Pending:     d.Pending(),
	}
}

func toShipmentDTO(s circulation.OriginShipment) ShipmentDTO {
	return ShipmentDTO{ID: int64(s.ID), Date: circulation.FormatDate(s.Date), Sent: s.Sent}
}
