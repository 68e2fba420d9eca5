/*
Package circulation provides the core types of the crate circulation ledger.

PURPOSE:
  Reusable plastic crates ("boxes") leave with drivers on trips, come back
  from stores, pile up at the distribution center (CD), get dispatched from
  the CD to stores and are eventually forwarded back to the manufacturing
  origin. This package holds the domain-agnostic pieces shared by the trip
  ledger (trips/) and the distribution center ledger (depot/):

  - Row types: Trip, LineItem, ReturnEvent, Dispatch, OriginShipment
  - Read models: TripSummary, Totals, DestinationBalance, ...
  - Store interfaces (store.go)
  - The stock reconciliation formula (reconcile.go)
  - Distribution center detection (catalog.go)
  - Error types (errors.go)

DESIGN PRINCIPLES:
  1. Derived balances: stock and pending counts are recomputed from rows on
     every call. Nothing stores a running balance.
  2. Integer quantities: boxes are whole units, so counts are plain ints.
     Percentages shown to operators use decimal.Decimal.
  3. Type Safety: each aggregate has its own ID type so a dispatch id can
     never be passed where a line item id is expected.

SEE ALSO:
  - store.go: Persistence interfaces
  - reconcile.go: Stock formula and validation helpers
  - trips/ledger.go, depot/ledger.go: Operations built on these types
*/
package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DriverID int64
type StoreID int64
type TripID int64
type LineItemID int64
type ReturnEventID int64
type DispatchID int64
type ShipmentID int64

// =============================================================================
// TRIPS
// =============================================================================

// TripStatus is caller driven. Completed trips can be reactivated at any time.
type TripStatus string

const (
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	return s == TripInProgress || s == TripCompleted
}

// Trip is one delivery run of a driver.
type Trip struct {
	ID       TripID
	DriverID DriverID
	Date     time.Time
	Status   TripStatus
}

// LineItem is the sent/returned count for one store within one trip.
//
// INVARIANT: 0 <= Returned <= Sent
type LineItem struct {
	ID       LineItemID
	TripID   TripID
	Store    string // display string, e.g. "5 - Norte"
	Sent     int
	Returned int
}

// Pending is what the store still holds.
func (l LineItem) Pending() int { return l.Sent - l.Returned }

// NewLineItem is the input for a line item at trip creation.
type NewLineItem struct {
	Store string
	Sent  int
}

// ReturnedUpdate is one entry of a bulk correction of returned quantities.
type ReturnedUpdate struct {
	LineItemID LineItemID
	Returned   int
}

// TripSummary aggregates a trip's line items.
type TripSummary struct {
	Trip
	DriverName string
	Stores     int
	Sent       int
	Returned   int
}

func (t TripSummary) Pending() int { return t.Sent - t.Returned }

func (t TripSummary) ReturnRate() decimal.Decimal { return ReturnRate(t.Sent, t.Returned) }

// =============================================================================
// RETURN AUDIT LOG
// =============================================================================

type ReturnKind string

const (
	ReturnIndividual ReturnKind = "individual"
	ReturnBulk       ReturnKind = "bulk"
)

// ReturnEvent records one return action. Entries reference their trip and
// line item by id only; deleting a trip leaves its history in place.
type ReturnEvent struct {
	ID         ReturnEventID
	TripID     TripID
	LineItemID LineItemID
	Store      string // denormalized at write time
	Quantity   int
	Kind       ReturnKind
	User       string
	BatchID    string // shared by all bulk entries of one call
	CreatedAt  time.Time
}

// ReturnEventView is a log entry joined with the current state of its line.
type ReturnEventView struct {
	ReturnEvent
	LineExists   bool
	LineSent     int
	LineReturned int
}

func (v ReturnEventView) LinePending() int { return v.LineSent - v.LineReturned }

// BulkReturnResult reports what RegisterAllReturnsForTrip cleared.
type BulkReturnResult struct {
	Lines   int
	Boxes   int
	BatchID string
}

// Changed is false when the trip had nothing pending.
func (r BulkReturnResult) Changed() bool { return r.Lines > 0 }

// =============================================================================
// DISTRIBUTION CENTER
// =============================================================================

// Dispatch is one shipment from the CD to a destination store.
//
// INVARIANT: 0 <= Returned <= Sent
type Dispatch struct {
	ID          DispatchID
	Center      string
	Destination string
	Date        time.Time
	Sent        int
	Returned    int
}

func (d Dispatch) Pending() int { return d.Sent - d.Returned }

// OriginShipment forwards crates from the CD back to the manufacturer.
// Shipments are never returned.
type OriginShipment struct {
	ID   ShipmentID
	Date time.Time
	Sent int
}

// DestinationBalance aggregates open dispatches per destination.
type DestinationBalance struct {
	Destination string
	Sent        int
	Returned    int
}

func (b DestinationBalance) Pending() int { return b.Sent - b.Returned }

// CenterSummary aggregates dispatches per CD display name.
type CenterSummary struct {
	Center   string
	Sent     int
	Returned int
}

func (c CenterSummary) Pending() int { return c.Sent - c.Returned }

// =============================================================================
// CATALOG
// =============================================================================

// Driver is a catalog entry referenced by trips.
type Driver struct {
	ID           DriverID
	Name         string
	Contact      string
	RegisteredOn time.Time
}

// StoreEntry is a store catalog entry.
type StoreEntry struct {
	ID                   StoreID
	Number               int
	Name                 string
	IsDistributionCenter bool
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardStats are global trip-side figures.
type DashboardStats struct {
	Drivers     int
	ActiveTrips int
	Sent        int
	Returned    int
}

// Pending is clamped at zero.
func (s DashboardStats) Pending() int { return max(0, s.Sent-s.Returned) }

func (s DashboardStats) ReturnRate() decimal.Decimal { return ReturnRate(s.Sent, s.Returned) }

// StoreBalance aggregates trip line items per store.
type StoreBalance struct {
	Store    string
	Sent     int
	Returned int
}

func (b StoreBalance) Pending() int { return b.Sent - b.Returned }

// =============================================================================
// FILTERS
// =============================================================================

// DateRange bounds a listing. Zero values mean unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

type TripFilter struct {
	DateRange
	DriverID DriverID   // 0 = all drivers
	Status   TripStatus // "" = all statuses
}

type ReturnFilter struct {
	DateRange
	TripID TripID // 0 = all trips
	Store  string // "" = all stores
}

type DispatchFilter struct {
	DateRange
	Center string // "" = all centers
}
