/*
store.go - Persistence interfaces for the circulation ledger

PURPOSE:
  Defines the boundary between ledger rules (trips/, depot/) and the
  database. The ledgers never build SQL; they read and write through these
  interfaces, always inside TxStore.WithTx when they mutate.

KEY INTERFACES:
  TripStore:      Trips and their line items
  ReturnLogStore: Append-mostly history of return events
  DepotStore:     CD dispatches, origin shipments and the stock sums
  CatalogLookup:  Store catalog read access (CD detection)
  TxStore:        Store + WithTx for write-serialized transactions

TRANSACTIONS:
  WithTx must serialize writers: a ledger operation re-reads balances,
  validates and writes inside one callback, and no other writer may commit
  in between. If fn returns an error everything is rolled back.

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist. The ledger
  turns that into a NotFoundError with the entity id.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (BEGIN IMMEDIATE + in-process mutex)
*/
package circulation

import "context"

// =============================================================================
// TRIPS
// =============================================================================

type TripStore interface {
	DriverExists(ctx context.Context, id DriverID) (bool, error)

	InsertTrip(ctx context.Context, trip Trip) (TripID, error)
	GetTrip(ctx context.Context, id TripID) (*Trip, error)
	SetTripStatus(ctx context.Context, id TripID, status TripStatus) error

	// DeleteTrip removes the trip's line items, then the trip.
	DeleteTrip(ctx context.Context, id TripID) error
	ListTrips(ctx context.Context, filter TripFilter) ([]TripSummary, error)

	InsertLineItem(ctx context.Context, item LineItem) (LineItemID, error)
	GetLineItem(ctx context.Context, id LineItemID) (*LineItem, error)
	ListLineItems(ctx context.Context, tripID TripID) ([]LineItem, error)
	SetReturned(ctx context.Context, id LineItemID, returned int) error
	DeleteLineItem(ctx context.Context, id LineItemID) error

	TripStats(ctx context.Context) (DashboardStats, error)
	BalancesByStore(ctx context.Context) ([]StoreBalance, error)
}

// =============================================================================
// RETURN AUDIT LOG
// =============================================================================

// ReturnLogStore persists return events. Entries are only created by return
// operations; UpdateReturnQuantity and DeleteReturnEvent exist for the
// audit-log corrections, which always adjust the line item in the same tx.
type ReturnLogStore interface {
	AppendReturnEvent(ctx context.Context, ev ReturnEvent) (ReturnEventID, error)
	GetReturnEvent(ctx context.Context, id ReturnEventID) (*ReturnEvent, error)
	UpdateReturnQuantity(ctx context.Context, id ReturnEventID, quantity int) error
	DeleteReturnEvent(ctx context.Context, id ReturnEventID) error

	// ListReturnEvents returns newest first.
	ListReturnEvents(ctx context.Context, filter ReturnFilter) ([]ReturnEventView, error)
}

// =============================================================================
// DISTRIBUTION CENTER
// =============================================================================

type DepotStore interface {
	// Flows sums the stock inputs. center is the CD display string; when
	// empty ReceivedFromTrips is 0.
	Flows(ctx context.Context, center string) (Flows, error)

	InsertDispatch(ctx context.Context, d Dispatch) (DispatchID, error)
	GetDispatch(ctx context.Context, id DispatchID) (*Dispatch, error)
	UpdateDispatch(ctx context.Context, d Dispatch) error
	SetDispatchReturned(ctx context.Context, id DispatchID, returned int) error

	// DeleteDispatch reports whether a row was removed.
	DeleteDispatch(ctx context.Context, id DispatchID) (bool, error)
	ListDispatches(ctx context.Context, filter DispatchFilter) ([]Dispatch, error)

	// OpenDispatches returns a destination's dispatches with pending boxes,
	// oldest first.
	OpenDispatches(ctx context.Context, destination string) ([]Dispatch, error)
	DestinationBalances(ctx context.Context, r DateRange) ([]DestinationBalance, error)
	CenterSummaries(ctx context.Context) ([]CenterSummary, error)

	InsertShipment(ctx context.Context, s OriginShipment) (ShipmentID, error)
	GetShipment(ctx context.Context, id ShipmentID) (*OriginShipment, error)
	UpdateShipment(ctx context.Context, s OriginShipment) error
	DeleteShipment(ctx context.Context, id ShipmentID) (bool, error)
	ListShipments(ctx context.Context, r DateRange) ([]OriginShipment, error)
}

// =============================================================================
// CATALOG
// =============================================================================

// CatalogLookup is the read side of the store catalog. The catalog itself is
// maintained outside the ledger.
type CatalogLookup interface {
	ListStores(ctx context.Context) ([]StoreEntry, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	TripStore
	ReturnLogStore
	DepotStore
	CatalogLookup
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a write-serialized transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
