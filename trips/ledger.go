/*
ledger.go - Trip ledger: trips, line items and box returns

PURPOSE:
  A trip carries boxes from a driver to one or more stores. Each store on
  the trip is a line item with a sent and a returned count. The ledger is
  the only writer of those counts and of the return audit log.

INVARIANT:
  0 <= Returned <= Sent on every line item, after every operation.

  Every mutation re-reads the line items it touches inside the same
  write-serialized transaction (TxStore.WithTx) before validating. Two
  concurrent returns for the same line cannot both pass the pending check.

RETURNS:
  RegisterReturn              one line, one "individual" audit entry
  RegisterAllReturnsForTrip   every pending line, one "bulk" entry per line,
                              all sharing a batch id
  BulkUpdateReturnedQuantities direct correction, no audit entries

  Excess is rejected, never clamped. A return of 20 on a line with 15
  pending fails with a ValidationError carrying Requested=20, Available=15.

ACTING USER:
  Return operations take the acting user explicitly. The ledger never reads
  an ambient "current user".

EXAMPLE:
  ledger := trips.NewLedger(store, circulation.Options{Logger: logger})

  tripID, err := ledger.CreateTrip(ctx, driverID, day, []circulation.NewLineItem{
      {Store: "5 - Norte", Sent: 20},
  })
  items, _ := ledger.ListLineItems(ctx, tripID)
  item, err := ledger.RegisterReturn(ctx, items[0].ID, 5, "maria")
  // item.Pending() == 15

SEE ALSO:
  - auditlog.go: Listing and correcting return events
  - circulation/reconcile.go: ValidateReturn, ValidateReturnedBounds
*/
package trips

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/crate-ledger/circulation"
)

// DefaultUser is recorded when a caller passes an empty acting user.
const DefaultUser = "system"

// Ledger implements the trip-side operations.
type Ledger struct {
	store circulation.TxStore
	log   *slog.Logger
	obs   circulation.Observer
	now   func() time.Time
}

// NewLedger creates a trip ledger on top of store.
func NewLedger(store circulation.TxStore, opts circulation.Options) *Ledger {
	opts = opts.WithDefaults()
	return &Ledger{
		store: store,
		log:   opts.Logger.With("component", "trips"),
		obs:   opts.Observer,
		now:   opts.Now,
	}
}

func (l *Ledger) observe(op string, err *error) {
	l.obs.ObserveOperation("trips."+op, *err)
}

// =============================================================================
// TRIPS
// =============================================================================

// CreateTrip inserts a trip in progress together with all of its line items.
// Duplicate stores within items are accepted; AddLineItem is stricter.
func (l *Ledger) CreateTrip(ctx context.Context, driverID circulation.DriverID, date time.Time, items []circulation.NewLineItem) (id circulation.TripID, err error) {
	defer l.observe("create_trip", &err)

	if err := validateNewTrip(date, items); err != nil {
		return 0, err
	}

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		ok, err := s.DriverExists(ctx, driverID)
		if err != nil {
			return err
		}
		if !ok {
			return circulation.NotFound("driver", int64(driverID))
		}

		id, err = s.InsertTrip(ctx, circulation.Trip{
			DriverID: driverID,
			Date:     circulation.Day(date),
			Status:   circulation.TripInProgress,
		})
		if err != nil {
			return err
		}

		for _, it := range items {
			_, err := s.InsertLineItem(ctx, circulation.LineItem{
				TripID: id,
				Store:  strings.TrimSpace(it.Store),
				Sent:   it.Sent,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.log.Info("trip created", "trip", id, "driver", driverID, "stores", len(items))
	return id, nil
}

func validateNewTrip(date time.Time, items []circulation.NewLineItem) error {
	if date.IsZero() {
		return circulation.Invalid("date", "is required")
	}
	if len(items) == 0 {
		return circulation.Invalid("items", "a trip needs at least one store")
	}
	for i, it := range items {
		if strings.TrimSpace(it.Store) == "" {
			return circulation.Invalid(fmt.Sprintf("items[%d].store", i), "is required")
		}
		if err := circulation.ValidateQuantity(fmt.Sprintf("items[%d].sent", i), it.Sent); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTrip removes a trip and its line items. Return log entries of the
// trip are kept.
func (l *Ledger) DeleteTrip(ctx context.Context, tripID circulation.TripID) (err error) {
	defer l.observe("delete_trip", &err)

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		if err := requireTrip(ctx, s, tripID); err != nil {
			return err
		}
		return s.DeleteTrip(ctx, tripID)
	})
	if err != nil {
		return err
	}

	l.log.Info("trip deleted", "trip", tripID)
	return nil
}

// SetTripStatus writes status unconditionally. A trip can be completed with
// boxes still pending and reactivated at any time.
func (l *Ledger) SetTripStatus(ctx context.Context, tripID circulation.TripID, status circulation.TripStatus) (err error) {
	defer l.observe("set_trip_status", &err)

	if !status.Valid() {
		return circulation.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		if err := requireTrip(ctx, s, tripID); err != nil {
			return err
		}
		return s.SetTripStatus(ctx, tripID, status)
	})
	if err != nil {
		return err
	}

	l.log.Info("trip status set", "trip", tripID, "status", status)
	return nil
}

// ListTrips returns trips newest first with their aggregates.
func (l *Ledger) ListTrips(ctx context.Context, filter circulation.TripFilter) ([]circulation.TripSummary, error) {
	return l.store.ListTrips(ctx, filter)
}

// GetTrip returns one trip.
func (l *Ledger) GetTrip(ctx context.Context, tripID circulation.TripID) (*circulation.Trip, error) {
	trip, err := l.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, circulation.NotFound("trip", int64(tripID))
	}
	return trip, nil
}

func requireTrip(ctx context.Context, s circulation.Store, tripID circulation.TripID) error {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip == nil {
		return circulation.NotFound("trip", int64(tripID))
	}
	return nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// ListLineItems returns a trip's line items ordered by id.
func (l *Ledger) ListLineItems(ctx context.Context, tripID circulation.TripID) ([]circulation.LineItem, error) {
	if err := requireTrip(ctx, l.store, tripID); err != nil {
		return nil, err
	}
	return l.store.ListLineItems(ctx, tripID)
}

// AddLineItem appends a store to an existing trip. A store can appear only
// once per trip.
func (l *Ledger) AddLineItem(ctx context.Context, tripID circulation.TripID, store string, sent int) (id circulation.LineItemID, err error) {
	defer l.observe("add_line_item", &err)

	store = strings.TrimSpace(store)
	if store == "" {
		return 0, circulation.Invalid("store", "is required")
	}
	if err := circulation.ValidateQuantity("sent", sent); err != nil {
		return 0, err
	}

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		if err := requireTrip(ctx, s, tripID); err != nil {
			return err
		}
		items, err := s.ListLineItems(ctx, tripID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.Store == store {
				return circulation.Invalid("store", fmt.Sprintf("%q is already on trip %d", store, tripID))
			}
		}
		id, err = s.InsertLineItem(ctx, circulation.LineItem{TripID: tripID, Store: store, Sent: sent})
		return err
	})
	if err != nil {
		return 0, err
	}

	l.log.Info("line item added", "trip", tripID, "line_item", id, "store", store, "sent", sent)
	return id, nil
}

// RemoveLineItem deletes a line item that has no returns yet.
func (l *Ledger) RemoveLineItem(ctx context.Context, lineItemID circulation.LineItemID) (err error) {
	defer l.observe("remove_line_item", &err)

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		item, err := requireLineItem(ctx, s, lineItemID)
		if err != nil {
			return err
		}
		if item.Returned > 0 {
			return &circulation.ValidationError{
				Field:     "line_item",
				Message:   "has registered returns",
				Requested: item.Returned,
			}
		}
		return s.DeleteLineItem(ctx, lineItemID)
	})
	if err != nil {
		return err
	}

	l.log.Info("line item removed", "line_item", lineItemID)
	return nil
}

func requireLineItem(ctx context.Context, s circulation.Store, id circulation.LineItemID) (*circulation.LineItem, error) {
	item, err := s.GetLineItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, circulation.NotFound("line item", int64(id))
	}
	return item, nil
}

// =============================================================================
// RETURNS
// =============================================================================

// RegisterReturn records quantity boxes coming back from one line item.
func (l *Ledger) RegisterReturn(ctx context.Context, lineItemID circulation.LineItemID, quantity int, user string) (updated circulation.LineItem, err error) {
	defer l.observe("register_return", &err)

	user = actingUser(user)
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		item, err := requireLineItem(ctx, s, lineItemID)
		if err != nil {
			return err
		}
		if err := circulation.ValidateReturn(quantity, item.Pending()); err != nil {
			return err
		}

		item.Returned += quantity
		if err := s.SetReturned(ctx, item.ID, item.Returned); err != nil {
			return err
		}
		_, err = s.AppendReturnEvent(ctx, circulation.ReturnEvent{
			TripID:     item.TripID,
			LineItemID: item.ID,
			Store:      item.Store,
			Quantity:   quantity,
			Kind:       circulation.ReturnIndividual,
			User:       user,
			BatchID:    uuid.NewString(),
			CreatedAt:  l.now().UTC(),
		})
		if err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return circulation.LineItem{}, err
	}

	l.log.Info("return registered",
		"line_item", lineItemID, "trip", updated.TripID, "quantity", quantity,
		"pending", updated.Pending(), "user", user)
	return updated, nil
}

// RegisterAllReturnsForTrip marks every pending line of the trip as fully
// returned. Calling it again is a no-op reported by Changed() == false.
func (l *Ledger) RegisterAllReturnsForTrip(ctx context.Context, tripID circulation.TripID, user string) (result circulation.BulkReturnResult, err error) {
	defer l.observe("register_all_returns", &err)

	user = actingUser(user)
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		if err := requireTrip(ctx, s, tripID); err != nil {
			return err
		}
		items, err := s.ListLineItems(ctx, tripID)
		if err != nil {
			return err
		}

		batch := uuid.NewString()
		createdAt := l.now().UTC()
		for _, it := range items {
			pending := it.Pending()
			if pending <= 0 {
				continue
			}
			if err := s.SetReturned(ctx, it.ID, it.Sent); err != nil {
				return err
			}
			_, err := s.AppendReturnEvent(ctx, circulation.ReturnEvent{
				TripID:     tripID,
				LineItemID: it.ID,
				Store:      it.Store,
				Quantity:   pending,
				Kind:       circulation.ReturnBulk,
				User:       user,
				BatchID:    batch,
				CreatedAt:  createdAt,
			})
			if err != nil {
				return err
			}
			result.Lines++
			result.Boxes += pending
		}
		if result.Lines > 0 {
			result.BatchID = batch
		}
		return nil
	})
	if err != nil {
		return circulation.BulkReturnResult{}, err
	}

	if result.Changed() {
		l.log.Info("trip fully returned",
			"trip", tripID, "lines", result.Lines, "boxes", result.Boxes,
			"batch", result.BatchID, "user", user)
	}
	return result, nil
}

// BulkUpdateReturnedQuantities overwrites returned counts of several line
// items of one trip. The whole batch is validated before anything is
// written. Corrections do not produce audit entries. It returns how many
// lines actually changed.
func (l *Ledger) BulkUpdateReturnedQuantities(ctx context.Context, tripID circulation.TripID, updates []circulation.ReturnedUpdate) (changed int, err error) {
	defer l.observe("bulk_update_returned", &err)

	if len(updates) == 0 {
		return 0, circulation.Invalid("updates", "nothing to update")
	}

	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		if err := requireTrip(ctx, s, tripID); err != nil {
			return err
		}
		items, err := s.ListLineItems(ctx, tripID)
		if err != nil {
			return err
		}
		byID := make(map[circulation.LineItemID]circulation.LineItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}

		seen := make(map[circulation.LineItemID]bool, len(updates))
		for i, u := range updates {
			it, ok := byID[u.LineItemID]
			if !ok {
				return circulation.Invalid(fmt.Sprintf("updates[%d].line_item_id", i),
					fmt.Sprintf("line item %d does not belong to trip %d", u.LineItemID, tripID))
			}
			if seen[u.LineItemID] {
				return circulation.Invalid(fmt.Sprintf("updates[%d].line_item_id", i), "listed twice")
			}
			seen[u.LineItemID] = true
			if err := circulation.ValidateReturnedBounds(fmt.Sprintf("updates[%d].returned", i), u.Returned, it.Sent); err != nil {
				return err
			}
		}

		for _, u := range updates {
			if byID[u.LineItemID].Returned == u.Returned {
				continue
			}
			if err := s.SetReturned(ctx, u.LineItemID, u.Returned); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		l.log.Info("returned quantities corrected", "trip", tripID, "lines", changed)
	}
	return changed, nil
}

func actingUser(user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return DefaultUser
	}
	return user
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardStats returns global trip-side figures.
func (l *Ledger) DashboardStats(ctx context.Context) (circulation.DashboardStats, error) {
	return l.store.TripStats(ctx)
}

// PendingByStore lists stores that still hold boxes from trips.
func (l *Ledger) PendingByStore(ctx context.Context) ([]circulation.StoreBalance, error) {
	balances, err := l.store.BalancesByStore(ctx)
	if err != nil {
		return nil, err
	}
	pending := balances[:0]
	for _, b := range balances {
		if b.Pending() > 0 {
			pending = append(pending, b)
		}
	}
	return pending, nil
}
