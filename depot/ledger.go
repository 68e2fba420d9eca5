/*
ledger.go - Distribution center ledger: dispatches and stock

PURPOSE:
  The CD receives boxes from trips, dispatches them to stores, takes them
  back and forwards them to the manufacturing origin. Stock is never stored;
  every operation that removes boxes recomputes it (circulation.Flows) inside
  the same write-serialized transaction that performs the write.

OPERATIONS:
  ComputeTotals             read the stock formula
  CreateDispatch            stock checked
  RegisterDispatchReturn    bounded by the dispatch's pending boxes
  UpdateDispatchDetailed    stock checked, excluding the row being edited
  DeleteDispatch            only without returns
  ForceDeleteDispatch       operator override, no validation
  RevertDispatchToPending   operator override, no validation

  Origin shipments live in shipments.go, per-destination views and FIFO
  returns in destinations.go.

OPERATOR OVERRIDES:
  ForceDeleteDispatch and RevertDispatchToPending can leave the raw balance
  negative. Totals clamp it at zero and the next stock check sees the raw
  value, so no new dispatch passes until the balance recovers.

SEE ALSO:
  - circulation/reconcile.go: Stock formula
  - circulation/catalog.go: CD detection
*/
package depot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/crate-ledger/circulation"
)

// Ledger implements the distribution center operations.
type Ledger struct {
	store circulation.TxStore
	log   *slog.Logger
	obs   circulation.Observer
}

// NewLedger creates a distribution center ledger on top of store.
func NewLedger(store circulation.TxStore, opts circulation.Options) *Ledger {
	opts = opts.WithDefaults()
	return &Ledger{
		store: store,
		log:   opts.Logger.With("component", "depot"),
		obs:   opts.Observer,
	}
}

func (l *Ledger) observe(op string, err *error) {
	l.obs.ObserveOperation("depot."+op, *err)
}

// balance is the CD state read inside a transaction.
type balance struct {
	center string
	flows  circulation.Flows
}

func readBalance(ctx context.Context, s circulation.Store) (balance, error) {
	stores, err := s.ListStores(ctx)
	if err != nil {
		return balance{}, err
	}
	center := circulation.CenterDisplay(stores)
	flows, err := s.Flows(ctx, center)
	if err != nil {
		return balance{}, err
	}
	return balance{center: center, flows: flows}, nil
}

// settle re-reads the balance after a write so the stock gauge reflects it.
func settle(ctx context.Context, s circulation.Store, out *circulation.Totals) error {
	b, err := readBalance(ctx, s)
	if err != nil {
		return err
	}
	*out = b.flows.Totals(b.center)
	return nil
}

func (l *Ledger) rejected(op string, err error) {
	if circulation.IsClientError(err) {
		l.log.Warn("stock check rejected", "op", op, "error", err)
	}
}

// =============================================================================
// TOTALS
// =============================================================================

// ComputeTotals returns the reconciled CD balance.
func (l *Ledger) ComputeTotals(ctx context.Context) (circulation.Totals, error) {
	b, err := readBalance(ctx, l.store)
	if err != nil {
		return circulation.Totals{}, err
	}
	totals := b.flows.Totals(b.center)
	l.obs.ObserveStock(totals)
	return totals, nil
}

// Center returns the detected CD display, "" when none is configured.
func (l *Ledger) Center(ctx context.Context) (string, error) {
	stores, err := l.store.ListStores(ctx)
	if err != nil {
		return "", err
	}
	return circulation.CenterDisplay(stores), nil
}

// =============================================================================
// DISPATCHES
// =============================================================================

// CreateDispatch sends boxes from the CD to destination.
func (l *Ledger) CreateDispatch(ctx context.Context, destination string, date time.Time, boxes int) (id circulation.DispatchID, err error) {
	defer l.observe("create_dispatch", &err)

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, circulation.Invalid("destination", "is required")
	}
	if date.IsZero() {
		return 0, circulation.Invalid("date", "is required")
	}
	if err := circulation.ValidateQuantity("boxes", boxes); err != nil {
		return 0, err
	}

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		b, err := readBalance(ctx, s)
		if err != nil {
			return err
		}
		if err := circulation.RequireStock(boxes, b.flows.Raw()); err != nil {
			return err
		}

		id, err = s.InsertDispatch(ctx, circulation.Dispatch{
			Center:      b.center,
			Destination: destination,
			Date:        circulation.Day(date),
			Sent:        boxes,
		})
		if err != nil {
			return err
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		l.rejected("create_dispatch", err)
		return 0, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("dispatch created", "dispatch", id, "destination", destination, "boxes", boxes, "stock", after.Stock)
	return id, nil
}

// RegisterDispatchReturn records boxes coming back to the CD from one
// dispatch.
func (l *Ledger) RegisterDispatchReturn(ctx context.Context, dispatchID circulation.DispatchID, quantity int) (updated circulation.Dispatch, err error) {
	defer l.observe("register_dispatch_return", &err)

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		d, err := requireDispatch(ctx, s, dispatchID)
		if err != nil {
			return err
		}
		if err := circulation.ValidateReturn(quantity, d.Pending()); err != nil {
			return err
		}

		d.Returned += quantity
		if err := s.SetDispatchReturned(ctx, d.ID, d.Returned); err != nil {
			return err
		}
		updated = *d
		return settle(ctx, s, &after)
	})
	if err != nil {
		return circulation.Dispatch{}, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("dispatch return registered", "dispatch", dispatchID, "quantity", quantity, "stock", after.Stock)
	return updated, nil
}

// UpdateDispatchDetailed rewrites date, sent and returned of a dispatch.
// The stock check ignores the dispatch's current values: the new sent may
// not exceed what the CD would hold without this dispatch plus the boxes it
// has brought back.
func (l *Ledger) UpdateDispatchDetailed(ctx context.Context, dispatchID circulation.DispatchID, date time.Time, sent, returned int) (updated circulation.Dispatch, err error) {
	defer l.observe("update_dispatch", &err)

	if err := circulation.ValidateQuantity("sent", sent); err != nil {
		return circulation.Dispatch{}, err
	}
	if err := circulation.ValidateReturnedBounds("returned", returned, sent); err != nil {
		return circulation.Dispatch{}, err
	}

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		d, err := requireDispatch(ctx, s, dispatchID)
		if err != nil {
			return err
		}
		b, err := readBalance(ctx, s)
		if err != nil {
			return err
		}
		excluding := b.flows.WithoutDispatch(*d)
		if err := circulation.RequireStock(sent, excluding.Raw()+returned); err != nil {
			return err
		}

		if !date.IsZero() {
			d.Date = circulation.Day(date)
		}
		d.Sent = sent
		d.Returned = returned
		if err := s.UpdateDispatch(ctx, *d); err != nil {
			return err
		}
		updated = *d
		return settle(ctx, s, &after)
	})
	if err != nil {
		l.rejected("update_dispatch", err)
		return circulation.Dispatch{}, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("dispatch updated", "dispatch", dispatchID, "sent", sent, "returned", returned, "stock", after.Stock)
	return updated, nil
}

// DeleteDispatch removes a dispatch that has no returns.
func (l *Ledger) DeleteDispatch(ctx context.Context, dispatchID circulation.DispatchID) (err error) {
	defer l.observe("delete_dispatch", &err)

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		d, err := requireDispatch(ctx, s, dispatchID)
		if err != nil {
			return err
		}
		if d.Returned > 0 {
			return &circulation.ValidationError{
				Field:     "dispatch",
				Message:   "has registered returns, revert them first",
				Requested: d.Returned,
			}
		}
		if _, err := s.DeleteDispatch(ctx, dispatchID); err != nil {
			return err
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return err
	}

	l.obs.ObserveStock(after)
	l.log.Info("dispatch deleted", "dispatch", dispatchID, "stock", after.Stock)
	return nil
}

// ForceDeleteDispatch deletes a dispatch without any validation. Operator
// override.
func (l *Ledger) ForceDeleteDispatch(ctx context.Context, dispatchID circulation.DispatchID) (err error) {
	defer l.observe("force_delete_dispatch", &err)

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		ok, err := s.DeleteDispatch(ctx, dispatchID)
		if err != nil {
			return err
		}
		if !ok {
			return circulation.NotFound("dispatch", int64(dispatchID))
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return err
	}

	l.obs.ObserveStock(after)
	l.log.Warn("dispatch force-deleted", "dispatch", dispatchID, "stock", after.Stock)
	return nil
}

// RevertDispatchToPending clears every return of a dispatch and reports how
// many boxes became pending again. Operator override.
func (l *Ledger) RevertDispatchToPending(ctx context.Context, dispatchID circulation.DispatchID) (reverted int, err error) {
	defer l.observe("revert_dispatch", &err)

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		d, err := requireDispatch(ctx, s, dispatchID)
		if err != nil {
			return err
		}
		reverted = d.Returned
		if reverted > 0 {
			if err := s.SetDispatchReturned(ctx, dispatchID, 0); err != nil {
				return err
			}
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return 0, err
	}

	l.obs.ObserveStock(after)
	l.log.Warn("dispatch reverted to pending", "dispatch", dispatchID, "boxes", reverted, "stock", after.Stock)
	return reverted, nil
}

// GetDispatch returns one dispatch.
func (l *Ledger) GetDispatch(ctx context.Context, dispatchID circulation.DispatchID) (circulation.Dispatch, error) {
	d, err := requireDispatch(ctx, l.store, dispatchID)
	if err != nil {
		return circulation.Dispatch{}, err
	}
	return *d, nil
}

// ListDispatches returns dispatches newest first.
func (l *Ledger) ListDispatches(ctx context.Context, filter circulation.DispatchFilter) ([]circulation.Dispatch, error) {
	return l.store.ListDispatches(ctx, filter)
}

// SummaryByCenter aggregates dispatches per CD display.
func (l *Ledger) SummaryByCenter(ctx context.Context) ([]circulation.CenterSummary, error) {
	return l.store.CenterSummaries(ctx)
}

func requireDispatch(ctx context.Context, s circulation.Store, id circulation.DispatchID) (*circulation.Dispatch, error) {
	d, err := s.GetDispatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, circulation.NotFound("dispatch", int64(id))
	}
	return d, nil
}
