package depot

import (
	"context"
	"time"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// ORIGIN SHIPMENTS - boxes forwarded from the CD back to the manufacturer
// =============================================================================

// CreateOriginShipment forwards boxes to the origin. Stock checked.
func (l *Ledger) CreateOriginShipment(ctx context.Context, date time.Time, boxes int) (id circulation.ShipmentID, err error) {
	defer l.observe("create_shipment", &err)

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
		id, err = s.InsertShipment(ctx, circulation.OriginShipment{Date: circulation.Day(date), Sent: boxes})
		if err != nil {
			return err
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		l.rejected("create_shipment", err)
		return 0, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("origin shipment created", "shipment", id, "boxes", boxes, "stock", after.Stock)
	return id, nil
}

// UpdateOriginShipment rewrites a shipment. The stock check ignores the
// shipment's prior amount. A zero date keeps the current one.
func (l *Ledger) UpdateOriginShipment(ctx context.Context, shipmentID circulation.ShipmentID, date time.Time, boxes int) (updated circulation.OriginShipment, err error) {
	defer l.observe("update_shipment", &err)

	if err := circulation.ValidateQuantity("boxes", boxes); err != nil {
		return circulation.OriginShipment{}, err
	}

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		sh, err := s.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if sh == nil {
			return circulation.NotFound("origin shipment", int64(shipmentID))
		}
		b, err := readBalance(ctx, s)
		if err != nil {
			return err
		}
		if err := circulation.RequireStock(boxes, b.flows.WithoutShipment(*sh).Raw()); err != nil {
			return err
		}

		if !date.IsZero() {
			sh.Date = circulation.Day(date)
		}
		sh.Sent = boxes
		if err := s.UpdateShipment(ctx, *sh); err != nil {
			return err
		}
		updated = *sh
		return settle(ctx, s, &after)
	})
	if err != nil {
		l.rejected("update_shipment", err)
		return circulation.OriginShipment{}, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("origin shipment updated", "shipment", shipmentID, "boxes", boxes, "stock", after.Stock)
	return updated, nil
}

// DeleteOriginShipment removes a shipment. Removing one only gives stock
// back, so there is no check.
func (l *Ledger) DeleteOriginShipment(ctx context.Context, shipmentID circulation.ShipmentID) (err error) {
	defer l.observe("delete_shipment", &err)

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		ok, err := s.DeleteShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !ok {
			return circulation.NotFound("origin shipment", int64(shipmentID))
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return err
	}

	l.obs.ObserveStock(after)
	l.log.Info("origin shipment deleted", "shipment", shipmentID, "stock", after.Stock)
	return nil
}

// ListOriginShipments returns shipments newest first.
func (l *Ledger) ListOriginShipments(ctx context.Context, r circulation.DateRange) ([]circulation.OriginShipment, error) {
	return l.store.ListShipments(ctx, r)
}
