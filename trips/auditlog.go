package trips

import (
	"context"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// RETURN AUDIT LOG
// =============================================================================

// ListReturnEvents returns log entries newest first, each joined with the
// current state of its line item when the line still exists.
func (l *Ledger) ListReturnEvents(ctx context.Context, filter circulation.ReturnFilter) ([]circulation.ReturnEventView, error) {
	return l.store.ListReturnEvents(ctx, filter)
}

// EditReturnEvent changes the quantity of a logged return and moves the
// line item's returned count by the same delta. A delta of zero writes
// nothing.
func (l *Ledger) EditReturnEvent(ctx context.Context, entryID circulation.ReturnEventID, quantity int) (ev circulation.ReturnEvent, err error) {
	defer l.observe("edit_return_event", &err)

	if err := circulation.ValidateQuantity("quantity", quantity); err != nil {
		return circulation.ReturnEvent{}, err
	}

	var delta int
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		entry, item, err := loadEntry(ctx, s, entryID)
		if err != nil {
			return err
		}
		ev = *entry

		delta = quantity - entry.Quantity
		if delta == 0 {
			return nil
		}

		returned := item.Returned + delta
		if returned > item.Sent {
			return &circulation.ValidationError{
				Field:     "quantity",
				Message:   "exceeds pending boxes",
				Requested: quantity,
				Available: entry.Quantity + item.Pending(),
			}
		}
		if returned < 0 {
			return &circulation.ValidationError{
				Field:     "quantity",
				Message:   "would make returned negative",
				Requested: quantity,
				Available: entry.Quantity - item.Returned,
			}
		}

		if err := s.SetReturned(ctx, item.ID, returned); err != nil {
			return err
		}
		if err := s.UpdateReturnQuantity(ctx, entryID, quantity); err != nil {
			return err
		}
		ev.Quantity = quantity
		return nil
	})
	if err != nil {
		return circulation.ReturnEvent{}, err
	}

	if delta != 0 {
		l.log.Info("return event edited", "entry", entryID, "line_item", ev.LineItemID, "delta", delta)
	}
	return ev, nil
}

// DeleteReturnEvent reverses an entry on its line item and removes it.
func (l *Ledger) DeleteReturnEvent(ctx context.Context, entryID circulation.ReturnEventID) (err error) {
	defer l.observe("delete_return_event", &err)

	var entry *circulation.ReturnEvent
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		var item *circulation.LineItem
		var err error
		entry, item, err = loadEntry(ctx, s, entryID)
		if err != nil {
			return err
		}

		if item.Returned < entry.Quantity {
			return &circulation.ConsistencyError{
				EntryID:    entryID,
				LineItemID: item.ID,
				Returned:   item.Returned,
				Reversal:   entry.Quantity,
			}
		}
		if err := s.SetReturned(ctx, item.ID, item.Returned-entry.Quantity); err != nil {
			return err
		}
		return s.DeleteReturnEvent(ctx, entryID)
	})
	if err != nil {
		return err
	}

	l.log.Info("return event deleted", "entry", entryID, "line_item", entry.LineItemID, "quantity", entry.Quantity)
	return nil
}

// loadEntry fetches an entry and the line item it points to. Entries whose
// line item is gone cannot be corrected.
func loadEntry(ctx context.Context, s circulation.Store, id circulation.ReturnEventID) (*circulation.ReturnEvent, *circulation.LineItem, error) {
	entry, err := s.GetReturnEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, circulation.NotFound("return event", int64(id))
	}
	item, err := requireLineItem(ctx, s, entry.LineItemID)
	if err != nil {
		return nil, nil, err
	}
	return entry, item, nil
}
