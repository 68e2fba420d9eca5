package depot

import (
	"context"
	"strings"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// DESTINATIONS - dispatches grouped by receiving store
// =============================================================================

// PendingByDestination lists destinations still holding dispatched boxes.
func (l *Ledger) PendingByDestination(ctx context.Context, r circulation.DateRange) ([]circulation.DestinationBalance, error) {
	balances, err := l.store.DestinationBalances(ctx, r)
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

// RegisterReturnByDestination spreads quantity over the destination's open
// dispatches, oldest first. quantity may not exceed the destination's total
// pending. It returns the boxes applied.
func (l *Ledger) RegisterReturnByDestination(ctx context.Context, destination string, quantity int) (applied int, err error) {
	defer l.observe("register_destination_return", &err)

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, circulation.Invalid("destination", "is required")
	}
	if err := circulation.ValidateQuantity("quantity", quantity); err != nil {
		return 0, err
	}

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		open, err := s.OpenDispatches(ctx, destination)
		if err != nil {
			return err
		}
		pending := 0
		for _, d := range open {
			pending += d.Pending()
		}
		if err := circulation.ValidateReturn(quantity, pending); err != nil {
			return err
		}

		applied, err = returnFIFO(ctx, s, open, quantity)
		if err != nil {
			return err
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return 0, err
	}

	l.obs.ObserveStock(after)
	l.log.Info("destination return registered", "destination", destination, "boxes", applied, "stock", after.Stock)
	return applied, nil
}

// RegisterAllReturnsByDestination closes every open dispatch of a
// destination. It returns the boxes applied, 0 when nothing was pending.
func (l *Ledger) RegisterAllReturnsByDestination(ctx context.Context, destination string) (applied int, err error) {
	defer l.observe("register_destination_return_all", &err)

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, circulation.Invalid("destination", "is required")
	}

	var after circulation.Totals
	err = l.store.WithTx(ctx, func(s circulation.Store) error {
		open, err := s.OpenDispatches(ctx, destination)
		if err != nil {
			return err
		}
		pending := 0
		for _, d := range open {
			pending += d.Pending()
		}
		applied, err = returnFIFO(ctx, s, open, pending)
		if err != nil {
			return err
		}
		return settle(ctx, s, &after)
	})
	if err != nil {
		return 0, err
	}

	if applied > 0 {
		l.obs.ObserveStock(after)
		l.log.Info("destination fully returned", "destination", destination, "boxes", applied, "stock", after.Stock)
	}
	return applied, nil
}

// returnFIFO applies up to quantity boxes to open dispatches in order.
func returnFIFO(ctx context.Context, s circulation.Store, open []circulation.Dispatch, quantity int) (int, error) {
	applied := 0
	for _, d := range open {
		if applied == quantity {
			break
		}
		take := min(d.Pending(), quantity-applied)
		if take <= 0 {
			continue
		}
		if err := s.SetDispatchReturned(ctx, d.ID, d.Returned+take); err != nil {
			return applied, err
		}
		applied += take
	}
	return applied, nil
}
