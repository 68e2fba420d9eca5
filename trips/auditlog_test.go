package trips_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crate-ledger/circulation"
)

func TestEditReturnEvent_RoundTrip(t *testing.T) {
	// GIVEN: A line with sent=20 and a logged return of 5
	// WHEN: The entry is edited to 8 and then back to 5
	// THEN: The line's returned count ends exactly where it started

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	_, lines := createTrip(t, ledger, driver, line("5 - Norte", 20))
	_, err := ledger.RegisterReturn(ctx, lines[0].ID, 5, "maria")
	require.NoError(t, err)

	events, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)
	entryID := events[0].ID

	ev, err := ledger.EditReturnEvent(ctx, entryID, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, ev.Quantity)
	item, err := store.GetLineItem(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 8, item.Returned)

	_, err = ledger.EditReturnEvent(ctx, entryID, 5)
	require.NoError(t, err)
	item, err = store.GetLineItem(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Returned)

	// Same quantity is a no-op
	ev, err = ledger.EditReturnEvent(ctx, entryID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, ev.Quantity)
}

func TestEditReturnEvent_Bounds(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	_, lines := createTrip(t, ledger, driver, line("5 - Norte", 20))
	_, err := ledger.RegisterReturn(ctx, lines[0].ID, 5, "maria")
	require.NoError(t, err)
	_, err = ledger.RegisterReturn(ctx, lines[0].ID, 10, "maria")
	require.NoError(t, err)

	events, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	first := events[1] // newest first
	assert.Equal(t, 5, first.Quantity)
	assert.Equal(t, 15, first.LineReturned)
	assert.Equal(t, 5, first.LinePending())

	// 5 -> 11 would push returned to 21 > 20
	_, err = ledger.EditReturnEvent(ctx, first.ID, 11)
	var vErr *circulation.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 10, vErr.Available)

	_, err = ledger.EditReturnEvent(ctx, first.ID, 0)
	assert.ErrorIs(t, err, circulation.ErrValidation)

	_, err = ledger.EditReturnEvent(ctx, 999, 1)
	assert.True(t, circulation.IsNotFound(err))

	// 5 -> 10 fills the line exactly
	_, err = ledger.EditReturnEvent(ctx, first.ID, 10)
	require.NoError(t, err)
	item, err := store.GetLineItem(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 20, item.Returned)
}

func TestEditReturnEvent_WouldGoNegative(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	tripID, lines := createTrip(t, ledger, driver, line("5 - Norte", 20))
	_, err := ledger.RegisterReturn(ctx, lines[0].ID, 8, "maria")
	require.NoError(t, err)

	// A correction lowers the line below what the entry claims
	_, err = ledger.BulkUpdateReturnedQuantities(ctx, tripID, []circulation.ReturnedUpdate{
		{LineItemID: lines[0].ID, Returned: 2},
	})
	require.NoError(t, err)

	events, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)

	// 8 -> 1 means returned 2 - 7 = -5
	_, err = ledger.EditReturnEvent(ctx, events[0].ID, 1)
	assert.ErrorIs(t, err, circulation.ErrValidation)
}

func TestDeleteReturnEvent(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	_, lines := createTrip(t, ledger, driver, line("5 - Norte", 20))
	_, err := ledger.RegisterReturn(ctx, lines[0].ID, 5, "maria")
	require.NoError(t, err)
	_, err = ledger.RegisterReturn(ctx, lines[0].ID, 3, "jose")
	require.NoError(t, err)

	events, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, ledger.DeleteReturnEvent(ctx, events[1].ID))

	item, err := store.GetLineItem(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Returned)

	events, err = ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "jose", events[0].User)

	assert.True(t, circulation.IsNotFound(ledger.DeleteReturnEvent(ctx, 999)))
}

func TestDeleteReturnEvent_ConsistencyError(t *testing.T) {
	// GIVEN: An entry of 5 on a line later corrected down to 2 returned
	// WHEN: The entry is deleted
	// THEN: Reversal would make returned negative, nothing changes

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	tripID, lines := createTrip(t, ledger, driver, line("5 - Norte", 20))
	_, err := ledger.RegisterReturn(ctx, lines[0].ID, 5, "maria")
	require.NoError(t, err)
	_, err = ledger.BulkUpdateReturnedQuantities(ctx, tripID, []circulation.ReturnedUpdate{
		{LineItemID: lines[0].ID, Returned: 2},
	})
	require.NoError(t, err)

	events, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)

	err = ledger.DeleteReturnEvent(ctx, events[0].ID)
	var cErr *circulation.ConsistencyError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, 2, cErr.Returned)
	assert.Equal(t, 5, cErr.Reversal)

	events, err = ledger.ListReturnEvents(ctx, circulation.ReturnFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListReturnEvents_Filters(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	driver := seedDriver(t, store, "D1")
	tripA, linesA := createTrip(t, ledger, driver, line("5 - Norte", 20), line("7 - Sur", 4))
	_, linesB := createTrip(t, ledger, driver, line("5 - Norte", 6))

	_, err := ledger.RegisterReturn(ctx, linesA[0].ID, 1, "maria")
	require.NoError(t, err)
	_, err = ledger.RegisterReturn(ctx, linesA[1].ID, 2, "maria")
	require.NoError(t, err)
	_, err = ledger.RegisterReturn(ctx, linesB[0].ID, 3, "maria")
	require.NoError(t, err)

	byTrip, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{TripID: tripA})
	require.NoError(t, err)
	assert.Len(t, byTrip, 2)

	byStore, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{Store: "5 - Norte"})
	require.NoError(t, err)
	require.Len(t, byStore, 2)
	assert.Equal(t, 3, byStore[0].Quantity, "newest first")

	inRange, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{
		DateRange: circulation.DateRange{From: march10, To: march10},
	})
	require.NoError(t, err)
	assert.Len(t, inRange, 3)

	outOfRange, err := ledger.ListReturnEvents(ctx, circulation.ReturnFilter{
		DateRange: circulation.DateRange{From: march11},
	})
	require.NoError(t, err)
	assert.Empty(t, outOfRange)
}
