package depot_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crate-ledger/circulation"
	"github.com/warp/crate-ledger/depot"
	"github.com/warp/crate-ledger/store/sqlite"
	"github.com/warp/crate-ledger/trips"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march10 = circulation.NewDate(2025, time.March, 10)
	march11 = circulation.NewDate(2025, time.March, 11)
	march12 = circulation.NewDate(2025, time.March, 12)
)

const center = "14 - CD EXPRESS"

type fixture struct {
	store *sqlite.Store
	trips *trips.Ledger
	depot *depot.Ledger
	obs   *recorder
}

// recorder captures observer calls.
type recorder struct {
	ops   map[string]string
	stock []int
}

func (r *recorder) ObserveOperation(op string, err error) { r.ops[op] = circulation.Outcome(err) }
func (r *recorder) ObserveStock(t circulation.Totals)     { r.stock = append(r.stock, t.Stock) }

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	obs := &recorder{ops: map[string]string{}}
	opts := circulation.Options{Observer: obs}
	return &fixture{
		store: store,
		trips: trips.NewLedger(store, opts),
		depot: depot.NewLedger(store, opts),
		obs:   obs,
	}
}

// withCenter registers the CD in the catalog and delivers boxes to it.
func (f *fixture) withCenter(t *testing.T, boxes int) {
	ctx := context.Background()
	_, err := f.store.CreateStore(ctx, circulation.StoreEntry{Number: 5, Name: "Norte"})
	require.NoError(t, err)
	_, err = f.store.CreateStore(ctx, circulation.StoreEntry{Number: 14, Name: "CD EXPRESS"})
	require.NoError(t, err)
	f.deliver(t, center, boxes)
}

func (f *fixture) deliver(t *testing.T, store string, boxes int) circulation.TripID {
	ctx := context.Background()
	drivers, err := f.store.ListDrivers(ctx)
	require.NoError(t, err)
	var driverID circulation.DriverID
	if len(drivers) == 0 {
		d, err := f.store.CreateDriver(ctx, circulation.Driver{Name: "D1"})
		require.NoError(t, err)
		driverID = d.ID
	} else {
		driverID = drivers[0].ID
	}
	id, err := f.trips.CreateTrip(ctx, driverID, march10, []circulation.NewLineItem{{Store: store, Sent: boxes}})
	require.NoError(t, err)
	return id
}

func (f *fixture) stock(t *testing.T) int {
	totals, err := f.depot.ComputeTotals(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, totals.Stock, 0)
	return totals.Stock
}

// =============================================================================
// TOTALS
// =============================================================================

func TestComputeTotals_ReceivedFromTrips(t *testing.T) {
	// GIVEN: The catalog has "14 - CD EXPRESS" and a trip delivers 100 boxes there
	// THEN: The CD received 100 and holds 100

	f := newFixture(t)
	f.withCenter(t, 100)
	f.deliver(t, "5 - Norte", 30) // not the CD

	totals, err := f.depot.ComputeTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, center, totals.Center)
	assert.Equal(t, 100, totals.ReceivedFromTrips)
	assert.Equal(t, 100, totals.Inflow)
	assert.Equal(t, 100, totals.Stock)
	assert.Equal(t, []int{100}, f.obs.stock)
}

func TestComputeTotals_NoCenterConfigured(t *testing.T) {
	ctx := context.Background()

	t.Run("no candidate", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.CreateStore(ctx, circulation.StoreEntry{Number: 5, Name: "Norte"})
		require.NoError(t, err)
		f.deliver(t, "5 - Norte", 40)

		totals, err := f.depot.ComputeTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, "", totals.Center)
		assert.Equal(t, 0, totals.ReceivedFromTrips)
		assert.Equal(t, 0, totals.Stock)
	})

	t.Run("ambiguous names", func(t *testing.T) {
		f := newFixture(t)
		f.withCenter(t, 100)
		_, err := f.store.CreateStore(ctx, circulation.StoreEntry{Number: 20, Name: "CD Sur"})
		require.NoError(t, err)

		totals, err := f.depot.ComputeTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, totals.ReceivedFromTrips)

		_, err = f.depot.CreateDispatch(ctx, "5 - Norte", march11, 1)
		assert.ErrorIs(t, err, circulation.ErrInsufficientStock)
	})

	t.Run("explicit flag resolves ambiguity", func(t *testing.T) {
		f := newFixture(t)
		f.withCenter(t, 100)
		_, err := f.store.CreateStore(ctx, circulation.StoreEntry{Number: 20, Name: "CD Sur"})
		require.NoError(t, err)

		stores, err := f.store.ListStores(ctx)
		require.NoError(t, err)
		for _, st := range stores {
			if st.Number == 14 {
				st.IsDistributionCenter = true
				require.NoError(t, f.store.UpdateStore(ctx, st))
			}
		}

		totals, err := f.depot.ComputeTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, center, totals.Center)
		assert.Equal(t, 100, totals.Stock)
	})
}

// =============================================================================
// DISPATCHES
// =============================================================================

func TestCreateDispatch_StockChecked(t *testing.T) {
	// GIVEN: Stock 100
	// WHEN: 60 are dispatched, then 50 more
	// THEN: Stock is 40 and the second dispatch is rejected

	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateDispatch(ctx, "Store A", march11, 60)
	require.NoError(t, err)
	assert.Equal(t, 40, f.stock(t))

	d, err := f.depot.GetDispatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, center, d.Center)
	assert.Equal(t, march11, d.Date)

	_, err = f.depot.CreateDispatch(ctx, "Store A", march11, 50)
	var stockErr *circulation.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 50, stockErr.Requested)
	assert.Equal(t, 40, stockErr.Available)
	assert.Equal(t, "rejected", f.obs.ops["depot.create_dispatch"])

	assert.Equal(t, 40, f.stock(t))
}

func TestCreateDispatch_Validation(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	_, err := f.depot.CreateDispatch(ctx, "Store A", march11, 0)
	assert.ErrorIs(t, err, circulation.ErrValidation)
	_, err = f.depot.CreateDispatch(ctx, " ", march11, 1)
	assert.ErrorIs(t, err, circulation.ErrValidation)
	_, err = f.depot.CreateDispatch(ctx, "Store A", time.Time{}, 1)
	assert.ErrorIs(t, err, circulation.ErrValidation)
}

func TestRegisterDispatchReturn_RestoresStock(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateDispatch(ctx, "Store A", march11, 60)
	require.NoError(t, err)

	d, err := f.depot.RegisterDispatchReturn(ctx, id, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Pending())

	totals, err := f.depot.ComputeTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, totals.DispatchReturns)
	assert.Equal(t, 100, totals.Stock)

	_, err = f.depot.RegisterDispatchReturn(ctx, id, 1)
	assert.ErrorIs(t, err, circulation.ErrValidation, "nothing pending")
	_, err = f.depot.RegisterDispatchReturn(ctx, 999, 1)
	assert.True(t, circulation.IsNotFound(err))
}

func TestUpdateDispatchDetailed(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateDispatch(ctx, "Store A", march11, 60)
	require.NoError(t, err)
	_, err = f.depot.RegisterDispatchReturn(ctx, id, 10)
	require.NoError(t, err)
	require.Equal(t, 50, f.stock(t))

	// Excluding the dispatch the CD holds 100; with 20 returned it may send 120
	d, err := f.depot.UpdateDispatchDetailed(ctx, id, march12, 100, 20)
	require.NoError(t, err)
	assert.Equal(t, march12, d.Date)
	assert.Equal(t, 100, d.Sent)
	assert.Equal(t, 20, d.Returned)
	assert.Equal(t, 20, f.stock(t))

	_, err = f.depot.UpdateDispatchDetailed(ctx, id, march12, 121, 20)
	var stockErr *circulation.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 120, stockErr.Available)

	_, err = f.depot.UpdateDispatchDetailed(ctx, id, march12, 10, 11)
	assert.ErrorIs(t, err, circulation.ErrValidation)
	_, err = f.depot.UpdateDispatchDetailed(ctx, id, march12, 0, 0)
	assert.ErrorIs(t, err, circulation.ErrValidation)
	_, err = f.depot.UpdateDispatchDetailed(ctx, 999, march12, 1, 0)
	assert.True(t, circulation.IsNotFound(err))

	// Zero date keeps the stored one
	d, err = f.depot.UpdateDispatchDetailed(ctx, id, time.Time{}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, march12, d.Date)
	assert.Equal(t, 50, f.stock(t))
}

func TestDeleteDispatch_OnlyWithoutReturns(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	withReturns, err := f.depot.CreateDispatch(ctx, "Store A", march11, 30)
	require.NoError(t, err)
	_, err = f.depot.RegisterDispatchReturn(ctx, withReturns, 5)
	require.NoError(t, err)
	plain, err := f.depot.CreateDispatch(ctx, "Store B", march11, 20)
	require.NoError(t, err)

	assert.ErrorIs(t, f.depot.DeleteDispatch(ctx, withReturns), circulation.ErrValidation)
	require.NoError(t, f.depot.DeleteDispatch(ctx, plain))
	assert.True(t, circulation.IsNotFound(f.depot.DeleteDispatch(ctx, plain)))
	assert.Equal(t, 75, f.stock(t))
}

func TestOperatorOverrides(t *testing.T) {
	// GIVEN: A dispatch of 60 with 60 returned, then 100 forwarded to origin
	// WHEN: The returns are reverted
	// THEN: Raw stock goes negative, totals clamp it, new dispatches fail

	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateDispatch(ctx, "Store A", march11, 60)
	require.NoError(t, err)
	_, err = f.depot.RegisterDispatchReturn(ctx, id, 60)
	require.NoError(t, err)
	_, err = f.depot.CreateOriginShipment(ctx, march12, 100)
	require.NoError(t, err)

	reverted, err := f.depot.RevertDispatchToPending(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 60, reverted)
	assert.Equal(t, 0, f.stock(t))

	_, err = f.depot.CreateDispatch(ctx, "Store B", march12, 1)
	var stockErr *circulation.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)

	reverted, err = f.depot.RevertDispatchToPending(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, reverted)

	require.NoError(t, f.depot.ForceDeleteDispatch(ctx, id))
	assert.Equal(t, 0, f.stock(t))
	assert.True(t, circulation.IsNotFound(f.depot.ForceDeleteDispatch(ctx, id)))

	_, err = f.depot.RevertDispatchToPending(ctx, id)
	assert.True(t, circulation.IsNotFound(err))
}

func TestListDispatches(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	a, err := f.depot.CreateDispatch(ctx, "Store A", march11, 10)
	require.NoError(t, err)
	b, err := f.depot.CreateDispatch(ctx, "Store B", march12, 10)
	require.NoError(t, err)
	c, err := f.depot.CreateDispatch(ctx, "Store C", march11, 10)
	require.NoError(t, err)

	all, err := f.depot.ListDispatches(ctx, circulation.DispatchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []circulation.DispatchID{b, c, a}, []circulation.DispatchID{all[0].ID, all[1].ID, all[2].ID})

	ranged, err := f.depot.ListDispatches(ctx, circulation.DispatchFilter{
		DateRange: circulation.DateRange{From: march12},
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)

	byCenter, err := f.depot.ListDispatches(ctx, circulation.DispatchFilter{Center: "other"})
	require.NoError(t, err)
	assert.Empty(t, byCenter)

	summary, err := f.depot.SummaryByCenter(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, center, summary[0].Center)
	assert.Equal(t, 30, summary[0].Pending())
}

// =============================================================================
// ORIGIN SHIPMENTS
// =============================================================================

func TestOriginShipment_DeleteRestoresStock(t *testing.T) {
	// GIVEN: Stock 100
	// WHEN: 100 are forwarded to origin, then the shipment is deleted
	// THEN: Stock goes 100 -> 0 -> 100

	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateOriginShipment(ctx, march11, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t))

	_, err = f.depot.CreateOriginShipment(ctx, march11, 1)
	assert.ErrorIs(t, err, circulation.ErrInsufficientStock)

	require.NoError(t, f.depot.DeleteOriginShipment(ctx, id))
	assert.Equal(t, 100, f.stock(t))
	assert.True(t, circulation.IsNotFound(f.depot.DeleteOriginShipment(ctx, id)))
}

func TestUpdateOriginShipment_ExcludesOwnAmount(t *testing.T) {
	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	id, err := f.depot.CreateOriginShipment(ctx, march11, 80)
	require.NoError(t, err)

	// Only 20 remain, yet growing the shipment to 100 is fine
	sh, err := f.depot.UpdateOriginShipment(ctx, id, march12, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, sh.Sent)
	assert.Equal(t, march12, sh.Date)
	assert.Equal(t, 0, f.stock(t))

	_, err = f.depot.UpdateOriginShipment(ctx, id, march12, 101)
	assert.ErrorIs(t, err, circulation.ErrInsufficientStock)
	_, err = f.depot.UpdateOriginShipment(ctx, id, march12, 0)
	assert.ErrorIs(t, err, circulation.ErrValidation)
	_, err = f.depot.UpdateOriginShipment(ctx, 999, march12, 1)
	assert.True(t, circulation.IsNotFound(err))

	list, err := f.depot.ListOriginShipments(ctx, circulation.DateRange{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 100, list[0].Sent)
}

// =============================================================================
// DESTINATIONS
// =============================================================================

func TestRegisterReturnByDestination_FIFO(t *testing.T) {
	// GIVEN: Two open dispatches to Store A (older 10, newer 20) and one to B
	// WHEN: 15 boxes come back from Store A
	// THEN: The older dispatch closes first, the newer gets the rest

	f := newFixture(t)
	f.withCenter(t, 100)
	ctx := context.Background()

	newer, err := f.depot.CreateDispatch(ctx, "Store A", march12, 20)
	require.NoError(t, err)
	older, err := f.depot.CreateDispatch(ctx, "Store A", march11, 10)
	require.NoError(t, err)
	other, err := f.depot.CreateDispatch(ctx, "Store B", march11, 5)
	require.NoError(t, err)

	applied, err := f.depot.RegisterReturnByDestination(ctx, "Store A", 15)
	require.NoError(t, err)
	assert.Equal(t, 15, applied)

	d, err := f.depot.GetDispatch(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, 10, d.Returned)
	d, err = f.depot.GetDispatch(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Returned)
	d, err = f.depot.GetDispatch(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Returned)

	_, err = f.depot.RegisterReturnByDestination(ctx, "Store A", 16)
	var vErr *circulation.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 15, vErr.Available)

	pending, err := f.depot.PendingByDestination(ctx, circulation.DateRange{})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Store A", pending[0].Destination)
	assert.Equal(t, 15, pending[0].Pending())

	applied, err = f.depot.RegisterAllReturnsByDestination(ctx, "Store A")
	require.NoError(t, err)
	assert.Equal(t, 15, applied)

	applied, err = f.depot.RegisterAllReturnsByDestination(ctx, "Store A")
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	pending, err = f.depot.PendingByDestination(ctx, circulation.DateRange{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Store B", pending[0].Destination)

	assert.Equal(t, 95, f.stock(t))
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestStockNeverNegative_TripDeletedAfterDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateStore(ctx, circulation.StoreEntry{Number: 14, Name: "CD EXPRESS"})
	require.NoError(t, err)
	tripID := f.deliver(t, center, 50)

	_, err = f.depot.CreateDispatch(ctx, "Store A", march11, 50)
	require.NoError(t, err)
	require.NoError(t, f.trips.DeleteTrip(ctx, tripID))

	totals, err := f.depot.ComputeTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Stock)
	assert.Equal(t, 0, totals.ReceivedFromTrips)
}

func TestCreateDispatch_ConcurrentWritersNeverOversell(t *testing.T) {
	// GIVEN: Stock 100 in a file database
	// WHEN: 30 goroutines each dispatch 5 boxes at once
	// THEN: Exactly 20 succeed and stock ends at 0

	store, err := sqlite.New(filepath.Join(t.TempDir(), "crates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f := &fixture{
		store: store,
		trips: trips.NewLedger(store, circulation.Options{}),
		depot: depot.NewLedger(store, circulation.Options{}),
	}
	f.withCenter(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.depot.CreateDispatch(ctx, "Store A", march11, 5)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, circulation.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), ok.Load())
	assert.Equal(t, int32(10), rejected.Load())
	assert.Equal(t, 0, f.stock(t))
}
