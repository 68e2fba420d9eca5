package circulation_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// STOCK FORMULA
// =============================================================================

func TestFlows_Stock(t *testing.T) {
	tests := []struct {
		name  string
		flows circulation.Flows
		raw   int
		stock int
	}{
		{"empty", circulation.Flows{}, 0, 0},
		{"received only", circulation.Flows{ReceivedFromTrips: 100}, 100, 100},
		{"dispatched", circulation.Flows{ReceivedFromTrips: 100, Dispatched: 60}, 40, 40},
		{"dispatch returned", circulation.Flows{ReceivedFromTrips: 100, Dispatched: 60, DispatchReturns: 60}, 100, 100},
		{"forwarded", circulation.Flows{ReceivedFromTrips: 100, ForwardedToOrigin: 100}, 0, 0},
		{"negative is clamped", circulation.Flows{ReceivedFromTrips: 10, Dispatched: 30}, -20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.raw, tt.flows.Raw())
			assert.Equal(t, tt.stock, tt.flows.Stock())
		})
	}
}

func TestFlows_WithoutRowContribution(t *testing.T) {
	// GIVEN: 100 received, dispatch of 60 with 20 back, shipment of 30
	f := circulation.Flows{ReceivedFromTrips: 100, Dispatched: 60, DispatchReturns: 20, ForwardedToOrigin: 30}
	require.Equal(t, 30, f.Raw())

	// WHEN/THEN: removing the dispatch gives back 60 - 20
	assert.Equal(t, 70, f.WithoutDispatch(circulation.Dispatch{Sent: 60, Returned: 20}).Raw())

	// WHEN/THEN: removing the shipment gives back 30
	assert.Equal(t, 60, f.WithoutShipment(circulation.OriginShipment{Sent: 30}).Raw())

	// Original value untouched
	assert.Equal(t, 30, f.Raw())
}

func TestFlows_Totals(t *testing.T) {
	f := circulation.Flows{ReceivedFromTrips: 100, Dispatched: 60, DispatchReturns: 10, ForwardedToOrigin: 5}
	totals := f.Totals("14 - CD EXPRESS")

	assert.Equal(t, "14 - CD EXPRESS", totals.Center)
	assert.Equal(t, 110, totals.Inflow)
	assert.Equal(t, 45, totals.Stock)
}

func TestRequireStock(t *testing.T) {
	assert.NoError(t, circulation.RequireStock(40, 40))

	err := circulation.RequireStock(50, 40)
	var stockErr *circulation.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 50, stockErr.Requested)
	assert.Equal(t, 40, stockErr.Available)
	assert.Equal(t, 10, stockErr.Shortfall())
	assert.ErrorIs(t, err, circulation.ErrInsufficientStock)

	// Negative raw stock is reported as zero available
	err = circulation.RequireStock(1, -5)
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
}

func TestValidateReturn(t *testing.T) {
	assert.NoError(t, circulation.ValidateReturn(5, 5))

	err := circulation.ValidateReturn(0, 5)
	assert.ErrorIs(t, err, circulation.ErrValidation)

	err = circulation.ValidateReturn(20, 15)
	var vErr *circulation.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 20, vErr.Requested)
	assert.Equal(t, 15, vErr.Available)
}

func TestValidateReturnedBounds(t *testing.T) {
	assert.NoError(t, circulation.ValidateReturnedBounds("returned", 0, 10))
	assert.NoError(t, circulation.ValidateReturnedBounds("returned", 10, 10))
	assert.ErrorIs(t, circulation.ValidateReturnedBounds("returned", -1, 10), circulation.ErrValidation)
	assert.ErrorIs(t, circulation.ValidateReturnedBounds("returned", 11, 10), circulation.ErrValidation)
}

func TestReturnRate(t *testing.T) {
	assert.True(t, circulation.ReturnRate(0, 0).Equal(decimal.Zero))
	assert.Equal(t, "25", circulation.ReturnRate(20, 5).String())
	assert.Equal(t, "33.33", circulation.ReturnRate(3, 1).String())
}

// =============================================================================
// DISTRIBUTION CENTER DETECTION
// =============================================================================

func TestDetectDistributionCenter(t *testing.T) {
	norte := circulation.StoreEntry{ID: 1, Number: 5, Name: "Norte"}
	express := circulation.StoreEntry{ID: 2, Number: 14, Name: "CD EXPRESS"}
	other := circulation.StoreEntry{ID: 3, Number: 20, Name: "cd sur"}
	flagged := circulation.StoreEntry{ID: 4, Number: 30, Name: "Hub", IsDistributionCenter: true}

	t.Run("name heuristic", func(t *testing.T) {
		cd, ok := circulation.DetectDistributionCenter([]circulation.StoreEntry{norte, express})
		require.True(t, ok)
		assert.Equal(t, "14 - CD EXPRESS", cd.Display())
	})

	t.Run("no candidates", func(t *testing.T) {
		_, ok := circulation.DetectDistributionCenter([]circulation.StoreEntry{norte})
		assert.False(t, ok)
		assert.Equal(t, "", circulation.CenterDisplay([]circulation.StoreEntry{norte}))
	})

	t.Run("several name matches means no CD", func(t *testing.T) {
		_, ok := circulation.DetectDistributionCenter([]circulation.StoreEntry{express, other})
		assert.False(t, ok)
	})

	t.Run("explicit flag wins over names", func(t *testing.T) {
		cd, ok := circulation.DetectDistributionCenter([]circulation.StoreEntry{express, other, flagged})
		require.True(t, ok)
		assert.Equal(t, circulation.StoreID(4), cd.ID)
	})

	t.Run("several flags means no CD", func(t *testing.T) {
		second := flagged
		second.ID = 5
		_, ok := circulation.DetectDistributionCenter([]circulation.StoreEntry{flagged, second, express})
		assert.False(t, ok)
	})
}

func TestStoreEntry_Display(t *testing.T) {
	assert.Equal(t, "5 - Norte", circulation.StoreEntry{Number: 5, Name: " Norte "}.Display())
	assert.Equal(t, "7", circulation.StoreEntry{Number: 7}.Display())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorClassification(t *testing.T) {
	assert.True(t, circulation.IsNotFound(circulation.NotFound("trip", 3)))
	assert.True(t, circulation.IsClientError(circulation.Invalid("items", "empty")))
	assert.True(t, circulation.IsClientError(&circulation.ConsistencyError{}))
	assert.True(t, circulation.IsClientError(&circulation.InsufficientStockError{}))
	assert.False(t, circulation.IsClientError(errors.New("disk full")))

	assert.Equal(t, "ok", circulation.Outcome(nil))
	assert.Equal(t, "not_found", circulation.Outcome(circulation.NotFound("dispatch", 1)))
	assert.Equal(t, "rejected", circulation.Outcome(circulation.Invalid("q", "bad")))
	assert.Equal(t, "error", circulation.Outcome(errors.New("boom")))
	assert.Equal(t, "trip 3 not found", circulation.NotFound("trip", 3).Error())
}

func TestDateRange_Contains(t *testing.T) {
	r := circulation.DateRange{From: circulation.NewDate(2025, 3, 1), To: circulation.NewDate(2025, 3, 31)}
	assert.True(t, r.Contains(circulation.NewDate(2025, 3, 1)))
	assert.True(t, r.Contains(circulation.NewDate(2025, 3, 31)))
	assert.False(t, r.Contains(circulation.NewDate(2025, 4, 1)))
	assert.True(t, circulation.DateRange{}.Contains(circulation.NewDate(1999, 1, 1)))

	d, err := circulation.ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", circulation.FormatDate(d))

	d, err = circulation.ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}
