/*
reconcile.go - Stock reconciliation for the distribution center

PURPOSE:
  One formula answers "how many boxes sit at the CD right now?". Every
  CD-side mutation that removes boxes (dispatch, origin shipment, edits of
  either) revalidates against it inside its own write transaction.

STOCK FORMULA:
  Inflow = ReceivedFromTrips + DispatchReturns
  Raw    = Inflow - Dispatched - ForwardedToOrigin
  Stock  = max(0, Raw)

  ReceivedFromTrips: boxes_sent of trip line items whose store display
                     equals the detected CD display (0 when no CD is set up)
  DispatchReturns:   boxes returned to the CD on its own dispatches
  Dispatched:        boxes the CD sent to stores
  ForwardedToOrigin: boxes sent back to the manufacturer

EXCLUDING A ROW:
  Editing an existing dispatch or shipment must not count the row's old
  values against itself. WithoutDispatch / WithoutShipment remove one row's
  contribution before the new values are checked.

EXAMPLE:
  100 boxes arrive at "14 - CD EXPRESS" on a trip, 60 are dispatched:
    Raw = 100 + 0 - 60 - 0 = 40
  A second dispatch of 50 fails with InsufficientStockError{50, 40}.
  When the first dispatch is returned in full:
    Raw = 100 + 60 - 60 - 0 = 100

SEE ALSO:
  - depot/ledger.go: The only caller that mutates stock
  - errors.go: InsufficientStockError, ValidationError
*/
package circulation

import "github.com/shopspring/decimal"

// =============================================================================
// FLOWS - raw sums read from the tables
// =============================================================================

// Flows holds the four sums the stock formula is built from.
type Flows struct {
	ReceivedFromTrips int
	Dispatched        int
	DispatchReturns   int
	ForwardedToOrigin int
}

// Inflow is every box that ever entered the CD.
func (f Flows) Inflow() int { return f.ReceivedFromTrips + f.DispatchReturns }

// Raw is the unclamped stock. It can be negative after operator overrides
// (force delete, revert) or after a trip to the CD is deleted.
func (f Flows) Raw() int { return f.Inflow() - f.Dispatched - f.ForwardedToOrigin }

// Stock is the reconciled stock, never negative.
func (f Flows) Stock() int { return max(0, f.Raw()) }

// WithoutDispatch removes one dispatch's current contribution.
func (f Flows) WithoutDispatch(d Dispatch) Flows {
	f.Dispatched -= d.Sent
	f.DispatchReturns -= d.Returned
	return f
}

// WithoutShipment removes one origin shipment's current contribution.
func (f Flows) WithoutShipment(s OriginShipment) Flows {
	f.ForwardedToOrigin -= s.Sent
	return f
}

// Totals is the reported view of the CD balance.
type Totals struct {
	Center            string // detected CD display; "" when none is configured
	ReceivedFromTrips int
	Dispatched        int
	DispatchReturns   int
	ForwardedToOrigin int
	Inflow            int
	Stock             int
}

// Totals renders f for the given CD display.
func (f Flows) Totals(center string) Totals {
	return Totals{
		Center:            center,
		ReceivedFromTrips: f.ReceivedFromTrips,
		Dispatched:        f.Dispatched,
		DispatchReturns:   f.DispatchReturns,
		ForwardedToOrigin: f.ForwardedToOrigin,
		Inflow:            f.Inflow(),
		Stock:             f.Stock(),
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// RequireStock fails when requested boxes exceed the raw balance.
func RequireStock(requested, raw int) error {
	if requested > raw {
		return &InsufficientStockError{Requested: requested, Available: max(0, raw)}
	}
	return nil
}

// ValidateQuantity rejects zero and negative box counts.
func ValidateQuantity(field string, q int) error {
	if q <= 0 {
		return &ValidationError{Field: field, Message: "must be greater than 0", Requested: q}
	}
	return nil
}

// ValidateReturn checks a return against what is still pending.
// Excess is rejected rather than clamped so nothing is silently overcounted.
func ValidateReturn(q, pending int) error {
	if err := ValidateQuantity("quantity", q); err != nil {
		return err
	}
	if q > pending {
		return &ValidationError{
			Field:     "quantity",
			Message:   "exceeds pending boxes",
			Requested: q,
			Available: pending,
		}
	}
	return nil
}

// ValidateReturnedBounds enforces 0 <= returned <= sent.
func ValidateReturnedBounds(field string, returned, sent int) error {
	if returned < 0 {
		return &ValidationError{Field: field, Message: "cannot be negative", Requested: returned}
	}
	if returned > sent {
		return &ValidationError{
			Field:     field,
			Message:   "cannot exceed boxes sent",
			Requested: returned,
			Available: sent,
		}
	}
	return nil
}

// =============================================================================
// RATES
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ReturnRate is returned/sent as a percentage with two decimals.
func ReturnRate(sent, returned int) decimal.Decimal {
	if sent <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(returned)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(sent))).
		Round(2)
}
