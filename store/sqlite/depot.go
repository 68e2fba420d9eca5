package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// DEPOT STORE (circulation.DepotStore interface)
// =============================================================================

// Flows sums every input of the stock formula in one statement.
func (q queries) Flows(ctx context.Context, center string) (circulation.Flows, error) {
	var f circulation.Flows
	err := q.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(boxes_sent), 0) FROM trip_line_items WHERE store = ? AND ? <> ''),
			(SELECT COALESCE(SUM(boxes_sent), 0) FROM cd_dispatches),
			(SELECT COALESCE(SUM(boxes_returned), 0) FROM cd_dispatches),
			(SELECT COALESCE(SUM(boxes_sent), 0) FROM cd_origin_shipments)
	`, center, center).Scan(&f.ReceivedFromTrips, &f.Dispatched, &f.DispatchReturns, &f.ForwardedToOrigin)
	if err != nil {
		return f, fmt.Errorf("failed to sum stock flows: %w", err)
	}
	return f, nil
}

// =============================================================================
// DISPATCHES
// =============================================================================

const dispatchColumns = "id, center, destination, dispatch_date, boxes_sent, boxes_returned"

func scanDispatch(row rowScanner) (circulation.Dispatch, error) {
	var d circulation.Dispatch
	var date string
	if err := row.Scan(&d.ID, &d.Center, &d.Destination, &date, &d.Sent, &d.Returned); err != nil {
		return d, err
	}
	var err error
	d.Date, err = parseDate(date)
	return d, err
}

func (q queries) queryDispatches(ctx context.Context, query string, args ...any) ([]circulation.Dispatch, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var dispatches []circulation.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}

func (q queries) InsertDispatch(ctx context.Context, d circulation.Dispatch) (circulation.DispatchID, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO cd_dispatches (center, destination, dispatch_date, boxes_sent, boxes_returned)
		VALUES (?, ?, ?, ?, ?)`,
		d.Center, d.Destination, circulation.FormatDate(d.Date), d.Sent, d.Returned,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert dispatch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return circulation.DispatchID(id), nil
}

func (q queries) GetDispatch(ctx context.Context, id circulation.DispatchID) (*circulation.Dispatch, error) {
	d, err := scanDispatch(q.q.QueryRowContext(ctx,
		"SELECT "+dispatchColumns+" FROM cd_dispatches WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return &d, nil
}

func (q queries) UpdateDispatch(ctx context.Context, d circulation.Dispatch) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE cd_dispatches
		SET dispatch_date = ?, boxes_sent = ?, boxes_returned = ?
		WHERE id = ?`,
		circulation.FormatDate(d.Date), d.Sent, d.Returned, d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update dispatch: %w", err)
	}
	return nil
}

func (q queries) SetDispatchReturned(ctx context.Context, id circulation.DispatchID, returned int) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE cd_dispatches SET boxes_returned = ? WHERE id = ?", returned, id)
	if err != nil {
		return fmt.Errorf("failed to set dispatch returns: %w", err)
	}
	return nil
}

func (q queries) DeleteDispatch(ctx context.Context, id circulation.DispatchID) (bool, error) {
	res, err := q.q.ExecContext(ctx, "DELETE FROM cd_dispatches WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete dispatch: %w", err)
	}
	return affected(res)
}

func (q queries) ListDispatches(ctx context.Context, filter circulation.DispatchFilter) ([]circulation.Dispatch, error) {
	var w where
	w.dateRange("dispatch_date", filter.DateRange)
	if filter.Center != "" {
		w.add("center = ?", filter.Center)
	}
	return q.queryDispatches(ctx,
		"SELECT "+dispatchColumns+" FROM cd_dispatches"+w.String()+" ORDER BY dispatch_date DESC, id DESC",
		w.args...)
}

func (q queries) OpenDispatches(ctx context.Context, destination string) ([]circulation.Dispatch, error) {
	return q.queryDispatches(ctx, `
		SELECT `+dispatchColumns+` FROM cd_dispatches
		WHERE destination = ? AND boxes_returned < boxes_sent
		ORDER BY dispatch_date ASC, id ASC`, destination)
}

func (q queries) DestinationBalances(ctx context.Context, r circulation.DateRange) ([]circulation.DestinationBalance, error) {
	var w where
	w.dateRange("dispatch_date", r)

	rows, err := q.q.QueryContext(ctx, `
		SELECT destination, SUM(boxes_sent), SUM(boxes_returned)
		FROM cd_dispatches`+w.String()+`
		GROUP BY destination
		ORDER BY destination`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sum destination balances: %w", err)
	}
	defer rows.Close()

	var balances []circulation.DestinationBalance
	for rows.Next() {
		var b circulation.DestinationBalance
		if err := rows.Scan(&b.Destination, &b.Sent, &b.Returned); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (q queries) CenterSummaries(ctx context.Context) ([]circulation.CenterSummary, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT center, SUM(boxes_sent), SUM(boxes_returned)
		FROM cd_dispatches
		GROUP BY center
		ORDER BY center`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize centers: %w", err)
	}
	defer rows.Close()

	var summaries []circulation.CenterSummary
	for rows.Next() {
		var c circulation.CenterSummary
		if err := rows.Scan(&c.Center, &c.Sent, &c.Returned); err != nil {
			return nil, err
		}
		summaries = append(summaries, c)
	}
	return summaries, rows.Err()
}

// =============================================================================
// ORIGIN SHIPMENTS
// =============================================================================

func scanShipment(row rowScanner) (circulation.OriginShipment, error) {
	var s circulation.OriginShipment
	var date string
	if err := row.Scan(&s.ID, &date, &s.Sent); err != nil {
		return s, err
	}
	var err error
	s.Date, err = parseDate(date)
	return s, err
}

func (q queries) InsertShipment(ctx context.Context, s circulation.OriginShipment) (circulation.ShipmentID, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO cd_origin_shipments (shipment_date, boxes_sent) VALUES (?, ?)",
		circulation.FormatDate(s.Date), s.Sent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert origin shipment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return circulation.ShipmentID(id), nil
}

func (q queries) GetShipment(ctx context.Context, id circulation.ShipmentID) (*circulation.OriginShipment, error) {
	s, err := scanShipment(q.q.QueryRowContext(ctx,
		"SELECT id, shipment_date, boxes_sent FROM cd_origin_shipments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get origin shipment: %w", err)
	}
	return &s, nil
}

func (q queries) UpdateShipment(ctx context.Context, s circulation.OriginShipment) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE cd_origin_shipments SET shipment_date = ?, boxes_sent = ? WHERE id = ?",
		circulation.FormatDate(s.Date), s.Sent, s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update origin shipment: %w", err)
	}
	return nil
}

func (q queries) DeleteShipment(ctx context.Context, id circulation.ShipmentID) (bool, error) {
	res, err := q.q.ExecContext(ctx, "DELETE FROM cd_origin_shipments WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete origin shipment: %w", err)
	}
	return affected(res)
}

func (q queries) ListShipments(ctx context.Context, r circulation.DateRange) ([]circulation.OriginShipment, error) {
	var w where
	w.dateRange("shipment_date", r)

	rows, err := q.q.QueryContext(ctx,
		"SELECT id, shipment_date, boxes_sent FROM cd_origin_shipments"+w.String()+
			" ORDER BY shipment_date DESC, id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list origin shipments: %w", err)
	}
	defer rows.Close()

	var shipments []circulation.OriginShipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}
