package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// TRIP STORE (circulation.TripStore interface)
// =============================================================================

func (q queries) DriverExists(ctx context.Context, id circulation.DriverID) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM drivers WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up driver: %w", err)
	}
	return n > 0, nil
}

func (q queries) InsertTrip(ctx context.Context, trip circulation.Trip) (circulation.TripID, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO trips (driver_id, trip_date, status) VALUES (?, ?, ?)",
		trip.DriverID, circulation.FormatDate(trip.Date), trip.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return circulation.TripID(id), nil
}

func (q queries) GetTrip(ctx context.Context, id circulation.TripID) (*circulation.Trip, error) {
	var trip circulation.Trip
	var date string

	err := q.q.QueryRowContext(ctx,
		"SELECT id, driver_id, trip_date, status FROM trips WHERE id = ?", id,
	).Scan(&trip.ID, &trip.DriverID, &date, &trip.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	if trip.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	return &trip, nil
}

func (q queries) SetTripStatus(ctx context.Context, id circulation.TripID, status circulation.TripStatus) error {
	_, err := q.q.ExecContext(ctx, "UPDATE trips SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to set trip status: %w", err)
	}
	return nil
}

func (q queries) DeleteTrip(ctx context.Context, id circulation.TripID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM trip_line_items WHERE trip_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, "DELETE FROM trips WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}
	return nil
}

func (q queries) ListTrips(ctx context.Context, filter circulation.TripFilter) ([]circulation.TripSummary, error) {
	var w where
	w.dateRange("t.trip_date", filter.DateRange)
	if filter.DriverID != 0 {
		w.add("t.driver_id = ?", filter.DriverID)
	}
	if filter.Status != "" {
		w.add("t.status = ?", filter.Status)
	}

	query := `
		SELECT t.id, t.driver_id, t.trip_date, t.status, COALESCE(d.name, ''),
		       COUNT(li.id), COALESCE(SUM(li.boxes_sent), 0), COALESCE(SUM(li.boxes_returned), 0)
		FROM trips t
		LEFT JOIN drivers d ON d.id = t.driver_id
		LEFT JOIN trip_line_items li ON li.trip_id = t.id` + w.String() + `
		GROUP BY t.id
		ORDER BY t.trip_date DESC, t.id DESC`

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []circulation.TripSummary
	for rows.Next() {
		var t circulation.TripSummary
		var date string
		if err := rows.Scan(&t.ID, &t.DriverID, &date, &t.Status, &t.DriverName,
			&t.Stores, &t.Sent, &t.Returned); err != nil {
			return nil, err
		}
		if t.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = "id, trip_id, store, boxes_sent, boxes_returned"

func scanLineItem(row rowScanner) (circulation.LineItem, error) {
	var li circulation.LineItem
	err := row.Scan(&li.ID, &li.TripID, &li.Store, &li.Sent, &li.Returned)
	return li, err
}

func (q queries) InsertLineItem(ctx context.Context, item circulation.LineItem) (circulation.LineItemID, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO trip_line_items (trip_id, store, boxes_sent, boxes_returned) VALUES (?, ?, ?, ?)",
		item.TripID, item.Store, item.Sent, item.Returned,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert line item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return circulation.LineItemID(id), nil
}

func (q queries) GetLineItem(ctx context.Context, id circulation.LineItemID) (*circulation.LineItem, error) {
	li, err := scanLineItem(q.q.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM trip_line_items WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get line item: %w", err)
	}
	return &li, nil
}

func (q queries) ListLineItems(ctx context.Context, tripID circulation.TripID) ([]circulation.LineItem, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+lineItemColumns+" FROM trip_line_items WHERE trip_id = ? ORDER BY id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var items []circulation.LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (q queries) SetReturned(ctx context.Context, id circulation.LineItemID, returned int) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE trip_line_items SET boxes_returned = ? WHERE id = ?", returned, id)
	if err != nil {
		return fmt.Errorf("failed to set returned boxes: %w", err)
	}
	return nil
}

func (q queries) DeleteLineItem(ctx context.Context, id circulation.LineItemID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM trip_line_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	return nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

func (q queries) TripStats(ctx context.Context) (circulation.DashboardStats, error) {
	var st circulation.DashboardStats
	err := q.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM drivers),
			(SELECT COUNT(*) FROM trips WHERE status = 'in_progress'),
			(SELECT COALESCE(SUM(boxes_sent), 0) FROM trip_line_items),
			(SELECT COALESCE(SUM(boxes_returned), 0) FROM trip_line_items)
	`).Scan(&st.Drivers, &st.ActiveTrips, &st.Sent, &st.Returned)
	if err != nil {
		return st, fmt.Errorf("failed to compute trip stats: %w", err)
	}
	return st, nil
}

func (q queries) BalancesByStore(ctx context.Context) ([]circulation.StoreBalance, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT store, SUM(boxes_sent), SUM(boxes_returned)
		FROM trip_line_items
		GROUP BY store
		ORDER BY store`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum store balances: %w", err)
	}
	defer rows.Close()

	var balances []circulation.StoreBalance
	for rows.Next() {
		var b circulation.StoreBalance
		if err := rows.Scan(&b.Store, &b.Sent, &b.Returned); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// =============================================================================
// RETURN LOG (circulation.ReturnLogStore interface)
// =============================================================================

func (q queries) AppendReturnEvent(ctx context.Context, ev circulation.ReturnEvent) (circulation.ReturnEventID, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO return_log
		(trip_id, line_item_id, store, quantity, kind, acting_user, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TripID, ev.LineItemID, ev.Store, ev.Quantity, ev.Kind, ev.User, ev.BatchID,
		ev.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append return event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return circulation.ReturnEventID(id), nil
}

const returnColumns = "r.id, r.trip_id, r.line_item_id, r.store, r.quantity, r.kind, r.acting_user, r.batch_id, r.created_at"

func scanReturnEvent(row rowScanner, extra ...any) (circulation.ReturnEvent, error) {
	var ev circulation.ReturnEvent
	var createdAt string
	dest := append([]any{&ev.ID, &ev.TripID, &ev.LineItemID, &ev.Store, &ev.Quantity,
		&ev.Kind, &ev.User, &ev.BatchID, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return ev, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ev, fmt.Errorf("corrupt timestamp %q: %w", createdAt, err)
	}
	ev.CreatedAt = t
	return ev, nil
}

func (q queries) GetReturnEvent(ctx context.Context, id circulation.ReturnEventID) (*circulation.ReturnEvent, error) {
	ev, err := scanReturnEvent(q.q.QueryRowContext(ctx,
		"SELECT "+returnColumns+" FROM return_log r WHERE r.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get return event: %w", err)
	}
	return &ev, nil
}

func (q queries) UpdateReturnQuantity(ctx context.Context, id circulation.ReturnEventID, quantity int) error {
	_, err := q.q.ExecContext(ctx, "UPDATE return_log SET quantity = ? WHERE id = ?", quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update return event: %w", err)
	}
	return nil
}

func (q queries) DeleteReturnEvent(ctx context.Context, id circulation.ReturnEventID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM return_log WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete return event: %w", err)
	}
	return nil
}

func (q queries) ListReturnEvents(ctx context.Context, filter circulation.ReturnFilter) ([]circulation.ReturnEventView, error) {
	var w where
	w.dateRange("substr(r.created_at, 1, 10)", filter.DateRange)
	if filter.TripID != 0 {
		w.add("r.trip_id = ?", filter.TripID)
	}
	if filter.Store != "" {
		w.add("r.store = ?", filter.Store)
	}

	query := `
		SELECT ` + returnColumns + `,
		       CASE WHEN li.id IS NULL THEN 0 ELSE 1 END,
		       COALESCE(li.boxes_sent, 0), COALESCE(li.boxes_returned, 0)
		FROM return_log r
		LEFT JOIN trip_line_items li ON li.id = r.line_item_id` + w.String() + `
		ORDER BY r.created_at DESC, r.id DESC`

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list return events: %w", err)
	}
	defer rows.Close()

	var events []circulation.ReturnEventView
	for rows.Next() {
		var v circulation.ReturnEventView
		var exists int
		ev, err := scanReturnEvent(rows, &exists, &v.LineSent, &v.LineReturned)
		if err != nil {
			return nil, err
		}
		v.ReturnEvent = ev
		v.LineExists = exists == 1
		events = append(events, v)
	}
	return events, rows.Err()
}
