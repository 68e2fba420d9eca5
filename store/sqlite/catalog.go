package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/crate-ledger/circulation"
)

// =============================================================================
// CATALOG LOOKUP (circulation.CatalogLookup interface)
// =============================================================================

func (q queries) ListStores(ctx context.Context) ([]circulation.StoreEntry, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, number, name, is_distribution_center FROM stores ORDER BY number")
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var stores []circulation.StoreEntry
	for rows.Next() {
		var st circulation.StoreEntry
		var cd int
		if err := rows.Scan(&st.ID, &st.Number, &st.Name, &cd); err != nil {
			return nil, err
		}
		st.IsDistributionCenter = cd != 0
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

// =============================================================================
// STORE CATALOG
// =============================================================================

// CreateStore adds a catalog entry. A zero Number takes the next free one.
func (s *Store) CreateStore(ctx context.Context, st circulation.StoreEntry) (circulation.StoreEntry, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return st, circulation.Invalid("name", "is required")
	}
	if st.Number < 0 {
		return st, circulation.Invalid("number", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Number == 0 {
		n, err := s.nextStoreNumber(ctx)
		if err != nil {
			return st, err
		}
		st.Number = n
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO stores (number, name, is_distribution_center) VALUES (?, ?, ?)",
		st.Number, st.Name, boolInt(st.IsDistributionCenter),
	)
	if isUniqueConstraintError(err) {
		return st, circulation.Invalid("number", "store number or name already in use")
	}
	if err != nil {
		return st, fmt.Errorf("failed to create store: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return st, err
	}
	st.ID = circulation.StoreID(id)
	return st, nil
}

// UpdateStore rewrites number, name and CD flag of an entry. Trips and
// dispatches keep the display string they were written with.
func (s *Store) UpdateStore(ctx context.Context, st circulation.StoreEntry) error {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return circulation.Invalid("name", "is required")
	}
	if st.Number <= 0 {
		return circulation.Invalid("number", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE stores SET number = ?, name = ?, is_distribution_center = ? WHERE id = ?",
		st.Number, st.Name, boolInt(st.IsDistributionCenter), st.ID,
	)
	if isUniqueConstraintError(err) {
		return circulation.Invalid("number", "store number or name already in use")
	}
	if err != nil {
		return fmt.Errorf("failed to update store: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return circulation.NotFound("store", int64(st.ID))
	}
	return nil
}

// DeleteStore removes a catalog entry.
func (s *Store) DeleteStore(ctx context.Context, id circulation.StoreID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM stores WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return circulation.NotFound("store", int64(id))
	}
	return nil
}

// NextStoreNumber suggests the number for a new store.
func (s *Store) NextStoreNumber(ctx context.Context) (int, error) {
	return s.nextStoreNumber(ctx)
}

func (s *Store) nextStoreNumber(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(number), 0) + 1 FROM stores").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to compute next store number: %w", err)
	}
	return n, nil
}

// =============================================================================
// DRIVERS
// =============================================================================

// CreateDriver adds a driver. Names are unique.
func (s *Store) CreateDriver(ctx context.Context, d circulation.Driver) (circulation.Driver, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, circulation.Invalid("name", "is required")
	}
	if d.RegisteredOn.IsZero() {
		d.RegisteredOn = circulation.Today()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO drivers (name, contact, registered_on) VALUES (?, ?, ?)",
		d.Name, strings.TrimSpace(d.Contact), circulation.FormatDate(d.RegisteredOn),
	)
	if isUniqueConstraintError(err) {
		return d, circulation.Invalid("name", fmt.Sprintf("driver %q already exists", d.Name))
	}
	if err != nil {
		return d, fmt.Errorf("failed to create driver: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return d, err
	}
	d.ID = circulation.DriverID(id)
	return d, nil
}

// GetDriver returns nil when the driver does not exist.
func (s *Store) GetDriver(ctx context.Context, id circulation.DriverID) (*circulation.Driver, error) {
	var d circulation.Driver
	var registered string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, contact, registered_on FROM drivers WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.Contact, &registered)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	if d.RegisteredOn, err = parseDate(registered); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrivers returns all drivers by name.
func (s *Store) ListDrivers(ctx context.Context) ([]circulation.Driver, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, contact, registered_on FROM drivers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []circulation.Driver
	for rows.Next() {
		var d circulation.Driver
		var registered string
		if err := rows.Scan(&d.ID, &d.Name, &d.Contact, &registered); err != nil {
			return nil, err
		}
		if d.RegisteredOn, err = parseDate(registered); err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// DeleteDriver removes a driver without trips.
func (s *Store) DeleteDriver(ctx context.Context, id circulation.DriverID) error {
	return s.inTx(ctx, func(q queries) error {
		var trips int
		err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips WHERE driver_id = ?", id).Scan(&trips)
		if err != nil {
			return fmt.Errorf("failed to count driver trips: %w", err)
		}
		if trips > 0 {
			return &circulation.ValidationError{
				Field:     "driver",
				Message:   "has trips",
				Requested: trips,
			}
		}

		res, err := q.q.ExecContext(ctx, "DELETE FROM drivers WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete driver: %w", err)
		}
		ok, err := affected(res)
		if err != nil {
			return err
		}
		if !ok {
			return circulation.NotFound("driver", int64(id))
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
