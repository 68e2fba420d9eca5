package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crate-ledger/circulation"
	"github.com/warp/crate-ledger/store/sqlite"
	"github.com/warp/crate-ledger/trips"
)

// These tests drive the store against go-sqlmock to pin down transaction
// boundaries: a failure anywhere inside WithTx must end in ROLLBACK and
// never reach COMMIT.

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewFromDB(db), mock
}

func TestWithTx_RollsBackOnWriteFailure(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO trips").
		WithArgs(int64(1), "2025-03-10", "in_progress").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO trip_line_items").
		WithArgs(int64(7), "5 - Norte", int64(3), int64(0)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(s circulation.Store) error {
		id, err := s.InsertTrip(ctx, circulation.Trip{
			DriverID: 1,
			Date:     circulation.NewDate(2025, time.March, 10),
			Status:   circulation.TripInProgress,
		})
		if err != nil {
			return err
		}
		_, err = s.InsertLineItem(ctx, circulation.LineItem{TripID: id, Store: "5 - Norte", Sent: 3})
		return err
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert line item")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE trips SET status").
		WithArgs("completed", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(s circulation.Store) error {
		return s.SetTripStatus(ctx, 4, circulation.TripCompleted)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterReturn_AuditFailureRollsBackLineUpdate(t *testing.T) {
	// GIVEN: A line item with 20 sent, 5 returned
	// WHEN: The audit insert fails after the line was updated
	// THEN: The whole transaction is rolled back

	store, mock := newMockStore(t)
	ledger := trips.NewLedger(store, circulation.Options{})
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, trip_id, store, boxes_sent, boxes_returned FROM trip_line_items WHERE id").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id", "store", "boxes_sent", "boxes_returned"}).
			AddRow(11, 3, "5 - Norte", 20, 5))
	mock.ExpectExec("UPDATE trip_line_items SET boxes_returned").
		WithArgs(int64(9), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO return_log").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := ledger.RegisterReturn(ctx, 11, 4, "maria")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append return event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterReturn_RejectedReturnWritesNothing(t *testing.T) {
	store, mock := newMockStore(t)
	ledger := trips.NewLedger(store, circulation.Options{})
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM trip_line_items WHERE id").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id", "store", "boxes_sent", "boxes_returned"}).
			AddRow(11, 3, "5 - Norte", 20, 5))
	mock.ExpectRollback()

	_, err := ledger.RegisterReturn(ctx, 11, 16, "maria")

	assert.ErrorIs(t, err, circulation.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
