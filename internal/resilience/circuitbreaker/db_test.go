package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBCircuitBreaker(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)

	require.NotNil(t, dcb)
	assert.Same(t, db, dcb.DB())
	assert.Equal(t, gobreaker.StateClosed, dcb.State())
}

func TestDBCircuitBreaker_QueryContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)
	mock.ExpectQuery("SELECT (.+) FROM notification_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("log-1"))

	rows, err := dcb.QueryContext(context.Background(), "SELECT id FROM notification_logs")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var id string
	require.NoError(t, rows.Scan(&id))
	assert.Equal(t, "log-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBCircuitBreaker_ExecContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)
	mock.ExpectExec("UPDATE notification_logs").
		WithArgs("success", "log-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := dcb.ExecContext(context.Background(),
		"UPDATE notification_logs SET status = $1 WHERE id = $2", "success", "log-1")
	require.NoError(t, err)

	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := DBConfig()
	cfg.Timeout = 50 * time.Millisecond
	dcb := NewDBCircuitBreakerWithConfig(db, cfg)
	ctx := context.Background()

	dbErr := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT (.+)").WillReturnError(dbErr)
	}
	for i := 0; i < 5; i++ {
		_, err := dcb.QueryContext(ctx, "SELECT 1")
		require.Error(t, err)
	}

	require.True(t, dcb.IsOpen())

	_, err = dcb.QueryContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())

	time.Sleep(80 * time.Millisecond)
	mock.ExpectQuery("SELECT (.+)").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	rows, err := dcb.QueryContext(ctx, "SELECT 1")
	require.NoError(t, err)
	_ = rows.Close()
}

func TestDBCircuitBreaker_QueryRowContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id = ?").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"notifications_used"}).AddRow(7))

	var used int
	require.NoError(t, dcb.QueryRowContext(context.Background(),
		"SELECT notifications_used FROM organizations WHERE id = ?", "org-1").Scan(&used))
	assert.Equal(t, 7, used)
}

func TestDBConfig(t *testing.T) {
	cfg := DBConfig()
	assert.Equal(t, "database", cfg.Name)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.Equal(t, 1.0, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
