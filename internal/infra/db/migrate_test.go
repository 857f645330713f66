package db

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUp_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, step := range schema {
		mock.ExpectExec(regexp.QuoteMeta(step.sql)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, MigrateUp(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE EXTENSION").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subscription_plans").
		WillReturnError(sql.ErrConnDone)

	err = MigrateUp(context.Background(), db)

	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "subscription_plans")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_NotificationLogsHasNoUniqueSuccessConstraint(t *testing.T) {
	// At-most-one success is enforced by the repository check, not the schema.
	for _, step := range schema {
		if step.name == "notification_logs" {
			assert.NotContains(t, step.sql, "UNIQUE")
			return
		}
	}
	t.Fatal("notification_logs step missing")
}

func TestMigrateDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.MatchExpectationsInOrder(true)
	mock.ExpectExec("DROP TABLE IF EXISTS notification_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 9; i++ {
		mock.ExpectExec("DROP").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, MigrateDown(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
