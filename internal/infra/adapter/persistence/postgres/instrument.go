package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"osiri-dispatch/internal/observability/metrics"
)

// timedDB records db_query_duration_seconds for every statement, labelled by
// its leading SQL verb.
type timedDB struct {
	next DBTX
	now  func() time.Time
}

// Instrument wraps db so that every statement is timed.
func Instrument(db DBTX) DBTX {
	return &timedDB{next: db, now: time.Now}
}

func (t *timedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer t.observe(query, t.now())
	return t.next.ExecContext(ctx, query, args...)
}

func (t *timedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer t.observe(query, t.now())
	return t.next.QueryContext(ctx, query, args...)
}

func (t *timedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer t.observe(query, t.now())
	return t.next.QueryRowContext(ctx, query, args...)
}

func (t *timedDB) observe(query string, start time.Time) {
	metrics.RecordDBQuery(statementVerb(query), t.now().Sub(start))
}

// statementVerb returns the lower-cased first keyword of query, or "other".
func statementVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "other"
	}
	switch verb := strings.ToLower(fields[0]); verb {
	case "select", "insert", "update", "delete", "with":
		return verb
	default:
		return "other"
	}
}
