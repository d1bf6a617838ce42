package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// postgres (pgx or lib/pq) or sqlite. When constraintName is provided the
// violated constraint must match it. sqlite names the columns instead of the
// index, so columns ("table.column") identify the same constraint there.
func IsUniqueViolation(err error, constraintName string, columns ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key value") {
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	idx := strings.Index(msg, sqliteUniqueFailed)
	if idx < 0 {
		return false
	}
	if constraintName == "" || strings.Contains(msg, constraintName) {
		return true
	}
	return len(columns) > 0 && sameColumns(msg[idx+len(sqliteUniqueFailed):], columns)
}

const sqliteUniqueFailed = "UNIQUE constraint failed:"

// sameColumns compares the column list of a sqlite message with columns,
// ignoring order.
func sameColumns(reported string, columns []string) bool {
	got := map[string]bool{}
	for _, col := range strings.Split(reported, ",") {
		col = strings.TrimSpace(col)
		if i := strings.IndexAny(col, " ("); i >= 0 {
			col = col[:i]
		}
		if col != "" {
			got[col] = true
		}
	}
	if len(got) != len(columns) {
		return false
	}
	for _, col := range columns {
		if !got[col] {
			return false
		}
	}
	return true
}
