package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	mysqlDuplicateKey = "Error 1062"
	sqliteUnique      = "UNIQUE constraint failed"
)

// IsDuplicateKeyErr reports a unique constraint violation on any of the
// supported dialects, e.g. two collectives racing for the same slug.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, mysqlDuplicateKey) || strings.Contains(msg, sqliteUnique)
}
