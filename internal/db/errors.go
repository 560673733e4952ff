package db

import (
	"errors"

	"github.com/lib/pq"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// ErrDuplicate is returned when an authoritative record already exists for
// the content hash.
var ErrDuplicate = errors.New("authoritative record already exists")

// IsUniqueViolation recognises unique constraint errors from both supported
// drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
