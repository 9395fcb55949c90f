package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrRepositoryError     = errors.New("could not fetch data from repository")
)

// NotFound returns an error for a missing entity that matches ErrNotFound.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// Translate maps gorm and driver errors onto the package sentinels. notFound
// is returned for gorm.ErrRecordNotFound.
func Translate(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "foreign key"):
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, err.Error())
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}

	return fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
}

// Tenants limits a query on table to rows owned by any of the given tenants.
// No tenants means no restriction.
func Tenants(table string, tenants ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(tenants) == 0 {
			return db
		}
		return db.Where(table+".organization_id IN ?", tenants)
	}
}
