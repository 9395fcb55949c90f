package database

import (
	"sync"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

var migrated sync.Map

// Connect opens the database behind connect and migrates the schema the first
// time a given database is seen.
func Connect(connect ConnectorFunc) (*gorm.DB, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}

	if _, done := migrated.LoadOrStore(db, true); !done {
		err = db.AutoMigrate(models.All()...)
		if err != nil {
			migrated.Delete(db)
			return nil, err
		}
	}

	return db, nil
}

// Paginate counts the rows matched by query and fetches the requested window.
// A limit of zero returns every row.
func Paginate[T any](query *gorm.DB, order string, offset, limit int) (types.Collection[T], error) {
	query = query.Session(&gorm.Session{})

	var total int64
	err := query.Count(&total).Error
	if err != nil {
		return types.Collection[T]{}, Translate(err, ErrNotFound)
	}

	page := query
	if order != "" {
		page = page.Order(order)
	}
	if offset > 0 {
		page = page.Offset(offset)
	}
	if limit > 0 {
		page = page.Limit(limit)
	}

	var data []T
	err = page.Find(&data).Error
	if err != nil {
		return types.Collection[T]{}, Translate(err, ErrNotFound)
	}

	return types.NewCollection(data, uint64(offset), uint64(limit), uint64(total)), nil
}

// Between limits column to [from, to]. A nil bound leaves that end open.
func Between(column string, from, to *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where(column+" >= ?", *from)
		}
		if to != nil {
			db = db.Where(column+" <= ?", *to)
		}
		return db
	}
}
