package inventory

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate moq -rm -out inventoryrepository_mock.go . InventoryRepository

type InventoryRepository interface {
	GetItem(ctx context.Context, itemID string, tenants ...string) (models.InventoryItem, error)
	QueryItems(ctx context.Context, params ItemQuery, tenants ...string) (types.Collection[models.InventoryItem], error)
	ActiveItems(ctx context.Context, tenants ...string) ([]models.InventoryItem, error)
	SaveItem(ctx context.Context, item *models.InventoryItem) error
	Adjust(ctx context.Context, itemID string, change ChangeFunc, tenants ...string) (models.InventoryItem, models.InventoryTransaction, error)
	QueryTransactions(ctx context.Context, params TransactionQuery, tenants ...string) (types.Collection[models.InventoryTransaction], error)
}

type ItemQuery struct {
	Category types.InventoryCategory
	Active   *bool
	LowStock bool
	Search   string
	Offset   int
	Limit    int
}

type TransactionQuery struct {
	ItemID  string
	BatchID string
	Type    types.TransactionType
	From    *time.Time
	To      *time.Time
	Offset  int
	Limit   int
}

// ChangeFunc applies a stock change to a locked item and returns the
// transaction that records it. Returning an error rolls the change back.
type ChangeFunc func(item *models.InventoryItem) (models.InventoryTransaction, error)

var (
	ErrItemNotFound        = NotFound("inventory item")
	ErrTransactionNotFound = NotFound("inventory transaction")
)

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(connect ConnectorFunc) (InventoryRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &inventoryRepository{
		db: db,
	}, nil
}

func (r *inventoryRepository) GetItem(ctx context.Context, itemID string, tenants ...string) (models.InventoryItem, error) {
	item := models.InventoryItem{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("inventory_items", tenants...)).
		Where("inventory_items.id = ?", itemID).
		First(&item).Error

	return item, Translate(err, ErrItemNotFound)
}

func (r *inventoryRepository) QueryItems(ctx context.Context, params ItemQuery, tenants ...string) (types.Collection[models.InventoryItem], error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Scopes(Tenants("inventory_items", tenants...))

	if params.Category != "" {
		query = query.Where("inventory_items.category = ?", params.Category)
	}
	if params.Active != nil {
		query = query.Where("inventory_items.is_active = ?", *params.Active)
	}
	if params.LowStock {
		query = query.Where("inventory_items.min_stock_level IS NOT NULL AND inventory_items.current_stock <= inventory_items.min_stock_level")
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("(inventory_items.name LIKE ? OR inventory_items.sku LIKE ? OR inventory_items.supplier LIKE ?)", like, like, like)
	}

	return Paginate[models.InventoryItem](query, "inventory_items.name", params.Offset, params.Limit)
}

func (r *inventoryRepository) ActiveItems(ctx context.Context, tenants ...string) ([]models.InventoryItem, error) {
	items := []models.InventoryItem{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("inventory_items", tenants...)).
		Where("inventory_items.is_active = ?", true).
		Order("inventory_items.name").
		Find(&items).Error

	return items, Translate(err, ErrItemNotFound)
}

func (r *inventoryRepository) SaveItem(ctx context.Context, item *models.InventoryItem) error {
	err := r.db.WithContext(ctx).Save(item).Error
	return Translate(err, ErrItemNotFound)
}

// Adjust locks the item, lets change update it and stores the item together
// with the transaction in one database transaction.
func (r *inventoryRepository) Adjust(ctx context.Context, itemID string, change ChangeFunc, tenants ...string) (models.InventoryItem, models.InventoryTransaction, error) {
	item := models.InventoryItem{}
	tx := models.InventoryTransaction{}

	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(Tenants("inventory_items", tenants...)).
			Where("inventory_items.id = ?", itemID).
			First(&item).Error
		if err != nil {
			return Translate(err, ErrItemNotFound)
		}

		tx, err = change(&item)
		if err != nil {
			return err
		}

		err = db.Save(&item).Error
		if err != nil {
			return Translate(err, ErrItemNotFound)
		}

		tx.ItemID = item.ID
		tx.OrganizationID = item.OrganizationID

		return Translate(db.Omit("Item", "Batch", "Zone").Create(&tx).Error, ErrTransactionNotFound)
	})

	if err != nil {
		return models.InventoryItem{}, models.InventoryTransaction{}, err
	}

	return item, tx, nil
}

func (r *inventoryRepository) QueryTransactions(ctx context.Context, params TransactionQuery, tenants ...string) (types.Collection[models.InventoryTransaction], error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Scopes(Tenants("inventory_transactions", tenants...), Between("inventory_transactions.created_at", params.From, params.To))

	if params.ItemID != "" {
		query = query.Where("inventory_transactions.item_id = ?", params.ItemID)
	}
	if params.BatchID != "" {
		query = query.Where("inventory_transactions.batch_id = ?", params.BatchID)
	}
	if params.Type != "" {
		query = query.Where("inventory_transactions.type = ?", params.Type)
	}

	return Paginate[models.InventoryTransaction](query, "inventory_transactions.created_at desc", params.Offset, params.Limit)
}
