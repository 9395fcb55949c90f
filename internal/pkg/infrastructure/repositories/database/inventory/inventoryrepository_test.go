package inventory

import (
	"context"
	"errors"
	"testing"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestQueryItems(t *testing.T) {
	is, ctx, r := testSetup(t)

	spawn := newItem("Oyster spawn", types.InventorySpawn, 4, 5)
	straw := newItem("Wheat straw", types.InventorySubstrate, 200, 50)
	bags := newItem("Grow bags", types.InventoryPackaging, 10, 0)
	bags.IsActive = false
	is.NoErr(r.SaveItem(ctx, spawn))
	is.NoErr(r.SaveItem(ctx, straw))
	is.NoErr(r.SaveItem(ctx, bags))

	result, err := r.QueryItems(ctx, ItemQuery{LowStock: true}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
	is.Equal(spawn.ID, result.Data[0].ID)

	result, err = r.QueryItems(ctx, ItemQuery{Search: "straw"}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)

	active := true
	result, err = r.QueryItems(ctx, ItemQuery{Active: &active}, "default")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)

	items, err := r.ActiveItems(ctx, "other")
	is.NoErr(err)
	is.Equal(0, len(items))
}

func TestAdjustStoresItemAndTransaction(t *testing.T) {
	is, ctx, r := testSetup(t)

	straw := newItem("Wheat straw", types.InventorySubstrate, 200, 50)
	is.NoErr(r.SaveItem(ctx, straw))

	item, tx, err := r.Adjust(ctx, straw.ID, func(item *models.InventoryItem) (models.InventoryTransaction, error) {
		previous := item.CurrentStock
		item.CurrentStock -= 30
		return models.InventoryTransaction{
			Type:          types.TransactionUsage,
			Quantity:      -30,
			PreviousStock: previous,
			NewStock:      item.CurrentStock,
		}, nil
	}, "default")
	is.NoErr(err)
	is.Equal(170.0, item.CurrentStock)
	is.Equal(straw.ID, tx.ItemID)
	is.Equal("default", tx.OrganizationID)

	result, err := r.QueryTransactions(ctx, TransactionQuery{ItemID: straw.ID}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
	is.Equal(200.0, result.Data[0].PreviousStock)
}

func TestFailedAdjustIsRolledBack(t *testing.T) {
	is, ctx, r := testSetup(t)

	straw := newItem("Wheat straw", types.InventorySubstrate, 200, 50)
	is.NoErr(r.SaveItem(ctx, straw))

	errTooMuch := errors.New("too much")
	_, _, err := r.Adjust(ctx, straw.ID, func(item *models.InventoryItem) (models.InventoryTransaction, error) {
		item.CurrentStock = -1
		return models.InventoryTransaction{}, errTooMuch
	}, "default")
	is.True(errors.Is(err, errTooMuch))

	fromDb, err := r.GetItem(ctx, straw.ID, "default")
	is.NoErr(err)
	is.Equal(200.0, fromDb.CurrentStock)

	_, _, err = r.Adjust(ctx, straw.ID, nil, "other")
	is.True(errors.Is(err, ErrItemNotFound))
}

func newItem(name string, category types.InventoryCategory, stock, minLevel float64) *models.InventoryItem {
	item := &models.InventoryItem{
		OrganizationID: "default",
		Name:           name,
		Category:       category,
		Unit:           "kg",
		CurrentStock:   stock,
		IsActive:       true,
	}
	if minLevel > 0 {
		item.MinStockLevel = &minLevel
	}
	return item
}

func testSetup(t *testing.T) (*is.I, context.Context, InventoryRepository) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewInventoryRepository(NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, r
}
