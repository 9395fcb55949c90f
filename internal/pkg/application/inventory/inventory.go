package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/inventory"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const EventInventoryChanged string = "inventory.changed"

// ExpiryWindow is how far ahead Stats looks for expiring items.
const ExpiryWindow time.Duration = 30 * 24 * time.Hour

//go:generate moq -rm -out inventoryservice_mock.go . InventoryService

type InventoryService interface {
	CreateItem(ctx context.Context, item models.InventoryItem) (models.InventoryItem, error)
	GetItem(ctx context.Context, itemID string, tenants []string) (models.InventoryItem, error)
	QueryItems(ctx context.Context, params repository.ItemQuery, tenants []string) (types.Collection[models.InventoryItem], error)
	UpdateItem(ctx context.Context, itemID string, fields ItemFields, tenants []string) (models.InventoryItem, error)
	Deactivate(ctx context.Context, itemID string, tenants []string) (models.InventoryItem, error)

	AdjustStock(ctx context.Context, itemID string, adj Adjustment, tenants []string) (models.InventoryItem, models.InventoryTransaction, error)
	RecordUsage(ctx context.Context, batchID string, usages []Usage, userID string, tenants []string) ([]UsageResult, error)
	QueryTransactions(ctx context.Context, params repository.TransactionQuery, tenants []string) (types.Collection[models.InventoryTransaction], error)

	LowStock(ctx context.Context, tenants []string) ([]models.InventoryItem, error)
	Stats(ctx context.Context, tenants []string) (Stats, error)
}

// ItemFields holds the editable fields of an item. Stock only changes through
// AdjustStock.
type ItemFields struct {
	Name            *string                  `json:"name,omitempty"`
	Category        *types.InventoryCategory `json:"category,omitempty"`
	SKU             *string                  `json:"sku,omitempty"`
	Description     *string                  `json:"description,omitempty"`
	Unit            *string                  `json:"unit,omitempty"`
	MinStockLevel   *float64                 `json:"minStockLevel,omitempty"`
	MaxStockLevel   *float64                 `json:"maxStockLevel,omitempty"`
	UnitCost        *float64                 `json:"unitCost,omitempty"`
	Supplier        *string                  `json:"supplier,omitempty"`
	SupplierContact *string                  `json:"supplierContact,omitempty"`
	Location        *string                  `json:"location,omitempty"`
	ExpiryDate      *time.Time               `json:"expiryDate,omitempty"`
	Notes           *string                  `json:"notes,omitempty"`
}

type Adjustment struct {
	Type     types.TransactionType `json:"type"`
	Quantity float64               `json:"quantity"`
	UnitCost *float64              `json:"unitCost,omitempty"`
	BatchID  *string               `json:"batchId,omitempty"`
	ZoneID   *string               `json:"zoneId,omitempty"`
	Notes    string                `json:"notes,omitempty"`
	UserID   string                `json:"-"`
}

// Usage is a positive amount of an item consumed by a batch.
type Usage struct {
	ItemID   string  `json:"itemId"`
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

type UsageResult struct {
	ItemID      string                       `json:"itemId"`
	Transaction *models.InventoryTransaction `json:"transaction,omitempty"`
	Error       string                       `json:"error,omitempty"`
}

type CategoryStats struct {
	Category types.InventoryCategory `json:"category"`
	Count    int                     `json:"count"`
	Value    float64                 `json:"value"`
}

type Stats struct {
	ItemCount    int             `json:"itemCount"`
	TotalValue   float64         `json:"totalValue"`
	LowStock     int             `json:"lowStock"`
	OutOfStock   int             `json:"outOfStock"`
	ExpiringSoon int             `json:"expiringSoon"`
	Categories   []CategoryStats `json:"categories"`
}

type inventorySvc struct {
	storage repository.InventoryRepository
	alerts  application.AlertRaiser
	feed    application.Broadcaster
}

func New(r repository.InventoryRepository, alerts application.AlertRaiser, feed application.Broadcaster) InventoryService {
	return &inventorySvc{
		storage: r,
		alerts:  alerts,
		feed:    feed,
	}
}

func validate(item models.InventoryItem) error {
	switch {
	case item.OrganizationID == "":
		return application.Invalid("inventory item has no organization")
	case strings.TrimSpace(item.Name) == "":
		return application.Invalid("name is required")
	case !item.Category.Valid():
		return application.Invalid("unknown inventory category %q", item.Category)
	case item.CurrentStock < 0:
		return application.Invalid("stock cannot be negative")
	case item.MinStockLevel != nil && *item.MinStockLevel < 0:
		return application.Invalid("minimum stock level cannot be negative")
	case item.MaxStockLevel != nil && *item.MaxStockLevel < 0:
		return application.Invalid("maximum stock level cannot be negative")
	case item.MinStockLevel != nil && item.MaxStockLevel != nil && *item.MinStockLevel > *item.MaxStockLevel:
		return application.Invalid("minimum stock level is above the maximum")
	case item.UnitCost != nil && *item.UnitCost < 0:
		return application.Invalid("unit cost cannot be negative")
	}
	return nil
}

// Revalue sets the total value of an item from its stock and unit cost.
func Revalue(item *models.InventoryItem) {
	if item.UnitCost == nil {
		item.TotalValue = nil
		return
	}
	item.TotalValue = application.Ptr(application.Round2(item.CurrentStock * *item.UnitCost))
}

func (svc *inventorySvc) CreateItem(ctx context.Context, item models.InventoryItem) (models.InventoryItem, error) {
	if item.Category == "" {
		item.Category = types.InventoryOther
	}
	if item.Unit == "" {
		item.Unit = "unit"
	}

	err := validate(item)
	if err != nil {
		return models.InventoryItem{}, err
	}

	item.ID = ""
	item.IsActive = true
	if item.CurrentStock > 0 {
		item.LastRestocked = application.Ptr(application.Now())
	}
	Revalue(&item)

	err = svc.storage.SaveItem(ctx, &item)
	if err != nil {
		return models.InventoryItem{}, err
	}

	svc.publish(ctx, item)

	return item, nil
}

func (svc *inventorySvc) GetItem(ctx context.Context, itemID string, tenants []string) (models.InventoryItem, error) {
	return svc.storage.GetItem(ctx, itemID, tenants...)
}

func (svc *inventorySvc) QueryItems(ctx context.Context, params repository.ItemQuery, tenants []string) (types.Collection[models.InventoryItem], error) {
	return svc.storage.QueryItems(ctx, params, tenants...)
}

func (svc *inventorySvc) UpdateItem(ctx context.Context, itemID string, fields ItemFields, tenants []string) (models.InventoryItem, error) {
	item, err := svc.storage.GetItem(ctx, itemID, tenants...)
	if err != nil {
		return models.InventoryItem{}, err
	}

	if fields.Name != nil {
		item.Name = *fields.Name
	}
	if fields.Category != nil {
		item.Category = *fields.Category
	}
	if fields.SKU != nil {
		item.SKU = *fields.SKU
	}
	if fields.Description != nil {
		item.Description = *fields.Description
	}
	if fields.Unit != nil {
		item.Unit = *fields.Unit
	}
	if fields.MinStockLevel != nil {
		item.MinStockLevel = fields.MinStockLevel
	}
	if fields.MaxStockLevel != nil {
		item.MaxStockLevel = fields.MaxStockLevel
	}
	if fields.UnitCost != nil {
		item.UnitCost = fields.UnitCost
	}
	if fields.Supplier != nil {
		item.Supplier = *fields.Supplier
	}
	if fields.SupplierContact != nil {
		item.SupplierContact = *fields.SupplierContact
	}
	if fields.Location != nil {
		item.Location = *fields.Location
	}
	if fields.ExpiryDate != nil {
		item.ExpiryDate = fields.ExpiryDate
	}
	if fields.Notes != nil {
		item.Notes = *fields.Notes
	}

	err = validate(item)
	if err != nil {
		return models.InventoryItem{}, err
	}

	Revalue(&item)

	err = svc.storage.SaveItem(ctx, &item)
	if err != nil {
		return models.InventoryItem{}, err
	}

	svc.publish(ctx, item)

	return item, nil
}

// Deactivate hides an item from stock lists and blocks further adjustments.
// Its transaction history is kept.
func (svc *inventorySvc) Deactivate(ctx context.Context, itemID string, tenants []string) (models.InventoryItem, error) {
	item, err := svc.storage.GetItem(ctx, itemID, tenants...)
	if err != nil {
		return models.InventoryItem{}, err
	}

	if !item.IsActive {
		return item, nil
	}

	item.IsActive = false

	err = svc.storage.SaveItem(ctx, &item)
	if err != nil {
		return models.InventoryItem{}, err
	}

	svc.publish(ctx, item)

	return item, nil
}

func checkAdjustment(adj Adjustment) error {
	switch {
	case !adj.Type.Valid():
		return application.Invalid("unknown transaction type %q", adj.Type)
	case adj.Quantity == 0:
		return application.Invalid("quantity cannot be zero")
	case adj.Type.Removes() && adj.Quantity > 0:
		return application.Invalid("quantity must be negative for %s", adj.Type)
	case (adj.Type.Restocks() || adj.Type == types.TransactionReturn) && adj.Quantity < 0:
		return application.Invalid("quantity must be positive for %s", adj.Type)
	case adj.UnitCost != nil && *adj.UnitCost < 0:
		return application.Invalid("unit cost cannot be negative")
	}
	return nil
}

// AdjustStock changes the stock of an item and records the transaction. The
// item is locked while the new stock is computed so concurrent adjustments
// cannot drive it below zero.
func (svc *inventorySvc) AdjustStock(ctx context.Context, itemID string, adj Adjustment, tenants []string) (models.InventoryItem, models.InventoryTransaction, error) {
	err := checkAdjustment(adj)
	if err != nil {
		return models.InventoryItem{}, models.InventoryTransaction{}, err
	}

	wasLow := false

	item, tx, err := svc.storage.Adjust(ctx, itemID, func(item *models.InventoryItem) (models.InventoryTransaction, error) {
		if !item.IsActive {
			return models.InventoryTransaction{}, application.Invalid("item %s is deactivated", item.Name)
		}

		wasLow = item.IsLowStock()
		previous := item.CurrentStock
		next := application.Round2(previous + adj.Quantity)
		if next < 0 {
			return models.InventoryTransaction{}, application.Invalid("insufficient stock of %s: %v %s available", item.Name, previous, item.Unit)
		}

		if adj.UnitCost != nil && adj.Type == types.TransactionPurchase {
			item.UnitCost = adj.UnitCost
		}
		if adj.Type.Restocks() {
			item.LastRestocked = application.Ptr(application.Now())
		}
		item.CurrentStock = next
		Revalue(item)

		tx := models.InventoryTransaction{
			UserID:        adj.UserID,
			Type:          adj.Type,
			Quantity:      adj.Quantity,
			PreviousStock: previous,
			NewStock:      next,
			UnitCost:      adj.UnitCost,
			BatchID:       adj.BatchID,
			ZoneID:        adj.ZoneID,
			Notes:         adj.Notes,
		}
		if tx.UnitCost == nil {
			tx.UnitCost = item.UnitCost
		}
		if tx.UnitCost != nil {
			tx.TotalCost = application.Ptr(application.Round2(math.Abs(adj.Quantity) * *tx.UnitCost))
		}

		return tx, nil
	}, tenants...)
	if err != nil {
		return models.InventoryItem{}, models.InventoryTransaction{}, err
	}

	metrics.StockTransactions.WithLabelValues(string(tx.Type)).Inc()

	if !wasLow && item.IsLowStock() {
		svc.raiseLowStock(ctx, item)
	}

	svc.publish(ctx, item)

	return item, tx, nil
}

// RecordUsage books consumption of several items against a batch. Each usage
// is applied on its own, so one failing item does not stop the others.
func (svc *inventorySvc) RecordUsage(ctx context.Context, batchID string, usages []Usage, userID string, tenants []string) ([]UsageResult, error) {
	if batchID == "" {
		return nil, application.Invalid("batch is required")
	}
	if len(usages) == 0 {
		return nil, application.Invalid("no usage to record")
	}

	results := make([]UsageResult, 0, len(usages))

	for _, u := range usages {
		result := UsageResult{ItemID: u.ItemID}

		if u.Quantity <= 0 {
			result.Error = "quantity must be positive"
			results = append(results, result)
			continue
		}

		_, tx, err := svc.AdjustStock(ctx, u.ItemID, Adjustment{
			Type:     types.TransactionUsage,
			Quantity: -u.Quantity,
			BatchID:  application.Ptr(batchID),
			Notes:    u.Notes,
			UserID:   userID,
		}, tenants)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Transaction = &tx
		}

		results = append(results, result)
	}

	return results, nil
}

func (svc *inventorySvc) QueryTransactions(ctx context.Context, params repository.TransactionQuery, tenants []string) (types.Collection[models.InventoryTransaction], error) {
	return svc.storage.QueryTransactions(ctx, params, tenants...)
}

func (svc *inventorySvc) LowStock(ctx context.Context, tenants []string) ([]models.InventoryItem, error) {
	active := true
	result, err := svc.storage.QueryItems(ctx, repository.ItemQuery{LowStock: true, Active: &active}, tenants...)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (svc *inventorySvc) Stats(ctx context.Context, tenants []string) (Stats, error) {
	items, err := svc.storage.ActiveItems(ctx, tenants...)
	if err != nil {
		return Stats{}, err
	}

	now := application.Now()
	stats := Stats{Categories: []CategoryStats{}}
	index := map[types.InventoryCategory]int{}

	for _, item := range items {
		value := 0.0
		if item.TotalValue != nil {
			value = *item.TotalValue
		}

		stats.ItemCount++
		stats.TotalValue += value

		if item.IsLowStock() {
			stats.LowStock++
		}
		if item.CurrentStock <= 0 {
			stats.OutOfStock++
		}
		if item.ExpiryDate != nil && item.ExpiryDate.Before(now.Add(ExpiryWindow)) {
			stats.ExpiringSoon++
		}

		i, ok := index[item.Category]
		if !ok {
			i = len(stats.Categories)
			index[item.Category] = i
			stats.Categories = append(stats.Categories, CategoryStats{Category: item.Category})
		}
		stats.Categories[i].Count++
		stats.Categories[i].Value += value
	}

	stats.TotalValue = application.Round2(stats.TotalValue)
	for i := range stats.Categories {
		stats.Categories[i].Value = application.Round2(stats.Categories[i].Value)
	}

	return stats, nil
}

func (svc *inventorySvc) raiseLowStock(ctx context.Context, item models.InventoryItem) {
	severity := types.SeverityMedium
	if item.CurrentStock <= 0 {
		severity = types.SeverityHigh
	}

	_, err := svc.alerts.Raise(ctx, models.Alert{
		OrganizationID: item.OrganizationID,
		Type:           types.AlertInventory,
		Severity:       severity,
		Title:          fmt.Sprintf("%s is running low", item.Name),
		Message:        fmt.Sprintf("%v %s left, minimum is %v %s.", item.CurrentStock, item.Unit, *item.MinStockLevel, item.Unit),
		Metadata:       models.ToJSON(map[string]any{"itemId": item.ID, "sku": item.SKU, "currentStock": item.CurrentStock}),
	})
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Str("itemID", item.ID).Msg("failed to raise low stock alert")
	}
}

func (svc *inventorySvc) publish(ctx context.Context, item models.InventoryItem) {
	if svc.feed == nil {
		return
	}

	if err := svc.feed.Publish(EventInventoryChanged, item); err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("failed to push inventory item to live feed")
	}
}
