package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type InventoryItem struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	Name        string                  `gorm:"not null" json:"name"`
	Category    types.InventoryCategory `gorm:"type:varchar(20);not null;default:other;index" json:"category"`
	SKU         string                  `gorm:"index" json:"sku,omitempty"`
	Description string                  `json:"description,omitempty"`
	Unit        string                  `gorm:"not null;default:unit" json:"unit"`

	CurrentStock  float64  `json:"currentStock"`
	MinStockLevel *float64 `json:"minStockLevel,omitempty"`
	MaxStockLevel *float64 `json:"maxStockLevel,omitempty"`
	UnitCost      *float64 `json:"unitCost,omitempty"`
	TotalValue    *float64 `json:"totalValue,omitempty"`

	Supplier        string `json:"supplier,omitempty"`
	SupplierContact string `json:"supplierContact,omitempty"`
	Location        string `json:"location,omitempty"`

	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
	LastRestocked *time.Time `json:"lastRestocked,omitempty"`
	IsActive      bool       `gorm:"index" json:"isActive"`
	Notes         string     `json:"notes,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

// IsLowStock reports if stock has reached the minimum level. Items without a
// minimum level are never low.
func (i InventoryItem) IsLowStock() bool {
	return i.MinStockLevel != nil && i.CurrentStock <= *i.MinStockLevel
}

type InventoryTransaction struct {
	Base

	OrganizationID string         `gorm:"index;not null" json:"organizationId"`
	ItemID         string         `gorm:"type:varchar(36);not null;index" json:"itemId"`
	Item           *InventoryItem `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID         string         `json:"userId,omitempty"`

	Type          types.TransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Quantity      float64               `json:"quantity"`
	PreviousStock float64               `json:"previousStock"`
	NewStock      float64               `json:"newStock"`
	UnitCost      *float64              `json:"unitCost,omitempty"`
	TotalCost     *float64              `json:"totalCost,omitempty"`

	BatchID *string `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch   *Batch  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ZoneID  *string `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone    *Zone   `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	Notes string `json:"notes,omitempty"`
}
