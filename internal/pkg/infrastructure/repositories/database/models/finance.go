package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
)

type CostEntry struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	RecordedBy     string `json:"recordedBy,omitempty"`

	ZoneID  *string `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone    *Zone   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BatchID *string `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch   *Batch  `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	Category    types.CostCategory `gorm:"type:varchar(20);not null;index" json:"category"`
	CostType    types.CostType     `gorm:"type:varchar(20);not null;default:direct" json:"costType"`
	Description string             `json:"description"`
	Vendor      string             `json:"vendor,omitempty"`

	Amount   float64  `gorm:"not null" json:"amount"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	UnitCost *float64 `json:"unitCost,omitempty"`

	CostDate      time.Time           `gorm:"index" json:"costDate"`
	PaymentStatus types.PaymentStatus `gorm:"type:varchar(20);not null;default:paid" json:"paymentStatus"`
}

type Revenue struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	RecordedBy     string `json:"recordedBy,omitempty"`

	BatchID   *string  `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch     *Batch   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	HarvestID *string  `gorm:"type:varchar(36);index" json:"harvestId,omitempty"`
	Harvest   *Harvest `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	RevenueType  types.RevenueType  `gorm:"type:varchar(20);not null;default:mushroom_sale" json:"revenueType"`
	ProductName  string             `gorm:"not null" json:"productName"`
	CustomerType types.CustomerType `gorm:"type:varchar(20)" json:"customerType,omitempty"`
	CustomerName string             `json:"customerName,omitempty"`

	Quantity     float64  `json:"quantity"`
	Unit         string   `json:"unit,omitempty"`
	PricePerUnit float64  `json:"pricePerUnit"`
	TotalAmount  *float64 `json:"totalAmount,omitempty"`
	Discount     float64  `json:"discount"`
	Tax          float64  `json:"tax"`
	FinalAmount  float64  `json:"finalAmount"`
	PaidAmount   float64  `json:"paidAmount"`
	DueAmount    float64  `json:"dueAmount"`

	PaymentStatus types.PaymentStatus `gorm:"type:varchar(20);not null;default:pending" json:"paymentStatus"`
	SaleDate      time.Time           `gorm:"index" json:"saleDate"`
}

type WorkLog struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	EmployeeID     string `gorm:"index;not null" json:"employeeId"`

	ZoneID  *string `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone    *Zone   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BatchID *string `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch   *Batch  `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	WorkType    types.WorkType     `gorm:"type:varchar(20);not null;default:regular" json:"workType"`
	Category    types.WorkCategory `gorm:"type:varchar(20);not null;default:other" json:"category"`
	Description string             `json:"description,omitempty"`

	ClockIn      time.Time  `gorm:"not null" json:"clockIn"`
	ClockOut     *time.Time `json:"clockOut,omitempty"`
	BreakMinutes int        `json:"breakMinutes"`
	TotalHours   *float64   `json:"totalHours,omitempty"`

	HourlyRate         *float64 `json:"hourlyRate,omitempty"`
	IsOvertime         bool     `json:"isOvertime"`
	OvertimeMultiplier float64  `json:"overtimeMultiplier"`
	TotalCost          *float64 `json:"totalCost,omitempty"`

	Status types.WorkLogStatus `gorm:"type:varchar(20);not null;default:active" json:"status"`
}
