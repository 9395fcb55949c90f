package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type Harvest struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`

	ZoneID  *string `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone    *Zone   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BatchID string  `gorm:"type:varchar(36);not null;index" json:"batchId"`
	Batch   *Batch  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	FlushNumber int                 `json:"flushNumber"`
	HarvestDate time.Time           `json:"harvestDate"`
	Status      types.HarvestStatus `gorm:"type:varchar(20);not null;default:completed" json:"status"`

	TotalWeightKg      float64  `json:"totalWeightKg"`
	BagsHarvested      *int     `json:"bagsHarvested,omitempty"`
	BagsDiscarded      *int     `json:"bagsDiscarded,omitempty"`
	AvgMushroomWeightG *float64 `json:"avgMushroomWeightG,omitempty"`
	SubstrateWeightKg  *float64 `json:"substrateWeightKg,omitempty"`

	QualityGrade        *types.QualityGrade `gorm:"type:varchar(20)" json:"qualityGrade,omitempty"`
	QualityDistribution datatypes.JSON      `json:"qualityDistribution,omitempty"`

	MarketDestination *types.MarketDestination `gorm:"type:varchar(30)" json:"marketDestination,omitempty"`
	PricePerKg        *float64                 `json:"pricePerKg,omitempty"`
	TotalRevenue      *float64                 `json:"totalRevenue,omitempty"`

	BiologicalEfficiency *float64 `json:"biologicalEfficiency,omitempty"`
	YieldPerBag          *float64 `json:"yieldPerBag,omitempty"`
	YieldVsExpected      *float64 `json:"yieldVsExpected,omitempty"`

	Notes string `json:"notes,omitempty"`
}

func (h Harvest) Distribution() (types.QualityDistribution, error) {
	return FromJSON[types.QualityDistribution](h.QualityDistribution)
}
