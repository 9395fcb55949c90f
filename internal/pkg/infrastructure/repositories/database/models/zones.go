package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type Zone struct {
	Base

	OrganizationID string  `gorm:"index;not null" json:"organizationId"`
	FarmID         *string `json:"farmId,omitempty"`

	Name       string   `gorm:"not null" json:"name"`
	ZoneNumber string   `json:"zoneNumber,omitempty"`
	Area       *float64 `json:"area,omitempty"`

	ActiveRecipeID *string     `gorm:"type:varchar(36)" json:"activeRecipeId,omitempty"`
	ActiveRecipe   *CropRecipe `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	CurrentStage   int              `json:"currentStage"`
	BatchStartDate *time.Time       `json:"batchStartDate,omitempty"`
	BatchEndDate   *time.Time       `json:"batchEndDate,omitempty"`
	Status         types.ZoneStatus `gorm:"type:varchar(20);not null;default:idle" json:"status"`
	PlantCount     int              `json:"plantCount"`

	CurrentSetpoints datatypes.JSON `json:"currentSetpoints,omitempty"`
}

type CropRecipe struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	AuthorID       string `json:"authorId"`

	CropID      string           `gorm:"uniqueIndex;not null" json:"cropId"`
	CropName    string           `gorm:"not null" json:"cropName"`
	CropType    types.CropType   `gorm:"type:varchar(20);not null" json:"cropType"`
	Description string           `json:"description,omitempty"`
	Version     string           `gorm:"not null" json:"version"`
	IsPublic    bool             `json:"isPublic"`
	Difficulty  types.Difficulty `gorm:"type:varchar(20)" json:"difficulty,omitempty"`

	Stages        datatypes.JSON `gorm:"not null" json:"stages"`
	TotalDuration int            `gorm:"not null" json:"totalDuration"`

	RequiredSensors   datatypes.JSON `json:"requiredSensors,omitempty"`
	RequiredActuators datatypes.JSON `json:"requiredActuators,omitempty"`
	EstimatedYieldKg  *float64       `json:"estimatedYieldKg,omitempty"`
	Tags              datatypes.JSON `json:"tags,omitempty"`
}

func (r CropRecipe) StageList() ([]types.Stage, error) {
	return FromJSON[[]types.Stage](r.Stages)
}
