package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type Batch struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	BatchNumber string `gorm:"uniqueIndex;not null" json:"batchNumber"`

	ZoneID   string      `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_batches_active_zone,where:status = 'active'" json:"zoneId"`
	Zone     *Zone       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RecipeID string      `gorm:"type:varchar(36);not null;index" json:"recipeId"`
	Recipe   *CropRecipe `json:"-"`

	CropName string         `json:"cropName"`
	CropType types.CropType `gorm:"type:varchar(20)" json:"cropType"`

	Status          types.BatchStatus `gorm:"type:varchar(20);not null;default:planned" json:"status"`
	StartDate       time.Time         `json:"startDate"`
	ExpectedEndDate time.Time         `json:"expectedEndDate"`
	ActualEndDate   *time.Time        `json:"actualEndDate,omitempty"`
	CycleDuration   int               `json:"cycleDuration"`

	PlantCount   int     `json:"plantCount"`
	CurrentStage int     `json:"currentStage"`
	TotalYieldKg float64 `json:"totalYieldKg"`
	HarvestCount int     `json:"harvestCount"`

	Notes         string `json:"notes,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type RecipeExecution struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	ZoneID   string      `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_executions_open_zone,where:status <> 'completed' AND status <> 'aborted'" json:"zoneId"`
	Zone     *Zone       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RecipeID string      `gorm:"type:varchar(36);not null;index" json:"recipeId"`
	Recipe   *CropRecipe `json:"-"`
	BatchID  *string     `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch    *Batch      `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	CurrentStage          int                   `json:"currentStage"`
	Status                types.ExecutionStatus `gorm:"type:varchar(20);not null;default:active" json:"status"`
	StartedAt             time.Time             `json:"startedAt"`
	CurrentStageStartedAt time.Time             `json:"currentStageStartedAt"`
	ExpectedStageEndDate  *time.Time            `json:"expectedStageEndDate,omitempty"`
	PausedAt              *time.Time            `json:"pausedAt,omitempty"`
	CompletedAt           *time.Time            `json:"completedAt,omitempty"`

	StageHistory    datatypes.JSON `json:"stageHistory"`
	PendingApproval datatypes.JSON `json:"pendingApproval,omitempty"`

	AutoEnvironmentControl bool           `json:"autoEnvironmentControl"`
	EquipmentOverrides     datatypes.JSON `json:"equipmentOverrides,omitempty"`

	Notes string `json:"notes,omitempty"`
}

func (e RecipeExecution) History() ([]types.StageHistoryEntry, error) {
	return FromJSON[[]types.StageHistoryEntry](e.StageHistory)
}

func (e RecipeExecution) Pending() (*types.PendingApproval, error) {
	return FromJSON[*types.PendingApproval](e.PendingApproval)
}

func (e RecipeExecution) Overrides() (map[string]types.EquipmentOverride, error) {
	return FromJSON[map[string]types.EquipmentOverride](e.EquipmentOverrides)
}
