package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type QualityCheck struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	CheckType types.CheckType `gorm:"type:varchar(20);not null;index" json:"checkType"`
	CheckDate time.Time       `gorm:"index" json:"checkDate"`

	ZoneID    *string  `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone      *Zone    `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BatchID   *string  `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch     *Batch   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	HarvestID *string  `gorm:"type:varchar(36);index" json:"harvestId,omitempty"`
	Harvest   *Harvest `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	OverallGrade types.InspectionGrade `gorm:"type:varchar(10);not null;index" json:"overallGrade"`
	PassStatus   types.PassStatus      `gorm:"type:varchar(20);not null;index" json:"passStatus"`
	QualityScore *int                  `json:"qualityScore,omitempty"`

	SampleSize  *float64 `json:"sampleSize,omitempty"`
	SampleUnit  string   `gorm:"default:kg" json:"sampleUnit,omitempty"`
	DefectCount int      `json:"defectCount"`
	DefectRate  *float64 `json:"defectRate,omitempty"`

	Appearance         datatypes.JSON `json:"appearance,omitempty"`
	PhysicalProperties datatypes.JSON `json:"physicalProperties,omitempty"`
	Contamination      datatypes.JSON `json:"contamination,omitempty"`

	InspectorName     string `gorm:"not null" json:"inspectorName"`
	Notes             string `json:"notes,omitempty"`
	Recommendations   string `json:"recommendations,omitempty"`
	CorrectiveActions string `json:"correctiveActions,omitempty"`

	RequiresFollowUp  bool       `json:"requiresFollowUp"`
	FollowUpDate      *time.Time `json:"followUpDate,omitempty"`
	FollowUpCompleted bool       `json:"followUpCompleted"`

	Status      types.CheckStatus `gorm:"type:varchar(20);not null;default:submitted;index" json:"status"`
	ReviewedBy  string            `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time        `json:"reviewedAt,omitempty"`
	ReviewNotes string            `json:"reviewNotes,omitempty"`

	Defects []Defect `gorm:"constraint:OnDelete:CASCADE" json:"defects,omitempty"`
}

// AppearanceScores returns the 0-100 appearance scores of the check.
func (q QualityCheck) AppearanceScores() (map[string]float64, error) {
	return FromJSON[map[string]float64](q.Appearance)
}

func (q QualityCheck) PhysicalMeasurements() (map[string]float64, error) {
	return FromJSON[map[string]float64](q.PhysicalProperties)
}

type Defect struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	QualityCheckID string `gorm:"type:varchar(36);not null;index" json:"qualityCheckId"`
	OwnerID        string `json:"ownerId,omitempty"`

	DefectType  string               `gorm:"not null;index" json:"defectType"`
	Severity    types.DefectSeverity `gorm:"type:varchar(10);not null;index" json:"severity"`
	Category    types.DefectCategory `gorm:"type:varchar(20);not null" json:"category"`
	Description string               `gorm:"not null" json:"description"`

	AffectedQuantity   *float64 `json:"affectedQuantity,omitempty"`
	AffectedPercentage *float64 `json:"affectedPercentage,omitempty"`
	RootCause          string   `json:"rootCause,omitempty"`

	Marketability       types.Marketability `gorm:"type:varchar(20);not null" json:"marketability"`
	CorrectiveAction    string              `json:"correctiveAction,omitempty"`
	ActionStatus        types.ActionStatus  `gorm:"type:varchar(20);not null;default:pending;index" json:"actionStatus"`
	ActionDueDate       *time.Time          `json:"actionDueDate,omitempty"`
	ActionCompletedDate *time.Time          `json:"actionCompletedDate,omitempty"`
}

type QualityStandard struct {
	Base

	OrganizationID string `gorm:"index;not null;uniqueIndex:idx_standards_code" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	Name        string                 `gorm:"not null" json:"name"`
	Code        string                 `gorm:"not null;uniqueIndex:idx_standards_code" json:"code"`
	Category    types.StandardCategory `gorm:"type:varchar(20);not null;index" json:"category"`
	Description string                 `json:"description,omitempty"`
	CropType    types.CropType         `gorm:"type:varchar(20);index" json:"cropType,omitempty"`

	Criteria            datatypes.JSON `json:"criteria"`
	InspectionFrequency string         `json:"inspectionFrequency,omitempty"`
	IsMandatory         bool           `json:"isMandatory"`

	Version         string               `gorm:"not null;default:1.0" json:"version"`
	RevisionHistory datatypes.JSON       `json:"revisionHistory,omitempty"`
	Status          types.StandardStatus `gorm:"type:varchar(20);not null;default:draft;index" json:"status"`
	ApprovedBy      string               `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time           `json:"approvedAt,omitempty"`
}

func (s QualityStandard) CriteriaValues() (types.Criteria, error) {
	return FromJSON[types.Criteria](s.Criteria)
}

// Revision is a previous version of a quality standard.
type Revision struct {
	Version   string    `json:"version"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy,omitempty"`
}
