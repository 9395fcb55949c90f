package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type Equipment struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`
	OwnerID        string `json:"ownerId,omitempty"`

	ZoneID   string `gorm:"type:varchar(36);not null;index" json:"zoneId"`
	Zone     *Zone  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DeviceID string `gorm:"index;not null" json:"deviceId"`
	Name     string `gorm:"not null" json:"name"`

	Type        types.EquipmentType   `gorm:"type:varchar(20);not null" json:"type"`
	ControlType types.ControlType     `gorm:"type:varchar(20);not null;default:relay" json:"controlType"`
	Pin         string                `json:"pin,omitempty"`
	Status      types.EquipmentStatus `gorm:"type:varchar(20);not null;default:off" json:"status"`
	Mode        types.Mode            `gorm:"type:varchar(20);not null;default:auto" json:"mode"`

	CurrentValue float64  `json:"currentValue"`
	TargetValue  *float64 `json:"targetValue,omitempty"`
	MinValue     float64  `json:"minValue"`
	MaxValue     float64  `json:"maxValue"`

	IsActive         bool       `json:"isActive"`
	LastCommandTime  *time.Time `json:"lastCommandTime,omitempty"`
	LastStatusUpdate *time.Time `json:"lastStatusUpdate,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

func (Equipment) TableName() string {
	return "equipment"
}

type ControlCommand struct {
	Base

	OrganizationID string `gorm:"index;not null" json:"organizationId"`

	EquipmentID string     `gorm:"type:varchar(36);not null;index" json:"equipmentId"`
	Equipment   *Equipment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ZoneID      string     `gorm:"type:varchar(36);not null;index" json:"zoneId"`
	Zone        *Zone      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID      *string    `json:"userId,omitempty"`

	CommandType types.CommandType   `gorm:"type:varchar(20);not null" json:"commandType"`
	Value       *int                `json:"value,omitempty"`
	Mode        *types.Mode         `gorm:"type:varchar(20)" json:"mode,omitempty"`
	Source      types.CommandSource `gorm:"type:varchar(20);not null;default:user" json:"source"`
	Status      types.CommandStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`

	SentAt         *time.Time `json:"sentAt,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}
