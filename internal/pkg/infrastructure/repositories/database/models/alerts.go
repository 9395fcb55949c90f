package models

import (
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/datatypes"
)

type Alert struct {
	Base

	OrganizationID string  `gorm:"index;not null" json:"organizationId"`
	UserID         *string `json:"userId,omitempty"`

	Type     types.AlertType   `gorm:"type:varchar(20);not null;default:system;index" json:"type"`
	Severity types.Severity    `gorm:"type:varchar(10);not null;default:medium" json:"severity"`
	Title    string            `gorm:"not null" json:"title"`
	Message  string            `gorm:"not null" json:"message"`
	Status   types.AlertStatus `gorm:"type:varchar(20);not null;default:unread;index" json:"status"`

	ZoneID      *string    `gorm:"type:varchar(36);index" json:"zoneId,omitempty"`
	Zone        *Zone      `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BatchID     *string    `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	Batch       *Batch     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	EquipmentID *string    `gorm:"type:varchar(36);index" json:"equipmentId,omitempty"`
	Equipment   *Equipment `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	ReadAt         *time.Time `json:"readAt,omitempty"`
	DismissedAt    *time.Time `json:"dismissedAt,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}
