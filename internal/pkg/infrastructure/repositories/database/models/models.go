package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Base struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// ToJSON marshals v into a json column value. Marshalling errors yield an empty value.
func ToJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// FromJSON unmarshals a json column into T. An empty column gives the zero value.
func FromJSON[T any](j datatypes.JSON) (T, error) {
	var t T
	if len(j) == 0 || string(j) == "null" {
		return t, nil
	}
	err := json.Unmarshal(j, &t)
	return t, err
}

// All returns every model, ordered so that referenced tables are created first.
func All() []any {
	return []any{
		&CropRecipe{}, &Zone{}, &Batch{}, &RecipeExecution{},
		&Equipment{}, &ControlCommand{}, &Harvest{},
		&CostEntry{}, &Revenue{}, &WorkLog{}, &Alert{},
		&InventoryItem{}, &InventoryTransaction{},
		&QualityCheck{}, &Defect{}, &QualityStandard{},
	}
}
