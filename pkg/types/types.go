package types

import (
	"time"
)

type Collection[T any] struct {
	Data       []T    `json:"data"`
	Count      uint64 `json:"count"`
	Offset     uint64 `json:"offset"`
	Limit      uint64 `json:"limit"`
	TotalCount uint64 `json:"totalCount"`
}

func NewCollection[T any](data []T, offset, limit, total uint64) Collection[T] {
	if data == nil {
		data = []T{}
	}
	return Collection[T]{
		Data:       data,
		Count:      uint64(len(data)),
		Offset:     offset,
		Limit:      limit,
		TotalCount: total,
	}
}

// Range is an environmental target. A stage may give only the optimal value.
type Range struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Optimal float64 `json:"optimal" yaml:"optimal"`
}

type Environmental struct {
	Temperature *Range `json:"temperature,omitempty" yaml:"temperature"`
	Humidity    *Range `json:"humidity,omitempty" yaml:"humidity"`
	CO2         *Range `json:"co2,omitempty" yaml:"co2"`
}

type Lighting struct {
	HoursPerDay float64 `json:"hoursPerDay" yaml:"hoursPerDay"`
	Intensity   *int    `json:"intensity,omitempty" yaml:"intensity"`
}

type Irrigation struct {
	Frequency       int `json:"frequency" yaml:"frequency"`
	DurationMinutes int `json:"durationMinutes,omitempty" yaml:"durationMinutes"`
}

type Stage struct {
	Name             string        `json:"name" yaml:"name"`
	Description      string        `json:"description,omitempty" yaml:"description"`
	Duration         int           `json:"duration" yaml:"duration"`
	MaxDuration      *int          `json:"maxDuration,omitempty" yaml:"maxDuration"`
	RequiresApproval bool          `json:"requiresApproval" yaml:"requiresApproval"`
	Environmental    Environmental `json:"environmental" yaml:"environmental"`
	Lighting         *Lighting     `json:"lighting,omitempty" yaml:"lighting"`
	Irrigation       *Irrigation   `json:"irrigation,omitempty" yaml:"irrigation"`
	ManualTasks      []string      `json:"manualTasks,omitempty" yaml:"manualTasks"`
}

// MaxDays is the number of days a stage may wait for approval before it is overdue.
func (s Stage) MaxDays() int {
	if s.MaxDuration != nil {
		return *s.MaxDuration
	}
	return s.Duration + 5
}

type StageHistoryEntry struct {
	Stage                int       `json:"stage"`
	StageName            string    `json:"stageName"`
	StartedAt            time.Time `json:"startedAt"`
	CompletedAt          time.Time `json:"completedAt"`
	DaysInStage          int       `json:"daysInStage"`
	ApprovedBy           string    `json:"approvedBy,omitempty"`
	Notes                string    `json:"notes,omitempty"`
	ManualTasksCompleted bool      `json:"manualTasksCompleted"`
}

type PendingApproval struct {
	Stage            int        `json:"stage"`
	StageName        string     `json:"stageName"`
	RequestedAt      time.Time  `json:"requestedAt"`
	DaysInStage      int        `json:"daysInStage"`
	MinDuration      int        `json:"minDuration"`
	MaxDuration      int        `json:"maxDuration"`
	Message          string     `json:"message"`
	ManualTasks      []string   `json:"manualTasks,omitempty"`
	OverdueAlertedAt *time.Time `json:"overdueAlertedAt,omitempty"`
}

type EquipmentOverride struct {
	Mode  Mode `json:"mode"`
	Value *int `json:"value,omitempty"`
}

type QualityDistribution map[QualityGrade]float64

// Threshold bounds a measured value. Either side may be left open.
type Threshold struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// Criteria are the limits a quality check is evaluated against.
type Criteria struct {
	Appearance         map[string]Threshold `json:"appearance,omitempty"`
	Physical           map[string]Threshold `json:"physical,omitempty"`
	MaxDefectRate      *float64             `json:"maxDefectRate,omitempty"`
	MaxCriticalDefects *int                 `json:"maxCriticalDefects,omitempty"`
	MinQualityScore    *int                 `json:"minQualityScore,omitempty"`
}
