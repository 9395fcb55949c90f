package application

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestConfig(t *testing.T) {
	is := is.New(t)
	config := strings.NewReader(`
notifications:
  - id: farmops-alerts
    name: Farm alerts
    type: farmops.alert
    subscribers:
    - endpoint: http://api-notification:8990
recipes:
  - cropId: oyster-blue
    cropName: Blue Oyster
    cropType: mushroom
    version: 1.0.0
    isPublic: true
    stages:
      - name: colonization
        duration: 14
        environmental:
          temperature: {min: 20, max: 24, optimal: 22}
          humidity: {min: 60, max: 70, optimal: 65}
      - name: fruiting
        duration: 7
        requiresApproval: true
        lighting: {hoursPerDay: 12}
`)
	cfg, err := LoadConfiguration(config)

	is.NoErr(err)
	is.Equal(len(cfg.Notifications), 1)
	is.Equal(cfg.Notifications[0].Type, "farmops.alert")
	is.Equal(len(cfg.Recipes), 1)
	is.Equal(cfg.Recipes[0].CropType, types.CropMushroom)
	is.Equal(len(cfg.Recipes[0].Stages), 2)
	is.Equal(cfg.Recipes[0].Stages[0].Environmental.Humidity.Optimal, 65.0)
	is.True(cfg.Recipes[0].Stages[1].RequiresApproval)
	is.Equal(cfg.Recipes[0].Stages[1].Lighting.HoursPerDay, 12.0)
}

func TestRound2(t *testing.T) {
	is := is.New(t)

	is.Equal(Round2(3.14159), 3.14)
	is.Equal(Round2(0.125), 0.13)
	is.Equal(Round2(-1.234), -1.23)
	is.Equal(Round2(10), 10.0)
}

func TestDaysBetween(t *testing.T) {
	is := is.New(t)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	is.Equal(DaysBetween(start, start), 0)
	is.Equal(DaysBetween(start, start.Add(time.Hour)), 1)
	is.Equal(DaysBetween(start, start.Add(48*time.Hour)), 2)
	is.Equal(DaysBetween(start, start.Add(49*time.Hour)), 3)
	is.Equal(DaysBetween(start, start.Add(-time.Hour)), 0)
}

func TestSentinels(t *testing.T) {
	is := is.New(t)

	is.True(errors.Is(Invalid("plantCount %d", -1), ErrValidation))
	is.True(errors.Is(Transition("batch", types.BatchCompleted, types.BatchActive), ErrInvalidTransition))
	is.Equal(Invalid("x").Error(), "validation failed: x")
}
