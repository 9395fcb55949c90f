package executions

import (
	"math"

	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
)

const (
	heaterValue           int = 100
	fanHighCO2Value       int = 20
	fanLowCO2Value        int = 80
	fanDefaultValue       int = 50
	defaultLightIntensity int = 100
)

// PlannedCommand is a command that brings one piece of equipment in line with a stage.
type PlannedCommand struct {
	EquipmentID string
	Command     equipment.Command
}

// StageCommands turns the configuration of a stage into commands for the given
// equipment. Equipment overridden to manual mode is left alone and an override
// value replaces the computed one. Values are kept inside the equipment bounds.
func StageCommands(stage types.Stage, eqs []models.Equipment, overrides map[string]types.EquipmentOverride) []PlannedCommand {
	planned := []PlannedCommand{}

	for _, eq := range eqs {
		if !eq.IsActive {
			continue
		}

		override, overridden := overrides[eq.ID]
		if overridden && override.Mode == types.ModeManual {
			continue
		}

		cmd, ok := commandFor(stage, eq)
		if !ok {
			continue
		}

		if overridden && override.Value != nil && cmd.Type == types.CommandSetValue {
			cmd.Value = override.Value
		}

		if cmd.Value != nil && (cmd.Type == types.CommandSetValue || cmd.Type == types.CommandTurnOn) {
			cmd.Value = clamp(*cmd.Value, eq)
		}

		cmd.Source = types.SourceRecipe
		planned = append(planned, PlannedCommand{EquipmentID: eq.ID, Command: cmd})
	}

	return planned
}

func commandFor(stage types.Stage, eq models.Equipment) (equipment.Command, bool) {
	env := stage.Environmental

	switch eq.Type {
	case types.EquipmentHeater:
		if env.Temperature == nil {
			return equipment.Command{}, false
		}
		return setValue(heaterValue), true

	case types.EquipmentHumidifier:
		if env.Humidity == nil {
			return equipment.Command{}, false
		}
		return setValue(int(math.Round(env.Humidity.Optimal))), true

	case types.EquipmentFan:
		v := fanDefaultValue
		if env.CO2 != nil {
			if env.CO2.Max > 2000 {
				v = fanHighCO2Value
			} else if env.CO2.Max < 1000 {
				v = fanLowCO2Value
			}
		}
		return setValue(v), true

	case types.EquipmentLight:
		if stage.Lighting == nil {
			return equipment.Command{}, false
		}
		if stage.Lighting.HoursPerDay == 0 {
			return equipment.Command{Type: types.CommandTurnOff}, true
		}
		intensity := defaultLightIntensity
		if stage.Lighting.Intensity != nil {
			intensity = *stage.Lighting.Intensity
		}
		return equipment.Command{Type: types.CommandTurnOn, Value: &intensity}, true

	case types.EquipmentPump:
		if stage.Irrigation == nil || stage.Irrigation.Frequency <= 0 {
			return equipment.Command{}, false
		}
		mode := types.ModeScheduled
		frequency := stage.Irrigation.Frequency
		return equipment.Command{Type: types.CommandSetMode, Mode: &mode, Value: &frequency}, true
	}

	return equipment.Command{}, false
}

func setValue(v int) equipment.Command {
	return equipment.Command{Type: types.CommandSetValue, Value: &v}
}

func clamp(v int, eq models.Equipment) *int {
	f := float64(v)
	if f < eq.MinValue {
		f = eq.MinValue
	}
	if f > eq.MaxValue {
		f = eq.MaxValue
	}
	clamped := int(math.Floor(f))
	if float64(clamped) < eq.MinValue {
		clamped = int(math.Ceil(eq.MinValue))
	}
	return &clamped
}
