package executions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	batchrepo "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	eqrepo "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/executions"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

var tenants = []string{"default"}

func TestStageCommands(t *testing.T) {
	is := is.New(t)

	stage := types.Stage{
		Name: "fruiting",
		Environmental: types.Environmental{
			Temperature: &types.Range{Min: 15, Max: 20, Optimal: 18},
			Humidity:    &types.Range{Min: 85, Max: 95, Optimal: 92.6},
			CO2:         &types.Range{Min: 400, Max: 800, Optimal: 600},
		},
		Lighting:   &types.Lighting{HoursPerDay: 12},
		Irrigation: &types.Irrigation{Frequency: 3},
	}

	eqs := []models.Equipment{
		{Base: models.Base{ID: "heater"}, Type: types.EquipmentHeater, MaxValue: 40, IsActive: true},
		{Base: models.Base{ID: "humidifier"}, Type: types.EquipmentHumidifier, MaxValue: 100, IsActive: true},
		{Base: models.Base{ID: "fan"}, Type: types.EquipmentFan, MaxValue: 100, IsActive: true},
		{Base: models.Base{ID: "light"}, Type: types.EquipmentLight, MaxValue: 100, IsActive: true},
		{Base: models.Base{ID: "pump"}, Type: types.EquipmentPump, MaxValue: 10, IsActive: true},
		{Base: models.Base{ID: "valve"}, Type: types.EquipmentValve, MaxValue: 1, IsActive: true},
		{Base: models.Base{ID: "spare"}, Type: types.EquipmentFan, MaxValue: 100, IsActive: false},
	}

	planned := StageCommands(stage, eqs, nil)
	is.Equal(5, len(planned))

	byID := map[string]equipment.Command{}
	for _, p := range planned {
		is.Equal(types.SourceRecipe, p.Command.Source)
		byID[p.EquipmentID] = p.Command
	}

	is.Equal(types.CommandSetValue, byID["heater"].Type)
	is.Equal(40, *byID["heater"].Value)
	is.Equal(93, *byID["humidifier"].Value)
	is.Equal(80, *byID["fan"].Value)
	is.Equal(types.CommandTurnOn, byID["light"].Type)
	is.Equal(100, *byID["light"].Value)
	is.Equal(types.CommandSetMode, byID["pump"].Type)
	is.Equal(types.ModeScheduled, *byID["pump"].Mode)
	is.Equal(3, *byID["pump"].Value)

	overrides := map[string]types.EquipmentOverride{
		"fan":        {Mode: types.ModeManual},
		"humidifier": {Mode: types.ModeAuto, Value: application.Ptr(70)},
	}

	byID = map[string]equipment.Command{}
	for _, p := range StageCommands(stage, eqs, overrides) {
		byID[p.EquipmentID] = p.Command
	}

	_, fanCommanded := byID["fan"]
	is.True(!fanCommanded)
	is.Equal(70, *byID["humidifier"].Value)
}

func TestFanFollowsCO2Ceiling(t *testing.T) {
	is := is.New(t)

	fan := []models.Equipment{{Base: models.Base{ID: "fan"}, Type: types.EquipmentFan, MaxValue: 100, IsActive: true}}

	high := types.Stage{Environmental: types.Environmental{CO2: &types.Range{Max: 5000}}}
	is.Equal(20, *StageCommands(high, fan, nil)[0].Command.Value)

	mid := types.Stage{Environmental: types.Environmental{CO2: &types.Range{Max: 1500}}}
	is.Equal(50, *StageCommands(mid, fan, nil)[0].Command.Value)

	none := types.Stage{}
	is.Equal(50, *StageCommands(none, fan, nil)[0].Command.Value)

	dark := types.Stage{Lighting: &types.Lighting{HoursPerDay: 0}}
	light := []models.Equipment{{Base: models.Base{ID: "light"}, Type: types.EquipmentLight, MaxValue: 100, IsActive: true}}
	is.Equal(types.CommandTurnOff, StageCommands(dark, light, nil)[0].Command.Type)
}

func TestProgress(t *testing.T) {
	is := is.New(t)

	is.Equal(0, Progress(models.RecipeExecution{CurrentStage: 0, Status: types.ExecutionActive}, 3))
	is.Equal(67, Progress(models.RecipeExecution{CurrentStage: 2, Status: types.ExecutionActive}, 3))
	is.Equal(100, Progress(models.RecipeExecution{CurrentStage: 2, Status: types.ExecutionCompleted}, 3))

	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	is.Equal(0, DaysInStage(models.RecipeExecution{CurrentStageStartedAt: start}, start))
	is.Equal(3, DaysInStage(models.RecipeExecution{CurrentStageStartedAt: start}, start.Add(50*time.Hour)))
}

func TestStartExecution(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionActive, e.Status)
	is.Equal(0, e.CurrentStage)
	is.True(e.AutoEnvironmentControl)
	is.True(e.ExpectedStageEndDate.Equal(f.t0.AddDate(0, 0, 14)))

	zone, err := f.zones.Get(ctx, f.zone.ID)
	is.NoErr(err)
	is.Equal(f.recipe.ID, *zone.ActiveRecipeID)
	is.Equal(0, zone.CurrentStage)

	// heater, humidifier and fan follow stage one, then the stage change is announced
	is.Equal(3, f.publisher.count("command.issued"))
	is.Equal(1, f.publisher.count("execution.stage.changed"))

	_, err = svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.True(errors.Is(err, database.ErrConflict))
}

func TestStartWithoutEnvironmentControl(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	manual := false
	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID, AutoEnvironmentControl: &manual}, tenants)
	is.NoErr(err)
	is.True(!e.AutoEnvironmentControl)
	is.Equal(0, f.publisher.count("command.issued"))

	// without automatic control the approval gate is not used
	e, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionActive, e.Status)
	is.Equal(1, e.CurrentStage)
}

func TestApprovalGate(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	batch, err := f.batches.Create(ctx, batches.NewBatch{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID, BatchID: &batch.ID}, tenants)
	is.NoErr(err)

	e, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionWaitingApproval, e.Status)
	is.Equal(0, e.CurrentStage)

	pending, err := e.Pending()
	is.NoErr(err)
	is.Equal("incubation", pending.StageName)
	is.Equal(19, pending.MaxDuration)
	is.Equal([]string{"check mycelium coverage"}, pending.ManualTasks)

	_, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	f.clock = f.clock.AddDate(0, 0, 15)

	e, err = svc.Approve(ctx, e.ID, "manager", "looks good", true, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionActive, e.Status)
	is.Equal(1, e.CurrentStage)

	history, err := e.History()
	is.NoErr(err)
	is.Equal(1, len(history))
	is.Equal("manager", history[0].ApprovedBy)
	is.Equal(15, history[0].DaysInStage)
	is.True(history[0].ManualTasksCompleted)

	pending, _ = e.Pending()
	is.True(pending == nil)

	batch, err = f.batches.Get(ctx, batch.ID, tenants)
	is.NoErr(err)
	is.Equal(1, batch.CurrentStage)

	p, err := svc.Progress(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(50, p.Progress)
	is.Equal("fruiting", p.Stage.Name)

	e, err = svc.AdvanceStage(ctx, e.ID, "grower", "done", tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionCompleted, e.Status)
	is.True(e.CompletedAt != nil)

	p, err = svc.Progress(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(100, p.Progress)
	is.Equal(2, len(p.History))

	zone, _ := f.zones.Get(ctx, f.zone.ID)
	is.True(zone.ActiveRecipeID == nil)

	// the zone is free for a new execution
	_, err = svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)
}

func TestDecline(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	_, err = svc.Decline(ctx, e.ID, "manager", "", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	e, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.NoErr(err)

	e, err = svc.Decline(ctx, e.ID, "manager", "needs more time", tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionActive, e.Status)
	is.Equal(0, e.CurrentStage)

	pending, _ := e.Pending()
	is.True(pending == nil)
}

func TestPauseAndResume(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	f.clock = f.clock.AddDate(0, 0, 1)

	e, err = svc.Pause(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionPaused, e.Status)

	_, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	f.clock = f.clock.AddDate(0, 0, 2)

	e, err = svc.Resume(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionActive, e.Status)
	is.True(e.PausedAt == nil)
	is.True(e.CurrentStageStartedAt.Equal(f.t0.AddDate(0, 0, 2)))
	is.True(e.ExpectedStageEndDate.Equal(f.t0.AddDate(0, 0, 16)))

	_, err = svc.Resume(ctx, e.ID, tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	// a pending gate survives a pause
	e, err = svc.AdvanceStage(ctx, e.ID, "grower", "", tenants)
	is.NoErr(err)
	_, err = svc.Pause(ctx, e.ID, tenants)
	is.NoErr(err)
	e, err = svc.Resume(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionWaitingApproval, e.Status)
}

func TestAbort(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	e, err = svc.Abort(ctx, e.ID, "contamination", tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionAborted, e.Status)
	is.True(e.CompletedAt != nil)
	is.Equal("aborted: contamination", e.Notes)

	_, err = svc.Abort(ctx, e.ID, "again", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	_, err = svc.Resume(ctx, e.ID, tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	zone, _ := f.zones.Get(ctx, f.zone.ID)
	is.Equal(types.ZoneIdle, zone.Status)
	is.True(zone.ActiveRecipeID == nil)
}

func TestCheckStages(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	f.clock = f.clock.AddDate(0, 0, 10)
	is.NoErr(svc.CheckStages(ctx))
	is.Equal(0, len(f.alerts.raised))

	f.clock = f.t0.AddDate(0, 0, 14)
	is.NoErr(svc.CheckStages(ctx))

	e, err = svc.Get(ctx, e.ID, tenants)
	is.NoErr(err)
	is.Equal(types.ExecutionWaitingApproval, e.Status)
	is.Equal(0, e.CurrentStage)
	is.Equal(1, len(f.alerts.raised))
	is.Equal(types.SeverityMedium, f.alerts.raised[0].Severity)

	is.NoErr(svc.CheckStages(ctx))
	is.Equal(1, len(f.alerts.raised))

	f.clock = f.t0.AddDate(0, 0, 20)
	is.NoErr(svc.CheckStages(ctx))
	is.Equal(2, len(f.alerts.raised))
	is.Equal(types.SeverityHigh, f.alerts.raised[1].Severity)

	// the overdue alert is raised once
	f.clock = f.t0.AddDate(0, 0, 25)
	is.NoErr(svc.CheckStages(ctx))
	is.Equal(2, len(f.alerts.raised))

	e, _ = svc.Get(ctx, e.ID, tenants)
	is.Equal(0, e.CurrentStage)
}

func TestSetOverrides(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	e, err := svc.Start(ctx, NewExecution{ZoneID: f.zone.ID, RecipeID: f.recipe.ID}, tenants)
	is.NoErr(err)

	_, err = svc.SetOverrides(ctx, e.ID, map[string]types.EquipmentOverride{f.fan.ID: {Mode: "turbo"}}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	e, err = svc.SetOverrides(ctx, e.ID, map[string]types.EquipmentOverride{f.fan.ID: {Mode: types.ModeManual}}, tenants)
	is.NoErr(err)

	overrides, err := e.Overrides()
	is.NoErr(err)
	is.Equal(types.ModeManual, overrides[f.fan.ID].Mode)
}

type publisherMock struct {
	published []messaging.TopicMessage
}

func (p *publisherMock) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	p.published = append(p.published, message)
	return nil
}

func (p *publisherMock) count(topic string) int {
	n := 0
	for _, m := range p.published {
		if m.TopicName() == topic {
			n++
		}
	}
	return n
}

type alertsMock struct {
	clock  func() time.Time
	raised []models.Alert
}

func (a *alertsMock) Raise(ctx context.Context, alert models.Alert) (models.Alert, error) {
	alert.CreatedAt = a.clock()
	a.raised = append(a.raised, alert)
	return alert, nil
}

func (a *alertsMock) RaisedSince(ctx context.Context, alert models.Alert, since time.Time) (bool, error) {
	for _, r := range a.raised {
		if r.Type == alert.Type && *r.ZoneID == *alert.ZoneID && r.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

type fixture struct {
	t0        time.Time
	clock     time.Time
	zones     zones.ZoneRepository
	batches   batches.BatchService
	publisher *publisherMock
	alerts    *alertsMock
	zone      models.Zone
	recipe    models.CropRecipe
	fan       models.Equipment
}

func testSetup(t *testing.T) (*is.I, context.Context, ExecutionService, *fixture) {
	is := is.New(t)
	ctx := context.Background()
	connect := database.NewSQLiteConnector(ctx)

	f := &fixture{t0: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)}
	f.clock = f.t0

	now := application.Now
	application.Now = func() time.Time { return f.clock }
	t.Cleanup(func() { application.Now = now })

	er, err := repository.NewExecutionRepository(connect)
	is.NoErr(err)
	zr, err := zones.NewZoneRepository(connect)
	is.NoErr(err)
	rr, err := recipes.NewRecipeRepository(connect)
	is.NoErr(err)
	br, err := batchrepo.NewBatchRepository(connect)
	is.NoErr(err)
	hr, err := harvests.NewHarvestRepository(connect)
	is.NoErr(err)
	eqr, err := eqrepo.NewEquipmentRepository(connect)
	is.NoErr(err)

	f.zones = zr
	f.publisher = &publisherMock{}
	f.alerts = &alertsMock{clock: application.Now}

	stages := []types.Stage{
		{
			Name: "incubation", Duration: 14, RequiresApproval: true,
			Environmental: types.Environmental{
				Temperature: &types.Range{Min: 22, Max: 26, Optimal: 24},
				Humidity:    &types.Range{Min: 80, Max: 90, Optimal: 85},
				CO2:         &types.Range{Min: 5000, Max: 20000, Optimal: 10000},
			},
			ManualTasks: []string{"check mycelium coverage"},
		},
		{
			Name: "fruiting", Duration: 7,
			Environmental: types.Environmental{
				Humidity: &types.Range{Min: 85, Max: 95, Optimal: 90},
				CO2:      &types.Range{Min: 400, Max: 800, Optimal: 600},
			},
			Lighting: &types.Lighting{HoursPerDay: 12},
		},
	}

	f.recipe = models.CropRecipe{
		OrganizationID: "default", CropID: "oyster", CropName: "Oyster", CropType: types.CropMushroom, Version: "1.0.0",
		Stages: models.ToJSON(stages), TotalDuration: 21,
	}
	is.NoErr(rr.Save(ctx, &f.recipe))

	f.zone = models.Zone{OrganizationID: "default", Name: "Grow room 1", ZoneNumber: "GR1", Status: types.ZoneIdle}
	is.NoErr(zr.Save(ctx, &f.zone))

	for _, eq := range []models.Equipment{
		{Name: "fan-1", Type: types.EquipmentFan, MaxValue: 100},
		{Name: "humidifier-1", Type: types.EquipmentHumidifier, MaxValue: 100},
		{Name: "heater-1", Type: types.EquipmentHeater, MaxValue: 40},
		{Name: "light-1", Type: types.EquipmentLight, MaxValue: 100},
	} {
		eq.OrganizationID = "default"
		eq.ZoneID = f.zone.ID
		eq.DeviceID = "gw-01"
		eq.ControlType = types.ControlRelay
		eq.Status = types.EquipmentOff
		eq.Mode = types.ModeAuto
		eq.IsActive = true
		is.NoErr(eqr.Save(ctx, &eq))

		if eq.Type == types.EquipmentFan {
			f.fan = eq
		}
	}

	f.batches = batches.New(br, zr, rr, hr, f.alerts, nil)
	eqs := equipment.New(eqr, zr, f.publisher, f.alerts, nil, 0)

	return is, ctx, New(er, zr, rr, f.batches, eqs, f.publisher, f.alerts, nil), f
}
