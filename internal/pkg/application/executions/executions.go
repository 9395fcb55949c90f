package executions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	eqrepo "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/executions"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("farm-operations/executions")

const (
	EventStageChanged string = "execution.stage.changed"

	// ApprovalReminderInterval limits how often the stage checker repeats an approval request alert.
	ApprovalReminderInterval = 24 * time.Hour
)

//go:generate moq -rm -out executionservice_mock.go . ExecutionService

type ExecutionService interface {
	Start(ctx context.Context, input NewExecution, tenants []string) (models.RecipeExecution, error)
	Get(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error)
	Query(ctx context.Context, params repository.ExecutionQuery, tenants []string) (types.Collection[models.RecipeExecution], error)

	AdvanceStage(ctx context.Context, executionID, approverID, notes string, tenants []string) (models.RecipeExecution, error)
	Approve(ctx context.Context, executionID, approverID, notes string, manualTasksCompleted bool, tenants []string) (models.RecipeExecution, error)
	Decline(ctx context.Context, executionID, approverID, notes string, tenants []string) (models.RecipeExecution, error)
	Pause(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error)
	Resume(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error)
	Abort(ctx context.Context, executionID, reason string, tenants []string) (models.RecipeExecution, error)
	SetOverrides(ctx context.Context, executionID string, overrides map[string]types.EquipmentOverride, tenants []string) (models.RecipeExecution, error)

	Progress(ctx context.Context, executionID string, tenants []string) (ExecutionProgress, error)
	CheckStages(ctx context.Context) error
}

type NewExecution struct {
	ZoneID                 string                             `json:"zoneId"`
	RecipeID               string                             `json:"recipeId"`
	BatchID                *string                            `json:"batchId,omitempty"`
	AutoEnvironmentControl *bool                              `json:"autoEnvironmentControl,omitempty"`
	EquipmentOverrides     map[string]types.EquipmentOverride `json:"equipmentOverrides,omitempty"`
	OwnerID                string                             `json:"-"`
	Notes                  string                             `json:"notes,omitempty"`
}

type ExecutionProgress struct {
	ExecutionID          string                    `json:"executionId"`
	Status               types.ExecutionStatus     `json:"status"`
	CurrentStage         int                       `json:"currentStage"`
	TotalStages          int                       `json:"totalStages"`
	Stage                *types.Stage              `json:"stage,omitempty"`
	Progress             int                       `json:"progress"`
	DaysInCurrentStage   int                       `json:"daysInCurrentStage"`
	ExpectedStageEndDate *time.Time                `json:"expectedStageEndDate,omitempty"`
	PendingApproval      *types.PendingApproval    `json:"pendingApproval,omitempty"`
	History              []types.StageHistoryEntry `json:"history"`
}

type executionSvc struct {
	storage   repository.ExecutionRepository
	zones     zones.ZoneRepository
	recipes   recipes.RecipeRepository
	batches   batches.BatchService
	equipment equipment.EquipmentService
	publisher application.Publisher
	alerts    application.AlertRaiser
	feed      application.Broadcaster
}

func New(r repository.ExecutionRepository, z zones.ZoneRepository, rr recipes.RecipeRepository, b batches.BatchService, e equipment.EquipmentService, p application.Publisher, a application.AlertRaiser, feed application.Broadcaster) ExecutionService {
	return &executionSvc{
		storage:   r,
		zones:     z,
		recipes:   rr,
		batches:   b,
		equipment: e,
		publisher: p,
		alerts:    a,
		feed:      feed,
	}
}

// Progress returns how far into its recipe an execution is, in whole percent.
func Progress(e models.RecipeExecution, totalStages int) int {
	if e.Status == types.ExecutionCompleted {
		return 100
	}
	if totalStages <= 0 {
		return 0
	}
	return int(math.Round(float64(e.CurrentStage) / float64(totalStages) * 100))
}

func DaysInStage(e models.RecipeExecution, now time.Time) int {
	if e.PausedAt != nil {
		now = *e.PausedAt
	}
	return application.DaysBetween(e.CurrentStageStartedAt, now)
}

func stageEnd(start time.Time, stage types.Stage) *time.Time {
	end := start.AddDate(0, 0, stage.Duration)
	return &end
}

func (svc *executionSvc) Start(ctx context.Context, input NewExecution, tenants []string) (models.RecipeExecution, error) {
	var err error
	ctx, span := tracer.Start(ctx, "start-execution")
	defer func() { span.End() }()

	zone, err := svc.zones.Get(ctx, input.ZoneID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	recipe, err := svc.recipes.Get(ctx, input.RecipeID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	stages, err := recipe.StageList()
	if err != nil {
		return models.RecipeExecution{}, err
	}
	if len(stages) == 0 {
		return models.RecipeExecution{}, application.Invalid("recipe %s has no stages", recipe.CropID)
	}

	if input.BatchID != nil {
		batch, err := svc.batches.Get(ctx, *input.BatchID, tenants)
		if err != nil {
			return models.RecipeExecution{}, err
		}
		if batch.ZoneID != zone.ID {
			return models.RecipeExecution{}, application.Invalid("batch %s is not in zone %s", batch.BatchNumber, zone.Name)
		}
	}

	open, err := svc.storage.GetOpenInZone(ctx, zone.ID)
	if err == nil {
		return models.RecipeExecution{}, fmt.Errorf("%w: zone %s already runs execution %s", database.ErrConflict, zone.Name, open.ID)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return models.RecipeExecution{}, err
	}

	auto := true
	if input.AutoEnvironmentControl != nil {
		auto = *input.AutoEnvironmentControl
	}

	for id, o := range input.EquipmentOverrides {
		if !o.Mode.Valid() {
			return models.RecipeExecution{}, application.Invalid("override for %s has unknown mode %q", id, o.Mode)
		}
	}

	now := application.Now()

	e := models.RecipeExecution{
		OrganizationID:         zone.OrganizationID,
		OwnerID:                input.OwnerID,
		ZoneID:                 zone.ID,
		RecipeID:               recipe.ID,
		BatchID:                input.BatchID,
		CurrentStage:           0,
		Status:                 types.ExecutionActive,
		StartedAt:              now,
		CurrentStageStartedAt:  now,
		ExpectedStageEndDate:   stageEnd(now, stages[0]),
		StageHistory:           models.ToJSON([]types.StageHistoryEntry{}),
		AutoEnvironmentControl: auto,
		Notes:                  input.Notes,
	}
	if len(input.EquipmentOverrides) > 0 {
		e.EquipmentOverrides = models.ToJSON(input.EquipmentOverrides)
	}

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	zone.ActiveRecipeID = &recipe.ID
	err = svc.zones.Save(ctx, &zone)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("executionID", e.ID).Msgf("started %s in zone %s", recipe.CropName, zone.Name)

	svc.enterStage(ctx, e, recipe, stages)

	return e, nil
}

func (svc *executionSvc) Get(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error) {
	return svc.storage.Get(ctx, executionID, tenants...)
}

func (svc *executionSvc) Query(ctx context.Context, params repository.ExecutionQuery, tenants []string) (types.Collection[models.RecipeExecution], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

// load returns an execution together with its recipe and stages.
func (svc *executionSvc) load(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, models.CropRecipe, []types.Stage, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, models.CropRecipe{}, nil, err
	}

	recipe, err := svc.recipes.Get(ctx, e.RecipeID)
	if err != nil {
		return models.RecipeExecution{}, models.CropRecipe{}, nil, err
	}

	stages, err := recipe.StageList()
	if err != nil {
		return models.RecipeExecution{}, models.CropRecipe{}, nil, err
	}

	if e.CurrentStage >= len(stages) && e.Status.IsOpen() {
		return models.RecipeExecution{}, models.CropRecipe{}, nil, fmt.Errorf("execution %s is on stage %d of a %d stage recipe", e.ID, e.CurrentStage, len(stages))
	}

	return e, recipe, stages, nil
}

func (svc *executionSvc) AdvanceStage(ctx context.Context, executionID, approverID, notes string, tenants []string) (models.RecipeExecution, error) {
	e, recipe, stages, err := svc.load(ctx, executionID, tenants)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if e.Status != types.ExecutionActive {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, "next stage")
	}

	stage := stages[e.CurrentStage]

	if e.AutoEnvironmentControl && stage.RequiresApproval {
		err = svc.requestApproval(ctx, &e, stage)
		if err != nil {
			return models.RecipeExecution{}, err
		}
		return e, nil
	}

	return svc.advance(ctx, e, recipe, stages, approverID, notes, false)
}

func (svc *executionSvc) Approve(ctx context.Context, executionID, approverID, notes string, manualTasksCompleted bool, tenants []string) (models.RecipeExecution, error) {
	e, recipe, stages, err := svc.load(ctx, executionID, tenants)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if e.Status != types.ExecutionWaitingApproval {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, "approved")
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("executionID", e.ID).Msgf("stage %d approved by %s", e.CurrentStage, approverID)

	return svc.advance(ctx, e, recipe, stages, approverID, notes, manualTasksCompleted)
}

// Decline keeps the execution in its current stage and withdraws the approval request.
func (svc *executionSvc) Decline(ctx context.Context, executionID, approverID, notes string, tenants []string) (models.RecipeExecution, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if e.Status != types.ExecutionWaitingApproval {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, types.ExecutionActive)
	}

	e.Status = types.ExecutionActive
	e.PendingApproval = nil

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("executionID", e.ID).Msgf("stage %d declined by %s: %s", e.CurrentStage, approverID, notes)
	svc.broadcast(ctx, e)

	return e, nil
}

func (svc *executionSvc) Pause(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if e.Status != types.ExecutionActive && e.Status != types.ExecutionWaitingApproval {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, types.ExecutionPaused)
	}

	now := application.Now()
	e.Status = types.ExecutionPaused
	e.PausedAt = &now

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	svc.broadcast(ctx, e)

	return e, nil
}

// Resume continues a paused execution. The time spent paused does not count
// towards the current stage.
func (svc *executionSvc) Resume(ctx context.Context, executionID string, tenants []string) (models.RecipeExecution, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if e.Status != types.ExecutionPaused {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, types.ExecutionActive)
	}

	pending, err := e.Pending()
	if err != nil {
		return models.RecipeExecution{}, err
	}

	now := application.Now()

	if e.PausedAt != nil {
		paused := now.Sub(*e.PausedAt)
		e.CurrentStageStartedAt = e.CurrentStageStartedAt.Add(paused)
		if e.ExpectedStageEndDate != nil {
			e.ExpectedStageEndDate = application.Ptr(e.ExpectedStageEndDate.Add(paused))
		}
	}

	e.PausedAt = nil
	e.Status = types.ExecutionActive
	if pending != nil {
		e.Status = types.ExecutionWaitingApproval
	}

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	svc.broadcast(ctx, e)

	return e, nil
}

func (svc *executionSvc) Abort(ctx context.Context, executionID, reason string, tenants []string) (models.RecipeExecution, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if !e.Status.IsOpen() {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, types.ExecutionAborted)
	}

	now := application.Now()
	e.Status = types.ExecutionAborted
	e.CompletedAt = &now
	e.PendingApproval = nil
	if reason != "" {
		if e.Notes != "" {
			e.Notes += "\n"
		}
		e.Notes += "aborted: " + reason
	}

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	err = svc.releaseZone(ctx, e, types.ZoneIdle)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	metrics.StageTransitions.WithLabelValues(string(e.Status)).Inc()
	logger := logging.GetFromContext(ctx)
	logger.Info().Str("executionID", e.ID).Msgf("execution aborted: %s", reason)
	svc.broadcast(ctx, e)

	return e, nil
}

func (svc *executionSvc) SetOverrides(ctx context.Context, executionID string, overrides map[string]types.EquipmentOverride, tenants []string) (models.RecipeExecution, error) {
	e, err := svc.storage.Get(ctx, executionID, tenants...)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if !e.Status.IsOpen() {
		return models.RecipeExecution{}, application.Transition("execution", e.Status, "overridden")
	}

	for id, o := range overrides {
		if !o.Mode.Valid() {
			return models.RecipeExecution{}, application.Invalid("override for %s has unknown mode %q", id, o.Mode)
		}
	}

	e.EquipmentOverrides = nil
	if len(overrides) > 0 {
		e.EquipmentOverrides = models.ToJSON(overrides)
	}

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	return e, nil
}

func (svc *executionSvc) Progress(ctx context.Context, executionID string, tenants []string) (ExecutionProgress, error) {
	e, _, stages, err := svc.load(ctx, executionID, tenants)
	if err != nil {
		return ExecutionProgress{}, err
	}

	history, err := e.History()
	if err != nil {
		return ExecutionProgress{}, err
	}

	pending, err := e.Pending()
	if err != nil {
		return ExecutionProgress{}, err
	}

	p := ExecutionProgress{
		ExecutionID:          e.ID,
		Status:               e.Status,
		CurrentStage:         e.CurrentStage,
		TotalStages:          len(stages),
		Progress:             Progress(e, len(stages)),
		ExpectedStageEndDate: e.ExpectedStageEndDate,
		PendingApproval:      pending,
		History:              history,
	}

	if e.Status.IsOpen() {
		p.Stage = &stages[e.CurrentStage]
		p.DaysInCurrentStage = DaysInStage(e, application.Now())
	}

	return p, nil
}

func (svc *executionSvc) requestApproval(ctx context.Context, e *models.RecipeExecution, stage types.Stage) error {
	days := DaysInStage(*e, application.Now())

	pending := types.PendingApproval{
		Stage:       e.CurrentStage,
		StageName:   stage.Name,
		RequestedAt: application.Now(),
		DaysInStage: days,
		MinDuration: stage.Duration,
		MaxDuration: stage.MaxDays(),
		Message:     fmt.Sprintf("stage %s has run %d of %d days and is ready for review", stage.Name, days, stage.Duration),
		ManualTasks: stage.ManualTasks,
	}

	e.Status = types.ExecutionWaitingApproval
	e.PendingApproval = models.ToJSON(pending)

	err := svc.storage.Save(ctx, e)
	if err != nil {
		return err
	}

	metrics.StageTransitions.WithLabelValues(string(e.Status)).Inc()
	svc.broadcast(ctx, *e)

	return nil
}

// advance closes the current stage in the history and moves to the next one,
// completing the execution after the last stage.
func (svc *executionSvc) advance(ctx context.Context, e models.RecipeExecution, recipe models.CropRecipe, stages []types.Stage, approverID, notes string, manualTasksCompleted bool) (models.RecipeExecution, error) {
	history, err := e.History()
	if err != nil {
		return models.RecipeExecution{}, err
	}

	now := application.Now()
	current := stages[e.CurrentStage]

	history = append(history, types.StageHistoryEntry{
		Stage:                e.CurrentStage,
		StageName:            current.Name,
		StartedAt:            e.CurrentStageStartedAt,
		CompletedAt:          now,
		DaysInStage:          DaysInStage(e, now),
		ApprovedBy:           approverID,
		Notes:                notes,
		ManualTasksCompleted: manualTasksCompleted,
	})

	e.StageHistory = models.ToJSON(history)
	e.PendingApproval = nil

	last := e.CurrentStage+1 >= len(stages)

	if last {
		e.Status = types.ExecutionCompleted
		e.CompletedAt = &now
		e.ExpectedStageEndDate = nil
	} else {
		e.CurrentStage++
		e.Status = types.ExecutionActive
		e.CurrentStageStartedAt = now
		e.ExpectedStageEndDate = stageEnd(now, stages[e.CurrentStage])
	}

	err = svc.storage.Save(ctx, &e)
	if err != nil {
		return models.RecipeExecution{}, err
	}

	if last {
		err = svc.releaseZone(ctx, e, "")
		if err != nil {
			return models.RecipeExecution{}, err
		}

		metrics.StageTransitions.WithLabelValues(string(e.Status)).Inc()
		logger := logging.GetFromContext(ctx)
		logger.Info().Str("executionID", e.ID).Msgf("%s completed", recipe.CropName)
		svc.publish(ctx, e, recipe, stages)

		return e, nil
	}

	svc.enterStage(ctx, e, recipe, stages)

	return e, nil
}

// enterStage syncs the zone and batch with the current stage, drives the zone
// equipment when automatic control is on and announces the change.
func (svc *executionSvc) enterStage(ctx context.Context, e models.RecipeExecution, recipe models.CropRecipe, stages []types.Stage) {
	logger := logging.GetFromContext(ctx).With().Str("executionID", e.ID).Logger()
	stage := stages[e.CurrentStage]

	zone, err := svc.zones.Get(ctx, e.ZoneID)
	if err == nil {
		zone.CurrentStage = e.CurrentStage
		zone.CurrentSetpoints = models.ToJSON(stage.Environmental)
		err = svc.zones.Save(ctx, &zone)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to update zone stage")
	}

	if e.BatchID != nil {
		err = svc.batches.SetCurrentStage(ctx, *e.BatchID, e.CurrentStage)
		if err != nil {
			logger.Error().Err(err).Msg("failed to update batch stage")
		}
	}

	if e.AutoEnvironmentControl {
		err = svc.applyStage(ctx, e, stage)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to apply stage %s", stage.Name)
		}
	}

	metrics.StageTransitions.WithLabelValues(string(e.Status)).Inc()
	logger.Info().Msgf("entered stage %d (%s) of %s", e.CurrentStage, stage.Name, recipe.CropName)

	svc.publish(ctx, e, recipe, stages)
}

func (svc *executionSvc) applyStage(ctx context.Context, e models.RecipeExecution, stage types.Stage) error {
	result, err := svc.equipment.Query(ctx, eqrepo.EquipmentQuery{ZoneID: e.ZoneID, ActiveOnly: true}, nil)
	if err != nil {
		return err
	}

	overrides, err := e.Overrides()
	if err != nil {
		return err
	}

	var errs []error

	for _, p := range StageCommands(stage, result.Data, overrides) {
		_, err := svc.equipment.IssueCommand(ctx, p.EquipmentID, p.Command, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.EquipmentID, err))
		}
	}

	return errors.Join(errs...)
}

func (svc *executionSvc) releaseZone(ctx context.Context, e models.RecipeExecution, status types.ZoneStatus) error {
	zone, err := svc.zones.Get(ctx, e.ZoneID)
	if err != nil {
		return err
	}

	zone.ActiveRecipeID = nil
	zone.CurrentSetpoints = nil
	if status != "" {
		zone.Status = status
	}

	return svc.zones.Save(ctx, &zone)
}

func (svc *executionSvc) publish(ctx context.Context, e models.RecipeExecution, recipe models.CropRecipe, stages []types.Stage) {
	stage := stages[len(stages)-1]
	if e.CurrentStage < len(stages) {
		stage = stages[e.CurrentStage]
	}

	msg := &types.StageChanged{
		ExecutionID:   e.ID,
		ZoneID:        e.ZoneID,
		RecipeName:    recipe.CropName,
		Stage:         e.CurrentStage,
		StageName:     stage.Name,
		TotalStages:   len(stages),
		Progress:      Progress(e, len(stages)),
		Status:        e.Status,
		Environmental: stage.Environmental,
		Lighting:      stage.Lighting,
		Irrigation:    stage.Irrigation,
		Tenant:        e.OrganizationID,
		Timestamp:     application.Now(),
	}

	if svc.publisher != nil {
		if err := svc.publisher.PublishOnTopic(ctx, msg); err != nil {
			logger := logging.GetFromContext(ctx)
			logger.Error().Err(err).Str("executionID", e.ID).Msg("failed to publish stage change")
		}
	}

	if svc.feed != nil {
		if err := svc.feed.Publish(EventStageChanged, msg); err != nil {
			logger := logging.GetFromContext(ctx)
			logger.Error().Err(err).Msg("failed to push stage change to live feed")
		}
	}
}

func (svc *executionSvc) broadcast(ctx context.Context, e models.RecipeExecution) {
	if svc.feed == nil {
		return
	}
	if err := svc.feed.Publish(EventStageChanged, e); err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("failed to push execution to live feed")
	}
}

// CheckStages requests approval for active executions that have spent the
// stage duration in their current stage, and raises a single overdue alert for
// executions that have waited for approval longer than the stage allows.
// Executions are never advanced here.
func (svc *executionSvc) CheckStages(ctx context.Context) error {
	logger := logging.GetFromContext(ctx)

	result, err := svc.storage.Query(ctx, repository.ExecutionQuery{
		Status: []types.ExecutionStatus{types.ExecutionActive, types.ExecutionWaitingApproval},
	})
	if err != nil {
		return err
	}

	now := application.Now()

	for _, e := range result.Data {
		recipe, err := svc.recipes.Get(ctx, e.RecipeID)
		if err != nil {
			logger.Error().Err(err).Str("executionID", e.ID).Msg("failed to load recipe")
			continue
		}

		stages, err := recipe.StageList()
		if err != nil || e.CurrentStage >= len(stages) {
			logger.Error().Err(err).Str("executionID", e.ID).Msg("execution has no valid current stage")
			continue
		}

		stage := stages[e.CurrentStage]
		days := DaysInStage(e, now)

		switch e.Status {
		case types.ExecutionActive:
			if days < stage.Duration {
				continue
			}

			err = svc.requestApproval(ctx, &e, stage)
			if err != nil {
				logger.Error().Err(err).Str("executionID", e.ID).Msg("failed to request approval")
				continue
			}

			svc.raise(ctx, e, models.Alert{
				Type:     types.AlertBatchMilestone,
				Severity: types.SeverityMedium,
				Title:    fmt.Sprintf("%s: stage %s ready for review", recipe.CropName, stage.Name),
				Message:  fmt.Sprintf("Stage %s has run %d of %d days. Approve to continue with the next stage.", stage.Name, days, stage.Duration),
			}, true)

		case types.ExecutionWaitingApproval:
			if days <= stage.MaxDays() {
				continue
			}

			pending, err := e.Pending()
			if err != nil || pending == nil || pending.OverdueAlertedAt != nil {
				continue
			}

			pending.OverdueAlertedAt = &now
			e.PendingApproval = models.ToJSON(pending)

			err = svc.storage.Save(ctx, &e)
			if err != nil {
				logger.Error().Err(err).Str("executionID", e.ID).Msg("failed to mark overdue alert")
				continue
			}

			svc.raise(ctx, e, models.Alert{
				Type:     types.AlertBatchMilestone,
				Severity: types.SeverityHigh,
				Title:    fmt.Sprintf("%s: stage %s is overdue", recipe.CropName, stage.Name),
				Message:  fmt.Sprintf("Stage %s has run %d days, the maximum is %d. Review it as soon as possible.", stage.Name, days, stage.MaxDays()),
			}, false)
		}
	}

	return nil
}

func (svc *executionSvc) raise(ctx context.Context, e models.RecipeExecution, alert models.Alert, throttle bool) {
	alert.OrganizationID = e.OrganizationID
	alert.ZoneID = application.Ptr(e.ZoneID)
	alert.BatchID = e.BatchID
	alert.Metadata = models.ToJSON(map[string]any{"executionId": e.ID, "stage": e.CurrentStage})

	logger := logging.GetFromContext(ctx).With().Str("executionID", e.ID).Logger()

	if throttle {
		raised, err := svc.alerts.RaisedSince(ctx, alert, application.Now().Add(-ApprovalReminderInterval))
		if err != nil {
			logger.Error().Err(err).Msg("failed to look up earlier alerts")
			return
		}
		if raised {
			return
		}
	}

	_, err := svc.alerts.Raise(ctx, alert)
	if err != nil {
		logger.Error().Err(err).Msg("failed to raise stage alert")
	}
}
