package batches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	EventBatchChanged string = "batch.changed"

	// MilestoneWindow is how close to its expected end a batch must be to get a harvest reminder.
	MilestoneWindow = 2 * 24 * time.Hour
	// ReminderInterval is the minimum time between two reminders for the same batch.
	ReminderInterval = 24 * time.Hour
)

//go:generate moq -rm -out batchservice_mock.go . BatchService

type BatchService interface {
	Create(ctx context.Context, input NewBatch, tenants []string) (models.Batch, error)
	Get(ctx context.Context, batchID string, tenants []string) (models.Batch, error)
	Query(ctx context.Context, params repository.BatchQuery, tenants []string) (types.Collection[models.Batch], error)

	Activate(ctx context.Context, batchID string, tenants []string) (models.Batch, error)
	Complete(ctx context.Context, batchID string, actualEndDate *time.Time, totalYieldKg *float64, tenants []string) (models.Batch, error)
	Fail(ctx context.Context, batchID, reason string, tenants []string) (models.Batch, error)
	Cancel(ctx context.Context, batchID string, tenants []string) (models.Batch, error)

	SetCurrentStage(ctx context.Context, batchID string, stage int) error
	RecomputeTotals(ctx context.Context, batchID string) (models.Batch, error)

	CheckMilestones(ctx context.Context) error
}

type NewBatch struct {
	ZoneID     string     `json:"zoneId"`
	RecipeID   string     `json:"recipeId"`
	PlantCount int        `json:"plantCount"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	OwnerID    string     `json:"ownerId,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

type batchSvc struct {
	storage  repository.BatchRepository
	zones    zones.ZoneRepository
	recipes  recipes.RecipeRepository
	harvests harvests.HarvestRepository
	alerts   application.AlertRaiser
	feed     application.Broadcaster
}

func New(r repository.BatchRepository, z zones.ZoneRepository, rr recipes.RecipeRepository, h harvests.HarvestRepository, a application.AlertRaiser, feed application.Broadcaster) BatchService {
	return &batchSvc{
		storage:  r,
		zones:    z,
		recipes:  rr,
		harvests: h,
		alerts:   a,
		feed:     feed,
	}
}

func (svc *batchSvc) Create(ctx context.Context, input NewBatch, tenants []string) (models.Batch, error) {
	if input.PlantCount < 0 {
		return models.Batch{}, application.Invalid("plant count cannot be negative")
	}

	zone, err := svc.zones.Get(ctx, input.ZoneID, tenants...)
	if err != nil {
		return models.Batch{}, err
	}

	recipe, err := svc.recipes.Get(ctx, input.RecipeID, tenants...)
	if err != nil {
		return models.Batch{}, err
	}

	start := application.Now()
	if input.StartDate != nil {
		start = input.StartDate.UTC()
	}

	started, err := svc.storage.CountStartedInYear(ctx, zone.ID, start.Year())
	if err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{
		OrganizationID:  zone.OrganizationID,
		OwnerID:         input.OwnerID,
		BatchNumber:     BatchNumber(zone, start, int(started)+1),
		ZoneID:          zone.ID,
		RecipeID:        recipe.ID,
		CropName:        recipe.CropName,
		CropType:        recipe.CropType,
		Status:          types.BatchPlanned,
		StartDate:       start,
		CycleDuration:   recipe.TotalDuration,
		ExpectedEndDate: ExpectedEndDate(start, recipe.TotalDuration),
		PlantCount:      input.PlantCount,
		Notes:           input.Notes,
	}

	err = svc.storage.Save(ctx, &batch)
	if err != nil {
		return models.Batch{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("batchID", batch.ID).Msgf("created batch %s in zone %s", batch.BatchNumber, zone.Name)

	return batch, nil
}

// BatchNumber returns <ZONECODE>-<YYYYMMDD>-<NNN> where seq is the batch's
// ordinal among the zone's batches started the same year.
func BatchNumber(zone models.Zone, start time.Time, seq int) string {
	code := strings.ToUpper(strings.TrimSpace(zone.ZoneNumber))
	if code == "" {
		code = strings.ToUpper(strings.Join(strings.Fields(zone.Name), "-"))
	}
	return fmt.Sprintf("%s-%s-%03d", code, start.Format("20060102"), seq)
}

func ExpectedEndDate(start time.Time, cycleDays int) time.Time {
	return start.AddDate(0, 0, cycleDays)
}

func (svc *batchSvc) Get(ctx context.Context, batchID string, tenants []string) (models.Batch, error) {
	return svc.storage.Get(ctx, batchID, tenants...)
}

func (svc *batchSvc) Query(ctx context.Context, params repository.BatchQuery, tenants []string) (types.Collection[models.Batch], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

func (svc *batchSvc) Activate(ctx context.Context, batchID string, tenants []string) (models.Batch, error) {
	batch, err := svc.transition(ctx, batchID, types.BatchActive, tenants)
	if err != nil {
		return models.Batch{}, err
	}

	active, err := svc.storage.GetActiveInZone(ctx, batch.ZoneID)
	if err == nil && active.ID != batch.ID {
		return models.Batch{}, fmt.Errorf("%w: zone already hosts active batch %s", database.ErrConflict, active.BatchNumber)
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return models.Batch{}, err
	}

	batch.Status = types.BatchActive

	err = svc.save(ctx, &batch)
	if err != nil {
		return models.Batch{}, err
	}

	err = svc.updateZone(ctx, batch.ZoneID, func(zone *models.Zone) {
		start, end := batch.StartDate, batch.ExpectedEndDate
		zone.Status = types.ZoneRunning
		zone.BatchStartDate = &start
		zone.BatchEndDate = &end
		zone.PlantCount = batch.PlantCount
	})

	return batch, err
}

func (svc *batchSvc) Complete(ctx context.Context, batchID string, actualEndDate *time.Time, totalYieldKg *float64, tenants []string) (models.Batch, error) {
	if totalYieldKg != nil && *totalYieldKg < 0 {
		return models.Batch{}, application.Invalid("total yield cannot be negative")
	}

	batch, err := svc.transition(ctx, batchID, types.BatchCompleted, tenants)
	if err != nil {
		return models.Batch{}, err
	}

	end := application.Now()
	if actualEndDate != nil {
		end = actualEndDate.UTC()
	}

	batch.Status = types.BatchCompleted
	batch.ActualEndDate = &end
	if totalYieldKg != nil {
		batch.TotalYieldKg = *totalYieldKg
	}

	return svc.finish(ctx, batch, true)
}

func (svc *batchSvc) Fail(ctx context.Context, batchID, reason string, tenants []string) (models.Batch, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Batch{}, application.Invalid("a failure reason is required")
	}

	batch, err := svc.transition(ctx, batchID, types.BatchFailed, tenants)
	if err != nil {
		return models.Batch{}, err
	}

	wasActive := batch.Status == types.BatchActive

	now := application.Now()
	batch.Status = types.BatchFailed
	batch.FailureReason = reason
	batch.ActualEndDate = &now

	return svc.finish(ctx, batch, wasActive)
}

func (svc *batchSvc) Cancel(ctx context.Context, batchID string, tenants []string) (models.Batch, error) {
	batch, err := svc.transition(ctx, batchID, types.BatchCancelled, tenants)
	if err != nil {
		return models.Batch{}, err
	}

	wasActive := batch.Status == types.BatchActive
	batch.Status = types.BatchCancelled

	return svc.finish(ctx, batch, wasActive)
}

func (svc *batchSvc) SetCurrentStage(ctx context.Context, batchID string, stage int) error {
	batch, err := svc.storage.Get(ctx, batchID)
	if err != nil {
		return err
	}

	batch.CurrentStage = stage
	return svc.storage.Save(ctx, &batch)
}

// RecomputeTotals sets the yield and harvest count of a batch from its completed harvests.
func (svc *batchSvc) RecomputeTotals(ctx context.Context, batchID string) (models.Batch, error) {
	batch, err := svc.storage.Get(ctx, batchID)
	if err != nil {
		return models.Batch{}, err
	}

	totals, err := svc.harvests.BatchTotals(ctx, batchID)
	if err != nil {
		return models.Batch{}, err
	}

	batch.TotalYieldKg = totals.TotalWeightKg
	batch.HarvestCount = totals.Count

	err = svc.storage.Save(ctx, &batch)
	if err != nil {
		return models.Batch{}, err
	}

	return batch, nil
}

// CheckMilestones raises a harvest reminder for active batches whose expected
// end is within the milestone window, at most once per reminder interval.
func (svc *batchSvc) CheckMilestones(ctx context.Context) error {
	logger := logging.GetFromContext(ctx)

	active, err := svc.storage.Query(ctx, repository.BatchQuery{Status: []types.BatchStatus{types.BatchActive}})
	if err != nil {
		return err
	}

	now := application.Now()

	for _, batch := range active.Data {
		untilEnd := batch.ExpectedEndDate.Sub(now)
		if untilEnd > MilestoneWindow || untilEnd < -MilestoneWindow {
			continue
		}

		alert := models.Alert{
			OrganizationID: batch.OrganizationID,
			Type:           types.AlertHarvestReminder,
			Severity:       types.SeverityMedium,
			Title:          fmt.Sprintf("Batch %s is ready for harvest", batch.BatchNumber),
			ZoneID:         application.Ptr(batch.ZoneID),
			BatchID:        application.Ptr(batch.ID),
		}

		raised, err := svc.alerts.RaisedSince(ctx, alert, now.Add(-ReminderInterval))
		if err != nil {
			return err
		}
		if raised {
			continue
		}

		if untilEnd >= 0 {
			alert.Message = fmt.Sprintf("%s is expected to finish %s.", batch.CropName, batch.ExpectedEndDate.Format(time.DateOnly))
		} else {
			alert.Message = fmt.Sprintf("%s was expected to finish %s.", batch.CropName, batch.ExpectedEndDate.Format(time.DateOnly))
		}
		alert.Metadata = models.ToJSON(map[string]any{"batchNumber": batch.BatchNumber, "expectedEndDate": batch.ExpectedEndDate})

		_, err = svc.alerts.Raise(ctx, alert)
		if err != nil {
			logger.Error().Err(err).Str("batchID", batch.ID).Msg("failed to raise harvest reminder")
		}
	}

	return nil
}

// transition loads the batch and checks that it may move to next.
func (svc *batchSvc) transition(ctx context.Context, batchID string, next types.BatchStatus, tenants []string) (models.Batch, error) {
	batch, err := svc.storage.Get(ctx, batchID, tenants...)
	if err != nil {
		return models.Batch{}, err
	}

	if !batch.Status.CanTransitionTo(next) {
		return models.Batch{}, application.Transition("batch", batch.Status, next)
	}

	return batch, nil
}

func (svc *batchSvc) finish(ctx context.Context, batch models.Batch, releaseZone bool) (models.Batch, error) {
	err := svc.save(ctx, &batch)
	if err != nil {
		return models.Batch{}, err
	}

	if releaseZone {
		err = svc.updateZone(ctx, batch.ZoneID, func(zone *models.Zone) {
			zone.Status = types.ZoneIdle
			zone.BatchStartDate = nil
			zone.BatchEndDate = nil
			zone.PlantCount = 0
		})
	}

	return batch, err
}

func (svc *batchSvc) save(ctx context.Context, batch *models.Batch) error {
	err := svc.storage.Save(ctx, batch)
	if err != nil {
		return err
	}

	metrics.BatchTransitions.WithLabelValues(string(batch.Status)).Inc()

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("batchID", batch.ID).Msgf("batch %s is now %s", batch.BatchNumber, batch.Status)

	if svc.feed != nil {
		if err := svc.feed.Publish(EventBatchChanged, batch); err != nil {
			logger.Error().Err(err).Msg("failed to push batch to live feed")
		}
	}

	return nil
}

func (svc *batchSvc) updateZone(ctx context.Context, zoneID string, change func(*models.Zone)) error {
	zone, err := svc.zones.Get(ctx, zoneID)
	if err != nil {
		return err
	}

	change(&zone)

	return svc.zones.Save(ctx, &zone)
}
