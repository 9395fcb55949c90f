package labor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/labor"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const DefaultOvertimeMultiplier float64 = 1.5

//go:generate moq -rm -out laborservice_mock.go . LaborService

type LaborService interface {
	ClockIn(ctx context.Context, log models.WorkLog) (models.WorkLog, error)
	ClockOut(ctx context.Context, workLogID string, clockOut *time.Time, breakMinutes *int, tenants []string) (models.WorkLog, error)
	CreateEntry(ctx context.Context, log models.WorkLog) (models.WorkLog, error)
	Approve(ctx context.Context, workLogID string, tenants []string) (models.WorkLog, error)

	Get(ctx context.Context, workLogID string, tenants []string) (models.WorkLog, error)
	Query(ctx context.Context, params repository.WorkLogQuery, tenants []string) (types.Collection[models.WorkLog], error)
}

type laborSvc struct {
	storage repository.WorkLogRepository
}

func New(r repository.WorkLogRepository) LaborService {
	return &laborSvc{
		storage: r,
	}
}

// DeriveWorkLog computes hours and cost of a clocked out work log and marks
// an active log as completed. Logs without a clock out are left as they are.
func DeriveWorkLog(log *models.WorkLog) {
	if log.OvertimeMultiplier <= 0 {
		log.OvertimeMultiplier = DefaultOvertimeMultiplier
	}
	if log.WorkType == types.WorkOvertime {
		log.IsOvertime = true
	}

	if log.ClockOut == nil {
		return
	}

	minutes := log.ClockOut.Sub(log.ClockIn).Minutes() - float64(log.BreakMinutes)
	hours := application.Round2(minutes / 60)
	if hours < 0 {
		hours = 0
	}
	log.TotalHours = &hours

	if log.HourlyRate != nil {
		multiplier := 1.0
		if log.IsOvertime {
			multiplier = log.OvertimeMultiplier
		}
		log.TotalCost = application.Ptr(application.Round2(hours * *log.HourlyRate * multiplier))
	}

	if log.Status == types.WorkLogActive || log.Status == "" {
		log.Status = types.WorkLogCompleted
	}
}

func validate(log models.WorkLog) error {
	switch {
	case log.OrganizationID == "":
		return application.Invalid("work log has no organization")
	case log.EmployeeID == "":
		return application.Invalid("employee is required")
	case !log.WorkType.Valid():
		return application.Invalid("unknown work type %q", log.WorkType)
	case !log.Category.Valid():
		return application.Invalid("unknown work category %q", log.Category)
	case log.BreakMinutes < 0:
		return application.Invalid("break minutes cannot be negative")
	case log.HourlyRate != nil && *log.HourlyRate < 0:
		return application.Invalid("hourly rate cannot be negative")
	case log.ClockOut != nil && log.ClockOut.Before(log.ClockIn):
		return application.Invalid("clock out is before clock in")
	}
	return nil
}

func defaults(log *models.WorkLog) {
	if log.WorkType == "" {
		log.WorkType = types.WorkRegular
	}
	if log.Category == "" {
		log.Category = types.WorkOther
	}
	if log.ClockIn.IsZero() {
		log.ClockIn = application.Now()
	}
}

func (svc *laborSvc) ClockIn(ctx context.Context, log models.WorkLog) (models.WorkLog, error) {
	defaults(&log)
	log.ID = ""
	log.ClockOut = nil
	log.TotalHours = nil
	log.TotalCost = nil
	log.Status = types.WorkLogActive

	err := validate(log)
	if err != nil {
		return models.WorkLog{}, err
	}

	active, err := svc.storage.GetActiveForEmployee(ctx, log.EmployeeID, log.OrganizationID)
	if err == nil {
		return models.WorkLog{}, fmt.Errorf("%w: employee %s is clocked in since %s", database.ErrConflict, log.EmployeeID, active.ClockIn.Format(time.RFC3339))
	}
	if !errors.Is(err, database.ErrNotFound) {
		return models.WorkLog{}, err
	}

	DeriveWorkLog(&log)

	err = svc.storage.Save(ctx, &log)
	if err != nil {
		return models.WorkLog{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("workLogID", log.ID).Msgf("employee %s clocked in", log.EmployeeID)

	return log, nil
}

func (svc *laborSvc) ClockOut(ctx context.Context, workLogID string, clockOut *time.Time, breakMinutes *int, tenants []string) (models.WorkLog, error) {
	log, err := svc.storage.Get(ctx, workLogID, tenants...)
	if err != nil {
		return models.WorkLog{}, err
	}

	if log.Status != types.WorkLogActive {
		return models.WorkLog{}, application.Transition("work log", log.Status, types.WorkLogCompleted)
	}

	out := application.Now()
	if clockOut != nil {
		out = clockOut.UTC()
	}
	log.ClockOut = &out

	if breakMinutes != nil {
		log.BreakMinutes = *breakMinutes
	}

	err = validate(log)
	if err != nil {
		return models.WorkLog{}, err
	}

	DeriveWorkLog(&log)

	err = svc.storage.Save(ctx, &log)
	if err != nil {
		return models.WorkLog{}, err
	}

	return log, nil
}

// CreateEntry records a work log after the fact. Both clock in and clock out are required.
func (svc *laborSvc) CreateEntry(ctx context.Context, log models.WorkLog) (models.WorkLog, error) {
	if log.ClockIn.IsZero() || log.ClockOut == nil {
		return models.WorkLog{}, application.Invalid("a manual entry needs both clock in and clock out")
	}

	defaults(&log)
	log.ID = ""
	log.Status = types.WorkLogActive

	err := validate(log)
	if err != nil {
		return models.WorkLog{}, err
	}

	DeriveWorkLog(&log)

	err = svc.storage.Save(ctx, &log)
	if err != nil {
		return models.WorkLog{}, err
	}

	return log, nil
}

func (svc *laborSvc) Approve(ctx context.Context, workLogID string, tenants []string) (models.WorkLog, error) {
	log, err := svc.storage.Get(ctx, workLogID, tenants...)
	if err != nil {
		return models.WorkLog{}, err
	}

	if log.Status != types.WorkLogCompleted {
		return models.WorkLog{}, application.Transition("work log", log.Status, types.WorkLogApproved)
	}

	log.Status = types.WorkLogApproved

	err = svc.storage.Save(ctx, &log)
	if err != nil {
		return models.WorkLog{}, err
	}

	return log, nil
}

func (svc *laborSvc) Get(ctx context.Context, workLogID string, tenants []string) (models.WorkLog, error) {
	return svc.storage.Get(ctx, workLogID, tenants...)
}

func (svc *laborSvc) Query(ctx context.Context, params repository.WorkLogQuery, tenants []string) (types.Collection[models.WorkLog], error) {
	return svc.storage.Query(ctx, params, tenants...)
}
