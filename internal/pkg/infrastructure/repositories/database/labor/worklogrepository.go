package labor

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out worklogrepository_mock.go . WorkLogRepository

type WorkLogRepository interface {
	Get(ctx context.Context, workLogID string, tenants ...string) (models.WorkLog, error)
	GetActiveForEmployee(ctx context.Context, employeeID string, tenants ...string) (models.WorkLog, error)
	Query(ctx context.Context, params WorkLogQuery, tenants ...string) (types.Collection[models.WorkLog], error)
	Save(ctx context.Context, workLog *models.WorkLog) error
}

type WorkLogQuery struct {
	EmployeeID string
	ZoneID     string
	BatchID    string
	Status     types.WorkLogStatus
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

var ErrWorkLogNotFound = NotFound("work log")

type workLogRepository struct {
	db *gorm.DB
}

func NewWorkLogRepository(connect ConnectorFunc) (WorkLogRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &workLogRepository{
		db: db,
	}, nil
}

func (r *workLogRepository) Get(ctx context.Context, workLogID string, tenants ...string) (models.WorkLog, error) {
	w := models.WorkLog{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("work_logs", tenants...)).
		Where("work_logs.id = ?", workLogID).
		First(&w).Error

	return w, Translate(err, ErrWorkLogNotFound)
}

func (r *workLogRepository) GetActiveForEmployee(ctx context.Context, employeeID string, tenants ...string) (models.WorkLog, error) {
	w := models.WorkLog{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("work_logs", tenants...)).
		Where("work_logs.employee_id = ? AND work_logs.status = ?", employeeID, types.WorkLogActive).
		First(&w).Error

	return w, Translate(err, ErrWorkLogNotFound)
}

func (r *workLogRepository) Query(ctx context.Context, params WorkLogQuery, tenants ...string) (types.Collection[models.WorkLog], error) {
	query := r.db.WithContext(ctx).
		Model(&models.WorkLog{}).
		Scopes(Tenants("work_logs", tenants...), Between("work_logs.clock_in", params.From, params.To))

	if params.EmployeeID != "" {
		query = query.Where("work_logs.employee_id = ?", params.EmployeeID)
	}
	if params.ZoneID != "" {
		query = query.Where("work_logs.zone_id = ?", params.ZoneID)
	}
	if params.BatchID != "" {
		query = query.Where("work_logs.batch_id = ?", params.BatchID)
	}
	if params.Status != "" {
		query = query.Where("work_logs.status = ?", params.Status)
	}

	return Paginate[models.WorkLog](query, "work_logs.clock_in desc", params.Offset, params.Limit)
}

func (r *workLogRepository) Save(ctx context.Context, workLog *models.WorkLog) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Batch").Save(workLog).Error
	return Translate(err, ErrWorkLogNotFound)
}
