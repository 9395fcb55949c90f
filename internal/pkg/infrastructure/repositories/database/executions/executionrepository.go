package executions

import (
	"context"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out executionrepository_mock.go . ExecutionRepository

type ExecutionRepository interface {
	Get(ctx context.Context, executionID string, tenants ...string) (models.RecipeExecution, error)
	GetOpenInZone(ctx context.Context, zoneID string) (models.RecipeExecution, error)
	Query(ctx context.Context, params ExecutionQuery, tenants ...string) (types.Collection[models.RecipeExecution], error)
	Save(ctx context.Context, execution *models.RecipeExecution) error
}

type ExecutionQuery struct {
	ZoneID  string
	BatchID string
	Status  []types.ExecutionStatus
	Offset  int
	Limit   int
}

var ErrExecutionNotFound = NotFound("execution")

var openStatuses = []types.ExecutionStatus{types.ExecutionActive, types.ExecutionPaused, types.ExecutionWaitingApproval}

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(connect ConnectorFunc) (ExecutionRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &executionRepository{
		db: db,
	}, nil
}

func (r *executionRepository) Get(ctx context.Context, executionID string, tenants ...string) (models.RecipeExecution, error) {
	e := models.RecipeExecution{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("recipe_executions", tenants...)).
		Where("recipe_executions.id = ?", executionID).
		First(&e).Error

	return e, Translate(err, ErrExecutionNotFound)
}

func (r *executionRepository) GetOpenInZone(ctx context.Context, zoneID string) (models.RecipeExecution, error) {
	e := models.RecipeExecution{}

	err := r.db.WithContext(ctx).
		Where("recipe_executions.zone_id = ? AND recipe_executions.status IN ?", zoneID, openStatuses).
		First(&e).Error

	return e, Translate(err, ErrExecutionNotFound)
}

func (r *executionRepository) Query(ctx context.Context, params ExecutionQuery, tenants ...string) (types.Collection[models.RecipeExecution], error) {
	query := r.db.WithContext(ctx).Model(&models.RecipeExecution{}).Scopes(Tenants("recipe_executions", tenants...))

	if params.ZoneID != "" {
		query = query.Where("recipe_executions.zone_id = ?", params.ZoneID)
	}
	if params.BatchID != "" {
		query = query.Where("recipe_executions.batch_id = ?", params.BatchID)
	}
	if len(params.Status) > 0 {
		query = query.Where("recipe_executions.status IN ?", params.Status)
	}

	return Paginate[models.RecipeExecution](query, "recipe_executions.started_at desc", params.Offset, params.Limit)
}

func (r *executionRepository) Save(ctx context.Context, execution *models.RecipeExecution) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Recipe", "Batch").Save(execution).Error
	return Translate(err, ErrExecutionNotFound)
}
