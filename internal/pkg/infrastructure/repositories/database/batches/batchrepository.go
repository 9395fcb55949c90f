package batches

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out batchrepository_mock.go . BatchRepository

type BatchRepository interface {
	Get(ctx context.Context, batchID string, tenants ...string) (models.Batch, error)
	Query(ctx context.Context, params BatchQuery, tenants ...string) (types.Collection[models.Batch], error)
	GetActiveInZone(ctx context.Context, zoneID string) (models.Batch, error)
	CountStartedInYear(ctx context.Context, zoneID string, year int) (int64, error)
	Save(ctx context.Context, batch *models.Batch) error
}

type BatchQuery struct {
	ZoneID   string
	RecipeID string
	Status   []types.BatchStatus
	Offset   int
	Limit    int
}

var ErrBatchNotFound = NotFound("batch")

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(connect ConnectorFunc) (BatchRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &batchRepository{
		db: db,
	}, nil
}

func (r *batchRepository) Get(ctx context.Context, batchID string, tenants ...string) (models.Batch, error) {
	batch := models.Batch{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("batches", tenants...)).
		Where("batches.id = ?", batchID).
		First(&batch).Error

	return batch, Translate(err, ErrBatchNotFound)
}

func (r *batchRepository) Query(ctx context.Context, params BatchQuery, tenants ...string) (types.Collection[models.Batch], error) {
	query := r.db.WithContext(ctx).Model(&models.Batch{}).Scopes(Tenants("batches", tenants...))

	if params.ZoneID != "" {
		query = query.Where("batches.zone_id = ?", params.ZoneID)
	}
	if params.RecipeID != "" {
		query = query.Where("batches.recipe_id = ?", params.RecipeID)
	}
	if len(params.Status) > 0 {
		query = query.Where("batches.status IN ?", params.Status)
	}

	return Paginate[models.Batch](query, "batches.start_date desc", params.Offset, params.Limit)
}

func (r *batchRepository) GetActiveInZone(ctx context.Context, zoneID string) (models.Batch, error) {
	batch := models.Batch{}

	err := r.db.WithContext(ctx).
		Where("batches.zone_id = ? AND batches.status = ?", zoneID, types.BatchActive).
		First(&batch).Error

	return batch, Translate(err, ErrBatchNotFound)
}

func (r *batchRepository) CountStartedInYear(ctx context.Context, zoneID string, year int) (int64, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("zone_id = ? AND start_date >= ? AND start_date < ?", zoneID, from, to).
		Count(&count).Error

	return count, Translate(err, ErrBatchNotFound)
}

func (r *batchRepository) Save(ctx context.Context, batch *models.Batch) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Recipe").Save(batch).Error
	return Translate(err, ErrBatchNotFound)
}
