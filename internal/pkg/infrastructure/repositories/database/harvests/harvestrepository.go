package harvests

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out harvestrepository_mock.go . HarvestRepository

type HarvestRepository interface {
	Get(ctx context.Context, harvestID string, tenants ...string) (models.Harvest, error)
	Query(ctx context.Context, params HarvestQuery, tenants ...string) (types.Collection[models.Harvest], error)
	LastFlush(ctx context.Context, batchID string) (int, error)
	BatchTotals(ctx context.Context, batchID string) (Totals, error)
	Save(ctx context.Context, harvest *models.Harvest) error
	Delete(ctx context.Context, harvestID string, tenants ...string) error
}

type HarvestQuery struct {
	ZoneID       string
	BatchID      string
	Status       types.HarvestStatus
	QualityGrade types.QualityGrade
	From         *time.Time
	To           *time.Time
	Offset       int
	Limit        int
}

// Totals summarises the completed harvests of a batch.
type Totals struct {
	Count         int
	TotalWeightKg float64
}

var ErrHarvestNotFound = NotFound("harvest")

type harvestRepository struct {
	db *gorm.DB
}

func NewHarvestRepository(connect ConnectorFunc) (HarvestRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &harvestRepository{
		db: db,
	}, nil
}

func (r *harvestRepository) Get(ctx context.Context, harvestID string, tenants ...string) (models.Harvest, error) {
	h := models.Harvest{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("harvests", tenants...)).
		Where("harvests.id = ?", harvestID).
		First(&h).Error

	return h, Translate(err, ErrHarvestNotFound)
}

func (r *harvestRepository) Query(ctx context.Context, params HarvestQuery, tenants ...string) (types.Collection[models.Harvest], error) {
	query := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Scopes(Tenants("harvests", tenants...), Between("harvests.harvest_date", params.From, params.To))

	if params.ZoneID != "" {
		query = query.Where("harvests.zone_id = ?", params.ZoneID)
	}
	if params.BatchID != "" {
		query = query.Where("harvests.batch_id = ?", params.BatchID)
	}
	if params.Status != "" {
		query = query.Where("harvests.status = ?", params.Status)
	}
	if params.QualityGrade != "" {
		query = query.Where("harvests.quality_grade = ?", params.QualityGrade)
	}

	return Paginate[models.Harvest](query, "harvests.harvest_date", params.Offset, params.Limit)
}

// LastFlush returns the highest flush number recorded for a batch, or zero.
func (r *harvestRepository) LastFlush(ctx context.Context, batchID string) (int, error) {
	var last int

	err := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Where("batch_id = ?", batchID).
		Select("COALESCE(MAX(flush_number), 0)").
		Row().Scan(&last)

	return last, Translate(err, ErrHarvestNotFound)
}

func (r *harvestRepository) BatchTotals(ctx context.Context, batchID string) (Totals, error) {
	totals := Totals{}

	err := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Where("batch_id = ? AND status = ?", batchID, types.HarvestCompleted).
		Select("COUNT(*), COALESCE(SUM(total_weight_kg), 0)").
		Row().Scan(&totals.Count, &totals.TotalWeightKg)

	return totals, Translate(err, ErrHarvestNotFound)
}

func (r *harvestRepository) Save(ctx context.Context, harvest *models.Harvest) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Batch").Save(harvest).Error
	return Translate(err, ErrHarvestNotFound)
}

func (r *harvestRepository) Delete(ctx context.Context, harvestID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("harvests", tenants...)).
		Where("harvests.id = ?", harvestID).
		Delete(&models.Harvest{})

	if result.Error != nil {
		return Translate(result.Error, ErrHarvestNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrHarvestNotFound
	}

	return nil
}
