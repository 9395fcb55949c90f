package zones

import (
	"context"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out zonerepository_mock.go . ZoneRepository

type ZoneRepository interface {
	Get(ctx context.Context, zoneID string, tenants ...string) (models.Zone, error)
	GetByNumber(ctx context.Context, zoneNumber string, tenants ...string) (models.Zone, error)
	Query(ctx context.Context, params ZoneQuery, tenants ...string) (types.Collection[models.Zone], error)
	Save(ctx context.Context, zone *models.Zone) error
	Delete(ctx context.Context, zoneID string, tenants ...string) error
}

type ZoneQuery struct {
	Status types.ZoneStatus
	FarmID string
	Offset int
	Limit  int
}

var ErrZoneNotFound = NotFound("zone")

type zoneRepository struct {
	db *gorm.DB
}

func NewZoneRepository(connect ConnectorFunc) (ZoneRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &zoneRepository{
		db: db,
	}, nil
}

func (r *zoneRepository) Get(ctx context.Context, zoneID string, tenants ...string) (models.Zone, error) {
	zone := models.Zone{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("zones", tenants...)).
		Where("zones.id = ?", zoneID).
		First(&zone).Error

	return zone, Translate(err, ErrZoneNotFound)
}

func (r *zoneRepository) GetByNumber(ctx context.Context, zoneNumber string, tenants ...string) (models.Zone, error) {
	zone := models.Zone{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("zones", tenants...)).
		Where("zones.zone_number = ?", zoneNumber).
		First(&zone).Error

	return zone, Translate(err, ErrZoneNotFound)
}

func (r *zoneRepository) Query(ctx context.Context, params ZoneQuery, tenants ...string) (types.Collection[models.Zone], error) {
	query := r.db.WithContext(ctx).Model(&models.Zone{}).Scopes(Tenants("zones", tenants...))

	if params.Status != "" {
		query = query.Where("zones.status = ?", params.Status)
	}
	if params.FarmID != "" {
		query = query.Where("zones.farm_id = ?", params.FarmID)
	}

	return Paginate[models.Zone](query, "zones.name", params.Offset, params.Limit)
}

func (r *zoneRepository) Save(ctx context.Context, zone *models.Zone) error {
	err := r.db.WithContext(ctx).Omit("ActiveRecipe").Save(zone).Error
	return Translate(err, ErrZoneNotFound)
}

// Delete removes the zone. Batches, executions, equipment and commands in the
// zone are removed by the database.
func (r *zoneRepository) Delete(ctx context.Context, zoneID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("zones", tenants...)).
		Where("zones.id = ?", zoneID).
		Delete(&models.Zone{})

	if result.Error != nil {
		return Translate(result.Error, ErrZoneNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrZoneNotFound
	}

	return nil
}
