package zones

import (
	"context"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

//go:generate moq -rm -out zoneservice_mock.go . ZoneService

type ZoneService interface {
	Create(ctx context.Context, zone models.Zone) (models.Zone, error)
	Get(ctx context.Context, zoneID string, tenants []string) (models.Zone, error)
	Query(ctx context.Context, params repository.ZoneQuery, tenants []string) (types.Collection[models.Zone], error)
	Update(ctx context.Context, zoneID string, fields ZoneFields, tenants []string) (models.Zone, error)
	Delete(ctx context.Context, zoneID string, tenants []string) error
}

// ZoneFields holds the user editable parts of a zone. Nil fields are left unchanged.
type ZoneFields struct {
	FarmID     *string           `json:"farmId,omitempty"`
	Name       *string           `json:"name,omitempty"`
	ZoneNumber *string           `json:"zoneNumber,omitempty"`
	Area       *float64          `json:"area,omitempty"`
	Status     *types.ZoneStatus `json:"status,omitempty"`
	PlantCount *int              `json:"plantCount,omitempty"`
}

type zoneSvc struct {
	storage repository.ZoneRepository
}

func New(r repository.ZoneRepository) ZoneService {
	return &zoneSvc{
		storage: r,
	}
}

func (svc *zoneSvc) Create(ctx context.Context, zone models.Zone) (models.Zone, error) {
	if zone.Status == "" {
		zone.Status = types.ZoneIdle
	}

	err := validate(zone)
	if err != nil {
		return models.Zone{}, err
	}

	zone.ID = ""
	zone.ActiveRecipeID = nil
	zone.CurrentStage = 0

	err = svc.storage.Save(ctx, &zone)
	if err != nil {
		return models.Zone{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("zoneID", zone.ID).Msgf("created zone %s", zone.Name)

	return zone, nil
}

func (svc *zoneSvc) Get(ctx context.Context, zoneID string, tenants []string) (models.Zone, error) {
	return svc.storage.Get(ctx, zoneID, tenants...)
}

func (svc *zoneSvc) Query(ctx context.Context, params repository.ZoneQuery, tenants []string) (types.Collection[models.Zone], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

func (svc *zoneSvc) Update(ctx context.Context, zoneID string, fields ZoneFields, tenants []string) (models.Zone, error) {
	zone, err := svc.storage.Get(ctx, zoneID, tenants...)
	if err != nil {
		return models.Zone{}, err
	}

	if fields.FarmID != nil {
		zone.FarmID = fields.FarmID
	}
	if fields.Name != nil {
		zone.Name = *fields.Name
	}
	if fields.ZoneNumber != nil {
		zone.ZoneNumber = *fields.ZoneNumber
	}
	if fields.Area != nil {
		zone.Area = fields.Area
	}
	if fields.Status != nil {
		zone.Status = *fields.Status
	}
	if fields.PlantCount != nil {
		zone.PlantCount = *fields.PlantCount
	}

	err = validate(zone)
	if err != nil {
		return models.Zone{}, err
	}

	err = svc.storage.Save(ctx, &zone)
	if err != nil {
		return models.Zone{}, err
	}

	return zone, nil
}

func (svc *zoneSvc) Delete(ctx context.Context, zoneID string, tenants []string) error {
	return svc.storage.Delete(ctx, zoneID, tenants...)
}

func validate(zone models.Zone) error {
	if zone.OrganizationID == "" {
		return application.Invalid("zone has no organization")
	}
	if zone.Name == "" {
		return application.Invalid("zone name is required")
	}
	if !zone.Status.Valid() {
		return application.Invalid("unknown zone status %q", zone.Status)
	}
	if zone.PlantCount < 0 {
		return application.Invalid("plant count cannot be negative")
	}
	if zone.Area != nil && *zone.Area < 0 {
		return application.Invalid("area cannot be negative")
	}
	return nil
}
