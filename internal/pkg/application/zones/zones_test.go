package zones

import (
	"context"
	"errors"
	"testing"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestCreateAndUpdateZone(t *testing.T) {
	is, ctx, svc := testSetup(t)

	zone, err := svc.Create(ctx, models.Zone{OrganizationID: "default", Name: "Grow room 1", ZoneNumber: "GR1"})
	is.NoErr(err)
	is.True(zone.ID != "")
	is.Equal(types.ZoneIdle, zone.Status)

	name := "Grow room one"
	count := 120
	zone, err = svc.Update(ctx, zone.ID, ZoneFields{Name: &name, PlantCount: &count}, []string{"default"})
	is.NoErr(err)
	is.Equal(name, zone.Name)
	is.Equal(120, zone.PlantCount)
	is.Equal("GR1", zone.ZoneNumber)

	result, err := svc.Query(ctx, repository.ZoneQuery{}, []string{"default"})
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
}

func TestThatZonesAreValidated(t *testing.T) {
	is, ctx, svc := testSetup(t)

	_, err := svc.Create(ctx, models.Zone{OrganizationID: "default"})
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.Create(ctx, models.Zone{OrganizationID: "default", Name: "z", Status: "broken"})
	is.True(errors.Is(err, application.ErrValidation))

	zone, err := svc.Create(ctx, models.Zone{OrganizationID: "default", Name: "z"})
	is.NoErr(err)

	negative := -1
	_, err = svc.Update(ctx, zone.ID, ZoneFields{PlantCount: &negative}, []string{"default"})
	is.True(errors.Is(err, application.ErrValidation))
}

func TestDeleteZone(t *testing.T) {
	is, ctx, svc := testSetup(t)

	zone, err := svc.Create(ctx, models.Zone{OrganizationID: "default", Name: "z"})
	is.NoErr(err)

	err = svc.Delete(ctx, zone.ID, []string{"other"})
	is.True(errors.Is(err, database.ErrNotFound))

	is.NoErr(svc.Delete(ctx, zone.ID, []string{"default"}))

	_, err = svc.Get(ctx, zone.ID, []string{"default"})
	is.True(errors.Is(err, database.ErrNotFound))
}

func testSetup(t *testing.T) (*is.I, context.Context, ZoneService) {
	is := is.New(t)
	ctx := context.Background()

	r, err := repository.NewZoneRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, New(r)
}
