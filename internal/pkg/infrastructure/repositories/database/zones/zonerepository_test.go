package zones

import (
	"context"
	"errors"
	"testing"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestSaveAndGetZone(t *testing.T) {
	is, ctx, r, _ := testSetup(t)

	zone := &models.Zone{OrganizationID: "default", Name: "Grow room 1", ZoneNumber: "GR1", Status: types.ZoneIdle}
	is.NoErr(r.Save(ctx, zone))
	is.True(zone.ID != "")

	fromDb, err := r.Get(ctx, zone.ID, "default")
	is.NoErr(err)
	is.Equal("Grow room 1", fromDb.Name)

	byNumber, err := r.GetByNumber(ctx, "GR1")
	is.NoErr(err)
	is.Equal(zone.ID, byNumber.ID)
}

func TestThatZonesAreFilteredByTenant(t *testing.T) {
	is, ctx, r, _ := testSetup(t)

	is.NoErr(r.Save(ctx, &models.Zone{OrganizationID: "default", Name: "a", Status: types.ZoneIdle}))
	is.NoErr(r.Save(ctx, &models.Zone{OrganizationID: "default", Name: "b", Status: types.ZoneRunning}))
	other := &models.Zone{OrganizationID: "other", Name: "c", Status: types.ZoneIdle}
	is.NoErr(r.Save(ctx, other))

	result, err := r.Query(ctx, ZoneQuery{}, "default")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)

	result, err = r.Query(ctx, ZoneQuery{Status: types.ZoneIdle}, "default", "other")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)

	_, err = r.Get(ctx, other.ID, "default")
	is.True(errors.Is(err, ErrNotFound))
}

func TestDeleteZoneCascadesToEquipment(t *testing.T) {
	is, ctx, r, conn := testSetup(t)

	zone := &models.Zone{OrganizationID: "default", Name: "a", Status: types.ZoneIdle}
	is.NoErr(r.Save(ctx, zone))

	db, err := Connect(conn)
	is.NoErr(err)

	fan := &models.Equipment{OrganizationID: "default", ZoneID: zone.ID, DeviceID: "gw-1", Name: "fan", Type: types.EquipmentFan, MaxValue: 100}
	is.NoErr(db.Create(fan).Error)

	is.NoErr(r.Delete(ctx, zone.ID, "default"))

	var count int64
	db.Model(&models.Equipment{}).Where("id = ?", fan.ID).Count(&count)
	is.Equal(int64(0), count)

	err = r.Delete(ctx, zone.ID, "default")
	is.True(errors.Is(err, ErrZoneNotFound))
}

func testSetup(t *testing.T) (*is.I, context.Context, ZoneRepository, ConnectorFunc) {
	is := is.New(t)
	ctx := context.Background()
	conn := NewSQLiteConnector(ctx)

	r, err := NewZoneRepository(conn)
	is.NoErr(err)

	return is, ctx, r, conn
}
