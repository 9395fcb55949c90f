package batches

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestThatOnlyOneBatchPerZoneCanBeActive(t *testing.T) {
	is, ctx, r, zoneID, recipeID := testSetup(t)

	first := newBatch(zoneID, recipeID, "Z1-20250101-001", types.BatchActive)
	is.NoErr(r.Save(ctx, first))

	planned := newBatch(zoneID, recipeID, "Z1-20250101-002", types.BatchPlanned)
	is.NoErr(r.Save(ctx, planned))

	planned.Status = types.BatchActive
	err := r.Save(ctx, planned)
	is.True(errors.Is(err, ErrConflict))

	first.Status = types.BatchCompleted
	is.NoErr(r.Save(ctx, first))
	is.NoErr(r.Save(ctx, planned))

	active, err := r.GetActiveInZone(ctx, zoneID)
	is.NoErr(err)
	is.Equal(planned.ID, active.ID)
}

func TestQueryBatches(t *testing.T) {
	is, ctx, r, zoneID, recipeID := testSetup(t)

	is.NoErr(r.Save(ctx, newBatch(zoneID, recipeID, "Z1-20250101-001", types.BatchCompleted)))
	is.NoErr(r.Save(ctx, newBatch(zoneID, recipeID, "Z1-20250101-002", types.BatchFailed)))
	is.NoErr(r.Save(ctx, newBatch(zoneID, recipeID, "Z1-20250101-003", types.BatchPlanned)))

	result, err := r.Query(ctx, BatchQuery{ZoneID: zoneID, Status: []types.BatchStatus{types.BatchCompleted, types.BatchFailed}}, "default")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)

	result, err = r.Query(ctx, BatchQuery{Limit: 1}, "default")
	is.NoErr(err)
	is.Equal(uint64(3), result.TotalCount)
	is.Equal(uint64(1), result.Count)

	result, err = r.Query(ctx, BatchQuery{}, "other")
	is.NoErr(err)
	is.Equal(uint64(0), result.TotalCount)

	count, err := r.CountStartedInYear(ctx, zoneID, 2025)
	is.NoErr(err)
	is.Equal(int64(3), count)

	count, err = r.CountStartedInYear(ctx, zoneID, 2024)
	is.NoErr(err)
	is.Equal(int64(0), count)
}

func TestGetUnknownBatch(t *testing.T) {
	is, ctx, r, _, _ := testSetup(t)

	_, err := r.Get(ctx, "unknown")
	is.True(errors.Is(err, ErrBatchNotFound))
	is.True(errors.Is(err, ErrNotFound))
}

func newBatch(zoneID, recipeID, number string, status types.BatchStatus) *models.Batch {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	return &models.Batch{
		OrganizationID:  "default",
		BatchNumber:     number,
		ZoneID:          zoneID,
		RecipeID:        recipeID,
		CropName:        "Oyster",
		CropType:        types.CropMushroom,
		Status:          status,
		StartDate:       start,
		ExpectedEndDate: start.AddDate(0, 0, 30),
		CycleDuration:   30,
	}
}

func testSetup(t *testing.T) (*is.I, context.Context, BatchRepository, string, string) {
	is := is.New(t)
	ctx := context.Background()
	conn := NewSQLiteConnector(ctx)

	r, err := NewBatchRepository(conn)
	is.NoErr(err)

	db, err := Connect(conn)
	is.NoErr(err)

	recipe := &models.CropRecipe{OrganizationID: "default", CropID: "oyster", CropName: "Oyster", CropType: types.CropMushroom, Version: "1.0.0", Stages: models.ToJSON([]types.Stage{{Name: "s", Duration: 30}}), TotalDuration: 30}
	is.NoErr(db.Create(recipe).Error)

	zone := &models.Zone{OrganizationID: "default", Name: "Zone 1", ZoneNumber: "Z1"}
	is.NoErr(db.Create(zone).Error)

	return is, ctx, r, zone.ID, recipe.ID
}
