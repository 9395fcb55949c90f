package harvests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	batchrepo "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

var tenants = []string{"default"}

func TestCalculateMetrics(t *testing.T) {
	is := is.New(t)

	h := models.Harvest{
		TotalWeightKg:     5,
		SubstrateWeightKg: application.Ptr(20.0),
		BagsHarvested:     application.Ptr(4),
		PricePerKg:        application.Ptr(8.5),
	}

	CalculateMetrics(&h, application.Ptr(10.0))

	is.Equal(25.0, *h.BiologicalEfficiency)
	is.Equal(1.25, *h.YieldPerBag)
	is.Equal(50.0, *h.YieldVsExpected)
	is.Equal(42.5, *h.TotalRevenue)
}

func TestThatMetricsAreNotRounded(t *testing.T) {
	is := is.New(t)

	weight, substrate := 1.0, 3.0

	h := models.Harvest{TotalWeightKg: weight, SubstrateWeightKg: &substrate}
	CalculateMetrics(&h, nil)

	is.Equal(weight/substrate*100, *h.BiologicalEfficiency)
	is.True(*h.BiologicalEfficiency != application.Round2(*h.BiologicalEfficiency))
}

func TestThatMetricsWithoutInputAreUnset(t *testing.T) {
	is := is.New(t)

	h := models.Harvest{
		TotalWeightKg:        5,
		SubstrateWeightKg:    application.Ptr(0.0),
		BagsHarvested:        application.Ptr(0),
		BiologicalEfficiency: application.Ptr(99.0),
	}

	CalculateMetrics(&h, application.Ptr(0.0))

	is.True(h.BiologicalEfficiency == nil)
	is.True(h.YieldPerBag == nil)
	is.True(h.YieldVsExpected == nil)
	is.True(h.TotalRevenue == nil)
}

func TestRecordHarvest(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	first, err := svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 4, SubstrateWeightKg: application.Ptr(16.0)}, tenants)
	is.NoErr(err)
	is.Equal(1, first.FlushNumber)
	is.Equal(f.zone.ID, *first.ZoneID)
	is.Equal(types.HarvestCompleted, first.Status)
	is.Equal(25.0, *first.BiologicalEfficiency)
	is.Equal(20.0, *first.YieldVsExpected)

	second, err := svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 2}, tenants)
	is.NoErr(err)
	is.Equal(2, second.FlushNumber)

	batch, err := f.batches.Get(ctx, f.batch.ID, tenants)
	is.NoErr(err)
	is.Equal(6.0, batch.TotalYieldKg)
	is.Equal(2, batch.HarvestCount)

	is.NoErr(svc.Delete(ctx, second.ID, tenants))

	batch, err = f.batches.Get(ctx, f.batch.ID, tenants)
	is.NoErr(err)
	is.Equal(4.0, batch.TotalYieldKg)
	is.Equal(1, batch.HarvestCount)
}

func TestThatRecordValidates(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	_, err := svc.Record(ctx, models.Harvest{BatchID: "missing", TotalWeightKg: 1}, tenants)
	is.True(errors.Is(err, database.ErrNotFound))

	_, err = svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: -1}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	grade := types.QualityGrade("superb")
	_, err = svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 1, QualityGrade: &grade}, tenants)
	is.True(errors.Is(err, application.ErrValidation))
}

func TestBatchSummary(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	_, err := svc.Record(ctx, models.Harvest{
		BatchID: f.batch.ID, TotalWeightKg: 4, SubstrateWeightKg: application.Ptr(20.0), PricePerKg: application.Ptr(10.0),
		QualityDistribution: models.ToJSON(types.QualityDistribution{types.GradePremium: 3, types.GradeA: 1}),
	}, tenants)
	is.NoErr(err)

	_, err = svc.Record(ctx, models.Harvest{
		BatchID: f.batch.ID, TotalWeightKg: 2, SubstrateWeightKg: application.Ptr(20.0),
		QualityDistribution: models.ToJSON(types.QualityDistribution{types.GradeA: 2}),
	}, tenants)
	is.NoErr(err)

	_, err = svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 9, Status: types.HarvestCancelled}, tenants)
	is.NoErr(err)

	summary, err := svc.BatchSummary(ctx, f.batch.ID, tenants)
	is.NoErr(err)
	is.Equal(2, summary.TotalFlushes)
	is.Equal(6.0, summary.TotalYieldKg)
	is.Equal(40.0, summary.TotalRevenue)
	is.Equal(15.0, *summary.AverageBE)
	is.Equal(3.0, summary.QualityDistribution[types.GradePremium])
	is.Equal(3.0, summary.QualityDistribution[types.GradeA])
	is.Equal(1, summary.Flushes[0].FlushNumber)
}

func TestZoneAnalyticsAndQuality(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	premium, gradeB := types.GradePremium, types.GradeB

	_, err := svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 3, BagsHarvested: application.Ptr(3), QualityGrade: &premium}, tenants)
	is.NoErr(err)
	_, err = svc.Record(ctx, models.Harvest{BatchID: f.batch.ID, TotalWeightKg: 1, BagsHarvested: application.Ptr(2), QualityGrade: &gradeB}, tenants)
	is.NoErr(err)

	analytics, err := svc.ZoneAnalytics(ctx, f.zone.ID, nil, nil, tenants)
	is.NoErr(err)
	is.Equal(2, analytics.HarvestCount)
	is.Equal(4.0, analytics.TotalYieldKg)
	is.Equal(0.75, *analytics.AverageYieldPerBag)
	is.True(analytics.AverageBE == nil)

	future := application.Now().Add(24 * time.Hour)
	analytics, err = svc.ZoneAnalytics(ctx, f.zone.ID, &future, nil, tenants)
	is.NoErr(err)
	is.Equal(0, analytics.HarvestCount)

	quality, err := svc.QualitySummary(ctx, repository.HarvestQuery{ZoneID: f.zone.ID}, tenants)
	is.NoErr(err)
	is.Equal(4.0, quality.TotalWeightKg)
	is.Equal(75.0, quality.Grades[types.GradePremium])
	is.Equal(25.0, quality.Grades[types.GradeB])
}

type fixture struct {
	batches batches.BatchService
	zone    models.Zone
	batch   models.Batch
}

func testSetup(t *testing.T) (*is.I, context.Context, HarvestService, fixture) {
	is := is.New(t)
	ctx := context.Background()
	connect := database.NewSQLiteConnector(ctx)

	hr, err := repository.NewHarvestRepository(connect)
	is.NoErr(err)
	br, err := batchrepo.NewBatchRepository(connect)
	is.NoErr(err)
	zr, err := zones.NewZoneRepository(connect)
	is.NoErr(err)
	rr, err := recipes.NewRecipeRepository(connect)
	is.NoErr(err)

	recipe := models.CropRecipe{
		OrganizationID: "default", CropID: "oyster", CropName: "Oyster", CropType: types.CropMushroom, Version: "1.0.0",
		Stages:           models.ToJSON([]types.Stage{{Name: "fruiting", Duration: 10}}),
		TotalDuration:    10,
		EstimatedYieldKg: application.Ptr(20.0),
	}
	is.NoErr(rr.Save(ctx, &recipe))

	f := fixture{}

	f.zone = models.Zone{OrganizationID: "default", Name: "Grow room 1", ZoneNumber: "GR1", Status: types.ZoneIdle}
	is.NoErr(zr.Save(ctx, &f.zone))

	f.batches = batches.New(br, zr, rr, hr, nil, nil)

	f.batch, err = f.batches.Create(ctx, batches.NewBatch{ZoneID: f.zone.ID, RecipeID: recipe.ID}, tenants)
	is.NoErr(err)

	return is, ctx, New(hr, f.batches, zr, rr), f
}
