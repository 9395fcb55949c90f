package harvests

import (
	"context"
	"sort"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/samber/lo"
)

//go:generate moq -rm -out harvestservice_mock.go . HarvestService

type HarvestService interface {
	Record(ctx context.Context, harvest models.Harvest, tenants []string) (models.Harvest, error)
	Get(ctx context.Context, harvestID string, tenants []string) (models.Harvest, error)
	Query(ctx context.Context, params repository.HarvestQuery, tenants []string) (types.Collection[models.Harvest], error)
	Delete(ctx context.Context, harvestID string, tenants []string) error

	BatchSummary(ctx context.Context, batchID string, tenants []string) (BatchSummary, error)
	ZoneAnalytics(ctx context.Context, zoneID string, from, to *time.Time, tenants []string) (ZoneAnalytics, error)
	QualitySummary(ctx context.Context, params repository.HarvestQuery, tenants []string) (QualitySummary, error)
}

type FlushSummary struct {
	HarvestID            string              `json:"harvestId"`
	FlushNumber          int                 `json:"flushNumber"`
	HarvestDate          time.Time           `json:"harvestDate"`
	Status               types.HarvestStatus `json:"status"`
	TotalWeightKg        float64             `json:"totalWeightKg"`
	BiologicalEfficiency *float64            `json:"biologicalEfficiency,omitempty"`
	QualityGrade         *types.QualityGrade `json:"qualityGrade,omitempty"`
}

type BatchSummary struct {
	BatchID             string                    `json:"batchId"`
	BatchNumber         string                    `json:"batchNumber"`
	TotalFlushes        int                       `json:"totalFlushes"`
	TotalYieldKg        float64                   `json:"totalYieldKg"`
	TotalRevenue        float64                   `json:"totalRevenue"`
	AverageBE           *float64                  `json:"averageBiologicalEfficiency,omitempty"`
	QualityDistribution types.QualityDistribution `json:"qualityDistribution"`
	Flushes             []FlushSummary            `json:"flushes"`
}

type ZoneAnalytics struct {
	ZoneID             string   `json:"zoneId"`
	HarvestCount       int      `json:"harvestCount"`
	TotalYieldKg       float64  `json:"totalYieldKg"`
	AverageBE          *float64 `json:"averageBiologicalEfficiency,omitempty"`
	AverageYieldPerBag *float64 `json:"averageYieldPerBag,omitempty"`
	TotalRevenue       float64  `json:"totalRevenue"`
}

type QualitySummary struct {
	TotalWeightKg float64                        `json:"totalWeightKg"`
	Grades        map[types.QualityGrade]float64 `json:"grades"`
}

type harvestSvc struct {
	storage repository.HarvestRepository
	batches batches.BatchService
	zones   zones.ZoneRepository
	recipes recipes.RecipeRepository
}

func New(r repository.HarvestRepository, b batches.BatchService, z zones.ZoneRepository, rr recipes.RecipeRepository) HarvestService {
	return &harvestSvc{
		storage: r,
		batches: b,
		zones:   z,
		recipes: rr,
	}
}

// CalculateMetrics sets the yield metrics that can be derived from the
// recorded values and clears the ones that cannot.
func CalculateMetrics(h *models.Harvest, expectedYieldKg *float64) {
	h.BiologicalEfficiency = nil
	h.YieldPerBag = nil
	h.YieldVsExpected = nil
	h.TotalRevenue = nil

	if h.SubstrateWeightKg != nil && *h.SubstrateWeightKg > 0 {
		h.BiologicalEfficiency = application.Ptr(h.TotalWeightKg / *h.SubstrateWeightKg * 100)
	}
	if h.BagsHarvested != nil && *h.BagsHarvested > 0 {
		h.YieldPerBag = application.Ptr(h.TotalWeightKg / float64(*h.BagsHarvested))
	}
	if expectedYieldKg != nil && *expectedYieldKg > 0 {
		h.YieldVsExpected = application.Ptr(h.TotalWeightKg / *expectedYieldKg * 100)
	}
	if h.PricePerKg != nil {
		h.TotalRevenue = application.Ptr(h.TotalWeightKg * *h.PricePerKg)
	}
}

func validate(h models.Harvest) error {
	if h.TotalWeightKg < 0 {
		return application.Invalid("total weight cannot be negative")
	}
	if h.SubstrateWeightKg != nil && *h.SubstrateWeightKg < 0 {
		return application.Invalid("substrate weight cannot be negative")
	}
	if (h.BagsHarvested != nil && *h.BagsHarvested < 0) || (h.BagsDiscarded != nil && *h.BagsDiscarded < 0) {
		return application.Invalid("bag counts cannot be negative")
	}
	if h.PricePerKg != nil && *h.PricePerKg < 0 {
		return application.Invalid("price cannot be negative")
	}
	if !h.Status.Valid() {
		return application.Invalid("unknown harvest status %q", h.Status)
	}
	if h.QualityGrade != nil && !h.QualityGrade.Valid() {
		return application.Invalid("unknown quality grade %q", *h.QualityGrade)
	}
	if h.MarketDestination != nil && !h.MarketDestination.Valid() {
		return application.Invalid("unknown market destination %q", *h.MarketDestination)
	}
	if h.FlushNumber < 1 {
		return application.Invalid("flush numbers start at 1")
	}

	dist, err := h.Distribution()
	if err != nil {
		return application.Invalid("quality distribution is malformed")
	}
	for grade, kg := range dist {
		if !grade.Valid() || kg < 0 {
			return application.Invalid("quality distribution has an invalid entry for %q", grade)
		}
	}

	return nil
}

func (svc *harvestSvc) Record(ctx context.Context, harvest models.Harvest, tenants []string) (models.Harvest, error) {
	batch, err := svc.batches.Get(ctx, harvest.BatchID, tenants)
	if err != nil {
		return models.Harvest{}, err
	}

	if harvest.ZoneID == nil || *harvest.ZoneID == "" {
		harvest.ZoneID = application.Ptr(batch.ZoneID)
	} else if _, err := svc.zones.Get(ctx, *harvest.ZoneID, tenants...); err != nil {
		return models.Harvest{}, err
	}

	if harvest.Status == "" {
		harvest.Status = types.HarvestCompleted
	}
	if harvest.HarvestDate.IsZero() {
		harvest.HarvestDate = application.Now()
	}
	if harvest.FlushNumber == 0 {
		last, err := svc.storage.LastFlush(ctx, batch.ID)
		if err != nil {
			return models.Harvest{}, err
		}
		harvest.FlushNumber = last + 1
	}

	harvest.ID = ""
	harvest.OrganizationID = batch.OrganizationID

	err = validate(harvest)
	if err != nil {
		return models.Harvest{}, err
	}

	var expected *float64
	if recipe, err := svc.recipes.Get(ctx, batch.RecipeID); err == nil {
		expected = recipe.EstimatedYieldKg
	}

	CalculateMetrics(&harvest, expected)

	err = svc.storage.Save(ctx, &harvest)
	if err != nil {
		return models.Harvest{}, err
	}

	if harvest.Status == types.HarvestCompleted {
		metrics.HarvestedKg.Add(harvest.TotalWeightKg)

		_, err = svc.batches.RecomputeTotals(ctx, batch.ID)
		if err != nil {
			logger := logging.GetFromContext(ctx)
			logger.Error().Err(err).Str("batchID", batch.ID).Msg("failed to update batch totals")
		}
	}

	return harvest, nil
}

func (svc *harvestSvc) Get(ctx context.Context, harvestID string, tenants []string) (models.Harvest, error) {
	return svc.storage.Get(ctx, harvestID, tenants...)
}

func (svc *harvestSvc) Query(ctx context.Context, params repository.HarvestQuery, tenants []string) (types.Collection[models.Harvest], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

func (svc *harvestSvc) Delete(ctx context.Context, harvestID string, tenants []string) error {
	harvest, err := svc.storage.Get(ctx, harvestID, tenants...)
	if err != nil {
		return err
	}

	err = svc.storage.Delete(ctx, harvestID, tenants...)
	if err != nil {
		return err
	}

	_, err = svc.batches.RecomputeTotals(ctx, harvest.BatchID)
	return err
}

func (svc *harvestSvc) BatchSummary(ctx context.Context, batchID string, tenants []string) (BatchSummary, error) {
	batch, err := svc.batches.Get(ctx, batchID, tenants)
	if err != nil {
		return BatchSummary{}, err
	}

	result, err := svc.storage.Query(ctx, repository.HarvestQuery{BatchID: batchID}, tenants...)
	if err != nil {
		return BatchSummary{}, err
	}

	harvests := lo.Filter(result.Data, func(h models.Harvest, _ int) bool {
		return h.Status != types.HarvestCancelled
	})
	sort.Slice(harvests, func(i, j int) bool { return harvests[i].FlushNumber < harvests[j].FlushNumber })

	summary := BatchSummary{
		BatchID:             batch.ID,
		BatchNumber:         batch.BatchNumber,
		TotalFlushes:        len(harvests),
		QualityDistribution: types.QualityDistribution{},
		Flushes:             []FlushSummary{},
	}

	for _, h := range harvests {
		summary.TotalYieldKg += h.TotalWeightKg
		if h.TotalRevenue != nil {
			summary.TotalRevenue += *h.TotalRevenue
		}

		dist, err := h.Distribution()
		if err == nil {
			for grade, kg := range dist {
				summary.QualityDistribution[grade] += kg
			}
		}

		summary.Flushes = append(summary.Flushes, FlushSummary{
			HarvestID:            h.ID,
			FlushNumber:          h.FlushNumber,
			HarvestDate:          h.HarvestDate,
			Status:               h.Status,
			TotalWeightKg:        h.TotalWeightKg,
			BiologicalEfficiency: h.BiologicalEfficiency,
			QualityGrade:         h.QualityGrade,
		})
	}

	summary.AverageBE = average(harvests, func(h models.Harvest) *float64 { return h.BiologicalEfficiency })

	return summary, nil
}

func (svc *harvestSvc) ZoneAnalytics(ctx context.Context, zoneID string, from, to *time.Time, tenants []string) (ZoneAnalytics, error) {
	_, err := svc.zones.Get(ctx, zoneID, tenants...)
	if err != nil {
		return ZoneAnalytics{}, err
	}

	result, err := svc.storage.Query(ctx, repository.HarvestQuery{ZoneID: zoneID, Status: types.HarvestCompleted, From: from, To: to}, tenants...)
	if err != nil {
		return ZoneAnalytics{}, err
	}

	analytics := ZoneAnalytics{
		ZoneID:       zoneID,
		HarvestCount: len(result.Data),
		TotalYieldKg: lo.SumBy(result.Data, func(h models.Harvest) float64 { return h.TotalWeightKg }),
		TotalRevenue: lo.SumBy(result.Data, func(h models.Harvest) float64 {
			if h.TotalRevenue == nil {
				return 0
			}
			return *h.TotalRevenue
		}),
		AverageBE:          average(result.Data, func(h models.Harvest) *float64 { return h.BiologicalEfficiency }),
		AverageYieldPerBag: average(result.Data, func(h models.Harvest) *float64 { return h.YieldPerBag }),
	}

	return analytics, nil
}

// QualitySummary returns the share of harvested weight, in percent, per quality grade.
// Harvests without a grade only count towards the total weight.
func (svc *harvestSvc) QualitySummary(ctx context.Context, params repository.HarvestQuery, tenants []string) (QualitySummary, error) {
	params.Offset, params.Limit = 0, 0

	result, err := svc.storage.Query(ctx, params, tenants...)
	if err != nil {
		return QualitySummary{}, err
	}

	summary := QualitySummary{
		Grades: map[types.QualityGrade]float64{},
	}

	weights := map[types.QualityGrade]float64{}
	for _, h := range result.Data {
		if h.Status == types.HarvestCancelled {
			continue
		}
		summary.TotalWeightKg += h.TotalWeightKg
		if h.QualityGrade != nil {
			weights[*h.QualityGrade] += h.TotalWeightKg
		}
	}

	if summary.TotalWeightKg > 0 {
		for grade, kg := range weights {
			summary.Grades[grade] = application.Round2(kg / summary.TotalWeightKg * 100)
		}
	}

	return summary, nil
}

func average(harvests []models.Harvest, value func(models.Harvest) *float64) *float64 {
	values := lo.FilterMap(harvests, func(h models.Harvest, _ int) (float64, bool) {
		v := value(h)
		if v == nil {
			return 0, false
		}
		return *v, true
	})

	if len(values) == 0 {
		return nil
	}

	return application.Ptr(lo.Sum(values) / float64(len(values)))
}
