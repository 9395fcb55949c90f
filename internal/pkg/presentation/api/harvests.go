package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application/harvests"
	harvestDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func harvestQuery(r *http.Request) (harvestDb.HarvestQuery, error) {
	offset, limit, err := paging(r)
	if err != nil {
		return harvestDb.HarvestQuery{}, err
	}

	from, to, err := timeRange(r)
	if err != nil {
		return harvestDb.HarvestQuery{}, err
	}

	q := r.URL.Query()

	return harvestDb.HarvestQuery{
		ZoneID:       q.Get("zoneId"),
		BatchID:      q.Get("batchId"),
		Status:       types.HarvestStatus(q.Get("status")),
		QualityGrade: types.QualityGrade(q.Get("grade")),
		From:         from,
		To:           to,
		Offset:       offset,
		Limit:        limit,
	}, nil
}

func queryHarvestsHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "query-harvests", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := harvestQuery(r)
		if err != nil {
			return 0, nil, err
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getHarvestHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "get-harvest", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		harvest, err := svc.Get(ctx, param(r, "harvestID"), tenants)
		return http.StatusOK, harvest, err
	})
}

func recordHarvestHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "record-harvest", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		harvest, err := decode[models.Harvest](r)
		if err != nil {
			return 0, nil, err
		}

		harvest, err = svc.Record(ctx, harvest, tenants)
		return http.StatusCreated, harvest, err
	})
}

func deleteHarvestHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "delete-harvest", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.Delete(ctx, param(r, "harvestID"), tenants)
	})
}

func batchSummaryHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "batch-harvest-summary", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		summary, err := svc.BatchSummary(ctx, param(r, "batchID"), tenants)
		return http.StatusOK, summary, err
	})
}

func zoneAnalyticsHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "zone-analytics", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		from, to, err := timeRange(r)
		if err != nil {
			return 0, nil, err
		}

		analytics, err := svc.ZoneAnalytics(ctx, param(r, "zoneID"), from, to, tenants)
		return http.StatusOK, analytics, err
	})
}

func qualitySummaryHandler(log zerolog.Logger, svc harvests.HarvestService) http.HandlerFunc {
	return handle(log, "harvest-quality-summary", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := harvestQuery(r)
		if err != nil {
			return 0, nil, err
		}

		summary, err := svc.QualitySummary(ctx, params, tenants)
		return http.StatusOK, summary, err
	})
}
