package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/diwise/farm-operations/internal/pkg/application/profitability"
	profitabilityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/profitability"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/rs/zerolog"
)

func profitabilityScope(r *http.Request) (profitabilityDb.Scope, error) {
	from, to, err := timeRange(r)
	if err != nil {
		return profitabilityDb.Scope{}, err
	}

	q := r.URL.Query()

	return profitabilityDb.Scope{
		BatchID: q.Get("batchId"),
		ZoneID:  q.Get("zoneId"),
		From:    from,
		To:      to,
	}, nil
}

func profitabilityOverviewHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "profitability-overview", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		scope, err := profitabilityScope(r)
		if err != nil {
			return 0, nil, err
		}

		summary, err := svc.Overview(ctx, scope, tenants)
		return http.StatusOK, summary, err
	})
}

func profitabilityROIHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "profitability-roi", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		scope, err := profitabilityScope(r)
		if err != nil {
			return 0, nil, err
		}

		roi, err := svc.ROI(ctx, scope, tenants)
		return http.StatusOK, roi, err
	})
}

func profitabilityMarginsHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "profitability-margins", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		scope, err := profitabilityScope(r)
		if err != nil {
			return 0, nil, err
		}

		margins, err := svc.Margins(ctx, scope, tenants)
		return http.StatusOK, margins, err
	})
}

func batchProfitabilityHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "batch-profitability", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		bp, err := svc.Batch(ctx, param(r, "batchID"), tenants)
		return http.StatusOK, bp, err
	})
}

func compareBatchesHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "compare-batches", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		ids := []string{}
		for _, id := range strings.Split(r.URL.Query().Get("batchIds"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}

		comparison, err := svc.Compare(ctx, ids, tenants)
		return http.StatusOK, comparison, err
	})
}

func profitabilityTrendsHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "profitability-trends", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		scope, err := profitabilityScope(r)
		if err != nil {
			return 0, nil, err
		}

		period := profitability.Period(r.URL.Query().Get("period"))

		points, err := svc.Trends(ctx, scope, period, tenants)
		return http.StatusOK, points, err
	})
}

func revenueBreakdownHandler(log zerolog.Logger, svc profitability.ProfitabilityService) http.HandlerFunc {
	return handle(log, "revenue-breakdown", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		scope, err := profitabilityScope(r)
		if err != nil {
			return 0, nil, err
		}

		breakdown, err := svc.RevenueBreakdown(ctx, scope, tenants)
		return http.StatusOK, breakdown, err
	})
}
