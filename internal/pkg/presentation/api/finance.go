package api

import (
	"context"
	"net/http"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application/finance"
	"github.com/diwise/farm-operations/internal/pkg/application/labor"
	financeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/finance"
	laborDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/labor"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func costQuery(r *http.Request) (financeDb.CostQuery, error) {
	offset, limit, err := paging(r)
	if err != nil {
		return financeDb.CostQuery{}, err
	}

	from, to, err := timeRange(r)
	if err != nil {
		return financeDb.CostQuery{}, err
	}

	q := r.URL.Query()

	return financeDb.CostQuery{
		Category: types.CostCategory(q.Get("category")),
		ZoneID:   q.Get("zoneId"),
		BatchID:  q.Get("batchId"),
		From:     from,
		To:       to,
		Offset:   offset,
		Limit:    limit,
	}, nil
}

func queryCostsHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "query-costs", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := costQuery(r)
		if err != nil {
			return 0, nil, err
		}

		result, err := svc.QueryCosts(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func costBreakdownHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "cost-breakdown", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := costQuery(r)
		if err != nil {
			return 0, nil, err
		}

		breakdown, err := svc.CostBreakdown(ctx, params, tenants)
		return http.StatusOK, breakdown, err
	})
}

func getCostHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "get-cost", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cost, err := svc.GetCost(ctx, param(r, "costID"), tenants)
		return http.StatusOK, cost, err
	})
}

func createCostHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "create-cost", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cost, err := decode[models.CostEntry](r)
		if err != nil {
			return 0, nil, err
		}

		cost.OrganizationID, err = tenantFor(cost.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		if cost.RecordedBy == "" {
			cost.RecordedBy = auth.GetUser(ctx)
		}

		cost, err = svc.CreateCost(ctx, cost)
		return http.StatusCreated, cost, err
	})
}

func deleteCostHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "delete-cost", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.DeleteCost(ctx, param(r, "costID"), tenants)
	})
}

func queryRevenuesHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "query-revenues", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		from, to, err := timeRange(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := financeDb.RevenueQuery{
			BatchID:       q.Get("batchId"),
			HarvestID:     q.Get("harvestId"),
			RevenueType:   types.RevenueType(q.Get("revenueType")),
			PaymentStatus: types.PaymentStatus(q.Get("paymentStatus")),
			From:          from,
			To:            to,
			Offset:        offset,
			Limit:         limit,
		}

		result, err := svc.QueryRevenues(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getRevenueHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "get-revenue", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		rev, err := svc.GetRevenue(ctx, param(r, "revenueID"), tenants)
		return http.StatusOK, rev, err
	})
}

func createRevenueHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "create-revenue", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		rev, err := decode[models.Revenue](r)
		if err != nil {
			return 0, nil, err
		}

		rev.OrganizationID, err = tenantFor(rev.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		if rev.RecordedBy == "" {
			rev.RecordedBy = auth.GetUser(ctx)
		}

		rev, err = svc.CreateRevenue(ctx, rev)
		return http.StatusCreated, rev, err
	})
}

func recordPaymentHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "record-payment", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[struct {
			Amount float64 `json:"amount"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		rev, err := svc.RecordPayment(ctx, param(r, "revenueID"), req.Amount, tenants)
		return http.StatusOK, rev, err
	})
}

func deleteRevenueHandler(log zerolog.Logger, svc finance.FinanceService) http.HandlerFunc {
	return handle(log, "delete-revenue", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.DeleteRevenue(ctx, param(r, "revenueID"), tenants)
	})
}

func queryWorkLogsHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "query-worklogs", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		from, to, err := timeRange(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := laborDb.WorkLogQuery{
			EmployeeID: q.Get("employeeId"),
			ZoneID:     q.Get("zoneId"),
			BatchID:    q.Get("batchId"),
			Status:     types.WorkLogStatus(q.Get("status")),
			From:       from,
			To:         to,
			Offset:     offset,
			Limit:      limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getWorkLogHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "get-worklog", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		wl, err := svc.Get(ctx, param(r, "workLogID"), tenants)
		return http.StatusOK, wl, err
	})
}

func workLogFromRequest(ctx context.Context, r *http.Request, tenants []string) (models.WorkLog, error) {
	wl, err := decode[models.WorkLog](r)
	if err != nil {
		return models.WorkLog{}, err
	}

	wl.OrganizationID, err = tenantFor(wl.OrganizationID, tenants)
	if err != nil {
		return models.WorkLog{}, err
	}

	if wl.EmployeeID == "" {
		wl.EmployeeID = auth.GetUser(ctx)
	}

	return wl, nil
}

func clockInHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "clock-in", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		wl, err := workLogFromRequest(ctx, r, tenants)
		if err != nil {
			return 0, nil, err
		}

		wl, err = svc.ClockIn(ctx, wl)
		return http.StatusCreated, wl, err
	})
}

func createWorkLogHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "create-worklog", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		wl, err := workLogFromRequest(ctx, r, tenants)
		if err != nil {
			return 0, nil, err
		}

		wl, err = svc.CreateEntry(ctx, wl)
		return http.StatusCreated, wl, err
	})
}

func clockOutHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "clock-out", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			ClockOut     *time.Time `json:"clockOut"`
			BreakMinutes *int       `json:"breakMinutes"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		wl, err := svc.ClockOut(ctx, param(r, "workLogID"), req.ClockOut, req.BreakMinutes, tenants)
		return http.StatusOK, wl, err
	})
}

func approveWorkLogHandler(log zerolog.Logger, svc labor.LaborService) http.HandlerFunc {
	return handle(log, "approve-worklog", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		wl, err := svc.Approve(ctx, param(r, "workLogID"), tenants)
		return http.StatusOK, wl, err
	})
}
