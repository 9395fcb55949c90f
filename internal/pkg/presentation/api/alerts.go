package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application/alerts"
	alertDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/alerts"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func queryAlertsHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "query-alerts", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := alertDb.AlertQuery{
			Status:      types.AlertStatus(q.Get("status")),
			Type:        types.AlertType(q.Get("type")),
			Severity:    types.Severity(q.Get("severity")),
			ZoneID:      q.Get("zoneId"),
			BatchID:     q.Get("batchId"),
			EquipmentID: q.Get("equipmentId"),
			Offset:      offset,
			Limit:       limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func unreadAlertsHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "count-unread-alerts", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		count, err := svc.UnreadCount(ctx, tenants)
		return http.StatusOK, map[string]int64{"unread": count}, err
	})
}

func getAlertHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "get-alert", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		alert, err := svc.Get(ctx, param(r, "alertID"), tenants)
		return http.StatusOK, alert, err
	})
}

func markAlertReadHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "mark-alert-read", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		alert, err := svc.MarkRead(ctx, param(r, "alertID"), tenants)
		return http.StatusOK, alert, err
	})
}

func acknowledgeAlertHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "acknowledge-alert", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		alert, err := svc.Acknowledge(ctx, param(r, "alertID"), auth.GetUser(ctx), tenants)
		return http.StatusOK, alert, err
	})
}

func dismissAlertHandler(log zerolog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return handle(log, "dismiss-alert", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		alert, err := svc.Dismiss(ctx, param(r, "alertID"), tenants)
		return http.StatusOK, alert, err
	})
}
