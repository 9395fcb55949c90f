package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/alerts"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/application/executions"
	"github.com/diwise/farm-operations/internal/pkg/application/finance"
	"github.com/diwise/farm-operations/internal/pkg/application/harvests"
	"github.com/diwise/farm-operations/internal/pkg/application/inventory"
	"github.com/diwise/farm-operations/internal/pkg/application/labor"
	"github.com/diwise/farm-operations/internal/pkg/application/profitability"
	"github.com/diwise/farm-operations/internal/pkg/application/quality"
	"github.com/diwise/farm-operations/internal/pkg/application/recipes"
	"github.com/diwise/farm-operations/internal/pkg/application/webevents"
	"github.com/diwise/farm-operations/internal/pkg/application/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("farm-operations/api")

var (
	errForbidden  = errors.New("no access to the requested tenant")
	errBadRequest = errors.New("bad request")
)

// Services are the application services exposed over http.
type Services struct {
	Zones      zones.ZoneService
	Recipes    recipes.RecipeService
	Batches    batches.BatchService
	Executions executions.ExecutionService
	Equipment  equipment.EquipmentService
	Harvests   harvests.HarvestService
	Finance    finance.FinanceService
	Labor      labor.LaborService
	Alerts     alerts.AlertService
	Feed       webevents.WebEvents

	Profitability profitability.ProfitabilityService
	Inventory     inventory.InventoryService
	Quality       quality.QualityService
}

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, app Services) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Handle("/metrics", metrics.Handler())

	log := logging.GetFromContext(ctx)

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	router.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAccess(auth.ReadScope))

			r.Get("/zones", queryZonesHandler(log, app.Zones))
			r.Get("/zones/{zoneID}", getZoneHandler(log, app.Zones))

			r.Get("/recipes", queryRecipesHandler(log, app.Recipes))
			r.Get("/recipes/{recipeID}", getRecipeHandler(log, app.Recipes))

			r.Get("/batches", queryBatchesHandler(log, app.Batches))
			r.Get("/batches/{batchID}", getBatchHandler(log, app.Batches))

			r.Get("/executions", queryExecutionsHandler(log, app.Executions))
			r.Get("/executions/{executionID}", getExecutionHandler(log, app.Executions))
			r.Get("/executions/{executionID}/progress", executionProgressHandler(log, app.Executions))

			r.Get("/equipment", queryEquipmentHandler(log, app.Equipment))
			r.Get("/equipment/{equipmentID}", getEquipmentHandler(log, app.Equipment))
			r.Get("/equipment/{equipmentID}/commands", equipmentCommandsHandler(log, app.Equipment))
			r.Get("/commands", queryCommandsHandler(log, app.Equipment))
			r.Get("/commands/{commandID}", getCommandHandler(log, app.Equipment))

			r.Get("/harvests", queryHarvestsHandler(log, app.Harvests))
			r.Get("/harvests/quality", qualitySummaryHandler(log, app.Harvests))
			r.Get("/harvests/batches/{batchID}/summary", batchSummaryHandler(log, app.Harvests))
			r.Get("/harvests/zones/{zoneID}/analytics", zoneAnalyticsHandler(log, app.Harvests))
			r.Get("/harvests/{harvestID}", getHarvestHandler(log, app.Harvests))

			r.Get("/costs", queryCostsHandler(log, app.Finance))
			r.Get("/costs/breakdown", costBreakdownHandler(log, app.Finance))
			r.Get("/costs/{costID}", getCostHandler(log, app.Finance))
			r.Get("/revenues", queryRevenuesHandler(log, app.Finance))
			r.Get("/revenues/{revenueID}", getRevenueHandler(log, app.Finance))

			r.Get("/worklogs", queryWorkLogsHandler(log, app.Labor))
			r.Get("/worklogs/{workLogID}", getWorkLogHandler(log, app.Labor))

			r.Get("/profitability", profitabilityOverviewHandler(log, app.Profitability))
			r.Get("/profitability/roi", profitabilityROIHandler(log, app.Profitability))
			r.Get("/profitability/margins", profitabilityMarginsHandler(log, app.Profitability))
			r.Get("/profitability/trends", profitabilityTrendsHandler(log, app.Profitability))
			r.Get("/profitability/revenue-breakdown", revenueBreakdownHandler(log, app.Profitability))
			r.Get("/profitability/compare", compareBatchesHandler(log, app.Profitability))
			r.Get("/profitability/batches/{batchID}", batchProfitabilityHandler(log, app.Profitability))

			r.Get("/inventory", queryInventoryHandler(log, app.Inventory))
			r.Get("/inventory/low-stock", lowStockHandler(log, app.Inventory))
			r.Get("/inventory/stats", inventoryStatsHandler(log, app.Inventory))
			r.Get("/inventory/transactions", queryStockTransactionsHandler(log, app.Inventory))
			r.Get("/inventory/{itemID}", getInventoryItemHandler(log, app.Inventory))
			r.Get("/inventory/{itemID}/transactions", queryStockTransactionsHandler(log, app.Inventory))

			r.Get("/quality/checks", queryQualityChecksHandler(log, app.Quality))
			r.Get("/quality/checks/stats", qualityStatsHandler(log, app.Quality))
			r.Get("/quality/checks/{checkID}", getQualityCheckHandler(log, app.Quality))
			r.Get("/quality/defects", queryDefectsHandler(log, app.Quality))
			r.Get("/quality/defects/analysis", defectAnalysisHandler(log, app.Quality))
			r.Get("/quality/standards", queryStandardsHandler(log, app.Quality))
			r.Get("/quality/standards/{standardID}", getStandardHandler(log, app.Quality))
			r.Get("/quality/standards/{standardID}/evaluate", evaluateStandardHandler(log, app.Quality))

			r.Get("/alerts", queryAlertsHandler(log, app.Alerts))
			r.Get("/alerts/unread", unreadAlertsHandler(log, app.Alerts))
			r.Get("/alerts/{alertID}", getAlertHandler(log, app.Alerts))
			r.Patch("/alerts/{alertID}/read", markAlertReadHandler(log, app.Alerts))
			r.Patch("/alerts/{alertID}/acknowledge", acknowledgeAlertHandler(log, app.Alerts))
			r.Patch("/alerts/{alertID}/dismiss", dismissAlertHandler(log, app.Alerts))

			if app.Feed != nil {
				r.Get("/events", app.Feed.Handler())
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAccess(auth.WriteScope))

			r.Post("/zones", createZoneHandler(log, app.Zones))
			r.Patch("/zones/{zoneID}", patchZoneHandler(log, app.Zones))
			r.Delete("/zones/{zoneID}", deleteZoneHandler(log, app.Zones))

			r.Post("/recipes", createRecipeHandler(log, app.Recipes))
			r.Put("/recipes/{recipeID}", updateRecipeHandler(log, app.Recipes))
			r.Post("/recipes/{recipeID}/clone", cloneRecipeHandler(log, app.Recipes))
			r.Delete("/recipes/{recipeID}", deleteRecipeHandler(log, app.Recipes))

			r.Post("/batches", createBatchHandler(log, app.Batches))
			r.Post("/batches/{batchID}/activate", activateBatchHandler(log, app.Batches))
			r.Post("/batches/{batchID}/complete", completeBatchHandler(log, app.Batches))
			r.Post("/batches/{batchID}/fail", failBatchHandler(log, app.Batches))
			r.Post("/batches/{batchID}/cancel", cancelBatchHandler(log, app.Batches))

			r.Post("/executions", startExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/advance", advanceExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/approve", approveExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/decline", declineExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/pause", pauseExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/resume", resumeExecutionHandler(log, app.Executions))
			r.Post("/executions/{executionID}/abort", abortExecutionHandler(log, app.Executions))
			r.Put("/executions/{executionID}/overrides", executionOverridesHandler(log, app.Executions))

			r.Post("/equipment", createEquipmentHandler(log, app.Equipment))
			r.Patch("/equipment/{equipmentID}", patchEquipmentHandler(log, app.Equipment))
			r.Delete("/equipment/{equipmentID}", deleteEquipmentHandler(log, app.Equipment))

			r.Post("/harvests", recordHarvestHandler(log, app.Harvests))
			r.Delete("/harvests/{harvestID}", deleteHarvestHandler(log, app.Harvests))

			r.Post("/costs", createCostHandler(log, app.Finance))
			r.Delete("/costs/{costID}", deleteCostHandler(log, app.Finance))
			r.Post("/revenues", createRevenueHandler(log, app.Finance))
			r.Post("/revenues/{revenueID}/payments", recordPaymentHandler(log, app.Finance))
			r.Delete("/revenues/{revenueID}", deleteRevenueHandler(log, app.Finance))

			r.Post("/worklogs", createWorkLogHandler(log, app.Labor))
			r.Post("/worklogs/clock-in", clockInHandler(log, app.Labor))
			r.Post("/worklogs/{workLogID}/clock-out", clockOutHandler(log, app.Labor))
			r.Post("/worklogs/{workLogID}/approve", approveWorkLogHandler(log, app.Labor))

			r.Post("/inventory", createInventoryItemHandler(log, app.Inventory))
			r.Post("/inventory/usage", recordUsageHandler(log, app.Inventory))
			r.Patch("/inventory/{itemID}", patchInventoryItemHandler(log, app.Inventory))
			r.Delete("/inventory/{itemID}", deactivateInventoryItemHandler(log, app.Inventory))
			r.Post("/inventory/{itemID}/adjust", adjustStockHandler(log, app.Inventory))

			r.Post("/quality/checks", createQualityCheckHandler(log, app.Quality))
			r.Patch("/quality/checks/{checkID}", patchQualityCheckHandler(log, app.Quality))
			r.Post("/quality/checks/{checkID}/review", reviewQualityCheckHandler(log, app.Quality))
			r.Delete("/quality/checks/{checkID}", deleteQualityCheckHandler(log, app.Quality))
			r.Post("/quality/checks/{checkID}/defects", addDefectHandler(log, app.Quality))
			r.Delete("/quality/checks/{checkID}/defects/{defectID}", deleteDefectHandler(log, app.Quality))
			r.Patch("/quality/defects/{defectID}/action", defectActionHandler(log, app.Quality))
			r.Post("/quality/standards", createStandardHandler(log, app.Quality))
			r.Patch("/quality/standards/{standardID}", patchStandardHandler(log, app.Quality))
			r.Post("/quality/standards/{standardID}/approve", approveStandardHandler(log, app.Quality))
			r.Post("/quality/standards/{standardID}/archive", archiveStandardHandler(log, app.Quality))
			r.Post("/quality/standards/{standardID}/duplicate", duplicateStandardHandler(log, app.Quality))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAccess(auth.ControlScope))

			r.Post("/equipment/{equipmentID}/commands", issueCommandHandler(log, app.Equipment))
			r.Post("/equipment/{equipmentID}/on", turnOnHandler(log, app.Equipment))
			r.Post("/equipment/{equipmentID}/off", turnOffHandler(log, app.Equipment))
			r.Post("/equipment/{equipmentID}/value", setValueHandler(log, app.Equipment))
			r.Post("/equipment/{equipmentID}/mode", setModeHandler(log, app.Equipment))
			r.Patch("/commands/{commandID}", patchCommandHandler(log, app.Equipment))
		})
	})

	return router, nil
}

// operation is the part of a request handler that differs between endpoints.
// It returns the status code and the body to respond with on success.
type operation func(ctx context.Context, r *http.Request, tenants []string) (int, any, error)

func handle(log zerolog.Logger, name string, scope auth.Scope, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		tenants := auth.GetTenantsWithAllowedScopes(ctx, scope)
		if len(tenants) == 0 {
			err = errForbidden
			requestLogger.Info().Str("scope", string(scope)).Msg("no tenants with required scope")
			writeError(w, http.StatusForbidden, err)
			return
		}

		status, body, err := op(ctx, r, tenants)
		if err != nil {
			status = statusFromError(err)
			if status >= http.StatusInternalServerError {
				requestLogger.Error().Err(err).Msgf("%s failed", name)
			} else {
				requestLogger.Debug().Err(err).Int("status", status).Msgf("%s rejected", name)
			}
			writeError(w, status, err)
			return
		}

		err = writeResponse(w, status, body)
		if err != nil {
			requestLogger.Error().Err(err).Msg("failed to write response")
		}
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest), errors.Is(err, application.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrInvalidTransition), errors.Is(err, database.ErrConflict), errors.Is(err, database.ErrForeignKeyViolation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(ApiError{Status: status, Message: msg}.Byte())
}

func writeResponse(w http.ResponseWriter, status int, body any) error {
	switch b := body.(type) {
	case nil:
		w.WriteHeader(status)
		return nil
	case ApiResponse:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, err := w.Write(b.Byte())
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(ApiResponse{Data: body}.Byte())
	return err
}

func decode[T any](r *http.Request) (T, error) {
	var v T

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return v, fmt.Errorf("%w: unable to read body", errBadRequest)
	}

	err = json.Unmarshal(body, &v)
	if err != nil {
		return v, fmt.Errorf("%w: %s", errBadRequest, err.Error())
	}

	return v, nil
}

// decodeOptional accepts an empty body and leaves v at its zero value.
func decodeOptional[T any](r *http.Request) (T, error) {
	var v T

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return v, fmt.Errorf("%w: unable to read body", errBadRequest)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return v, nil
	}

	err = json.Unmarshal(body, &v)
	if err != nil {
		return v, fmt.Errorf("%w: %s", errBadRequest, err.Error())
	}

	return v, nil
}

// tenantFor picks the tenant a new resource is created in. The requested
// tenant must be one the caller may write to and may only be left out when
// there is exactly one to choose from.
func tenantFor(requested string, tenants []string) (string, error) {
	if requested == "" {
		if len(tenants) == 1 {
			return tenants[0], nil
		}
		return "", application.Invalid("organizationId is required")
	}

	if !lo.Contains(tenants, requested) {
		return "", errForbidden
	}

	return requested, nil
}

func paging(r *http.Request) (int, int, error) {
	offset, err := intParam(r, "offset")
	if err != nil {
		return 0, 0, err
	}

	limit, err := intParam(r, "limit")
	if err != nil {
		return 0, 0, err
	}

	return offset, limit, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s must be a non negative integer", errBadRequest, name)
	}

	return i, nil
}

// boolParam returns nil when the parameter is absent.
func boolParam(r *http.Request, name string) (*bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}

	return &b, nil
}

// timeParam accepts both RFC3339 timestamps and plain dates.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("%w: %s is not a valid date", errBadRequest, name)
}

func timeRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := timeParam(r, "from")
	if err != nil {
		return nil, nil, err
	}

	to, err := timeParam(r, "to")
	if err != nil {
		return nil, nil, err
	}

	return from, to, nil
}

func param(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
