package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/executions"
	batchDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	executionDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/executions"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func queryBatchesHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "query-batches", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		params := batchDb.BatchQuery{
			ZoneID:   r.URL.Query().Get("zoneId"),
			RecipeID: r.URL.Query().Get("recipeId"),
			Status:   statuses[types.BatchStatus](r, "status"),
			Offset:   offset,
			Limit:    limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "get-batch", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		batch, err := svc.Get(ctx, param(r, "batchID"), tenants)
		return http.StatusOK, batch, err
	})
}

func createBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "create-batch", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		input, err := decode[batches.NewBatch](r)
		if err != nil {
			return 0, nil, err
		}

		if input.OwnerID == "" {
			input.OwnerID = auth.GetUser(ctx)
		}

		batch, err := svc.Create(ctx, input, tenants)
		return http.StatusCreated, batch, err
	})
}

func activateBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "activate-batch", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		batch, err := svc.Activate(ctx, param(r, "batchID"), tenants)
		return http.StatusOK, batch, err
	})
}

func completeBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "complete-batch", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			ActualEndDate *time.Time `json:"actualEndDate"`
			TotalYieldKg  *float64   `json:"totalYieldKg"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		batch, err := svc.Complete(ctx, param(r, "batchID"), req.ActualEndDate, req.TotalYieldKg, tenants)
		return http.StatusOK, batch, err
	})
}

func failBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "fail-batch", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			Reason string `json:"reason"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		batch, err := svc.Fail(ctx, param(r, "batchID"), req.Reason, tenants)
		return http.StatusOK, batch, err
	})
}

func cancelBatchHandler(log zerolog.Logger, svc batches.BatchService) http.HandlerFunc {
	return handle(log, "cancel-batch", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		batch, err := svc.Cancel(ctx, param(r, "batchID"), tenants)
		return http.StatusOK, batch, err
	})
}

func queryExecutionsHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "query-executions", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		params := executionDb.ExecutionQuery{
			ZoneID:  r.URL.Query().Get("zoneId"),
			BatchID: r.URL.Query().Get("batchId"),
			Status:  statuses[types.ExecutionStatus](r, "status"),
			Offset:  offset,
			Limit:   limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "get-execution", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		execution, err := svc.Get(ctx, param(r, "executionID"), tenants)
		return http.StatusOK, execution, err
	})
}

func executionProgressHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "get-execution-progress", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		progress, err := svc.Progress(ctx, param(r, "executionID"), tenants)
		return http.StatusOK, progress, err
	})
}

func startExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "start-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		input, err := decode[executions.NewExecution](r)
		if err != nil {
			return 0, nil, err
		}

		input.OwnerID = auth.GetUser(ctx)

		execution, err := svc.Start(ctx, input, tenants)
		return http.StatusCreated, execution, err
	})
}

type approvalRequest struct {
	Notes                string `json:"notes"`
	ManualTasksCompleted bool   `json:"manualTasksCompleted"`
}

func advanceExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "advance-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[approvalRequest](r)
		if err != nil {
			return 0, nil, err
		}

		execution, err := svc.AdvanceStage(ctx, param(r, "executionID"), auth.GetUser(ctx), req.Notes, tenants)
		return http.StatusOK, execution, err
	})
}

func approveExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "approve-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[approvalRequest](r)
		if err != nil {
			return 0, nil, err
		}

		execution, err := svc.Approve(ctx, param(r, "executionID"), auth.GetUser(ctx), req.Notes, req.ManualTasksCompleted, tenants)
		return http.StatusOK, execution, err
	})
}

func declineExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "decline-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[approvalRequest](r)
		if err != nil {
			return 0, nil, err
		}

		execution, err := svc.Decline(ctx, param(r, "executionID"), auth.GetUser(ctx), req.Notes, tenants)
		return http.StatusOK, execution, err
	})
}

func pauseExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "pause-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		execution, err := svc.Pause(ctx, param(r, "executionID"), tenants)
		return http.StatusOK, execution, err
	})
}

func resumeExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "resume-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		execution, err := svc.Resume(ctx, param(r, "executionID"), tenants)
		return http.StatusOK, execution, err
	})
}

func abortExecutionHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "abort-execution", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			Reason string `json:"reason"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		execution, err := svc.Abort(ctx, param(r, "executionID"), req.Reason, tenants)
		return http.StatusOK, execution, err
	})
}

func executionOverridesHandler(log zerolog.Logger, svc executions.ExecutionService) http.HandlerFunc {
	return handle(log, "set-execution-overrides", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		overrides, err := decode[map[string]types.EquipmentOverride](r)
		if err != nil {
			return 0, nil, err
		}

		execution, err := svc.SetOverrides(ctx, param(r, "executionID"), overrides, tenants)
		return http.StatusOK, execution, err
	})
}

// statuses reads a comma separated list of status values.
func statuses[T ~string](r *http.Request, name string) []T {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil
	}

	result := []T{}
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, T(v))
		}
	}

	return result
}
