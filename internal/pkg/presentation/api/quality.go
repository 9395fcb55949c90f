package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application/quality"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	qualityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/quality"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func checkQuery(r *http.Request) (qualityDb.CheckQuery, error) {
	offset, limit, err := paging(r)
	if err != nil {
		return qualityDb.CheckQuery{}, err
	}

	from, to, err := timeRange(r)
	if err != nil {
		return qualityDb.CheckQuery{}, err
	}

	q := r.URL.Query()

	return qualityDb.CheckQuery{
		CheckType:  types.CheckType(q.Get("checkType")),
		PassStatus: types.PassStatus(q.Get("passStatus")),
		Status:     types.CheckStatus(q.Get("status")),
		Grade:      types.InspectionGrade(q.Get("grade")),
		ZoneID:     q.Get("zoneId"),
		BatchID:    q.Get("batchId"),
		HarvestID:  q.Get("harvestId"),
		From:       from,
		To:         to,
		Offset:     offset,
		Limit:      limit,
	}, nil
}

func defectQuery(r *http.Request) (qualityDb.DefectQuery, error) {
	offset, limit, err := paging(r)
	if err != nil {
		return qualityDb.DefectQuery{}, err
	}

	from, to, err := timeRange(r)
	if err != nil {
		return qualityDb.DefectQuery{}, err
	}

	q := r.URL.Query()

	return qualityDb.DefectQuery{
		CheckID:      q.Get("checkId"),
		Severity:     types.DefectSeverity(q.Get("severity")),
		Category:     types.DefectCategory(q.Get("category")),
		ActionStatus: types.ActionStatus(q.Get("actionStatus")),
		From:         from,
		To:           to,
		Offset:       offset,
		Limit:        limit,
	}, nil
}

func queryQualityChecksHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "query-quality-checks", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := checkQuery(r)
		if err != nil {
			return 0, nil, err
		}

		result, err := svc.QueryChecks(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func qualityStatsHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "quality-stats", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := checkQuery(r)
		if err != nil {
			return 0, nil, err
		}

		stats, err := svc.Stats(ctx, params, tenants)
		return http.StatusOK, stats, err
	})
}

func getQualityCheckHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "get-quality-check", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		check, err := svc.GetCheck(ctx, param(r, "checkID"), tenants)
		return http.StatusOK, check, err
	})
}

func createQualityCheckHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "create-quality-check", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		check, err := decode[models.QualityCheck](r)
		if err != nil {
			return 0, nil, err
		}

		check.OrganizationID, err = tenantFor(check.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		if check.OwnerID == "" {
			check.OwnerID = auth.GetUser(ctx)
		}

		check, err = svc.CreateCheck(ctx, check)
		return http.StatusCreated, check, err
	})
}

func patchQualityCheckHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "patch-quality-check", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		fields, err := decode[quality.CheckFields](r)
		if err != nil {
			return 0, nil, err
		}

		check, err := svc.UpdateCheck(ctx, param(r, "checkID"), fields, tenants)
		return http.StatusOK, check, err
	})
}

func reviewQualityCheckHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "review-quality-check", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		review, err := decode[quality.Review](r)
		if err != nil {
			return 0, nil, err
		}

		review.ReviewedBy = auth.GetUser(ctx)

		check, err := svc.ReviewCheck(ctx, param(r, "checkID"), review, tenants)
		return http.StatusOK, check, err
	})
}

func deleteQualityCheckHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "delete-quality-check", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.DeleteCheck(ctx, param(r, "checkID"), tenants)
	})
}

func queryDefectsHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "query-defects", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := defectQuery(r)
		if err != nil {
			return 0, nil, err
		}

		result, err := svc.QueryDefects(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func defectAnalysisHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "defect-analysis", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		params, err := defectQuery(r)
		if err != nil {
			return 0, nil, err
		}

		analysis, err := svc.DefectAnalysis(ctx, params, tenants)
		return http.StatusOK, analysis, err
	})
}

func addDefectHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "add-defect", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		defect, err := decode[models.Defect](r)
		if err != nil {
			return 0, nil, err
		}

		if defect.OwnerID == "" {
			defect.OwnerID = auth.GetUser(ctx)
		}

		defect, err = svc.AddDefect(ctx, param(r, "checkID"), defect, tenants)
		return http.StatusCreated, defect, err
	})
}

func defectActionHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "defect-action", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		action, err := decode[quality.DefectAction](r)
		if err != nil {
			return 0, nil, err
		}

		defect, err := svc.UpdateDefectAction(ctx, param(r, "defectID"), action, tenants)
		return http.StatusOK, defect, err
	})
}

func deleteDefectHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "delete-defect", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.DeleteDefect(ctx, param(r, "checkID"), param(r, "defectID"), tenants)
	})
}

func queryStandardsHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "query-standards", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		mandatory, err := boolParam(r, "mandatory")
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := qualityDb.StandardQuery{
			Category:  types.StandardCategory(q.Get("category")),
			Status:    types.StandardStatus(q.Get("status")),
			CropType:  types.CropType(q.Get("cropType")),
			Mandatory: mandatory,
			Search:    q.Get("search"),
			Offset:    offset,
			Limit:     limit,
		}

		result, err := svc.QueryStandards(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "get-standard", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		standard, err := svc.GetStandard(ctx, param(r, "standardID"), tenants)
		return http.StatusOK, standard, err
	})
}

func evaluateStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "evaluate-standard", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		evaluation, err := svc.Evaluate(ctx, r.URL.Query().Get("checkId"), param(r, "standardID"), tenants)
		return http.StatusOK, evaluation, err
	})
}

func createStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "create-standard", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		standard, err := decode[models.QualityStandard](r)
		if err != nil {
			return 0, nil, err
		}

		standard.OrganizationID, err = tenantFor(standard.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		if standard.OwnerID == "" {
			standard.OwnerID = auth.GetUser(ctx)
		}

		standard, err = svc.CreateStandard(ctx, standard)
		return http.StatusCreated, standard, err
	})
}

func patchStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "patch-standard", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		fields, err := decode[quality.StandardFields](r)
		if err != nil {
			return 0, nil, err
		}

		standard, err := svc.UpdateStandard(ctx, param(r, "standardID"), fields, auth.GetUser(ctx), tenants)
		return http.StatusOK, standard, err
	})
}

func approveStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "approve-standard", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		standard, err := svc.ApproveStandard(ctx, param(r, "standardID"), auth.GetUser(ctx), tenants)
		return http.StatusOK, standard, err
	})
}

func archiveStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "archive-standard", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		standard, err := svc.ArchiveStandard(ctx, param(r, "standardID"), tenants)
		return http.StatusOK, standard, err
	})
}

func duplicateStandardHandler(log zerolog.Logger, svc quality.QualityService) http.HandlerFunc {
	return handle(log, "duplicate-standard", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			Name string `json:"name"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		standard, err := svc.DuplicateStandard(ctx, param(r, "standardID"), req.Name, auth.GetUser(ctx), tenants)
		return http.StatusCreated, standard, err
	})
}
