package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/recipes"
	"github.com/diwise/farm-operations/internal/pkg/application/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	recipeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	zoneDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func queryZonesHandler(log zerolog.Logger, svc zones.ZoneService) http.HandlerFunc {
	return handle(log, "query-zones", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		params := zoneDb.ZoneQuery{
			Status: types.ZoneStatus(r.URL.Query().Get("status")),
			FarmID: r.URL.Query().Get("farmId"),
			Offset: offset,
			Limit:  limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getZoneHandler(log zerolog.Logger, svc zones.ZoneService) http.HandlerFunc {
	return handle(log, "get-zone", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		zone, err := svc.Get(ctx, param(r, "zoneID"), tenants)
		return http.StatusOK, zone, err
	})
}

func createZoneHandler(log zerolog.Logger, svc zones.ZoneService) http.HandlerFunc {
	return handle(log, "create-zone", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		zone, err := decode[models.Zone](r)
		if err != nil {
			return 0, nil, err
		}

		zone.OrganizationID, err = tenantFor(zone.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		zone, err = svc.Create(ctx, zone)
		return http.StatusCreated, zone, err
	})
}

func patchZoneHandler(log zerolog.Logger, svc zones.ZoneService) http.HandlerFunc {
	return handle(log, "patch-zone", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		fields, err := decode[zones.ZoneFields](r)
		if err != nil {
			return 0, nil, err
		}

		zone, err := svc.Update(ctx, param(r, "zoneID"), fields, tenants)
		return http.StatusOK, zone, err
	})
}

func deleteZoneHandler(log zerolog.Logger, svc zones.ZoneService) http.HandlerFunc {
	return handle(log, "delete-zone", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.Delete(ctx, param(r, "zoneID"), tenants)
	})
}

func queryRecipesHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "query-recipes", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		params := recipeDb.RecipeQuery{
			CropType: types.CropType(r.URL.Query().Get("cropType")),
			Search:   r.URL.Query().Get("q"),
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

func getRecipeHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "get-recipe", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		recipe, err := svc.Get(ctx, param(r, "recipeID"), tenants)
		return http.StatusOK, recipe, err
	})
}

type recipeRequest struct {
	application.RecipeConfig
	OrganizationID string `json:"organizationId,omitempty"`
}

func createRecipeHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "create-recipe", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[recipeRequest](r)
		if err != nil {
			return 0, nil, err
		}

		tenant, err := tenantFor(req.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		recipe, err := svc.Create(ctx, tenant, auth.GetUser(ctx), req.RecipeConfig)
		return http.StatusCreated, recipe, err
	})
}

func updateRecipeHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "update-recipe", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cfg, err := decode[application.RecipeConfig](r)
		if err != nil {
			return 0, nil, err
		}

		recipe, err := svc.Update(ctx, param(r, "recipeID"), cfg, tenants)
		return http.StatusOK, recipe, err
	})
}

func cloneRecipeHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "clone-recipe", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decodeOptional[struct {
			CropID         string `json:"cropId"`
			OrganizationID string `json:"organizationId"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		tenant, err := tenantFor(req.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		recipe, err := svc.Clone(ctx, param(r, "recipeID"), req.CropID, tenant, auth.GetUser(ctx), tenants)
		return http.StatusCreated, recipe, err
	})
}

func deleteRecipeHandler(log zerolog.Logger, svc recipes.RecipeService) http.HandlerFunc {
	return handle(log, "delete-recipe", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.Delete(ctx, param(r, "recipeID"), tenants)
	})
}
