package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const InitialVersion string = "1.0.0"

//go:generate moq -rm -out recipeservice_mock.go . RecipeService

type RecipeService interface {
	Create(ctx context.Context, tenant, authorID string, recipe application.RecipeConfig) (models.CropRecipe, error)
	Get(ctx context.Context, recipeID string, tenants []string) (models.CropRecipe, error)
	Query(ctx context.Context, params repository.RecipeQuery, tenants []string) (types.Collection[models.CropRecipe], error)
	Update(ctx context.Context, recipeID string, recipe application.RecipeConfig, tenants []string) (models.CropRecipe, error)
	Clone(ctx context.Context, recipeID, cropID, tenant, authorID string, tenants []string) (models.CropRecipe, error)
	Delete(ctx context.Context, recipeID string, tenants []string) error

	Seed(ctx context.Context, tenant string, recipes []application.RecipeConfig) error
}

type recipeSvc struct {
	storage repository.RecipeRepository
}

func New(r repository.RecipeRepository) RecipeService {
	return &recipeSvc{
		storage: r,
	}
}

func (svc *recipeSvc) Create(ctx context.Context, tenant, authorID string, cfg application.RecipeConfig) (models.CropRecipe, error) {
	if tenant == "" {
		return models.CropRecipe{}, application.Invalid("recipe has no organization")
	}

	recipe, err := toModel(cfg)
	if err != nil {
		return models.CropRecipe{}, err
	}

	recipe.OrganizationID = tenant
	recipe.AuthorID = authorID

	err = svc.storage.Save(ctx, &recipe)
	if err != nil {
		return models.CropRecipe{}, err
	}

	return recipe, nil
}

func (svc *recipeSvc) Get(ctx context.Context, recipeID string, tenants []string) (models.CropRecipe, error) {
	return svc.storage.Get(ctx, recipeID, tenants...)
}

func (svc *recipeSvc) Query(ctx context.Context, params repository.RecipeQuery, tenants []string) (types.Collection[models.CropRecipe], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

// Update replaces the content of a recipe owned by one of the tenants. Public
// recipes owned by someone else can be cloned but not changed.
func (svc *recipeSvc) Update(ctx context.Context, recipeID string, cfg application.RecipeConfig, tenants []string) (models.CropRecipe, error) {
	current, err := svc.owned(ctx, recipeID, tenants)
	if err != nil {
		return models.CropRecipe{}, err
	}

	if cfg.Version == "" {
		cfg.Version = current.Version
	}

	recipe, err := toModel(cfg)
	if err != nil {
		return models.CropRecipe{}, err
	}

	recipe.Base = current.Base
	recipe.OrganizationID = current.OrganizationID
	recipe.AuthorID = current.AuthorID

	err = svc.storage.Save(ctx, &recipe)
	if err != nil {
		return models.CropRecipe{}, err
	}

	return recipe, nil
}

func (svc *recipeSvc) Clone(ctx context.Context, recipeID, cropID, tenant, authorID string, tenants []string) (models.CropRecipe, error) {
	source, err := svc.storage.Get(ctx, recipeID, tenants...)
	if err != nil {
		return models.CropRecipe{}, err
	}

	if cropID == "" {
		cropID = fmt.Sprintf("%s-copy-%s", source.CropID, uuid.NewString()[:8])
	}

	clone := source
	clone.Base = models.Base{}
	clone.CropID = cropID
	clone.CropName = source.CropName + " (copy)"
	clone.Version = InitialVersion
	clone.IsPublic = false
	clone.OrganizationID = tenant
	clone.AuthorID = authorID

	err = svc.storage.Save(ctx, &clone)
	if err != nil {
		return models.CropRecipe{}, err
	}

	return clone, nil
}

func (svc *recipeSvc) Delete(ctx context.Context, recipeID string, tenants []string) error {
	return svc.storage.Delete(ctx, recipeID, tenants...)
}

// Seed creates the configured recipes that do not exist yet.
func (svc *recipeSvc) Seed(ctx context.Context, tenant string, recipes []application.RecipeConfig) error {
	logger := logging.GetFromContext(ctx)

	for _, cfg := range recipes {
		_, err := svc.Create(ctx, tenant, "", cfg)
		if errors.Is(err, database.ErrConflict) {
			logger.Debug().Msgf("recipe %s already exists", cfg.CropID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to seed recipe %s: %w", cfg.CropID, err)
		}
		logger.Info().Msgf("seeded recipe %s", cfg.CropID)
	}

	return nil
}

func (svc *recipeSvc) owned(ctx context.Context, recipeID string, tenants []string) (models.CropRecipe, error) {
	recipe, err := svc.storage.Get(ctx, recipeID, tenants...)
	if err != nil {
		return models.CropRecipe{}, err
	}

	if len(tenants) > 0 && !lo.Contains(tenants, recipe.OrganizationID) {
		return models.CropRecipe{}, repository.ErrRecipeNotFound
	}

	return recipe, nil
}

// TotalDuration is the sum of all stage durations in days.
func TotalDuration(stages []types.Stage) int {
	return lo.SumBy(stages, func(s types.Stage) int { return s.Duration })
}

func ValidateStages(stages []types.Stage) error {
	if len(stages) == 0 {
		return application.Invalid("a recipe needs at least one stage")
	}

	for i, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return application.Invalid("stage %d has no name", i)
		}
		if s.Duration <= 0 {
			return application.Invalid("stage %q must last at least one day", s.Name)
		}
		if s.MaxDuration != nil && *s.MaxDuration < s.Duration {
			return application.Invalid("stage %q has a max duration shorter than its duration", s.Name)
		}
		for name, r := range map[string]*types.Range{"temperature": s.Environmental.Temperature, "humidity": s.Environmental.Humidity, "co2": s.Environmental.CO2} {
			if r != nil && r.Max != 0 && r.Min > r.Max {
				return application.Invalid("stage %q has a %s range with min above max", s.Name, name)
			}
		}
		if s.Lighting != nil && (s.Lighting.HoursPerDay < 0 || s.Lighting.HoursPerDay > 24) {
			return application.Invalid("stage %q has %v hours of light per day", s.Name, s.Lighting.HoursPerDay)
		}
		if s.Irrigation != nil && s.Irrigation.Frequency < 0 {
			return application.Invalid("stage %q has a negative irrigation frequency", s.Name)
		}
	}

	return nil
}

func toModel(cfg application.RecipeConfig) (models.CropRecipe, error) {
	if cfg.CropID == "" || cfg.CropName == "" {
		return models.CropRecipe{}, application.Invalid("cropId and cropName are required")
	}
	if !cfg.CropType.Valid() {
		return models.CropRecipe{}, application.Invalid("unknown crop type %q", cfg.CropType)
	}
	if cfg.Difficulty != "" && !cfg.Difficulty.Valid() {
		return models.CropRecipe{}, application.Invalid("unknown difficulty %q", cfg.Difficulty)
	}
	if cfg.EstimatedYieldKg != nil && *cfg.EstimatedYieldKg < 0 {
		return models.CropRecipe{}, application.Invalid("estimated yield cannot be negative")
	}

	err := ValidateStages(cfg.Stages)
	if err != nil {
		return models.CropRecipe{}, err
	}

	if cfg.Version == "" {
		cfg.Version = InitialVersion
	}

	return models.CropRecipe{
		CropID:            cfg.CropID,
		CropName:          cfg.CropName,
		CropType:          cfg.CropType,
		Description:       cfg.Description,
		Version:           cfg.Version,
		IsPublic:          cfg.IsPublic,
		Difficulty:        cfg.Difficulty,
		Stages:            models.ToJSON(cfg.Stages),
		TotalDuration:     TotalDuration(cfg.Stages),
		RequiredSensors:   models.ToJSON(cfg.RequiredSensors),
		RequiredActuators: models.ToJSON(cfg.RequiredActuators),
		EstimatedYieldKg:  cfg.EstimatedYieldKg,
		Tags:              models.ToJSON(cfg.Tags),
	}, nil
}
