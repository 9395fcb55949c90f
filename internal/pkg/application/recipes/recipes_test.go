package recipes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestCreateRecipe(t *testing.T) {
	is, ctx, svc := testSetup(t)

	recipe, err := svc.Create(ctx, "default", "user-1", oyster())
	is.NoErr(err)
	is.Equal(InitialVersion, recipe.Version)
	is.Equal(35, recipe.TotalDuration)

	stages, err := recipe.StageList()
	is.NoErr(err)
	is.Equal(2, len(stages))
	is.Equal("fruiting", stages[1].Name)
}

func TestThatStagesAreValidated(t *testing.T) {
	is, ctx, svc := testSetup(t)

	cfg := oyster()
	cfg.Stages = nil
	_, err := svc.Create(ctx, "default", "", cfg)
	is.True(errors.Is(err, application.ErrValidation))

	cfg = oyster()
	cfg.Stages[0].Duration = 0
	_, err = svc.Create(ctx, "default", "", cfg)
	is.True(errors.Is(err, application.ErrValidation))

	cfg = oyster()
	cfg.Stages[0].Environmental.Humidity = &types.Range{Min: 95, Max: 80}
	_, err = svc.Create(ctx, "default", "", cfg)
	is.True(errors.Is(err, application.ErrValidation))

	cfg = oyster()
	cfg.CropType = "fungus"
	_, err = svc.Create(ctx, "default", "", cfg)
	is.True(errors.Is(err, application.ErrValidation))
}

func TestCloneAndUpdateRecipe(t *testing.T) {
	is, ctx, svc := testSetup(t)

	cfg := oyster()
	cfg.IsPublic = true
	cfg.Version = "2.1.0"

	source, err := svc.Create(ctx, "default", "user-1", cfg)
	is.NoErr(err)

	clone, err := svc.Clone(ctx, source.ID, "", "other", "user-2", []string{"other"})
	is.NoErr(err)
	is.True(clone.ID != source.ID)
	is.True(strings.HasPrefix(clone.CropID, "oyster-copy-"))
	is.Equal(InitialVersion, clone.Version)
	is.Equal(false, clone.IsPublic)
	is.Equal("other", clone.OrganizationID)

	// public recipes are visible to other tenants but cannot be changed by them
	_, err = svc.Update(ctx, source.ID, cfg, []string{"other"})
	is.True(errors.Is(err, database.ErrNotFound))

	cfg.CropName = "Pearl oyster"
	updated, err := svc.Update(ctx, clone.ID, application.RecipeConfig{
		CropID: clone.CropID, CropName: "My oyster", CropType: types.CropMushroom, Stages: cfg.Stages[:1],
	}, []string{"other"})
	is.NoErr(err)
	is.Equal("My oyster", updated.CropName)
	is.Equal(21, updated.TotalDuration)
	is.Equal(InitialVersion, updated.Version)

	result, err := svc.Query(ctx, repository.RecipeQuery{}, []string{"other"})
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)
}

func TestSeedSkipsExistingRecipes(t *testing.T) {
	is, ctx, svc := testSetup(t)

	is.NoErr(svc.Seed(ctx, "default", []application.RecipeConfig{oyster()}))
	is.NoErr(svc.Seed(ctx, "default", []application.RecipeConfig{oyster()}))

	result, err := svc.Query(ctx, repository.RecipeQuery{}, []string{"default"})
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
}

func oyster() application.RecipeConfig {
	return application.RecipeConfig{
		CropID:   "oyster",
		CropName: "Oyster mushroom",
		CropType: types.CropMushroom,
		Stages: []types.Stage{
			{
				Name:     "incubation",
				Duration: 21,
				Environmental: types.Environmental{
					Temperature: &types.Range{Min: 22, Max: 26, Optimal: 24},
					CO2:         &types.Range{Min: 5000, Max: 20000, Optimal: 10000},
				},
			},
			{
				Name:             "fruiting",
				Duration:         14,
				RequiresApproval: true,
				Environmental: types.Environmental{
					Humidity: &types.Range{Min: 85, Max: 95, Optimal: 90},
					CO2:      &types.Range{Min: 400, Max: 800, Optimal: 600},
				},
				Lighting: &types.Lighting{HoursPerDay: 12},
			},
		},
	}
}

func testSetup(t *testing.T) (*is.I, context.Context, RecipeService) {
	is := is.New(t)
	ctx := context.Background()

	r, err := repository.NewRecipeRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, New(r)
}
