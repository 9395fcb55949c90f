package recipes

import (
	"context"
	"fmt"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out reciperepository_mock.go . RecipeRepository

type RecipeRepository interface {
	Get(ctx context.Context, recipeID string, tenants ...string) (models.CropRecipe, error)
	Query(ctx context.Context, params RecipeQuery, tenants ...string) (types.Collection[models.CropRecipe], error)
	Save(ctx context.Context, recipe *models.CropRecipe) error
	Delete(ctx context.Context, recipeID string, tenants ...string) error
}

type RecipeQuery struct {
	CropType types.CropType
	Search   string
	Offset   int
	Limit    int
}

var ErrRecipeNotFound = NotFound("recipe")

type recipeRepository struct {
	db *gorm.DB
}

func NewRecipeRepository(connect ConnectorFunc) (RecipeRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &recipeRepository{
		db: db,
	}, nil
}

// visible limits a query to recipes owned by one of the tenants or shared publicly.
func visible(tenants ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(tenants) == 0 {
			return db
		}
		return db.Where("(crop_recipes.organization_id IN ? OR crop_recipes.is_public = ?)", tenants, true)
	}
}

func (r *recipeRepository) Get(ctx context.Context, recipeID string, tenants ...string) (models.CropRecipe, error) {
	recipe := models.CropRecipe{}

	err := r.db.WithContext(ctx).
		Scopes(visible(tenants...)).
		Where("crop_recipes.id = ?", recipeID).
		First(&recipe).Error

	return recipe, Translate(err, ErrRecipeNotFound)
}

func (r *recipeRepository) Query(ctx context.Context, params RecipeQuery, tenants ...string) (types.Collection[models.CropRecipe], error) {
	query := r.db.WithContext(ctx).Model(&models.CropRecipe{}).Scopes(visible(tenants...))

	if params.CropType != "" {
		query = query.Where("crop_recipes.crop_type = ?", params.CropType)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("(crop_recipes.crop_name LIKE ? OR crop_recipes.crop_id LIKE ?)", like, like)
	}

	return Paginate[models.CropRecipe](query, "crop_recipes.crop_name", params.Offset, params.Limit)
}

func (r *recipeRepository) Save(ctx context.Context, recipe *models.CropRecipe) error {
	err := r.db.WithContext(ctx).Save(recipe).Error
	return Translate(err, ErrRecipeNotFound)
}

// Delete removes a recipe owned by one of the tenants. Recipes still referenced
// by a batch or an execution are kept.
func (r *recipeRepository) Delete(ctx context.Context, recipeID string, tenants ...string) error {
	db := r.db.WithContext(ctx)

	recipe := models.CropRecipe{}
	err := db.Scopes(Tenants("crop_recipes", tenants...)).Where("crop_recipes.id = ?", recipeID).First(&recipe).Error
	if err != nil {
		return Translate(err, ErrRecipeNotFound)
	}

	var batches, executions int64
	db.Model(&models.Batch{}).Where("recipe_id = ?", recipeID).Count(&batches)
	db.Model(&models.RecipeExecution{}).Where("recipe_id = ?", recipeID).Count(&executions)

	if batches+executions > 0 {
		return fmt.Errorf("%w: recipe %s is used by %d batches and %d executions", ErrForeignKeyViolation, recipe.CropID, batches, executions)
	}

	err = db.Delete(&recipe).Error
	return Translate(err, ErrRecipeNotFound)
}
