package recipes

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

func TestThatPublicRecipesAreVisibleToOtherTenants(t *testing.T) {
	is, ctx, r, _ := testSetup(t)

	private := newRecipe("default", "oyster-private", false)
	public := newRecipe("default", "oyster-public", true)
	is.NoErr(r.Save(ctx, private))
	is.NoErr(r.Save(ctx, public))

	result, err := r.Query(ctx, RecipeQuery{}, "other")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
	is.Equal("oyster-public", result.Data[0].CropID)

	_, err = r.Get(ctx, private.ID, "other")
	is.True(errors.Is(err, ErrNotFound))

	fromDb, err := r.Get(ctx, private.ID, "default")
	is.NoErr(err)

	stages, err := fromDb.StageList()
	is.NoErr(err)
	is.Equal(2, len(stages))
}

func TestThatCropIDMustBeUnique(t *testing.T) {
	is, ctx, r, _ := testSetup(t)

	is.NoErr(r.Save(ctx, newRecipe("default", "shiitake", false)))
	err := r.Save(ctx, newRecipe("default", "shiitake", false))
	is.True(errors.Is(err, ErrConflict))
}

func TestThatReferencedRecipeCannotBeDeleted(t *testing.T) {
	is, ctx, r, conn := testSetup(t)

	recipe := newRecipe("default", "lions-mane", false)
	is.NoErr(r.Save(ctx, recipe))

	db, err := Connect(conn)
	is.NoErr(err)

	zone := &models.Zone{OrganizationID: "default", Name: "a"}
	is.NoErr(db.Create(zone).Error)
	is.NoErr(db.Create(&models.Batch{
		OrganizationID: "default",
		BatchNumber:    "A-20250101-001",
		ZoneID:         zone.ID,
		RecipeID:       recipe.ID,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}).Error)

	err = r.Delete(ctx, recipe.ID, "default")
	is.True(errors.Is(err, ErrForeignKeyViolation))

	unused := newRecipe("default", "enoki", false)
	is.NoErr(r.Save(ctx, unused))
	is.NoErr(r.Delete(ctx, unused.ID, "default"))
}

func newRecipe(tenant, cropID string, public bool) *models.CropRecipe {
	return &models.CropRecipe{
		OrganizationID: tenant,
		CropID:         cropID,
		CropName:       cropID,
		CropType:       types.CropMushroom,
		Version:        "1.0.0",
		IsPublic:       public,
		Stages: models.ToJSON([]types.Stage{
			{Name: "colonization", Duration: 14},
			{Name: "fruiting", Duration: 7, RequiresApproval: true},
		}),
		TotalDuration: 21,
	}
}

func testSetup(t *testing.T) (*is.I, context.Context, RecipeRepository, ConnectorFunc) {
	is := is.New(t)
	ctx := context.Background()
	conn := NewSQLiteConnector(ctx)

	r, err := NewRecipeRepository(conn)
	is.NoErr(err)

	return is, ctx, r, conn
}
