package quality

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

func TestQueryChecks(t *testing.T) {
	is, ctx, r := testSetup(t)

	is.NoErr(r.SaveCheck(ctx, newCheck(types.CheckHarvest, types.Pass, 1)))
	is.NoErr(r.SaveCheck(ctx, newCheck(types.CheckHarvest, types.Fail, 2)))
	is.NoErr(r.SaveCheck(ctx, newCheck(types.CheckPackaging, types.Pass, 3)))

	result, err := r.QueryChecks(ctx, CheckQuery{CheckType: types.CheckHarvest}, "default")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)
	is.Equal(types.Fail, result.Data[0].PassStatus)
	is.Equal(types.CheckSubmitted, result.Data[0].Status)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	result, err = r.QueryChecks(ctx, CheckQuery{PassStatus: types.Pass, From: &from}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)

	result, err = r.QueryChecks(ctx, CheckQuery{}, "other")
	is.NoErr(err)
	is.Equal(uint64(0), result.TotalCount)
}

func TestDefectsUpdateTheDefectCount(t *testing.T) {
	is, ctx, r := testSetup(t)

	check := newCheck(types.CheckHarvest, types.ConditionalPass, 1)
	is.NoErr(r.SaveCheck(ctx, check))

	first := newDefect(check.ID, types.DefectMajor)
	is.NoErr(r.AddDefect(ctx, first))
	is.NoErr(r.AddDefect(ctx, newDefect(check.ID, types.DefectMinor)))

	fromDb, err := r.GetCheck(ctx, check.ID, "default")
	is.NoErr(err)
	is.Equal(2, fromDb.DefectCount)
	is.Equal(2, len(fromDb.Defects))
	is.Equal(types.ActionPending, fromDb.Defects[0].ActionStatus)

	defects, err := r.QueryDefects(ctx, DefectQuery{Severity: types.DefectMajor}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), defects.TotalCount)

	is.NoErr(r.DeleteDefect(ctx, check.ID, first.ID, "default"))
	err = r.DeleteDefect(ctx, check.ID, first.ID, "default")
	is.True(errors.Is(err, ErrDefectNotFound))

	fromDb, err = r.GetCheck(ctx, check.ID)
	is.NoErr(err)
	is.Equal(1, fromDb.DefectCount)

	is.NoErr(r.DeleteCheck(ctx, check.ID, "default"))
	defects, err = r.QueryDefects(ctx, DefectQuery{CheckID: check.ID})
	is.NoErr(err)
	is.Equal(uint64(0), defects.TotalCount)
}

func TestStandards(t *testing.T) {
	is, ctx, r := testSetup(t)

	code, err := r.NextStandardCode(ctx, "default")
	is.NoErr(err)
	is.Equal("QS-0001", code)

	standard := &models.QualityStandard{OrganizationID: "default", Name: "Fresh oyster", Code: code, Category: types.StandardProductQuality}
	is.NoErr(r.SaveStandard(ctx, standard))
	is.Equal("1.0", standard.Version)
	is.Equal(types.StandardDraft, standard.Status)

	code, err = r.NextStandardCode(ctx, "default")
	is.NoErr(err)
	is.Equal("QS-0002", code)

	duplicate := &models.QualityStandard{OrganizationID: "default", Name: "Copy", Code: "QS-0001", Category: types.StandardFoodSafety}
	err = r.SaveStandard(ctx, duplicate)
	is.True(errors.Is(err, ErrConflict))

	result, err := r.QueryStandards(ctx, StandardQuery{Search: "oyster"}, "default")
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)

	_, err = r.GetStandard(ctx, standard.ID, "other")
	is.True(errors.Is(err, ErrStandardNotFound))
}

func newCheck(checkType types.CheckType, status types.PassStatus, day int) *models.QualityCheck {
	return &models.QualityCheck{
		OrganizationID: "default",
		CheckType:      checkType,
		CheckDate:      time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		OverallGrade:   types.InspectionA,
		PassStatus:     status,
		InspectorName:  "Inspector",
	}
}

func newDefect(checkID string, severity types.DefectSeverity) *models.Defect {
	return &models.Defect{
		OrganizationID: "default",
		QualityCheckID: checkID,
		DefectType:     "discoloration",
		Severity:       severity,
		Category:       types.DefectVisual,
		Description:    "yellow caps",
		Marketability:  types.Downgrade,
	}
}

func testSetup(t *testing.T) (*is.I, context.Context, QualityRepository) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewQualityRepository(NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, r
}
