package labor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/labor"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/matryer/is"
)

var tenants = []string{"default"}

func TestDeriveWorkLog(t *testing.T) {
	is := is.New(t)

	in := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	out := in.Add(8*time.Hour + 30*time.Minute)

	log := models.WorkLog{ClockIn: in, ClockOut: &out, BreakMinutes: 30, HourlyRate: application.Ptr(20.0), Status: types.WorkLogActive}
	DeriveWorkLog(&log)

	is.Equal(8.0, *log.TotalHours)
	is.Equal(160.0, *log.TotalCost)
	is.Equal(types.WorkLogCompleted, log.Status)
	is.Equal(DefaultOvertimeMultiplier, log.OvertimeMultiplier)

	log.IsOvertime = true
	DeriveWorkLog(&log)
	is.Equal(240.0, *log.TotalCost)
}

func TestThatHoursAreNeverNegative(t *testing.T) {
	is := is.New(t)

	in := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	out := in.Add(20 * time.Minute)

	log := models.WorkLog{ClockIn: in, ClockOut: &out, BreakMinutes: 45}
	DeriveWorkLog(&log)

	is.Equal(0.0, *log.TotalHours)
	is.True(log.TotalCost == nil)
}

func TestClockInAndOut(t *testing.T) {
	is, ctx, svc := testSetup(t)

	in := application.Now().Add(-2 * time.Hour)

	log, err := svc.ClockIn(ctx, models.WorkLog{OrganizationID: "default", EmployeeID: "emp-1", ClockIn: in, HourlyRate: application.Ptr(15.0)})
	is.NoErr(err)
	is.Equal(types.WorkLogActive, log.Status)
	is.Equal(types.WorkRegular, log.WorkType)

	_, err = svc.ClockIn(ctx, models.WorkLog{OrganizationID: "default", EmployeeID: "emp-1"})
	is.True(errors.Is(err, database.ErrConflict))

	out := in.Add(90 * time.Minute)
	log, err = svc.ClockOut(ctx, log.ID, &out, nil, tenants)
	is.NoErr(err)
	is.Equal(types.WorkLogCompleted, log.Status)
	is.Equal(1.5, *log.TotalHours)
	is.Equal(22.5, *log.TotalCost)

	_, err = svc.ClockOut(ctx, log.ID, nil, nil, tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	log, err = svc.Approve(ctx, log.ID, tenants)
	is.NoErr(err)
	is.Equal(types.WorkLogApproved, log.Status)

	// the employee can clock in again once the previous log is closed
	_, err = svc.ClockIn(ctx, models.WorkLog{OrganizationID: "default", EmployeeID: "emp-1"})
	is.NoErr(err)
}

func TestManualEntry(t *testing.T) {
	is, ctx, svc := testSetup(t)

	in := time.Date(2025, 5, 2, 22, 0, 0, 0, time.UTC)
	out := in.Add(4 * time.Hour)

	_, err := svc.CreateEntry(ctx, models.WorkLog{OrganizationID: "default", EmployeeID: "emp-2", ClockIn: in})
	is.True(errors.Is(err, application.ErrValidation))

	early := in.Add(-time.Hour)
	_, err = svc.CreateEntry(ctx, models.WorkLog{OrganizationID: "default", EmployeeID: "emp-2", ClockIn: in, ClockOut: &early})
	is.True(errors.Is(err, application.ErrValidation))

	log, err := svc.CreateEntry(ctx, models.WorkLog{
		OrganizationID: "default", EmployeeID: "emp-2", ClockIn: in, ClockOut: &out,
		WorkType: types.WorkOvertime, Category: types.WorkHarvesting, HourlyRate: application.Ptr(10.0), OvertimeMultiplier: 2,
	})
	is.NoErr(err)
	is.True(log.IsOvertime)
	is.Equal(80.0, *log.TotalCost)
	is.Equal(types.WorkLogCompleted, log.Status)

	result, err := svc.Query(ctx, repository.WorkLogQuery{EmployeeID: "emp-2"}, tenants)
	is.NoErr(err)
	is.Equal(uint64(1), result.TotalCount)
}

func testSetup(t *testing.T) (*is.I, context.Context, LaborService) {
	is := is.New(t)
	ctx := context.Background()

	r, err := repository.NewWorkLogRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, New(r)
}
