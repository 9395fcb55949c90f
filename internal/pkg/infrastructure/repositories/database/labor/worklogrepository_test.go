package labor

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

func TestGetActiveForEmployee(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewWorkLogRepository(NewSQLiteConnector(ctx))
	is.NoErr(err)

	clockIn := time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)
	clockOut := clockIn.Add(8 * time.Hour)

	is.NoErr(r.Save(ctx, &models.WorkLog{OrganizationID: "default", EmployeeID: "emp-1", ClockIn: clockIn.AddDate(0, 0, -1), ClockOut: &clockOut, Status: types.WorkLogCompleted}))

	_, err = r.GetActiveForEmployee(ctx, "emp-1", "default")
	is.True(errors.Is(err, ErrWorkLogNotFound))

	active := &models.WorkLog{OrganizationID: "default", EmployeeID: "emp-1", ClockIn: clockIn, OvertimeMultiplier: 1.5}
	is.NoErr(r.Save(ctx, active))
	is.Equal(types.WorkLogActive, active.Status)

	fromDb, err := r.GetActiveForEmployee(ctx, "emp-1", "default")
	is.NoErr(err)
	is.Equal(active.ID, fromDb.ID)

	result, err := r.Query(ctx, WorkLogQuery{EmployeeID: "emp-1"}, "default")
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)
	is.Equal(active.ID, result.Data[0].ID)
}
