package equipment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var tenants = []string{"default"}

func TestCreateEquipment(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	eq, err := svc.Create(ctx, models.Equipment{ZoneID: f.zone.ID, DeviceID: "gw-01", Name: "heater-1", Type: types.EquipmentHeater}, tenants)
	is.NoErr(err)
	is.Equal("default", eq.OrganizationID)
	is.True(eq.IsActive)
	is.Equal(types.EquipmentOff, eq.Status)
	is.Equal(100.0, eq.MaxValue)

	_, err = svc.Create(ctx, models.Equipment{ZoneID: f.zone.ID, DeviceID: "gw-01", Name: "pump-1", Type: types.EquipmentPump, MinValue: 10, MaxValue: 5}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.Create(ctx, models.Equipment{ZoneID: f.zone.ID, DeviceID: "gw-01", Name: "toaster", Type: "toaster"}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.Create(ctx, models.Equipment{ZoneID: "missing", DeviceID: "gw-01", Name: "fan", Type: types.EquipmentFan}, tenants)
	is.True(errors.Is(err, database.ErrNotFound))

	inactive := false
	eq, err = svc.Update(ctx, eq.ID, EquipmentFields{IsActive: &inactive}, tenants)
	is.NoErr(err)
	is.True(!eq.IsActive)
}

func TestTurnOnPublishesCommand(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "user-1", tenants)
	is.NoErr(err)
	is.Equal(types.CommandSent, cmd.Status)
	is.True(cmd.SentAt != nil)
	is.Equal(types.SourceUser, cmd.Source)
	is.Equal("user-1", *cmd.UserID)

	is.Equal(1, len(f.publisher.published))
	issued := f.publisher.published[0].(*types.CommandIssued)
	is.Equal(cmd.ID, issued.CommandID)
	is.Equal("gw-01", issued.DeviceID)
	is.Equal("fan-1", issued.EquipmentName)
	is.Equal(types.CommandTurnOn, issued.CommandType)

	fan, err := svc.Get(ctx, f.fan.ID, tenants)
	is.NoErr(err)
	is.Equal(types.EquipmentOn, fan.Status)
	is.Equal(fan.MaxValue, fan.CurrentValue)
	is.True(fan.LastCommandTime != nil)

	is.Equal(EventCommandStatus, f.feed.events[len(f.feed.events)-1])

	_, err = svc.TurnOff(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)

	fan, _ = svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(types.EquipmentOff, fan.Status)
	is.Equal(0.0, fan.CurrentValue)
}

func TestThatPublishFailureFailsTheCommand(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	f.publisher.err = errors.New("broker unavailable")

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)
	is.Equal(types.CommandFailed, cmd.Status)
	is.Equal("broker unavailable", cmd.ErrorMessage)
	is.True(cmd.CompletedAt != nil)

	fan, _ := svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(types.EquipmentError, fan.Status)
}

func TestThatAnEarlyGatewayReplyIsKept(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	f.publisher.onPublish = func(ctx context.Context, message messaging.TopicMessage) {
		issued := message.(*types.CommandIssued)

		stored, err := svc.GetCommand(ctx, issued.CommandID, tenants)
		is.NoErr(err)
		is.Equal(types.CommandSent, stored.Status)

		_, err = svc.UpdateCommandStatus(ctx, issued.CommandID, types.CommandCompleted, "", nil)
		is.NoErr(err)
	}

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)
	is.Equal(types.CommandCompleted, cmd.Status)
	is.True(cmd.SentAt != nil)
	is.True(cmd.CompletedAt != nil)

	stored, err := svc.GetCommand(ctx, cmd.ID, tenants)
	is.NoErr(err)
	is.Equal(types.CommandCompleted, stored.Status)
	is.True(stored.CompletedAt != nil)

	now := application.Now
	defer func() { application.Now = now }()
	application.Now = func() time.Time { return now().Add(10 * time.Minute) }

	is.NoErr(svc.TimeoutCommands(ctx))
	is.Equal(0, len(f.alerts.raised))
}

func TestThatCommandsAreValidated(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	_, err := svc.SetValue(ctx, f.fan.ID, 101, "", tenants)
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.IssueCommand(ctx, f.fan.ID, Command{Type: types.CommandSetValue}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.IssueCommand(ctx, f.fan.ID, Command{Type: types.CommandSetMode}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	_, err = svc.IssueCommand(ctx, f.fan.ID, Command{Type: "explode"}, tenants)
	is.True(errors.Is(err, application.ErrValidation))

	inactive := false
	_, err = svc.Update(ctx, f.fan.ID, EquipmentFields{IsActive: &inactive}, tenants)
	is.NoErr(err)

	_, err = svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.True(errors.Is(err, application.ErrValidation))

	is.Equal(0, len(f.publisher.published))
}

func TestSetValueAndMode(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	_, err := svc.SetValue(ctx, f.fan.ID, 40, "", tenants)
	is.NoErr(err)

	fan, _ := svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(40.0, fan.CurrentValue)
	is.Equal(40.0, *fan.TargetValue)
	is.Equal(types.EquipmentOn, fan.Status)

	_, err = svc.SetMode(ctx, f.fan.ID, types.ModeManual, "", tenants)
	is.NoErr(err)

	fan, _ = svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(types.ModeManual, fan.Mode)

	history, err := svc.CommandHistory(ctx, repository.CommandQuery{EquipmentID: f.fan.ID}, tenants)
	is.NoErr(err)
	is.Equal(uint64(2), history.TotalCount)
}

func TestCommandStatusOnlyMovesForward(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)

	cmd, err = svc.UpdateCommandStatus(ctx, cmd.ID, types.CommandAcknowledged, "", tenants)
	is.NoErr(err)
	is.True(cmd.AcknowledgedAt != nil)

	_, err = svc.UpdateCommandStatus(ctx, cmd.ID, types.CommandSent, "", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	cmd, err = svc.UpdateCommandStatus(ctx, cmd.ID, types.CommandCompleted, "", tenants)
	is.NoErr(err)
	is.True(cmd.CompletedAt != nil)

	_, err = svc.UpdateCommandStatus(ctx, cmd.ID, types.CommandFailed, "late", tenants)
	is.True(errors.Is(err, application.ErrInvalidTransition))

	_, err = svc.UpdateCommandStatus(ctx, cmd.ID, "bogus", "", tenants)
	is.True(errors.Is(err, application.ErrValidation))
}

func TestThatPendingMayComplete(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	pending := models.ControlCommand{
		OrganizationID: "default", EquipmentID: f.fan.ID, ZoneID: f.zone.ID,
		CommandType: types.CommandTurnOn, Source: types.SourceAutomation, Status: types.CommandPending,
	}
	is.NoErr(f.equipment.SaveCommand(ctx, &pending))

	cmd, err := svc.UpdateCommandStatus(ctx, pending.ID, types.CommandCompleted, "", tenants)
	is.NoErr(err)
	is.Equal(types.CommandCompleted, cmd.Status)
}

func TestTimeoutCommands(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)

	is.NoErr(svc.TimeoutCommands(ctx))
	is.Equal(0, len(f.alerts.raised))

	now := application.Now
	defer func() { application.Now = now }()
	application.Now = func() time.Time { return now().Add(10 * time.Minute) }

	is.NoErr(svc.TimeoutCommands(ctx))

	cmd, err = svc.GetCommand(ctx, cmd.ID, tenants)
	is.NoErr(err)
	is.Equal(types.CommandTimeout, cmd.Status)

	is.Equal(1, len(f.alerts.raised))
	is.Equal(types.AlertEquipment, f.alerts.raised[0].Type)
	is.Equal(types.SeverityHigh, f.alerts.raised[0].Severity)
	is.Equal(f.fan.ID, *f.alerts.raised[0].EquipmentID)

	// timed out commands are final
	is.NoErr(svc.TimeoutCommands(ctx))
	is.Equal(1, len(f.alerts.raised))
}

func TestHandleEquipmentStatus(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	observed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := svc.HandleEquipmentStatus(ctx, types.EquipmentStatusReport{
		DeviceID: "gw-01",
		Equipment: map[string]types.EquipmentState{
			"fan-1":   {State: types.EquipmentOn, Value: application.Ptr(55.0)},
			"unknown": {State: types.EquipmentOn},
		},
		Timestamp: observed,
	})
	is.NoErr(err)

	fan, _ := svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(types.EquipmentOn, fan.Status)
	is.Equal(55.0, fan.CurrentValue)
	is.True(fan.LastStatusUpdate.Equal(observed))
}

func TestCommandStatusHandler(t *testing.T) {
	is, ctx, svc, f := testSetup(t)

	cmd, err := svc.TurnOn(ctx, f.fan.ID, "", tenants)
	is.NoErr(err)

	body, _ := json.Marshal(types.CommandStatusReport{CommandID: cmd.ID, Status: types.CommandFailed, Error: "relay stuck"})

	handler := CommandStatusHandler(svc)
	handler(ctx, amqp.Delivery{Body: body, RoutingKey: types.CommandStatusTopic}, zerolog.Nop())

	cmd, err = svc.GetCommand(ctx, cmd.ID, tenants)
	is.NoErr(err)
	is.Equal(types.CommandFailed, cmd.Status)
	is.Equal("relay stuck", cmd.ErrorMessage)

	fan, _ := svc.Get(ctx, f.fan.ID, tenants)
	is.Equal(types.EquipmentError, fan.Status)
}

const equipmentFile string = `tenant;zoneNumber;zoneName;deviceId;name;type;controlType;pin;minValue;maxValue
default;GR1;Grow room 1;gw-01;fan-1;fan;pwm;D1;0;100
default;GR2;Grow room 2;gw-02;humidifier-1;humidifier;relay;D2;;
default;GR2;Grow room 2;gw-02;heater-1;heater;;D3;0;40
other;GR9;Not ours;gw-09;fan-9;fan;relay;D1;0;100`

func TestSeed(t *testing.T) {
	is, ctx, _, f := testSetup(t)

	err := Seed(ctx, f.zones, f.equipment, io.NopCloser(strings.NewReader(equipmentFile)), tenants)
	is.NoErr(err)

	gr2, err := f.zones.GetByNumber(ctx, "GR2", tenants...)
	is.NoErr(err)
	is.Equal("Grow room 2", gr2.Name)

	result, err := f.equipment.Query(ctx, repository.EquipmentQuery{ZoneID: gr2.ID}, tenants...)
	is.NoErr(err)
	is.Equal(uint64(2), result.TotalCount)

	heater, err := f.equipment.GetByDeviceAndName(ctx, "gw-02", "heater-1")
	is.NoErr(err)
	is.Equal(types.ControlRelay, heater.ControlType)
	is.Equal(40.0, heater.MaxValue)

	_, err = f.zones.GetByNumber(ctx, "GR9")
	is.True(errors.Is(err, database.ErrNotFound))

	// seeding twice does not duplicate anything
	err = Seed(ctx, f.zones, f.equipment, io.NopCloser(strings.NewReader(equipmentFile)), tenants)
	is.NoErr(err)

	result, _ = f.equipment.Query(ctx, repository.EquipmentQuery{}, tenants...)
	is.Equal(uint64(3), result.TotalCount)
}

type publisherMock struct {
	published []messaging.TopicMessage
	err       error
	onPublish func(ctx context.Context, message messaging.TopicMessage)
}

func (p *publisherMock) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, message)
	if p.onPublish != nil {
		p.onPublish(ctx, message)
	}
	return nil
}

type alertsMock struct {
	raised []models.Alert
}

func (a *alertsMock) Raise(ctx context.Context, alert models.Alert) (models.Alert, error) {
	a.raised = append(a.raised, alert)
	return alert, nil
}

func (a *alertsMock) RaisedSince(ctx context.Context, alert models.Alert, since time.Time) (bool, error) {
	return false, nil
}

type broadcasterMock struct {
	events []string
}

func (b *broadcasterMock) Publish(event string, data any) error {
	b.events = append(b.events, event)
	return nil
}

type fixture struct {
	zones     zones.ZoneRepository
	equipment repository.EquipmentRepository
	publisher *publisherMock
	alerts    *alertsMock
	feed      *broadcasterMock
	zone      models.Zone
	fan       models.Equipment
}

func testSetup(t *testing.T) (*is.I, context.Context, EquipmentService, fixture) {
	is := is.New(t)
	ctx := context.Background()
	connect := database.NewSQLiteConnector(ctx)

	zr, err := zones.NewZoneRepository(connect)
	is.NoErr(err)
	er, err := repository.NewEquipmentRepository(connect)
	is.NoErr(err)

	f := fixture{
		zones:     zr,
		equipment: er,
		publisher: &publisherMock{},
		alerts:    &alertsMock{},
		feed:      &broadcasterMock{},
	}

	f.zone = models.Zone{OrganizationID: "default", Name: "Grow room 1", ZoneNumber: "GR1", Status: types.ZoneIdle}
	is.NoErr(zr.Save(ctx, &f.zone))

	f.fan = models.Equipment{
		OrganizationID: "default", ZoneID: f.zone.ID, DeviceID: "gw-01", Name: "fan-1",
		Type: types.EquipmentFan, ControlType: types.ControlPWM, Status: types.EquipmentOff, Mode: types.ModeAuto,
		MinValue: 0, MaxValue: 100, IsActive: true,
	}
	is.NoErr(er.Save(ctx, &f.fan))

	return is, ctx, New(er, zr, f.publisher, f.alerts, f.feed, 0), f
}
