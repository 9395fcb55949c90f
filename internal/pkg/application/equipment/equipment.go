package equipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("farm-operations/equipment")

const (
	EventCommandStatus   string = "command.status"
	EventEquipmentStatus string = "equipment.status"

	DefaultCommandTimeout = 5 * time.Minute
)

//go:generate moq -rm -out equipmentservice_mock.go . EquipmentService

type EquipmentService interface {
	Create(ctx context.Context, equipment models.Equipment, tenants []string) (models.Equipment, error)
	Get(ctx context.Context, equipmentID string, tenants []string) (models.Equipment, error)
	Query(ctx context.Context, params repository.EquipmentQuery, tenants []string) (types.Collection[models.Equipment], error)
	Update(ctx context.Context, equipmentID string, fields EquipmentFields, tenants []string) (models.Equipment, error)
	Delete(ctx context.Context, equipmentID string, tenants []string) error

	IssueCommand(ctx context.Context, equipmentID string, cmd Command, tenants []string) (models.ControlCommand, error)
	TurnOn(ctx context.Context, equipmentID, userID string, tenants []string) (models.ControlCommand, error)
	TurnOff(ctx context.Context, equipmentID, userID string, tenants []string) (models.ControlCommand, error)
	SetValue(ctx context.Context, equipmentID string, value int, userID string, tenants []string) (models.ControlCommand, error)
	SetMode(ctx context.Context, equipmentID string, mode types.Mode, userID string, tenants []string) (models.ControlCommand, error)

	GetCommand(ctx context.Context, commandID string, tenants []string) (models.ControlCommand, error)
	UpdateCommandStatus(ctx context.Context, commandID string, status types.CommandStatus, errorMessage string, tenants []string) (models.ControlCommand, error)
	CommandHistory(ctx context.Context, params repository.CommandQuery, tenants []string) (types.Collection[models.ControlCommand], error)

	HandleEquipmentStatus(ctx context.Context, report types.EquipmentStatusReport) error
	TimeoutCommands(ctx context.Context) error
}

// Command is a request to change the state of one piece of equipment.
type Command struct {
	Type     types.CommandType   `json:"commandType"`
	Value    *int                `json:"value,omitempty"`
	Mode     *types.Mode         `json:"mode,omitempty"`
	Source   types.CommandSource `json:"source,omitempty"`
	UserID   *string             `json:"userId,omitempty"`
	Metadata map[string]any      `json:"metadata,omitempty"`
}

// EquipmentFields holds the user editable parts of a piece of equipment. Nil fields are left unchanged.
type EquipmentFields struct {
	Name        *string              `json:"name,omitempty"`
	DeviceID    *string              `json:"deviceId,omitempty"`
	Pin         *string              `json:"pin,omitempty"`
	Type        *types.EquipmentType `json:"type,omitempty"`
	ControlType *types.ControlType   `json:"controlType,omitempty"`
	Mode        *types.Mode          `json:"mode,omitempty"`
	MinValue    *float64             `json:"minValue,omitempty"`
	MaxValue    *float64             `json:"maxValue,omitempty"`
	TargetValue *float64             `json:"targetValue,omitempty"`
	IsActive    *bool                `json:"isActive,omitempty"`
}

type equipmentSvc struct {
	storage   repository.EquipmentRepository
	zones     zones.ZoneRepository
	publisher application.Publisher
	alerts    application.AlertRaiser
	feed      application.Broadcaster
	timeout   time.Duration
}

func New(r repository.EquipmentRepository, z zones.ZoneRepository, p application.Publisher, a application.AlertRaiser, feed application.Broadcaster, commandTimeout time.Duration) EquipmentService {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}

	return &equipmentSvc{
		storage:   r,
		zones:     z,
		publisher: p,
		alerts:    a,
		feed:      feed,
		timeout:   commandTimeout,
	}
}

func validate(eq models.Equipment) error {
	switch {
	case eq.Name == "":
		return application.Invalid("equipment name is required")
	case eq.DeviceID == "":
		return application.Invalid("equipment must belong to a gateway device")
	case !eq.Type.Valid():
		return application.Invalid("unknown equipment type %q", eq.Type)
	case !eq.ControlType.Valid():
		return application.Invalid("unknown control type %q", eq.ControlType)
	case !eq.Status.Valid():
		return application.Invalid("unknown equipment status %q", eq.Status)
	case !eq.Mode.Valid():
		return application.Invalid("unknown mode %q", eq.Mode)
	case eq.MinValue >= eq.MaxValue:
		return application.Invalid("min value %v must be below max value %v", eq.MinValue, eq.MaxValue)
	case eq.CurrentValue < eq.MinValue || eq.CurrentValue > eq.MaxValue:
		return application.Invalid("current value %v is outside [%v, %v]", eq.CurrentValue, eq.MinValue, eq.MaxValue)
	case eq.TargetValue != nil && (*eq.TargetValue < eq.MinValue || *eq.TargetValue > eq.MaxValue):
		return application.Invalid("target value %v is outside [%v, %v]", *eq.TargetValue, eq.MinValue, eq.MaxValue)
	}
	return nil
}

func (svc *equipmentSvc) Create(ctx context.Context, eq models.Equipment, tenants []string) (models.Equipment, error) {
	zone, err := svc.zones.Get(ctx, eq.ZoneID, tenants...)
	if err != nil {
		return models.Equipment{}, err
	}

	if eq.ControlType == "" {
		eq.ControlType = types.ControlRelay
	}
	if eq.Status == "" {
		eq.Status = types.EquipmentOff
	}
	if eq.Mode == "" {
		eq.Mode = types.ModeAuto
	}
	if eq.MinValue == 0 && eq.MaxValue == 0 {
		eq.MaxValue = 100
	}

	eq.ID = ""
	eq.OrganizationID = zone.OrganizationID
	eq.IsActive = true

	err = validate(eq)
	if err != nil {
		return models.Equipment{}, err
	}

	err = svc.storage.Save(ctx, &eq)
	if err != nil {
		return models.Equipment{}, err
	}

	return eq, nil
}

func (svc *equipmentSvc) Get(ctx context.Context, equipmentID string, tenants []string) (models.Equipment, error) {
	return svc.storage.Get(ctx, equipmentID, tenants...)
}

func (svc *equipmentSvc) Query(ctx context.Context, params repository.EquipmentQuery, tenants []string) (types.Collection[models.Equipment], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

func (svc *equipmentSvc) Update(ctx context.Context, equipmentID string, fields EquipmentFields, tenants []string) (models.Equipment, error) {
	eq, err := svc.storage.Get(ctx, equipmentID, tenants...)
	if err != nil {
		return models.Equipment{}, err
	}

	if fields.Name != nil {
		eq.Name = *fields.Name
	}
	if fields.DeviceID != nil {
		eq.DeviceID = *fields.DeviceID
	}
	if fields.Pin != nil {
		eq.Pin = *fields.Pin
	}
	if fields.Type != nil {
		eq.Type = *fields.Type
	}
	if fields.ControlType != nil {
		eq.ControlType = *fields.ControlType
	}
	if fields.Mode != nil {
		eq.Mode = *fields.Mode
	}
	if fields.MinValue != nil {
		eq.MinValue = *fields.MinValue
	}
	if fields.MaxValue != nil {
		eq.MaxValue = *fields.MaxValue
	}
	if fields.TargetValue != nil {
		eq.TargetValue = fields.TargetValue
	}
	if fields.IsActive != nil {
		eq.IsActive = *fields.IsActive
	}

	err = validate(eq)
	if err != nil {
		return models.Equipment{}, err
	}

	err = svc.storage.Save(ctx, &eq)
	if err != nil {
		return models.Equipment{}, err
	}

	return eq, nil
}

func (svc *equipmentSvc) Delete(ctx context.Context, equipmentID string, tenants []string) error {
	return svc.storage.Delete(ctx, equipmentID, tenants...)
}

func validateCommand(eq models.Equipment, cmd Command) error {
	if !eq.IsActive {
		return application.Invalid("equipment %s is inactive", eq.Name)
	}
	if !cmd.Type.Valid() {
		return application.Invalid("unknown command type %q", cmd.Type)
	}
	if !cmd.Source.Valid() {
		return application.Invalid("unknown command source %q", cmd.Source)
	}

	switch cmd.Type {
	case types.CommandSetValue:
		if cmd.Value == nil {
			return application.Invalid("set_value requires a value")
		}
		if v := float64(*cmd.Value); v < eq.MinValue || v > eq.MaxValue {
			return application.Invalid("value %d is outside [%v, %v]", *cmd.Value, eq.MinValue, eq.MaxValue)
		}
	case types.CommandSetMode:
		if cmd.Mode == nil || !cmd.Mode.Valid() {
			return application.Invalid("set_mode requires a valid mode")
		}
	case types.CommandTurnOn, types.CommandTurnOff, types.CommandStop, types.CommandStart, types.CommandReset:
	}

	return nil
}

// IssueCommand stores a pending command and publishes it to the gateway. The
// returned command is sent, or failed if it could not be published.
func (svc *equipmentSvc) IssueCommand(ctx context.Context, equipmentID string, cmd Command, tenants []string) (models.ControlCommand, error) {
	var err error
	ctx, span := tracer.Start(ctx, "issue-command")
	defer func() { span.End() }()

	if cmd.Source == "" {
		cmd.Source = types.SourceUser
	}

	eq, err := svc.storage.Get(ctx, equipmentID, tenants...)
	if err != nil {
		return models.ControlCommand{}, err
	}

	err = validateCommand(eq, cmd)
	if err != nil {
		return models.ControlCommand{}, err
	}

	command := models.ControlCommand{
		OrganizationID: eq.OrganizationID,
		EquipmentID:    eq.ID,
		ZoneID:         eq.ZoneID,
		UserID:         cmd.UserID,
		CommandType:    cmd.Type,
		Value:          cmd.Value,
		Mode:           cmd.Mode,
		Source:         cmd.Source,
		Status:         types.CommandPending,
	}
	if cmd.Metadata != nil {
		command.Metadata = models.ToJSON(cmd.Metadata)
	}

	err = svc.storage.SaveCommand(ctx, &command)
	if err != nil {
		return models.ControlCommand{}, err
	}

	metrics.CommandsIssued.WithLabelValues(string(command.CommandType), string(command.Source)).Inc()

	logger := logging.GetFromContext(ctx).With().Str("commandID", command.ID).Str("equipmentID", eq.ID).Logger()
	logger.Info().Msgf("issued %s to %s", command.CommandType, eq.Name)

	msg := &types.CommandIssued{
		CommandID:     command.ID,
		EquipmentID:   eq.ID,
		DeviceID:      eq.DeviceID,
		EquipmentName: eq.Name,
		EquipmentType: eq.Type,
		Pin:           eq.Pin,
		CommandType:   command.CommandType,
		Value:         command.Value,
		Mode:          command.Mode,
		Source:        command.Source,
		Tenant:        eq.OrganizationID,
		Timestamp:     application.Now(),
	}

	// the gateway may answer before PublishOnTopic returns, so sent is stored first
	command, err = svc.transition(ctx, command, types.CommandSent, "")
	if err != nil {
		return models.ControlCommand{}, err
	}

	perr := svc.publisher.PublishOnTopic(ctx, msg)

	command, err = svc.storage.GetCommand(ctx, command.ID)
	if err != nil {
		return models.ControlCommand{}, err
	}

	if perr != nil {
		logger.Error().Err(perr).Msg("failed to publish command")
		if command.Status.CanTransitionTo(types.CommandFailed) {
			return svc.transition(ctx, command, types.CommandFailed, perr.Error())
		}
	}

	return command, nil
}

func (svc *equipmentSvc) TurnOn(ctx context.Context, equipmentID, userID string, tenants []string) (models.ControlCommand, error) {
	return svc.IssueCommand(ctx, equipmentID, Command{Type: types.CommandTurnOn, UserID: user(userID)}, tenants)
}

func (svc *equipmentSvc) TurnOff(ctx context.Context, equipmentID, userID string, tenants []string) (models.ControlCommand, error) {
	return svc.IssueCommand(ctx, equipmentID, Command{Type: types.CommandTurnOff, UserID: user(userID)}, tenants)
}

func (svc *equipmentSvc) SetValue(ctx context.Context, equipmentID string, value int, userID string, tenants []string) (models.ControlCommand, error) {
	return svc.IssueCommand(ctx, equipmentID, Command{Type: types.CommandSetValue, Value: &value, UserID: user(userID)}, tenants)
}

func (svc *equipmentSvc) SetMode(ctx context.Context, equipmentID string, mode types.Mode, userID string, tenants []string) (models.ControlCommand, error) {
	return svc.IssueCommand(ctx, equipmentID, Command{Type: types.CommandSetMode, Mode: &mode, UserID: user(userID)}, tenants)
}

func user(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

func (svc *equipmentSvc) GetCommand(ctx context.Context, commandID string, tenants []string) (models.ControlCommand, error) {
	return svc.storage.GetCommand(ctx, commandID, tenants...)
}

func (svc *equipmentSvc) CommandHistory(ctx context.Context, params repository.CommandQuery, tenants []string) (types.Collection[models.ControlCommand], error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	return svc.storage.QueryCommands(ctx, params, tenants...)
}

func (svc *equipmentSvc) UpdateCommandStatus(ctx context.Context, commandID string, status types.CommandStatus, errorMessage string, tenants []string) (models.ControlCommand, error) {
	command, err := svc.storage.GetCommand(ctx, commandID, tenants...)
	if err != nil {
		return models.ControlCommand{}, err
	}

	return svc.transition(ctx, command, status, errorMessage)
}

// transition moves a command forward to status and lets the equipment reflect it.
func (svc *equipmentSvc) transition(ctx context.Context, command models.ControlCommand, status types.CommandStatus, errorMessage string) (models.ControlCommand, error) {
	if !status.Valid() {
		return models.ControlCommand{}, application.Invalid("unknown command status %q", status)
	}
	if !command.Status.CanTransitionTo(status) {
		return models.ControlCommand{}, application.Transition("command", command.Status, status)
	}

	now := application.Now()

	switch status {
	case types.CommandSent:
		command.SentAt = &now
	case types.CommandAcknowledged:
		command.AcknowledgedAt = &now
	case types.CommandCompleted, types.CommandFailed, types.CommandTimeout:
		command.CompletedAt = &now
	case types.CommandPending:
	}

	command.Status = status
	if errorMessage != "" {
		command.ErrorMessage = errorMessage
	}

	err := svc.storage.SaveCommand(ctx, &command)
	if err != nil {
		return models.ControlCommand{}, err
	}

	metrics.CommandStatus.WithLabelValues(string(status)).Inc()

	if status == types.CommandSent || status == types.CommandFailed {
		err = svc.reflect(ctx, command, now)
		if err != nil {
			logger := logging.GetFromContext(ctx)
			logger.Error().Err(err).Str("commandID", command.ID).Msg("failed to update equipment state")
		}
	}

	svc.broadcast(ctx, EventCommandStatus, command)

	return command, nil
}

// reflect updates the equipment optimistically from a sent command, or marks it
// as erroneous when the command failed.
func (svc *equipmentSvc) reflect(ctx context.Context, command models.ControlCommand, now time.Time) error {
	eq, err := svc.storage.Get(ctx, command.EquipmentID)
	if err != nil {
		return err
	}

	if command.Status == types.CommandFailed {
		eq.Status = types.EquipmentError
		return svc.storage.Save(ctx, &eq)
	}

	switch command.CommandType {
	case types.CommandTurnOn, types.CommandStart:
		eq.Status = types.EquipmentOn
		eq.CurrentValue = eq.MaxValue
	case types.CommandTurnOff, types.CommandStop:
		eq.Status = types.EquipmentOff
		eq.CurrentValue = 0
		if eq.MinValue > 0 {
			eq.CurrentValue = eq.MinValue
		}
	case types.CommandSetValue:
		if command.Value != nil {
			v := float64(*command.Value)
			eq.CurrentValue = v
			eq.TargetValue = &v
			if v > 0 {
				eq.Status = types.EquipmentOn
			} else {
				eq.Status = types.EquipmentOff
			}
		}
	case types.CommandSetMode:
		if command.Mode != nil {
			eq.Mode = *command.Mode
		}
	case types.CommandReset:
		if eq.Status == types.EquipmentError {
			eq.Status = types.EquipmentOff
		}
	}

	eq.LastCommandTime = &now

	return svc.storage.Save(ctx, &eq)
}

// HandleEquipmentStatus applies a state report from a gateway device to the
// equipment it names. Unknown equipment is ignored.
func (svc *equipmentSvc) HandleEquipmentStatus(ctx context.Context, report types.EquipmentStatusReport) error {
	logger := logging.GetFromContext(ctx)

	observed := report.Timestamp
	if observed.IsZero() {
		observed = application.Now()
	}

	var errs []error

	for name, state := range report.Equipment {
		eq, err := svc.storage.GetByDeviceAndName(ctx, report.DeviceID, name)
		if errors.Is(err, database.ErrNotFound) {
			logger.Debug().Msgf("device %s reported unknown equipment %s", report.DeviceID, name)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if state.State.Valid() {
			eq.Status = state.State
		}
		if state.Value != nil {
			eq.CurrentValue = *state.Value
		}
		eq.LastStatusUpdate = &observed

		err = svc.storage.Save(ctx, &eq)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		svc.broadcast(ctx, EventEquipmentStatus, eq)
	}

	return errors.Join(errs...)
}

// TimeoutCommands moves commands that the gateway has not finished within the
// command timeout to timeout and raises an equipment alert for each.
func (svc *equipmentSvc) TimeoutCommands(ctx context.Context) error {
	logger := logging.GetFromContext(ctx)

	unanswered, err := svc.storage.GetUnansweredCommands(ctx, application.Now().Add(-svc.timeout))
	if err != nil {
		return err
	}

	for _, command := range unanswered {
		reason := fmt.Sprintf("no response from gateway within %s", svc.timeout)

		timedOut, err := svc.transition(ctx, command, types.CommandTimeout, reason)
		if err != nil {
			logger.Error().Err(err).Str("commandID", command.ID).Msg("failed to time out command")
			continue
		}
		command = timedOut

		title := fmt.Sprintf("Command %s timed out", command.CommandType)
		if eq, err := svc.storage.Get(ctx, command.EquipmentID); err == nil {
			title = fmt.Sprintf("%s did not respond to %s", eq.Name, command.CommandType)
		}

		_, err = svc.alerts.Raise(ctx, models.Alert{
			OrganizationID: command.OrganizationID,
			Type:           types.AlertEquipment,
			Severity:       types.SeverityHigh,
			Title:          title,
			Message:        reason,
			ZoneID:         application.Ptr(command.ZoneID),
			EquipmentID:    application.Ptr(command.EquipmentID),
			Metadata:       models.ToJSON(map[string]any{"commandId": command.ID}),
		})
		if err != nil {
			logger.Error().Err(err).Str("commandID", command.ID).Msg("failed to raise timeout alert")
		}
	}

	if len(unanswered) > 0 {
		logger.Info().Msgf("timed out %d commands", len(unanswered))
	}

	return nil
}

func (svc *equipmentSvc) broadcast(ctx context.Context, event string, data any) {
	if svc.feed == nil {
		return
	}
	if err := svc.feed.Publish(event, data); err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msgf("failed to publish %s on live feed", event)
	}
}
