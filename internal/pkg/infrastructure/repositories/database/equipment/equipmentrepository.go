package equipment

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out equipmentrepository_mock.go . EquipmentRepository

type EquipmentRepository interface {
	Get(ctx context.Context, equipmentID string, tenants ...string) (models.Equipment, error)
	GetByDeviceAndName(ctx context.Context, deviceID, name string) (models.Equipment, error)
	Query(ctx context.Context, params EquipmentQuery, tenants ...string) (types.Collection[models.Equipment], error)
	Save(ctx context.Context, equipment *models.Equipment) error
	Delete(ctx context.Context, equipmentID string, tenants ...string) error

	GetCommand(ctx context.Context, commandID string, tenants ...string) (models.ControlCommand, error)
	QueryCommands(ctx context.Context, params CommandQuery, tenants ...string) (types.Collection[models.ControlCommand], error)
	GetUnansweredCommands(ctx context.Context, before time.Time) ([]models.ControlCommand, error)
	SaveCommand(ctx context.Context, command *models.ControlCommand) error
}

type EquipmentQuery struct {
	ZoneID     string
	Type       types.EquipmentType
	Status     types.EquipmentStatus
	Mode       types.Mode
	ActiveOnly bool
	Offset     int
	Limit      int
}

type CommandQuery struct {
	EquipmentID string
	ZoneID      string
	Status      types.CommandStatus
	Source      types.CommandSource
	Offset      int
	Limit       int
}

var (
	ErrEquipmentNotFound = NotFound("equipment")
	ErrCommandNotFound   = NotFound("command")
)

type equipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(connect ConnectorFunc) (EquipmentRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &equipmentRepository{
		db: db,
	}, nil
}

func (r *equipmentRepository) Get(ctx context.Context, equipmentID string, tenants ...string) (models.Equipment, error) {
	e := models.Equipment{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("equipment", tenants...)).
		Where("equipment.id = ?", equipmentID).
		First(&e).Error

	return e, Translate(err, ErrEquipmentNotFound)
}

// GetByDeviceAndName finds the equipment a gateway device reports on under name.
func (r *equipmentRepository) GetByDeviceAndName(ctx context.Context, deviceID, name string) (models.Equipment, error) {
	e := models.Equipment{}

	err := r.db.WithContext(ctx).
		Where("equipment.device_id = ? AND equipment.name = ?", deviceID, name).
		First(&e).Error

	return e, Translate(err, ErrEquipmentNotFound)
}

func (r *equipmentRepository) Query(ctx context.Context, params EquipmentQuery, tenants ...string) (types.Collection[models.Equipment], error) {
	query := r.db.WithContext(ctx).Model(&models.Equipment{}).Scopes(Tenants("equipment", tenants...))

	if params.ZoneID != "" {
		query = query.Where("equipment.zone_id = ?", params.ZoneID)
	}
	if params.Type != "" {
		query = query.Where("equipment.type = ?", params.Type)
	}
	if params.Status != "" {
		query = query.Where("equipment.status = ?", params.Status)
	}
	if params.Mode != "" {
		query = query.Where("equipment.mode = ?", params.Mode)
	}
	if params.ActiveOnly {
		query = query.Where("equipment.is_active = ?", true)
	}

	return Paginate[models.Equipment](query, "equipment.name", params.Offset, params.Limit)
}

func (r *equipmentRepository) Save(ctx context.Context, equipment *models.Equipment) error {
	err := r.db.WithContext(ctx).Omit("Zone").Save(equipment).Error
	return Translate(err, ErrEquipmentNotFound)
}

func (r *equipmentRepository) Delete(ctx context.Context, equipmentID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("equipment", tenants...)).
		Where("equipment.id = ?", equipmentID).
		Delete(&models.Equipment{})

	if result.Error != nil {
		return Translate(result.Error, ErrEquipmentNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrEquipmentNotFound
	}

	return nil
}

func (r *equipmentRepository) GetCommand(ctx context.Context, commandID string, tenants ...string) (models.ControlCommand, error) {
	c := models.ControlCommand{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("control_commands", tenants...)).
		Where("control_commands.id = ?", commandID).
		First(&c).Error

	return c, Translate(err, ErrCommandNotFound)
}

func (r *equipmentRepository) QueryCommands(ctx context.Context, params CommandQuery, tenants ...string) (types.Collection[models.ControlCommand], error) {
	query := r.db.WithContext(ctx).Model(&models.ControlCommand{}).Scopes(Tenants("control_commands", tenants...))

	if params.EquipmentID != "" {
		query = query.Where("control_commands.equipment_id = ?", params.EquipmentID)
	}
	if params.ZoneID != "" {
		query = query.Where("control_commands.zone_id = ?", params.ZoneID)
	}
	if params.Status != "" {
		query = query.Where("control_commands.status = ?", params.Status)
	}
	if params.Source != "" {
		query = query.Where("control_commands.source = ?", params.Source)
	}

	return Paginate[models.ControlCommand](query, "control_commands.created_at desc", params.Offset, params.Limit)
}

// GetUnansweredCommands returns commands that have not reached a terminal
// status and have not changed since before.
func (r *equipmentRepository) GetUnansweredCommands(ctx context.Context, before time.Time) ([]models.ControlCommand, error) {
	commands := []models.ControlCommand{}

	err := r.db.WithContext(ctx).
		Where("control_commands.status IN ? AND control_commands.updated_at < ?",
			[]types.CommandStatus{types.CommandPending, types.CommandSent, types.CommandAcknowledged}, before).
		Order("control_commands.created_at").
		Find(&commands).Error

	return commands, Translate(err, ErrCommandNotFound)
}

func (r *equipmentRepository) SaveCommand(ctx context.Context, command *models.ControlCommand) error {
	err := r.db.WithContext(ctx).Omit("Equipment", "Zone").Save(command).Error
	return Translate(err, ErrCommandNotFound)
}
