package alerts

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out alertrepository_mock.go . AlertRepository

type AlertRepository interface {
	Get(ctx context.Context, alertID string, tenants ...string) (models.Alert, error)
	Query(ctx context.Context, params AlertQuery, tenants ...string) (types.Collection[models.Alert], error)
	CountUnread(ctx context.Context, tenants ...string) (int64, error)
	RaisedSince(ctx context.Context, params AlertQuery, since time.Time) (bool, error)
	Save(ctx context.Context, alert *models.Alert) error
	DeleteOlderThan(ctx context.Context, before time.Time, statuses ...types.AlertStatus) (int64, error)
}

type AlertQuery struct {
	Status      types.AlertStatus
	Type        types.AlertType
	Severity    types.Severity
	ZoneID      string
	BatchID     string
	EquipmentID string
	Offset      int
	Limit       int
}

var ErrAlertNotFound = NotFound("alert")

type alertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(connect ConnectorFunc) (AlertRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &alertRepository{
		db: db,
	}, nil
}

func (r *alertRepository) Get(ctx context.Context, alertID string, tenants ...string) (models.Alert, error) {
	a := models.Alert{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("alerts", tenants...)).
		Where("alerts.id = ?", alertID).
		First(&a).Error

	return a, Translate(err, ErrAlertNotFound)
}

func filter(params AlertQuery) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if params.Status != "" {
			query = query.Where("alerts.status = ?", params.Status)
		}
		if params.Type != "" {
			query = query.Where("alerts.type = ?", params.Type)
		}
		if params.Severity != "" {
			query = query.Where("alerts.severity = ?", params.Severity)
		}
		if params.ZoneID != "" {
			query = query.Where("alerts.zone_id = ?", params.ZoneID)
		}
		if params.BatchID != "" {
			query = query.Where("alerts.batch_id = ?", params.BatchID)
		}
		if params.EquipmentID != "" {
			query = query.Where("alerts.equipment_id = ?", params.EquipmentID)
		}
		return query
	}
}

func (r *alertRepository) Query(ctx context.Context, params AlertQuery, tenants ...string) (types.Collection[models.Alert], error) {
	query := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Scopes(Tenants("alerts", tenants...), filter(params))

	return Paginate[models.Alert](query, "alerts.created_at desc", params.Offset, params.Limit)
}

func (r *alertRepository) CountUnread(ctx context.Context, tenants ...string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Scopes(Tenants("alerts", tenants...)).
		Where("alerts.status = ?", types.AlertUnread).
		Count(&count).Error

	return count, Translate(err, ErrAlertNotFound)
}

// RaisedSince reports if an alert matching params has been created after since.
func (r *alertRepository) RaisedSince(ctx context.Context, params AlertQuery, since time.Time) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Scopes(filter(params)).
		Where("alerts.created_at > ?", since).
		Count(&count).Error

	return count > 0, Translate(err, ErrAlertNotFound)
}

func (r *alertRepository) Save(ctx context.Context, alert *models.Alert) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Batch", "Equipment").Save(alert).Error
	return Translate(err, ErrAlertNotFound)
}

func (r *alertRepository) DeleteOlderThan(ctx context.Context, before time.Time, statuses ...types.AlertStatus) (int64, error) {
	query := r.db.WithContext(ctx).Where("alerts.created_at < ?", before)
	if len(statuses) > 0 {
		query = query.Where("alerts.status IN ?", statuses)
	}

	result := query.Delete(&models.Alert{})

	return result.RowsAffected, Translate(result.Error, ErrAlertNotFound)
}
