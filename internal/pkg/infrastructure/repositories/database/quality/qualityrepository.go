package quality

import (
	"context"
	"fmt"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out qualityrepository_mock.go . QualityRepository

type QualityRepository interface {
	GetCheck(ctx context.Context, checkID string, tenants ...string) (models.QualityCheck, error)
	QueryChecks(ctx context.Context, params CheckQuery, tenants ...string) (types.Collection[models.QualityCheck], error)
	SaveCheck(ctx context.Context, check *models.QualityCheck) error
	DeleteCheck(ctx context.Context, checkID string, tenants ...string) error

	GetDefect(ctx context.Context, defectID string, tenants ...string) (models.Defect, error)
	QueryDefects(ctx context.Context, params DefectQuery, tenants ...string) (types.Collection[models.Defect], error)
	AddDefect(ctx context.Context, defect *models.Defect) error
	SaveDefect(ctx context.Context, defect *models.Defect) error
	DeleteDefect(ctx context.Context, checkID, defectID string, tenants ...string) error

	GetStandard(ctx context.Context, standardID string, tenants ...string) (models.QualityStandard, error)
	QueryStandards(ctx context.Context, params StandardQuery, tenants ...string) (types.Collection[models.QualityStandard], error)
	SaveStandard(ctx context.Context, standard *models.QualityStandard) error
	NextStandardCode(ctx context.Context, tenant string) (string, error)
}

type CheckQuery struct {
	CheckType  types.CheckType
	PassStatus types.PassStatus
	Status     types.CheckStatus
	Grade      types.InspectionGrade
	ZoneID     string
	BatchID    string
	HarvestID  string
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

type DefectQuery struct {
	CheckID      string
	Severity     types.DefectSeverity
	Category     types.DefectCategory
	ActionStatus types.ActionStatus
	From         *time.Time
	To           *time.Time
	Offset       int
	Limit        int
}

type StandardQuery struct {
	Category  types.StandardCategory
	Status    types.StandardStatus
	CropType  types.CropType
	Mandatory *bool
	Search    string
	Offset    int
	Limit     int
}

var (
	ErrCheckNotFound    = NotFound("quality check")
	ErrDefectNotFound   = NotFound("defect")
	ErrStandardNotFound = NotFound("quality standard")
)

type qualityRepository struct {
	db *gorm.DB
}

func NewQualityRepository(connect ConnectorFunc) (QualityRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &qualityRepository{
		db: db,
	}, nil
}

func (r *qualityRepository) GetCheck(ctx context.Context, checkID string, tenants ...string) (models.QualityCheck, error) {
	check := models.QualityCheck{}

	err := r.db.WithContext(ctx).
		Preload("Defects", func(db *gorm.DB) *gorm.DB { return db.Order("defects.created_at") }).
		Scopes(Tenants("quality_checks", tenants...)).
		Where("quality_checks.id = ?", checkID).
		First(&check).Error

	return check, Translate(err, ErrCheckNotFound)
}

func (r *qualityRepository) QueryChecks(ctx context.Context, params CheckQuery, tenants ...string) (types.Collection[models.QualityCheck], error) {
	query := r.db.WithContext(ctx).
		Model(&models.QualityCheck{}).
		Scopes(Tenants("quality_checks", tenants...), Between("quality_checks.check_date", params.From, params.To))

	if params.CheckType != "" {
		query = query.Where("quality_checks.check_type = ?", params.CheckType)
	}
	if params.PassStatus != "" {
		query = query.Where("quality_checks.pass_status = ?", params.PassStatus)
	}
	if params.Status != "" {
		query = query.Where("quality_checks.status = ?", params.Status)
	}
	if params.Grade != "" {
		query = query.Where("quality_checks.overall_grade = ?", params.Grade)
	}
	if params.ZoneID != "" {
		query = query.Where("quality_checks.zone_id = ?", params.ZoneID)
	}
	if params.BatchID != "" {
		query = query.Where("quality_checks.batch_id = ?", params.BatchID)
	}
	if params.HarvestID != "" {
		query = query.Where("quality_checks.harvest_id = ?", params.HarvestID)
	}

	return Paginate[models.QualityCheck](query, "quality_checks.check_date desc", params.Offset, params.Limit)
}

func (r *qualityRepository) SaveCheck(ctx context.Context, check *models.QualityCheck) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Batch", "Harvest", "Defects").Save(check).Error
	return Translate(err, ErrCheckNotFound)
}

func (r *qualityRepository) DeleteCheck(ctx context.Context, checkID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("quality_checks", tenants...)).
		Where("quality_checks.id = ?", checkID).
		Delete(&models.QualityCheck{})

	if result.Error != nil {
		return Translate(result.Error, ErrCheckNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrCheckNotFound
	}

	return nil
}

func (r *qualityRepository) GetDefect(ctx context.Context, defectID string, tenants ...string) (models.Defect, error) {
	defect := models.Defect{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("defects", tenants...)).
		Where("defects.id = ?", defectID).
		First(&defect).Error

	return defect, Translate(err, ErrDefectNotFound)
}

func (r *qualityRepository) QueryDefects(ctx context.Context, params DefectQuery, tenants ...string) (types.Collection[models.Defect], error) {
	query := r.db.WithContext(ctx).
		Model(&models.Defect{}).
		Scopes(Tenants("defects", tenants...), Between("defects.created_at", params.From, params.To))

	if params.CheckID != "" {
		query = query.Where("defects.quality_check_id = ?", params.CheckID)
	}
	if params.Severity != "" {
		query = query.Where("defects.severity = ?", params.Severity)
	}
	if params.Category != "" {
		query = query.Where("defects.category = ?", params.Category)
	}
	if params.ActionStatus != "" {
		query = query.Where("defects.action_status = ?", params.ActionStatus)
	}

	return Paginate[models.Defect](query, "defects.created_at desc", params.Offset, params.Limit)
}

// AddDefect stores the defect and increments the defect count of its check.
func (r *qualityRepository) AddDefect(ctx context.Context, defect *models.Defect) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		err := db.Create(defect).Error
		if err != nil {
			return Translate(err, ErrDefectNotFound)
		}

		result := db.Model(&models.QualityCheck{}).
			Where("id = ?", defect.QualityCheckID).
			UpdateColumn("defect_count", gorm.Expr("defect_count + 1"))
		if result.Error != nil {
			return Translate(result.Error, ErrCheckNotFound)
		}
		if result.RowsAffected == 0 {
			return ErrCheckNotFound
		}

		return nil
	})
}

func (r *qualityRepository) SaveDefect(ctx context.Context, defect *models.Defect) error {
	err := r.db.WithContext(ctx).Save(defect).Error
	return Translate(err, ErrDefectNotFound)
}

// DeleteDefect removes the defect and decrements the defect count of its check.
func (r *qualityRepository) DeleteDefect(ctx context.Context, checkID, defectID string, tenants ...string) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		result := db.Scopes(Tenants("defects", tenants...)).
			Where("defects.id = ? AND defects.quality_check_id = ?", defectID, checkID).
			Delete(&models.Defect{})
		if result.Error != nil {
			return Translate(result.Error, ErrDefectNotFound)
		}
		if result.RowsAffected == 0 {
			return ErrDefectNotFound
		}

		err := db.Model(&models.QualityCheck{}).
			Where("id = ? AND defect_count > 0", checkID).
			UpdateColumn("defect_count", gorm.Expr("defect_count - 1")).Error

		return Translate(err, ErrCheckNotFound)
	})
}

func (r *qualityRepository) GetStandard(ctx context.Context, standardID string, tenants ...string) (models.QualityStandard, error) {
	standard := models.QualityStandard{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("quality_standards", tenants...)).
		Where("quality_standards.id = ?", standardID).
		First(&standard).Error

	return standard, Translate(err, ErrStandardNotFound)
}

func (r *qualityRepository) QueryStandards(ctx context.Context, params StandardQuery, tenants ...string) (types.Collection[models.QualityStandard], error) {
	query := r.db.WithContext(ctx).
		Model(&models.QualityStandard{}).
		Scopes(Tenants("quality_standards", tenants...))

	if params.Category != "" {
		query = query.Where("quality_standards.category = ?", params.Category)
	}
	if params.Status != "" {
		query = query.Where("quality_standards.status = ?", params.Status)
	}
	if params.CropType != "" {
		query = query.Where("quality_standards.crop_type = ?", params.CropType)
	}
	if params.Mandatory != nil {
		query = query.Where("quality_standards.is_mandatory = ?", *params.Mandatory)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("(quality_standards.name LIKE ? OR quality_standards.code LIKE ?)", like, like)
	}

	return Paginate[models.QualityStandard](query, "quality_standards.code", params.Offset, params.Limit)
}

func (r *qualityRepository) SaveStandard(ctx context.Context, standard *models.QualityStandard) error {
	err := r.db.WithContext(ctx).Save(standard).Error
	return Translate(err, ErrStandardNotFound)
}

// NextStandardCode returns the next free QS-NNNN code for a tenant. Standards
// are archived rather than deleted, so the count only grows.
func (r *qualityRepository) NextStandardCode(ctx context.Context, tenant string) (string, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&models.QualityStandard{}).
		Scopes(Tenants("quality_standards", tenant)).
		Count(&count).Error
	if err != nil {
		return "", Translate(err, ErrStandardNotFound)
	}

	return fmt.Sprintf("QS-%04d", count+1), nil
}
