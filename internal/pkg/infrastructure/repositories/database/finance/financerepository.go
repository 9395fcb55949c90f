package finance

import (
	"context"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out financerepository_mock.go . FinanceRepository

type FinanceRepository interface {
	GetCost(ctx context.Context, costID string, tenants ...string) (models.CostEntry, error)
	QueryCosts(ctx context.Context, params CostQuery, tenants ...string) (types.Collection[models.CostEntry], error)
	CostBreakdown(ctx context.Context, params CostQuery, tenants ...string) ([]CategoryTotal, error)
	SaveCost(ctx context.Context, cost *models.CostEntry) error
	DeleteCost(ctx context.Context, costID string, tenants ...string) error

	GetRevenue(ctx context.Context, revenueID string, tenants ...string) (models.Revenue, error)
	QueryRevenues(ctx context.Context, params RevenueQuery, tenants ...string) (types.Collection[models.Revenue], error)
	SaveRevenue(ctx context.Context, revenue *models.Revenue) error
	DeleteRevenue(ctx context.Context, revenueID string, tenants ...string) error
}

type CostQuery struct {
	Category types.CostCategory
	ZoneID   string
	BatchID  string
	From     *time.Time
	To       *time.Time
	Offset   int
	Limit    int
}

type RevenueQuery struct {
	BatchID       string
	HarvestID     string
	RevenueType   types.RevenueType
	PaymentStatus types.PaymentStatus
	From          *time.Time
	To            *time.Time
	Offset        int
	Limit         int
}

type CategoryTotal struct {
	Category types.CostCategory `json:"category"`
	Count    int                `json:"count"`
	Total    float64            `json:"total"`
}

var (
	ErrCostNotFound    = NotFound("cost entry")
	ErrRevenueNotFound = NotFound("revenue")
)

type financeRepository struct {
	db *gorm.DB
}

func NewFinanceRepository(connect ConnectorFunc) (FinanceRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &financeRepository{
		db: db,
	}, nil
}

func (r *financeRepository) GetCost(ctx context.Context, costID string, tenants ...string) (models.CostEntry, error) {
	c := models.CostEntry{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("cost_entries", tenants...)).
		Where("cost_entries.id = ?", costID).
		First(&c).Error

	return c, Translate(err, ErrCostNotFound)
}

func (r *financeRepository) costs(ctx context.Context, params CostQuery, tenants ...string) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.CostEntry{}).
		Scopes(Tenants("cost_entries", tenants...), Between("cost_entries.cost_date", params.From, params.To))

	if params.Category != "" {
		query = query.Where("cost_entries.category = ?", params.Category)
	}
	if params.ZoneID != "" {
		query = query.Where("cost_entries.zone_id = ?", params.ZoneID)
	}
	if params.BatchID != "" {
		query = query.Where("cost_entries.batch_id = ?", params.BatchID)
	}

	return query
}

func (r *financeRepository) QueryCosts(ctx context.Context, params CostQuery, tenants ...string) (types.Collection[models.CostEntry], error) {
	return Paginate[models.CostEntry](r.costs(ctx, params, tenants...), "cost_entries.cost_date desc", params.Offset, params.Limit)
}

func (r *financeRepository) CostBreakdown(ctx context.Context, params CostQuery, tenants ...string) ([]CategoryTotal, error) {
	breakdown := []CategoryTotal{}

	rows, err := r.costs(ctx, params, tenants...).
		Select("cost_entries.category, COUNT(*), COALESCE(SUM(cost_entries.amount), 0)").
		Group("cost_entries.category").
		Order("cost_entries.category").
		Rows()
	if err != nil {
		return nil, Translate(err, ErrCostNotFound)
	}
	defer rows.Close()

	for rows.Next() {
		ct := CategoryTotal{}
		if err = rows.Scan(&ct.Category, &ct.Count, &ct.Total); err != nil {
			return nil, Translate(err, ErrCostNotFound)
		}
		breakdown = append(breakdown, ct)
	}

	return breakdown, Translate(rows.Err(), ErrCostNotFound)
}

func (r *financeRepository) SaveCost(ctx context.Context, cost *models.CostEntry) error {
	err := r.db.WithContext(ctx).Omit("Zone", "Batch").Save(cost).Error
	return Translate(err, ErrCostNotFound)
}

func (r *financeRepository) DeleteCost(ctx context.Context, costID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("cost_entries", tenants...)).
		Where("cost_entries.id = ?", costID).
		Delete(&models.CostEntry{})

	if result.Error != nil {
		return Translate(result.Error, ErrCostNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrCostNotFound
	}

	return nil
}

func (r *financeRepository) GetRevenue(ctx context.Context, revenueID string, tenants ...string) (models.Revenue, error) {
	rev := models.Revenue{}

	err := r.db.WithContext(ctx).
		Scopes(Tenants("revenues", tenants...)).
		Where("revenues.id = ?", revenueID).
		First(&rev).Error

	return rev, Translate(err, ErrRevenueNotFound)
}

func (r *financeRepository) QueryRevenues(ctx context.Context, params RevenueQuery, tenants ...string) (types.Collection[models.Revenue], error) {
	query := r.db.WithContext(ctx).
		Model(&models.Revenue{}).
		Scopes(Tenants("revenues", tenants...), Between("revenues.sale_date", params.From, params.To))

	if params.BatchID != "" {
		query = query.Where("revenues.batch_id = ?", params.BatchID)
	}
	if params.HarvestID != "" {
		query = query.Where("revenues.harvest_id = ?", params.HarvestID)
	}
	if params.RevenueType != "" {
		query = query.Where("revenues.revenue_type = ?", params.RevenueType)
	}
	if params.PaymentStatus != "" {
		query = query.Where("revenues.payment_status = ?", params.PaymentStatus)
	}

	return Paginate[models.Revenue](query, "revenues.sale_date desc", params.Offset, params.Limit)
}

func (r *financeRepository) SaveRevenue(ctx context.Context, revenue *models.Revenue) error {
	err := r.db.WithContext(ctx).Omit("Batch", "Harvest").Save(revenue).Error
	return Translate(err, ErrRevenueNotFound)
}

func (r *financeRepository) DeleteRevenue(ctx context.Context, revenueID string, tenants ...string) error {
	result := r.db.WithContext(ctx).
		Scopes(Tenants("revenues", tenants...)).
		Where("revenues.id = ?", revenueID).
		Delete(&models.Revenue{})

	if result.Error != nil {
		return Translate(result.Error, ErrRevenueNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrRevenueNotFound
	}

	return nil
}
