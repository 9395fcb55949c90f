package profitability

import (
	"context"
	"sort"
	"time"

	. "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out profitabilityrepository_mock.go . ProfitabilityRepository

// ProfitabilityRepository aggregates the finance, labor and harvest tables.
// It never writes.
type ProfitabilityRepository interface {
	Totals(ctx context.Context, scope Scope, tenants ...string) (Totals, error)
	RevenueBreakdown(ctx context.Context, scope Scope, tenants ...string) ([]RevenueTotal, error)
	Entries(ctx context.Context, scope Scope, tenants ...string) ([]Entry, error)
}

// Scope narrows an aggregate to a batch, a zone and a time range. Zero values
// leave that dimension open.
type Scope struct {
	BatchID string
	ZoneID  string
	From    *time.Time
	To      *time.Time
}

type Totals struct {
	Revenue      float64
	RevenueCount int
	Costs        float64
	CostCount    int
	Labor        float64
	LaborHours   float64
	YieldKg      float64
	HarvestCount int
}

type RevenueTotal struct {
	RevenueType types.RevenueType `json:"revenueType"`
	Count       int               `json:"count"`
	Total       float64           `json:"total"`
}

type EntryKind string

const (
	EntryRevenue EntryKind = "revenue"
	EntryCost    EntryKind = "cost"
	EntryLabor   EntryKind = "labor"
)

// Entry is a single dated amount used to build trends.
type Entry struct {
	Kind   EntryKind
	Date   time.Time
	Amount float64
}

var ErrProfitabilityNotFound = NotFound("profitability")

type profitabilityRepository struct {
	db *gorm.DB
}

func NewProfitabilityRepository(connect ConnectorFunc) (ProfitabilityRepository, error) {
	db, err := Connect(connect)
	if err != nil {
		return nil, err
	}

	return &profitabilityRepository{
		db: db,
	}, nil
}

func (r *profitabilityRepository) revenues(ctx context.Context, scope Scope, tenants ...string) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Revenue{}).
		Scopes(Tenants("revenues", tenants...), Between("revenues.sale_date", scope.From, scope.To)).
		Where("revenues.payment_status <> ?", types.PaymentCancelled)

	if scope.BatchID != "" {
		query = query.Where("revenues.batch_id = ?", scope.BatchID)
	}
	if scope.ZoneID != "" {
		query = query.Where("revenues.batch_id IN (?)", r.db.Model(&models.Batch{}).Select("id").Where("zone_id = ?", scope.ZoneID))
	}

	return query
}

func (r *profitabilityRepository) costs(ctx context.Context, scope Scope, tenants ...string) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.CostEntry{}).
		Scopes(Tenants("cost_entries", tenants...), Between("cost_entries.cost_date", scope.From, scope.To))

	if scope.BatchID != "" {
		query = query.Where("cost_entries.batch_id = ?", scope.BatchID)
	}
	if scope.ZoneID != "" {
		query = query.Where("cost_entries.zone_id = ?", scope.ZoneID)
	}

	return query
}

func (r *profitabilityRepository) labor(ctx context.Context, scope Scope, tenants ...string) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.WorkLog{}).
		Scopes(Tenants("work_logs", tenants...), Between("work_logs.clock_in", scope.From, scope.To)).
		Where("work_logs.clock_out IS NOT NULL")

	if scope.BatchID != "" {
		query = query.Where("work_logs.batch_id = ?", scope.BatchID)
	}
	if scope.ZoneID != "" {
		query = query.Where("work_logs.zone_id = ?", scope.ZoneID)
	}

	return query
}

func (r *profitabilityRepository) harvests(ctx context.Context, scope Scope, tenants ...string) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Scopes(Tenants("harvests", tenants...), Between("harvests.harvest_date", scope.From, scope.To)).
		Where("harvests.status = ?", types.HarvestCompleted)

	if scope.BatchID != "" {
		query = query.Where("harvests.batch_id = ?", scope.BatchID)
	}
	if scope.ZoneID != "" {
		query = query.Where("harvests.zone_id = ?", scope.ZoneID)
	}

	return query
}

func (r *profitabilityRepository) Totals(ctx context.Context, scope Scope, tenants ...string) (Totals, error) {
	t := Totals{}

	row := r.revenues(ctx, scope, tenants...).
		Select("COUNT(*), COALESCE(SUM(revenues.final_amount), 0)").
		Row()
	if err := row.Scan(&t.RevenueCount, &t.Revenue); err != nil {
		return Totals{}, Translate(err, ErrProfitabilityNotFound)
	}

	row = r.costs(ctx, scope, tenants...).
		Select("COUNT(*), COALESCE(SUM(cost_entries.amount), 0)").
		Row()
	if err := row.Scan(&t.CostCount, &t.Costs); err != nil {
		return Totals{}, Translate(err, ErrProfitabilityNotFound)
	}

	row = r.labor(ctx, scope, tenants...).
		Select("COALESCE(SUM(work_logs.total_cost), 0), COALESCE(SUM(work_logs.total_hours), 0)").
		Row()
	if err := row.Scan(&t.Labor, &t.LaborHours); err != nil {
		return Totals{}, Translate(err, ErrProfitabilityNotFound)
	}

	row = r.harvests(ctx, scope, tenants...).
		Select("COUNT(*), COALESCE(SUM(harvests.total_weight_kg), 0)").
		Row()
	if err := row.Scan(&t.HarvestCount, &t.YieldKg); err != nil {
		return Totals{}, Translate(err, ErrProfitabilityNotFound)
	}

	return t, nil
}

func (r *profitabilityRepository) RevenueBreakdown(ctx context.Context, scope Scope, tenants ...string) ([]RevenueTotal, error) {
	breakdown := []RevenueTotal{}

	rows, err := r.revenues(ctx, scope, tenants...).
		Select("revenues.revenue_type, COUNT(*), COALESCE(SUM(revenues.final_amount), 0)").
		Group("revenues.revenue_type").
		Order("revenues.revenue_type").
		Rows()
	if err != nil {
		return nil, Translate(err, ErrProfitabilityNotFound)
	}
	defer rows.Close()

	for rows.Next() {
		rt := RevenueTotal{}
		if err = rows.Scan(&rt.RevenueType, &rt.Count, &rt.Total); err != nil {
			return nil, Translate(err, ErrProfitabilityNotFound)
		}
		breakdown = append(breakdown, rt)
	}

	return breakdown, Translate(rows.Err(), ErrProfitabilityNotFound)
}

// Entries returns every revenue, cost and labor amount in scope ordered by
// date. Bucketing is left to the caller so that it works the same on every
// database.
func (r *profitabilityRepository) Entries(ctx context.Context, scope Scope, tenants ...string) ([]Entry, error) {
	entries := []Entry{}

	revenues := []models.Revenue{}
	if err := r.revenues(ctx, scope, tenants...).Find(&revenues).Error; err != nil {
		return nil, Translate(err, ErrProfitabilityNotFound)
	}
	for _, rev := range revenues {
		entries = append(entries, Entry{Kind: EntryRevenue, Date: rev.SaleDate, Amount: rev.FinalAmount})
	}

	costs := []models.CostEntry{}
	if err := r.costs(ctx, scope, tenants...).Find(&costs).Error; err != nil {
		return nil, Translate(err, ErrProfitabilityNotFound)
	}
	for _, c := range costs {
		entries = append(entries, Entry{Kind: EntryCost, Date: c.CostDate, Amount: c.Amount})
	}

	logs := []models.WorkLog{}
	if err := r.labor(ctx, scope, tenants...).Where("work_logs.total_cost IS NOT NULL").Find(&logs).Error; err != nil {
		return nil, Translate(err, ErrProfitabilityNotFound)
	}
	for _, wl := range logs {
		entries = append(entries, Entry{Kind: EntryLabor, Date: wl.ClockIn, Amount: *wl.TotalCost})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	return entries, nil
}
