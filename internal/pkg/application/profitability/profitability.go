package profitability

import (
	"context"
	"sort"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/profitability"
)

//go:generate moq -rm -out profitabilityservice_mock.go . ProfitabilityService

type ProfitabilityService interface {
	Overview(ctx context.Context, scope repository.Scope, tenants []string) (Summary, error)
	ROI(ctx context.Context, scope repository.Scope, tenants []string) (ROI, error)
	Margins(ctx context.Context, scope repository.Scope, tenants []string) (Margins, error)
	Batch(ctx context.Context, batchID string, tenants []string) (BatchProfitability, error)
	Compare(ctx context.Context, batchIDs []string, tenants []string) (Comparison, error)
	Trends(ctx context.Context, scope repository.Scope, period Period, tenants []string) ([]TrendPoint, error)
	RevenueBreakdown(ctx context.Context, scope repository.Scope, tenants []string) (RevenueBreakdown, error)
}

// MaxCompared is the largest number of batches Compare accepts.
const MaxCompared int = 20

type Summary struct {
	Revenue       float64  `json:"revenue"`
	Costs         float64  `json:"costs"`
	Labor         float64  `json:"labor"`
	TotalExpenses float64  `json:"totalExpenses"`
	GrossProfit   float64  `json:"grossProfit"`
	ProfitMargin  float64  `json:"profitMargin"`
	ROI           float64  `json:"roi"`
	YieldKg       float64  `json:"yieldKg"`
	RevenuePerKg  *float64 `json:"revenuePerKg,omitempty"`
	CostPerKg     *float64 `json:"costPerKg,omitempty"`
	ProfitPerKg   *float64 `json:"profitPerKg,omitempty"`
	LaborHours    float64  `json:"laborHours"`
	SalesCount    int      `json:"salesCount"`
	CostCount     int      `json:"costCount"`
	HarvestCount  int      `json:"harvestCount"`
}

type ROI struct {
	Investment float64 `json:"investment"`
	Return     float64 `json:"return"`
	NetProfit  float64 `json:"netProfit"`
	ROI        float64 `json:"roi"`
	Profitable bool    `json:"profitable"`
}

// Margins separates the margin before labor from the margin after it.
type Margins struct {
	Revenue           float64 `json:"revenue"`
	ContributionCosts float64 `json:"contributionCosts"`
	Contribution      float64 `json:"contribution"`
	ContributionRatio float64 `json:"contributionMargin"`
	Labor             float64 `json:"labor"`
	NetProfit         float64 `json:"netProfit"`
	NetMargin         float64 `json:"netMargin"`
}

type BatchProfitability struct {
	BatchID     string  `json:"batchId"`
	BatchNumber string  `json:"batchNumber"`
	CropName    string  `json:"cropName"`
	Status      string  `json:"status"`
	Summary     Summary `json:"summary"`
}

type Comparison struct {
	Batches []BatchProfitability `json:"batches"`
	Best    string               `json:"bestBatchId,omitempty"`
	Worst   string               `json:"worstBatchId,omitempty"`
	Average Summary              `json:"average"`
}

type TrendPoint struct {
	Period       string  `json:"period"`
	Revenue      float64 `json:"revenue"`
	Costs        float64 `json:"costs"`
	Labor        float64 `json:"labor"`
	Profit       float64 `json:"profit"`
	ProfitMargin float64 `json:"profitMargin"`
}

type RevenueShare struct {
	RevenueType string  `json:"revenueType"`
	Count       int     `json:"count"`
	Total       float64 `json:"total"`
	Percentage  float64 `json:"percentage"`
}

type RevenueBreakdown struct {
	Total float64        `json:"total"`
	Types []RevenueShare `json:"types"`
}

type Period string

const (
	Daily   Period = "day"
	Weekly  Period = "week"
	Monthly Period = "month"
)

func (p Period) Valid() bool {
	return p == Daily || p == Weekly || p == Monthly
}

// Start returns the first instant of the period that t falls in. Weeks start
// on Mondays.
func (p Period) Start(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	return day
}

type profitabilitySvc struct {
	storage repository.ProfitabilityRepository
	batches batches.BatchRepository
}

func New(r repository.ProfitabilityRepository, br batches.BatchRepository) ProfitabilityService {
	return &profitabilitySvc{
		storage: r,
		batches: br,
	}
}

// Summarize derives profit, margin, roi and per kg figures from raw totals.
// Ratios with a zero denominator are reported as zero.
func Summarize(t repository.Totals) Summary {
	s := Summary{
		Revenue:       application.Round2(t.Revenue),
		Costs:         application.Round2(t.Costs),
		Labor:         application.Round2(t.Labor),
		TotalExpenses: application.Round2(t.Costs + t.Labor),
		YieldKg:       application.Round2(t.YieldKg),
		LaborHours:    application.Round2(t.LaborHours),
		SalesCount:    t.RevenueCount,
		CostCount:     t.CostCount,
		HarvestCount:  t.HarvestCount,
	}

	profit := t.Revenue - (t.Costs + t.Labor)
	s.GrossProfit = application.Round2(profit)
	s.ProfitMargin = percentage(profit, t.Revenue)
	s.ROI = percentage(profit, t.Costs+t.Labor)

	if t.YieldKg > 0 {
		s.RevenuePerKg = application.Ptr(application.Round2(t.Revenue / t.YieldKg))
		s.CostPerKg = application.Ptr(application.Round2((t.Costs + t.Labor) / t.YieldKg))
		s.ProfitPerKg = application.Ptr(application.Round2(profit / t.YieldKg))
	}

	return s
}

func percentage(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return application.Round2(part / whole * 100)
}

func (svc *profitabilitySvc) Overview(ctx context.Context, scope repository.Scope, tenants []string) (Summary, error) {
	totals, err := svc.storage.Totals(ctx, scope, tenants...)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(totals), nil
}

func (svc *profitabilitySvc) ROI(ctx context.Context, scope repository.Scope, tenants []string) (ROI, error) {
	totals, err := svc.storage.Totals(ctx, scope, tenants...)
	if err != nil {
		return ROI{}, err
	}

	investment := totals.Costs + totals.Labor
	profit := totals.Revenue - investment

	return ROI{
		Investment: application.Round2(investment),
		Return:     application.Round2(totals.Revenue),
		NetProfit:  application.Round2(profit),
		ROI:        percentage(profit, investment),
		Profitable: profit > 0,
	}, nil
}

func (svc *profitabilitySvc) Margins(ctx context.Context, scope repository.Scope, tenants []string) (Margins, error) {
	totals, err := svc.storage.Totals(ctx, scope, tenants...)
	if err != nil {
		return Margins{}, err
	}

	contribution := totals.Revenue - totals.Costs
	net := contribution - totals.Labor

	return Margins{
		Revenue:           application.Round2(totals.Revenue),
		ContributionCosts: application.Round2(totals.Costs),
		Contribution:      application.Round2(contribution),
		ContributionRatio: percentage(contribution, totals.Revenue),
		Labor:             application.Round2(totals.Labor),
		NetProfit:         application.Round2(net),
		NetMargin:         percentage(net, totals.Revenue),
	}, nil
}

func (svc *profitabilitySvc) Batch(ctx context.Context, batchID string, tenants []string) (BatchProfitability, error) {
	batch, err := svc.batches.Get(ctx, batchID, tenants...)
	if err != nil {
		return BatchProfitability{}, err
	}

	totals, err := svc.storage.Totals(ctx, repository.Scope{BatchID: batch.ID}, tenants...)
	if err != nil {
		return BatchProfitability{}, err
	}

	return BatchProfitability{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		CropName:    batch.CropName,
		Status:      string(batch.Status),
		Summary:     Summarize(totals),
	}, nil
}

// Compare ranks batches by gross profit, best first.
func (svc *profitabilitySvc) Compare(ctx context.Context, batchIDs []string, tenants []string) (Comparison, error) {
	if len(batchIDs) < 2 {
		return Comparison{}, application.Invalid("at least two batches are needed for a comparison")
	}
	if len(batchIDs) > MaxCompared {
		return Comparison{}, application.Invalid("at most %d batches can be compared", MaxCompared)
	}

	seen := map[string]bool{}
	result := Comparison{Batches: []BatchProfitability{}}
	sum := repository.Totals{}

	for _, id := range batchIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		bp, err := svc.Batch(ctx, id, tenants)
		if err != nil {
			return Comparison{}, err
		}
		result.Batches = append(result.Batches, bp)

		sum.Revenue += bp.Summary.Revenue
		sum.Costs += bp.Summary.Costs
		sum.Labor += bp.Summary.Labor
		sum.YieldKg += bp.Summary.YieldKg
		sum.LaborHours += bp.Summary.LaborHours
	}

	sort.SliceStable(result.Batches, func(i, j int) bool {
		return result.Batches[i].Summary.GrossProfit > result.Batches[j].Summary.GrossProfit
	})

	n := float64(len(result.Batches))
	result.Average = Summarize(repository.Totals{
		Revenue:    sum.Revenue / n,
		Costs:      sum.Costs / n,
		Labor:      sum.Labor / n,
		YieldKg:    sum.YieldKg / n,
		LaborHours: sum.LaborHours / n,
	})
	result.Best = result.Batches[0].BatchID
	result.Worst = result.Batches[len(result.Batches)-1].BatchID

	return result, nil
}

// Trends buckets revenue, costs and labor into consecutive periods. Periods
// without any entries are left out.
func (svc *profitabilitySvc) Trends(ctx context.Context, scope repository.Scope, period Period, tenants []string) ([]TrendPoint, error) {
	if period == "" {
		period = Monthly
	}
	if !period.Valid() {
		return nil, application.Invalid("unknown period %q", period)
	}

	entries, err := svc.storage.Entries(ctx, scope, tenants...)
	if err != nil {
		return nil, err
	}

	points := []TrendPoint{}
	index := map[time.Time]int{}

	for _, e := range entries {
		start := period.Start(e.Date)

		i, ok := index[start]
		if !ok {
			i = len(points)
			index[start] = i
			points = append(points, TrendPoint{Period: start.Format(time.DateOnly)})
		}

		switch e.Kind {
		case repository.EntryRevenue:
			points[i].Revenue += e.Amount
		case repository.EntryCost:
			points[i].Costs += e.Amount
		case repository.EntryLabor:
			points[i].Labor += e.Amount
		}
	}

	for i := range points {
		p := &points[i]
		profit := p.Revenue - p.Costs - p.Labor
		p.ProfitMargin = percentage(profit, p.Revenue)
		p.Profit = application.Round2(profit)
		p.Revenue = application.Round2(p.Revenue)
		p.Costs = application.Round2(p.Costs)
		p.Labor = application.Round2(p.Labor)
	}

	return points, nil
}

func (svc *profitabilitySvc) RevenueBreakdown(ctx context.Context, scope repository.Scope, tenants []string) (RevenueBreakdown, error) {
	totals, err := svc.storage.RevenueBreakdown(ctx, scope, tenants...)
	if err != nil {
		return RevenueBreakdown{}, err
	}

	b := RevenueBreakdown{Types: []RevenueShare{}}
	for _, t := range totals {
		b.Total += t.Total
	}

	for _, t := range totals {
		b.Types = append(b.Types, RevenueShare{
			RevenueType: string(t.RevenueType),
			Count:       t.Count,
			Total:       application.Round2(t.Total),
			Percentage:  percentage(t.Total, b.Total),
		})
	}
	b.Total = application.Round2(b.Total)

	return b, nil
}
