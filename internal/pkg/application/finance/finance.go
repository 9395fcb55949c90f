package finance

import (
	"context"

	"github.com/diwise/farm-operations/internal/pkg/application"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/finance"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

//go:generate moq -rm -out financeservice_mock.go . FinanceService

type FinanceService interface {
	CreateCost(ctx context.Context, cost models.CostEntry) (models.CostEntry, error)
	GetCost(ctx context.Context, costID string, tenants []string) (models.CostEntry, error)
	QueryCosts(ctx context.Context, params repository.CostQuery, tenants []string) (types.Collection[models.CostEntry], error)
	CostBreakdown(ctx context.Context, params repository.CostQuery, tenants []string) (Breakdown, error)
	DeleteCost(ctx context.Context, costID string, tenants []string) error

	CreateRevenue(ctx context.Context, revenue models.Revenue) (models.Revenue, error)
	GetRevenue(ctx context.Context, revenueID string, tenants []string) (models.Revenue, error)
	QueryRevenues(ctx context.Context, params repository.RevenueQuery, tenants []string) (types.Collection[models.Revenue], error)
	RecordPayment(ctx context.Context, revenueID string, amount float64, tenants []string) (models.Revenue, error)
	DeleteRevenue(ctx context.Context, revenueID string, tenants []string) error
}

type Breakdown struct {
	Total      float64                    `json:"total"`
	Categories []repository.CategoryTotal `json:"categories"`
}

type financeSvc struct {
	storage repository.FinanceRepository
}

func New(r repository.FinanceRepository) FinanceService {
	return &financeSvc{
		storage: r,
	}
}

// DeriveUnitCost sets unitCost from amount and quantity unless a unit cost was given.
func DeriveUnitCost(entry *models.CostEntry) {
	if entry.UnitCost != nil || entry.Quantity == nil || *entry.Quantity <= 0 {
		return
	}
	entry.UnitCost = application.Ptr(application.Round2(entry.Amount / *entry.Quantity))
}

// DeriveRevenueAmounts computes the total, final and due amounts of a sale
// and the payment status that follows from them.
func DeriveRevenueAmounts(rev *models.Revenue) {
	if rev.TotalAmount == nil {
		rev.TotalAmount = application.Ptr(application.Round2(rev.Quantity * rev.PricePerUnit))
	}

	rev.FinalAmount = application.Round2(*rev.TotalAmount - rev.Discount + rev.Tax)
	rev.DueAmount = application.Round2(rev.FinalAmount - rev.PaidAmount)

	switch {
	case rev.DueAmount <= 0:
		rev.PaymentStatus = types.PaymentPaid
	case rev.PaidAmount > 0 && rev.PaidAmount < rev.FinalAmount:
		rev.PaymentStatus = types.PaymentPartial
	case rev.PaymentStatus == types.PaymentPaid || rev.PaymentStatus == types.PaymentPartial || rev.PaymentStatus == "":
		rev.PaymentStatus = types.PaymentPending
	}
}

func (svc *financeSvc) CreateCost(ctx context.Context, cost models.CostEntry) (models.CostEntry, error) {
	if cost.CostType == "" {
		cost.CostType = types.CostDirect
	}
	if cost.PaymentStatus == "" {
		cost.PaymentStatus = types.PaymentPaid
	}
	if cost.CostDate.IsZero() {
		cost.CostDate = application.Now()
	}

	switch {
	case cost.OrganizationID == "":
		return models.CostEntry{}, application.Invalid("cost entry has no organization")
	case !cost.Category.Valid():
		return models.CostEntry{}, application.Invalid("unknown cost category %q", cost.Category)
	case !cost.CostType.Valid():
		return models.CostEntry{}, application.Invalid("unknown cost type %q", cost.CostType)
	case !cost.PaymentStatus.Valid():
		return models.CostEntry{}, application.Invalid("unknown payment status %q", cost.PaymentStatus)
	case cost.Amount < 0:
		return models.CostEntry{}, application.Invalid("amount cannot be negative")
	case cost.Quantity != nil && *cost.Quantity < 0:
		return models.CostEntry{}, application.Invalid("quantity cannot be negative")
	}

	cost.ID = ""
	DeriveUnitCost(&cost)

	err := svc.storage.SaveCost(ctx, &cost)
	if err != nil {
		return models.CostEntry{}, err
	}

	return cost, nil
}

func (svc *financeSvc) GetCost(ctx context.Context, costID string, tenants []string) (models.CostEntry, error) {
	return svc.storage.GetCost(ctx, costID, tenants...)
}

func (svc *financeSvc) QueryCosts(ctx context.Context, params repository.CostQuery, tenants []string) (types.Collection[models.CostEntry], error) {
	return svc.storage.QueryCosts(ctx, params, tenants...)
}

func (svc *financeSvc) CostBreakdown(ctx context.Context, params repository.CostQuery, tenants []string) (Breakdown, error) {
	categories, err := svc.storage.CostBreakdown(ctx, params, tenants...)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{Categories: categories}
	for i := range categories {
		categories[i].Total = application.Round2(categories[i].Total)
		b.Total += categories[i].Total
	}
	b.Total = application.Round2(b.Total)

	return b, nil
}

func (svc *financeSvc) DeleteCost(ctx context.Context, costID string, tenants []string) error {
	return svc.storage.DeleteCost(ctx, costID, tenants...)
}

func (svc *financeSvc) CreateRevenue(ctx context.Context, rev models.Revenue) (models.Revenue, error) {
	if rev.RevenueType == "" {
		rev.RevenueType = types.RevenueMushroomSale
	}
	if rev.SaleDate.IsZero() {
		rev.SaleDate = application.Now()
	}

	switch {
	case rev.OrganizationID == "":
		return models.Revenue{}, application.Invalid("revenue has no organization")
	case rev.ProductName == "":
		return models.Revenue{}, application.Invalid("product name is required")
	case !rev.RevenueType.Valid():
		return models.Revenue{}, application.Invalid("unknown revenue type %q", rev.RevenueType)
	case rev.CustomerType != "" && !rev.CustomerType.Valid():
		return models.Revenue{}, application.Invalid("unknown customer type %q", rev.CustomerType)
	case rev.PaymentStatus != "" && !rev.PaymentStatus.Valid():
		return models.Revenue{}, application.Invalid("unknown payment status %q", rev.PaymentStatus)
	case rev.Quantity < 0 || rev.PricePerUnit < 0 || rev.Discount < 0 || rev.Tax < 0 || rev.PaidAmount < 0:
		return models.Revenue{}, application.Invalid("amounts cannot be negative")
	case rev.TotalAmount != nil && *rev.TotalAmount < 0:
		return models.Revenue{}, application.Invalid("total amount cannot be negative")
	}

	rev.ID = ""
	DeriveRevenueAmounts(&rev)

	err := svc.storage.SaveRevenue(ctx, &rev)
	if err != nil {
		return models.Revenue{}, err
	}

	return rev, nil
}

func (svc *financeSvc) GetRevenue(ctx context.Context, revenueID string, tenants []string) (models.Revenue, error) {
	return svc.storage.GetRevenue(ctx, revenueID, tenants...)
}

func (svc *financeSvc) QueryRevenues(ctx context.Context, params repository.RevenueQuery, tenants []string) (types.Collection[models.Revenue], error) {
	return svc.storage.QueryRevenues(ctx, params, tenants...)
}

// RecordPayment adds amount to what has been paid for a sale.
func (svc *financeSvc) RecordPayment(ctx context.Context, revenueID string, amount float64, tenants []string) (models.Revenue, error) {
	if amount <= 0 {
		return models.Revenue{}, application.Invalid("payment must be a positive amount")
	}

	rev, err := svc.storage.GetRevenue(ctx, revenueID, tenants...)
	if err != nil {
		return models.Revenue{}, err
	}

	if rev.PaymentStatus == types.PaymentCancelled {
		return models.Revenue{}, application.Transition("revenue", rev.PaymentStatus, types.PaymentPaid)
	}

	rev.PaidAmount = application.Round2(rev.PaidAmount + amount)
	DeriveRevenueAmounts(&rev)

	err = svc.storage.SaveRevenue(ctx, &rev)
	if err != nil {
		return models.Revenue{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("revenueID", rev.ID).Msgf("recorded payment of %.2f, %.2f due", amount, rev.DueAmount)

	return rev, nil
}

func (svc *financeSvc) DeleteRevenue(ctx context.Context, revenueID string, tenants []string) error {
	return svc.storage.DeleteRevenue(ctx, revenueID, tenants...)
}
