package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application/inventory"
	inventoryDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/inventory"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func queryInventoryHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "query-inventory", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		active, err := boolParam(r, "active")
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := inventoryDb.ItemQuery{
			Category: types.InventoryCategory(q.Get("category")),
			Active:   active,
			LowStock: q.Get("lowStock") == "true",
			Search:   q.Get("search"),
			Offset:   offset,
			Limit:    limit,
		}

		result, err := svc.QueryItems(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func lowStockHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "low-stock", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		items, err := svc.LowStock(ctx, tenants)
		return http.StatusOK, items, err
	})
}

func inventoryStatsHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "inventory-stats", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		stats, err := svc.Stats(ctx, tenants)
		return http.StatusOK, stats, err
	})
}

func getInventoryItemHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "get-inventory-item", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		item, err := svc.GetItem(ctx, param(r, "itemID"), tenants)
		return http.StatusOK, item, err
	})
}

func queryStockTransactionsHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "query-stock-transactions", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		from, to, err := timeRange(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := inventoryDb.TransactionQuery{
			ItemID:  param(r, "itemID"),
			BatchID: q.Get("batchId"),
			Type:    types.TransactionType(q.Get("type")),
			From:    from,
			To:      to,
			Offset:  offset,
			Limit:   limit,
		}
		if params.ItemID == "" {
			params.ItemID = q.Get("itemId")
		}

		result, err := svc.QueryTransactions(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func createInventoryItemHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "create-inventory-item", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		item, err := decode[models.InventoryItem](r)
		if err != nil {
			return 0, nil, err
		}

		item.OrganizationID, err = tenantFor(item.OrganizationID, tenants)
		if err != nil {
			return 0, nil, err
		}

		if item.OwnerID == "" {
			item.OwnerID = auth.GetUser(ctx)
		}

		item, err = svc.CreateItem(ctx, item)
		return http.StatusCreated, item, err
	})
}

func patchInventoryItemHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "patch-inventory-item", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		fields, err := decode[inventory.ItemFields](r)
		if err != nil {
			return 0, nil, err
		}

		item, err := svc.UpdateItem(ctx, param(r, "itemID"), fields, tenants)
		return http.StatusOK, item, err
	})
}

func deactivateInventoryItemHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "deactivate-inventory-item", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		item, err := svc.Deactivate(ctx, param(r, "itemID"), tenants)
		return http.StatusOK, item, err
	})
}

func adjustStockHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "adjust-stock", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		adj, err := decode[inventory.Adjustment](r)
		if err != nil {
			return 0, nil, err
		}

		adj.UserID = auth.GetUser(ctx)

		item, tx, err := svc.AdjustStock(ctx, param(r, "itemID"), adj, tenants)
		return http.StatusCreated, struct {
			Item        models.InventoryItem        `json:"item"`
			Transaction models.InventoryTransaction `json:"transaction"`
		}{item, tx}, err
	})
}

func recordUsageHandler(log zerolog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return handle(log, "record-usage", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[struct {
			BatchID string            `json:"batchId"`
			Items   []inventory.Usage `json:"items"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		results, err := svc.RecordUsage(ctx, req.BatchID, req.Items, auth.GetUser(ctx), tenants)
		return http.StatusOK, results, err
	})
}
