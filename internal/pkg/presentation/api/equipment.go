package api

import (
	"context"
	"net/http"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	equipmentDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api/auth"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/rs/zerolog"
)

func queryEquipmentHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "query-equipment", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := equipmentDb.EquipmentQuery{
			ZoneID:     q.Get("zoneId"),
			Type:       types.EquipmentType(q.Get("type")),
			Status:     types.EquipmentStatus(q.Get("status")),
			Mode:       types.Mode(q.Get("mode")),
			ActiveOnly: q.Get("active") == "true",
			Offset:     offset,
			Limit:      limit,
		}

		result, err := svc.Query(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getEquipmentHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "get-equipment", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		eq, err := svc.Get(ctx, param(r, "equipmentID"), tenants)
		return http.StatusOK, eq, err
	})
}

func createEquipmentHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "create-equipment", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		eq, err := decode[models.Equipment](r)
		if err != nil {
			return 0, nil, err
		}

		eq, err = svc.Create(ctx, eq, tenants)
		return http.StatusCreated, eq, err
	})
}

func patchEquipmentHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "patch-equipment", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		fields, err := decode[equipment.EquipmentFields](r)
		if err != nil {
			return 0, nil, err
		}

		eq, err := svc.Update(ctx, param(r, "equipmentID"), fields, tenants)
		return http.StatusOK, eq, err
	})
}

func deleteEquipmentHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "delete-equipment", auth.WriteScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		return http.StatusNoContent, nil, svc.Delete(ctx, param(r, "equipmentID"), tenants)
	})
}

func equipmentCommandsHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "equipment-command-history", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		equipmentID := param(r, "equipmentID")

		// a missing equipment is a 404, not an empty history
		_, err = svc.Get(ctx, equipmentID, tenants)
		if err != nil {
			return 0, nil, err
		}

		params := equipmentDb.CommandQuery{
			EquipmentID: equipmentID,
			Status:      types.CommandStatus(r.URL.Query().Get("status")),
			Source:      types.CommandSource(r.URL.Query().Get("source")),
			Offset:      offset,
			Limit:       limit,
		}

		result, err := svc.CommandHistory(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func queryCommandsHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "query-commands", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		offset, limit, err := paging(r)
		if err != nil {
			return 0, nil, err
		}

		q := r.URL.Query()
		params := equipmentDb.CommandQuery{
			EquipmentID: q.Get("equipmentId"),
			ZoneID:      q.Get("zoneId"),
			Status:      types.CommandStatus(q.Get("status")),
			Source:      types.CommandSource(q.Get("source")),
			Offset:      offset,
			Limit:       limit,
		}

		result, err := svc.CommandHistory(ctx, params, tenants)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, page(r, result), nil
	})
}

func getCommandHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "get-command", auth.ReadScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cmd, err := svc.GetCommand(ctx, param(r, "commandID"), tenants)
		return http.StatusOK, cmd, err
	})
}

func patchCommandHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "patch-command", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[struct {
			Status       types.CommandStatus `json:"status"`
			ErrorMessage string              `json:"errorMessage"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		cmd, err := svc.UpdateCommandStatus(ctx, param(r, "commandID"), req.Status, req.ErrorMessage, tenants)
		return http.StatusOK, cmd, err
	})
}

func issueCommandHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "issue-command", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cmd, err := decode[equipment.Command](r)
		if err != nil {
			return 0, nil, err
		}

		if cmd.Source == "" {
			cmd.Source = types.SourceUser
		}

		if user := auth.GetUser(ctx); user != "" && cmd.UserID == nil {
			cmd.UserID = &user
		}

		issued, err := svc.IssueCommand(ctx, param(r, "equipmentID"), cmd, tenants)
		return http.StatusCreated, issued, err
	})
}

func turnOnHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "turn-on-equipment", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cmd, err := svc.TurnOn(ctx, param(r, "equipmentID"), auth.GetUser(ctx), tenants)
		return http.StatusCreated, cmd, err
	})
}

func turnOffHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "turn-off-equipment", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		cmd, err := svc.TurnOff(ctx, param(r, "equipmentID"), auth.GetUser(ctx), tenants)
		return http.StatusCreated, cmd, err
	})
}

func setValueHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "set-equipment-value", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[struct {
			Value *int `json:"value"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		if req.Value == nil {
			return 0, nil, application.Invalid("value is required")
		}

		cmd, err := svc.SetValue(ctx, param(r, "equipmentID"), *req.Value, auth.GetUser(ctx), tenants)
		return http.StatusCreated, cmd, err
	})
}

func setModeHandler(log zerolog.Logger, svc equipment.EquipmentService) http.HandlerFunc {
	return handle(log, "set-equipment-mode", auth.ControlScope, func(ctx context.Context, r *http.Request, tenants []string) (int, any, error) {
		req, err := decode[struct {
			Mode types.Mode `json:"mode"`
		}](r)
		if err != nil {
			return 0, nil, err
		}

		cmd, err := svc.SetMode(ctx, param(r, "equipmentID"), req.Mode, auth.GetUser(ctx), tenants)
		return http.StatusCreated, cmd, err
	})
}
