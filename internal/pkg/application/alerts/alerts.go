package alerts

import (
	"context"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/events"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/alerts"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	EventAlertRaised string = "alert.raised"

	RetentionDays int = 30
)

//go:generate moq -rm -out alertservice_mock.go . AlertService

type AlertService interface {
	Raise(ctx context.Context, alert models.Alert) (models.Alert, error)
	Get(ctx context.Context, alertID string, tenants []string) (models.Alert, error)
	Query(ctx context.Context, params repository.AlertQuery, tenants []string) (types.Collection[models.Alert], error)
	UnreadCount(ctx context.Context, tenants []string) (int64, error)
	RaisedSince(ctx context.Context, alert models.Alert, since time.Time) (bool, error)

	MarkRead(ctx context.Context, alertID string, tenants []string) (models.Alert, error)
	Acknowledge(ctx context.Context, alertID, userID string, tenants []string) (models.Alert, error)
	Dismiss(ctx context.Context, alertID string, tenants []string) (models.Alert, error)

	Cleanup(ctx context.Context) error
}

type alertSvc struct {
	storage   repository.AlertRepository
	sender    events.EventSender
	webEvents application.Broadcaster
}

func New(r repository.AlertRepository, s events.EventSender, we application.Broadcaster) AlertService {
	return &alertSvc{
		storage:   r,
		sender:    s,
		webEvents: we,
	}
}

func (svc *alertSvc) Raise(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if alert.OrganizationID == "" {
		return models.Alert{}, application.Invalid("alert has no organization")
	}
	if alert.Title == "" || alert.Message == "" {
		return models.Alert{}, application.Invalid("alert needs a title and a message")
	}
	if alert.Type == "" {
		alert.Type = types.AlertSystem
	}
	if alert.Severity == "" {
		alert.Severity = types.SeverityMedium
	}
	if !alert.Type.Valid() || !alert.Severity.Valid() {
		return models.Alert{}, application.Invalid("unknown alert type %q or severity %q", alert.Type, alert.Severity)
	}

	alert.ID = ""
	alert.Status = types.AlertUnread

	err := svc.storage.Save(ctx, &alert)
	if err != nil {
		return models.Alert{}, err
	}

	metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()

	logger := logging.GetFromContext(ctx)

	if svc.sender != nil {
		if err := svc.sender.Send(ctx, alert); err != nil {
			logger.Error().Err(err).Str("alertID", alert.ID).Msg("failed to send alert to subscribers")
		}
	}

	if svc.webEvents != nil {
		if err := svc.webEvents.Publish(EventAlertRaised, alert); err != nil {
			logger.Error().Err(err).Msg("failed to publish alert on live feed")
		}
	}

	return alert, nil
}

func (svc *alertSvc) Get(ctx context.Context, alertID string, tenants []string) (models.Alert, error) {
	return svc.storage.Get(ctx, alertID, tenants...)
}

func (svc *alertSvc) Query(ctx context.Context, params repository.AlertQuery, tenants []string) (types.Collection[models.Alert], error) {
	return svc.storage.Query(ctx, params, tenants...)
}

func (svc *alertSvc) UnreadCount(ctx context.Context, tenants []string) (int64, error) {
	return svc.storage.CountUnread(ctx, tenants...)
}

func (svc *alertSvc) RaisedSince(ctx context.Context, alert models.Alert, since time.Time) (bool, error) {
	params := repository.AlertQuery{Type: alert.Type}
	if alert.ZoneID != nil {
		params.ZoneID = *alert.ZoneID
	}
	if alert.BatchID != nil {
		params.BatchID = *alert.BatchID
	}
	if alert.EquipmentID != nil {
		params.EquipmentID = *alert.EquipmentID
	}

	return svc.storage.RaisedSince(ctx, params, since)
}

func (svc *alertSvc) MarkRead(ctx context.Context, alertID string, tenants []string) (models.Alert, error) {
	return svc.update(ctx, alertID, tenants, func(a *models.Alert, now time.Time) {
		a.Status = types.AlertRead
		a.ReadAt = &now
	})
}

func (svc *alertSvc) Acknowledge(ctx context.Context, alertID, userID string, tenants []string) (models.Alert, error) {
	return svc.update(ctx, alertID, tenants, func(a *models.Alert, now time.Time) {
		a.Status = types.AlertAcknowledged
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = userID
		if a.ReadAt == nil {
			a.ReadAt = &now
		}
	})
}

func (svc *alertSvc) Dismiss(ctx context.Context, alertID string, tenants []string) (models.Alert, error) {
	return svc.update(ctx, alertID, tenants, func(a *models.Alert, now time.Time) {
		a.Status = types.AlertDismissed
		a.DismissedAt = &now
	})
}

func (svc *alertSvc) update(ctx context.Context, alertID string, tenants []string, change func(*models.Alert, time.Time)) (models.Alert, error) {
	alert, err := svc.storage.Get(ctx, alertID, tenants...)
	if err != nil {
		return models.Alert{}, err
	}

	change(&alert, application.Now())

	err = svc.storage.Save(ctx, &alert)
	if err != nil {
		return models.Alert{}, err
	}

	return alert, nil
}

// Cleanup removes read and dismissed alerts older than the retention period.
func (svc *alertSvc) Cleanup(ctx context.Context) error {
	before := application.Now().AddDate(0, 0, -RetentionDays)

	n, err := svc.storage.DeleteOlderThan(ctx, before, types.AlertRead, types.AlertDismissed, types.AlertAcknowledged)
	if err != nil {
		return err
	}

	if n > 0 {
		logger := logging.GetFromContext(ctx)
		logger.Info().Msgf("removed %d alerts older than %d days", n, RetentionDays)
	}

	return nil
}
