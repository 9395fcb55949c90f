package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"golang.org/x/sys/unix"
)

const AlertEventType string = "farmops.alert"

//go:generate moq -rm -out events_mock.go . EventSender

type EventSender interface {
	Send(ctx context.Context, alert models.Alert) error
}

type eventSender struct {
	subscribers map[string][]SubscriberConfig
}

func New(cfg *Config) EventSender {
	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	return e
}

func (e *eventSender) Send(ctx context.Context, alert models.Alert) error {
	if s, ok := e.subscribers[AlertEventType]; !ok || len(s) == 0 {
		return nil
	}

	var err error

	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return err
	}

	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s:%d", alert.ID, alert.CreatedAt.Unix()))
	event.SetTime(alert.CreatedAt)
	event.SetSource("github.com/diwise/farm-operations")
	event.SetType(AlertEventType)
	event.SetSubject(alert.OrganizationID)

	eventData := struct {
		AlertID     string  `json:"alertID"`
		Tenant      string  `json:"tenant"`
		Type        string  `json:"type"`
		Severity    string  `json:"severity"`
		Title       string  `json:"title"`
		Message     string  `json:"message"`
		ZoneID      *string `json:"zoneID,omitempty"`
		BatchID     *string `json:"batchID,omitempty"`
		EquipmentID *string `json:"equipmentID,omitempty"`
		Timestamp   string  `json:"timestamp"`
	}{
		AlertID:     alert.ID,
		Tenant:      alert.OrganizationID,
		Type:        string(alert.Type),
		Severity:    string(alert.Severity),
		Title:       alert.Title,
		Message:     alert.Message,
		ZoneID:      alert.ZoneID,
		BatchID:     alert.BatchID,
		EquipmentID: alert.EquipmentID,
		Timestamp:   alert.CreatedAt.Format(time.RFC3339Nano),
	}

	err = event.SetData(cloudevents.ApplicationJSON, eventData)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range e.subscribers[AlertEventType] {
		if !s.Accepts(alert) {
			continue
		}

		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := c.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", s.Endpoint)
			err = fmt.Errorf("%w", result)
		}
	}

	return err
}

type SubscriberConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	Tenants    []string `yaml:"tenants"`
	Severities []string `yaml:"severities"`
}

// Accepts reports if the subscriber wants the alert. Empty filters accept everything.
func (s SubscriberConfig) Accepts(alert models.Alert) bool {
	return contains(s.Tenants, alert.OrganizationID) && contains(s.Severities, string(alert.Severity))
}

func contains(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == value {
			return true
		}
	}
	return false
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}
