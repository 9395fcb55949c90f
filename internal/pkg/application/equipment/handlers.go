package equipment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// CommandStatusHandler moves commands forward as the gateway reports on them.
func CommandStatusHandler(svc EquipmentService) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		report := types.CommandStatusReport{}

		err := json.Unmarshal(msg.Body, &report)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		if report.CommandID == "" {
			logger.Warn().Msg("command status report without command id")
			return
		}

		logger = logger.With().Str("commandID", report.CommandID).Logger()

		// the gateway is trusted with every tenant
		_, err = svc.UpdateCommandStatus(ctx, report.CommandID, report.Status, report.Error, nil)
		if errors.Is(err, application.ErrInvalidTransition) {
			logger.Debug().Msgf("ignored stale status %s", report.Status)
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("could not update command status")
			return
		}

		logger.Debug().Msgf("%s handled", msg.RoutingKey)
	}
}

func EquipmentStatusHandler(svc EquipmentService) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		report := types.EquipmentStatusReport{}

		err := json.Unmarshal(msg.Body, &report)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		logger = logger.With().Str("deviceID", report.DeviceID).Logger()

		err = svc.HandleEquipmentStatus(ctx, report)
		if err != nil {
			logger.Error().Err(err).Msg("could not update equipment status")
			return
		}

		logger.Debug().Msgf("%s handled", msg.RoutingKey)
	}
}
