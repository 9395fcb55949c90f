package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/messaging-golang/pkg/messaging"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Invalid returns an ErrValidation with a description of what was wrong.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transition returns an ErrInvalidTransition describing the attempted move.
func Transition(entity string, from, to any) error {
	return fmt.Errorf("%w: %s cannot go from %v to %v", ErrInvalidTransition, entity, from, to)
}

//go:generate moq -rm -out application_mock.go . AlertRaiser Broadcaster Publisher

// AlertRaiser persists and distributes an alert raised by the service itself.
// RaisedSince reports if an alert of the same type, for the same zone, batch
// and equipment, has been raised after since.
type AlertRaiser interface {
	Raise(ctx context.Context, alert models.Alert) (models.Alert, error)
	RaisedSince(ctx context.Context, alert models.Alert, since time.Time) (bool, error)
}

// Broadcaster pushes an event to connected live feed clients.
type Broadcaster interface {
	Publish(event string, data any) error
}

// Publisher is the part of messaging.MsgContext used to talk to the gateway.
type Publisher interface {
	PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func Ptr[T any](v T) *T {
	return &v
}

// DaysBetween returns the number of started days from since to now, never less than zero.
func DaysBetween(since, now time.Time) int {
	d := now.Sub(since).Hours() / 24
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d))
}

// Now is replaced in tests.
var Now = func() time.Time {
	return time.Now().UTC()
}
