// Package notify fans booking lifecycle events out to notifiers at a
// bounded rate.
package notify

import (
	"context"
	"fmt"

	"pitchbook/internal/events"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Notifier delivers one rendered notification.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload []byte) error
}

// Config tunes dispatch rate.
type Config struct {
	// RatePerSecond is the sustained delivery rate across all notifiers.
	RatePerSecond float64
	// Burst is the number of deliveries allowed to go out at once.
	Burst int
}

// DefaultConfig returns the default dispatch configuration.
func DefaultConfig() Config {
	return Config{RatePerSecond: 20, Burst: 30}
}

// Dispatcher subscribes to the event bus and pushes events to its
// notifiers through a token bucket limiter.
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	logger    *zerolog.Logger
}

// NewDispatcher creates a dispatcher with the given notifiers.
func NewDispatcher(config Config, logger *zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	if config.RatePerSecond <= 0 {
		config = DefaultConfig()
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	return &Dispatcher{
		notifiers: notifiers,
		limiter:   rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		logger:    logger,
	}
}

// SubscribeTo registers the dispatcher for all booking lifecycle events
// on the bus. Deliveries run on the publisher's goroutine.
func (d *Dispatcher) SubscribeTo(bus *events.EventBus) {
	for _, t := range []string{
		events.TypeBookingCreated,
		events.TypeBookingApproved,
		events.TypeBookingCancelled,
		events.TypePaymentCompleted,
	} {
		eventType := t
		bus.Subscribe(eventType, func(ev events.Event) error {
			return d.Dispatch(context.Background(), eventType, ev.Payload)
		})
	}
}

// Dispatch delivers one event to every notifier, waiting on the rate
// limiter before each delivery. Notifier failures are logged and do not
// stop delivery to the remaining notifiers.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload []byte) error {
	for _, n := range d.notifiers {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		if err := n.Notify(ctx, eventType, payload); err != nil {
			d.logger.Error().Err(err).Str("event", eventType).Msg("notifier delivery failed")
		}
	}
	return nil
}

// LogNotifier writes notifications to the structured log. Used as the
// default sink when no external channel is configured.
type LogNotifier struct {
	Logger *zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, eventType string, payload []byte) error {
	n.Logger.Info().Str("event", eventType).RawJSON("payload", payload).Msg("notification")
	return nil
}
