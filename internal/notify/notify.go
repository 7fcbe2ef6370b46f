// Package notify delivers human-readable trade events. Delivery is
// fire-and-forget: a failed send is logged and dropped, never retried,
// so notification outages cannot stall trading.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier receives trade event text.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// LogNotifier writes events to the structured log. The default sink when
// no external channel is configured.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(_ context.Context, text string) {
	log.Info().Str("event", text).Msg("trade event")
}

// Multi fans an event out to several sinks.
type Multi []Notifier

// Notify delivers to every sink.
func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		n.Notify(ctx, text)
	}
}
