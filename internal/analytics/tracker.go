// ABOUTME: Analytics tracker interface and the default slog-backed implementation.
// ABOUTME: Event sinks are external collaborators; nothing is persisted here.

package analytics

import (
	"context"
	"log/slog"
)

// Event names emitted by the bot.
const (
	EventMessageReceived = "message_received"
	EventSubscribed      = "subscribed"
	EventUnsubscribed    = "unsubscribed"
	EventTickCompleted   = "tick_completed"
)

// Tracker records product events keyed by recipient identity.
type Tracker interface {
	Track(ctx context.Context, event, recipient string, props map[string]any)
}

// LogTracker writes events to the structured log. It stands in for a real
// analytics sink and keeps call sites honest about what they emit.
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker creates a tracker logging at debug level.
func NewLogTracker() *LogTracker {
	return &LogTracker{logger: slog.Default().With("component", "analytics")}
}

// Track logs the event with its properties flattened into attributes.
func (t *LogTracker) Track(ctx context.Context, event, recipient string, props map[string]any) {
	attrs := make([]any, 0, 4+2*len(props))
	attrs = append(attrs, "event", event, "recipient", recipient)
	for k, v := range props {
		attrs = append(attrs, k, v)
	}
	t.logger.Debug("track", attrs...)
}

// Noop discards every event.
type Noop struct{}

// Track does nothing.
func (Noop) Track(ctx context.Context, event, recipient string, props map[string]any) {}
