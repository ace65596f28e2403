// internal/notify/notify.go
package notify

import (
	"context"
	"log/slog"
	"time"

	"consult-core/internal/domain"

	"github.com/shopspring/decimal"
)

// EventType identifies the kind of an outbound engine event.
type EventType string

const (
	EventSessionStateChanged EventType = "session.state_changed"
	EventTimerTick           EventType = "session.timer_tick"
	EventBillingComputed     EventType = "session.billing_computed"
)

// SchemaVersion is the current version of the event payload schema.
const SchemaVersion = 1

// StateChangedPayload describes a session lifecycle transition.
type StateChangedPayload struct {
	From      domain.SessionStatus `json:"from"`
	To        domain.SessionStatus `json:"to"`
	EndReason *domain.EndReason    `json:"end_reason,omitempty"`
}

// TimerTickPayload is emitted once per second while a session is active.
// Ticks are read-only broadcasts and never touch ledger state.
type TimerTickPayload struct {
	ElapsedSeconds   int64 `json:"elapsed_seconds"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// BillingComputedPayload carries the settled billing figures of a session.
type BillingComputedPayload struct {
	BilledMinutes      int64           `json:"billed_minutes"`
	ChargedAmount      decimal.Decimal `json:"charged_amount"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	ProviderEarning    decimal.Decimal `json:"provider_earning"`
}

// Event is one outbound notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type            EventType               `json:"type"`
	Version         int                     `json:"version"`
	SessionID       string                  `json:"session_id"`
	OccurredAt      time.Time               `json:"occurred_at"`
	StateChanged    *StateChangedPayload    `json:"state_changed,omitempty"`
	TimerTick       *TimerTickPayload       `json:"timer_tick,omitempty"`
	BillingComputed *BillingComputedPayload `json:"billing_computed,omitempty"`
}

// NewEvent creates an event stamped with the current schema version.
func NewEvent(eventType EventType, sessionID string) Event {
	return Event{
		Type:       eventType,
		Version:    SchemaVersion,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier is the outbound port the engine reports state changes through.
// Implementations must be fire-and-forget and best-effort: Notify never
// blocks the engine and delivery failures never affect ledger or session
// state. Real transports (sockets, push) live outside the core and
// implement this interface.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the structured logger. It is the default
// Notifier when no broker is configured, and is useful in tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event at debug level for ticks and info level otherwise.
func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	if event.Type == EventTimerTick {
		n.logger.Debug("session event", "type", event.Type, "session_id", event.SessionID)
		return
	}
	n.logger.Info("session event", "type", event.Type, "session_id", event.SessionID)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(ctx context.Context, event Event) {}
