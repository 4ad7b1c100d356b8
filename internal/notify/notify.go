// Package notify delivers incident lifecycle notifications.
//
// This package manages the delivery channels (email, per-server webhooks)
// and handles dispatching, throttling, and formatting. Channels are
// fire-and-forget from the engine's perspective: a delivery failure is
// logged and never affects the incident state machine.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/config"
)

// Event statuses carried in notifications.
const (
	StatusFired    = "fired"
	StatusResolved = "resolved"
)

// Event is one incident transition to announce.
type Event struct {
	IncidentID uuid.UUID `json:"incident_id"`
	ServerID   uuid.UUID `json:"server_id"`
	Hostname   string    `json:"hostname"`
	RuleName   string    `json:"rule_name"`
	Condition  string    `json:"condition"`
	Status     string    `json:"status"` // fired, resolved
	At         time.Time `json:"at"`

	// Per-server delivery targets, taken from the server record
	OwnerEmail     *string           `json:"-"`
	WebhookURL     *string           `json:"-"`
	WebhookHeaders map[string]string `json:"-"`
}

// Notifier defines the interface that all delivery channels implement.
type Notifier interface {
	// Notify delivers one event through the channel. A nil target on the
	// event (no owner email, no webhook) is a silent no-op.
	Notify(ctx context.Context, event Event) error

	// Type returns the channel type identifier.
	Type() string
}

// Manager dispatches events through all configured channels.
type Manager struct {
	notifiers []Notifier
	window    time.Duration

	throttle map[string]time.Time
	mu       sync.RWMutex
}

// NewManager creates a notification manager with the configured channels.
func NewManager(cfg config.NotifyConfig) *Manager {
	manager := &Manager{
		notifiers: make([]Notifier, 0),
		window:    cfg.ThrottleWindow,
		throttle:  make(map[string]time.Time),
	}

	if cfg.Email.Enabled {
		manager.notifiers = append(manager.notifiers, NewEmailNotifier(cfg.Email))
		log.Info().Str("host", cfg.Email.Host).Msg("Email notifier initialized")
	}
	manager.notifiers = append(manager.notifiers, NewWebhookNotifier(cfg.WebhookTimeout))

	return manager
}

// Send dispatches one event through all channels. Delivery failures are
// logged per channel; Send itself never fails.
func (m *Manager) Send(ctx context.Context, event Event) {
	if m.isThrottled(event) {
		log.Debug().
			Str("incident_id", event.IncidentID.String()).
			Str("status", event.Status).
			Msg("Notification throttled")
		return
	}
	m.updateThrottle(event)

	log.Info().
		Str("incident_id", event.IncidentID.String()).
		Str("rule_name", event.RuleName).
		Str("status", event.Status).
		Msg("Sending notification")

	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			log.Error().
				Str("notifier_type", notifier.Type()).
				Str("incident_id", event.IncidentID.String()).
				Err(err).
				Msg("Failed to send notification")
		}
	}
}

// isThrottled reports whether the same incident transition was announced
// within the throttle window.
func (m *Manager) isThrottled(event Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, exists := m.throttle[throttleKey(event)]
	return exists && time.Since(last) < m.window
}

// updateThrottle records the dispatch and prunes stale entries.
func (m *Manager) updateThrottle(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.throttle[throttleKey(event)] = time.Now()

	cutoff := time.Now().Add(-1 * time.Hour)
	for key, ts := range m.throttle {
		if ts.Before(cutoff) {
			delete(m.throttle, key)
		}
	}
}

func throttleKey(event Event) string {
	return fmt.Sprintf("%s_%s", event.IncidentID, event.Status)
}

// FormatMessage formats an event for human consumption. All channels use
// the same wording so an email and a webhook describe the same incident
// identically.
func FormatMessage(event Event) string {
	switch event.Status {
	case StatusResolved:
		return fmt.Sprintf("[RESOLVED] %s on %s: %s (at %s)",
			event.RuleName, event.Hostname, event.Condition,
			event.At.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("[ALERT] %s on %s: %s (at %s)",
			event.RuleName, event.Hostname, event.Condition,
			event.At.UTC().Format(time.RFC3339))
	}
}
