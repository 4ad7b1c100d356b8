// Package fanout implements the in-process pub/sub hub that distributes
// live metric and incident events to WebSocket subscribers.
//
// Delivery is best-effort: each subscriber owns a buffered channel, a
// publish to a full buffer drops the event for that subscriber only, and
// publishing never blocks regardless of subscriber behavior. Events reach
// each subscriber in publish order.
package fanout

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one fan-out message. Type distinguishes the stream
// ("metrics", "incident") and Data is the JSON-serializable body.
type Event struct {
	Type     string      `json:"type"`
	ServerID uuid.UUID   `json:"server_id"`
	Data     interface{} `json:"data"`
}

// Subscription is one subscriber's attachment to a server's event stream.
// The caller drains C until Close is called or the hub shuts down.
type Subscription struct {
	// C delivers events in publish order
	C <-chan Event

	hub      *Hub
	serverID uuid.UUID
	ch       chan Event
	once     sync.Once
}

// Close detaches the subscription from the hub. Safe to call more than
// once; events already buffered remain readable from C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub routes published events to the subscribers of the matching server.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[*Subscription]struct{}
	bufSize int
}

// NewHub creates a hub whose subscribers buffer up to bufSize events.
func NewHub(bufSize int) *Hub {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Hub{
		subs:    make(map[uuid.UUID]map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe attaches a new subscriber to the given server's stream.
func (h *Hub) Subscribe(serverID uuid.UUID) *Subscription {
	sub := &Subscription{
		hub:      h,
		serverID: serverID,
		ch:       make(chan Event, h.bufSize),
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[serverID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[serverID] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.serverID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.serverID)
	}
}

// Publish delivers the event to every subscriber of event.ServerID.
// Subscribers of other servers never see it. A subscriber whose buffer
// is full loses this event; the publisher is never blocked.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[event.ServerID] {
		select {
		case sub.ch <- event:
		default:
			log.Debug().
				Str("server_id", event.ServerID.String()).
				Str("event_type", event.Type).
				Msg("Dropping event for slow fanout subscriber")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a server.
func (h *Hub) SubscriberCount(serverID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[serverID])
}
