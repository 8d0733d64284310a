package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventType names a change observers can react to.
type EventType string

const (
	EventFeedUpdated    EventType = "feed.updated"
	EventFeedPage       EventType = "feed.page"
	EventActionState    EventType = "action.state"
	EventHistoryUpdated EventType = "history.updated"
	EventNotification   EventType = "notification"
)

// Notification levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Event is one message on the Broker.
type Event struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"-"`
	ActionID string    `json:"action_id,omitempty"`
	State    string    `json:"state,omitempty"`
	Filter   string    `json:"filter,omitempty"`
	Count    int       `json:"count,omitempty"`
	Level    string    `json:"level,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

var eventsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dashboard_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(eventsDropped)
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event. A nil *Broker discards everything.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
}

// NewBroker returns a Broker giving each subscriber a buffer of the given
// size (minimum 1).
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe registers for events of userID, or of every user when userID is
// empty. The returned cancel func closes the channel and is safe to call
// more than once.
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	s := &subscriber{userID: userID, ch: make(chan Event, b.buffer)}
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers ev to matching subscribers.
func (b *Broker) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.userID != "" && s.userID != ev.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			eventsDropped.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}

// Notify publishes a user-visible notification.
func (b *Broker) Notify(userID, level, msg string) {
	b.Publish(Event{Type: EventNotification, UserID: userID, Level: level, Message: msg})
}
