package events

import (
	"log/slog"
	"sync"
	"time"

	"lookbook/internal/logging"
)

// Kind names one of the lifecycle event types.
type Kind string

const (
	KindVisualProcessing Kind = "visual_processing"
	KindVisualCompleted  Kind = "visual_completed"
	KindVisualFailed     Kind = "visual_failed"
	KindGenerationDone   Kind = "generation_done"
)

// Event is one progress notification for a generation run.
type Event struct {
	Kind         Kind           `json:"kind"`
	GenerationID string         `json:"generation_id"`
	UserID       string         `json:"user_id"`
	VisualIndex  int            `json:"visual_index"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Subscription is one consumer's bounded event feed. Events arrive on C
// until Close; a subscriber that falls behind loses events rather than
// blocking publishers.
type Subscription struct {
	C <-chan Event

	bus    *Bus
	ch     chan Event
	userID string
	once   sync.Once
}

// Close detaches the subscription and releases its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus is the in-process fan-out for lifecycle progress events. Delivery is
// best-effort at-most-once; consumers needing certainty poll the persisted
// generation record instead.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

const defaultSubscriberBuffer = 16

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logging.NewComponentLogger(logger, "events"),
	}
}

// Subscribe registers a consumer. A non-empty userID limits delivery to
// that user's events. A non-positive buffer uses the default.
func (b *Bus) Subscribe(userID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &Subscription{
		bus:    b,
		ch:     make(chan Event, buffer),
		userID: userID,
	}
	sub.C = sub.ch

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.userID != "" && sub.userID != event.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				logging.String(logging.FieldEventType, string(event.Kind)),
				logging.String(logging.FieldGenerationID, event.GenerationID))
		}
	}
}

// SubscriberCount reports the number of attached subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
