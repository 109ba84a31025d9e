// Package events provides the in-process, per-debate publish/subscribe
// channel used to push debate lifecycle updates to streaming clients.
//
// Delivery is best-effort: there is no replay buffer, so a subscriber that
// attaches after an event was published never sees it. The orchestrator's
// synchronous return value, not the stream, is the source of truth for
// whether a debate finished.
package events

import (
	"sync"
	"time"
)

// Recognized event types.
const (
	TypeDebateStarted   = "debate_started"
	TypeDebateCompleted = "debate_completed"
	TypeHumanArgument   = "human_argument"
	TypeHumanVote       = "human_vote"
	TypePing            = "ping"
)

// subscriberBuffer bounds each subscriber channel; a slow consumer drops
// events rather than blocking the publisher.
const subscriberBuffer = 16

// Event is one frame delivered to subscribers.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Bus fans out events to subscribers keyed by debate ID. Single-process only.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
	now    func() time.Time
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[int]chan Event),
		now:  time.Now,
	}
}

// Publish delivers an event to every current subscriber of the debate.
// Subscribers whose buffers are full miss the event.
func (b *Bus) Publish(debateID, eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, At: b.now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[debateID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener for one debate and returns the event channel
// plus an unsubscribe function. Unsubscribe closes the channel; it is safe to
// call more than once.
func (b *Bus) Subscribe(debateID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[debateID] == nil {
		b.subs[debateID] = make(map[int]chan Event)
	}
	b.subs[debateID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[debateID], id)
			if len(b.subs[debateID]) == 0 {
				delete(b.subs, debateID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// SubscriberCount reports how many listeners a debate currently has.
func (b *Bus) SubscriberCount(debateID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[debateID])
}
