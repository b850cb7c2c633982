package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an engine lifecycle occurrence a subscriber may care
// about. The engine publishes EventCommitApplied (commit pipeline) and
// EventCheckpointStarted/EventCheckpointCompleted (checkpoint path); the
// segment and bucket types are defined but no engine code path publishes
// them.
type EventType string

const (
	EventCommitApplied       EventType = "commit.applied"
	EventCheckpointStarted   EventType = "checkpoint.started"
	EventCheckpointCompleted EventType = "checkpoint.completed"
	EventSegmentRolled       EventType = "wal.segment_rolled"
	EventSegmentTruncated    EventType = "wal.segment_truncated"
	EventBucketCreated       EventType = "bucket.created"
	EventBucketDeleted       EventType = "bucket.deleted"
)

// Event is a single engine lifecycle occurrence. Metadata carries the
// counters a subscriber would want for the given Type (e.g. "txid" for a
// commit, "lsn" for a checkpoint) rather than a free-form payload, so
// subscribers never receive key/value bytes the engine is storing.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// eventQueueDepth bounds how many published-but-not-yet-broadcast events
// the run loop can hold before Publish starts blocking on it.
const eventQueueDepth = 100

// subscriberQueueDepth bounds how far behind a single subscriber may fall
// before the broker starts dropping events meant for it rather than
// slowing down the publisher.
const subscriberQueueDepth = 50

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker distributes published events to every current subscriber. It is
// topic-agnostic: every subscriber sees every event and filters by Type
// itself, which keeps the broker free of routing state.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker returns an idle broker; call Start to begin distributing.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, eventQueueDepth),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop in its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. Subscriber channels are left open; callers that
// want them closed should Unsubscribe first.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber and returns its event channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberQueueDepth)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish stamps event with an id and timestamp if unset, then hands it to
// the distribution loop. It blocks only until the broker accepts it onto
// its internal queue or Stop is called, never until every subscriber has
// read it — a stalled subscriber must never stall the durability path that
// publishes commit and checkpoint events.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

// broadcast fans event out to every subscriber without blocking on any one
// of them: a subscriber whose buffer is full simply misses this event.
func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
