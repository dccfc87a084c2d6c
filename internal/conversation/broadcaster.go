// ABOUTME: In-memory fan-out broadcaster for conversation state-change events
// ABOUTME: Publishes committed snapshots to all subscribers of a conversation ID

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/memex/internal/store"
)

// DefaultSubscriberBuffer is the channel buffer for each subscriber.
const DefaultSubscriberBuffer = 64

// AllConversations subscribes to events for every conversation.
const AllConversations = "*"

// EventType names the command that produced an event
type EventType string

const (
	EventCreated         EventType = "conversation.created"
	EventUpdated         EventType = "conversation.updated"
	EventDeleted         EventType = "conversation.deleted"
	EventMessageAppended EventType = "message.appended"
	EventMessagePinned   EventType = "message.pinned"
	EventMessageUnpinned EventType = "message.unpinned"
	EventMessageDeleted  EventType = "message.deleted"
	EventMemoryInjected  EventType = "memory.injected"
	EventMemoryRemoved   EventType = "memory.removed"
	EventMemoryToggled   EventType = "memory.toggled"
	EventClosed          EventType = "conversation.closed"
	EventReopened        EventType = "conversation.reopened"
	EventArchived        EventType = "conversation.archived"
)

// Event is emitted after every successful mutating command.
// Conversation is the committed snapshot (nil for EventDeleted); it is shared
// between subscribers and must be treated as read-only.
type Event struct {
	ID             string
	Type           EventType
	ConversationID string
	MessageID      string // set for message events
	MemoryID       string // set for memory events and EventClosed
	Conversation   *store.Conversation
	Timestamp      time.Time
}

// EventBroadcaster provides in-memory pub/sub for conversation events.
// Subscribers register for a conversation ID (or AllConversations) and receive
// events as commands commit. This lets presentation layers re-render without polling.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // conversationID -> subID -> ch
	bufferSize  int
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. A bufferSize <= 0 uses
// DefaultSubscriberBuffer; pass nil logger for default.
func NewEventBroadcaster(bufferSize int, logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given conversation ID.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, b.bufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *Event)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends an event to subscribers of its conversation and to
// AllConversations subscribers. Non-blocking: events are dropped for
// subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *Event) {
	b.mu.RLock()
	var targets []chan *Event
	for _, key := range []string{event.ConversationID, AllConversations} {
		for _, ch := range b.subscribers[key] {
			targets = append(targets, ch)
		}
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", event.ConversationID,
				"event_id", event.ID,
				"type", event.Type)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions for a conversation ID.
func (b *EventBroadcaster) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
