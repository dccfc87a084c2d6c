// ABOUTME: Activity recorder persisting every published event to the activity log
// ABOUTME: Subscribes to all conversations and drains remaining events when the broadcaster closes

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/memex/internal/store"
)

// ActivityRecorder writes one store.ActivityEntry per event.
// Events dropped by the broadcaster for a full buffer are not recorded.
type ActivityRecorder struct {
	store  store.ActivityStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewActivityRecorder creates a recorder. Pass nil logger for default.
func NewActivityRecorder(s store.ActivityStore, logger *slog.Logger) *ActivityRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityRecorder{
		store:  s,
		logger: logger.With("component", "activity"),
	}
}

// Start subscribes to every conversation on b and records events until the
// subscription ends, either because ctx is done or b is closed.
func (a *ActivityRecorder) Start(ctx context.Context, b *EventBroadcaster) {
	events, _ := b.Subscribe(ctx, AllConversations)

	// Saves outlive ctx so events already received still reach the log
	saveCtx := context.WithoutCancel(ctx)

	a.wg.Go(func() {
		for event := range events {
			a.record(saveCtx, event)
		}
	})
}

// Wait blocks until the recording goroutine has drained its subscription.
func (a *ActivityRecorder) Wait() {
	a.wg.Wait()
}

func (a *ActivityRecorder) record(ctx context.Context, event *Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	entry := ActivityEntryFor(event)
	if err := a.store.SaveActivity(ctx, entry); err != nil {
		a.logger.Warn("failed to record activity",
			"conversation_id", event.ConversationID,
			"type", event.Type,
			"error", err)
	}
}

// ActivityEntryFor converts an event into its activity log entry.
func ActivityEntryFor(event *Event) *store.ActivityEntry {
	entry := &store.ActivityEntry{
		ID:             event.ID,
		ConversationID: event.ConversationID,
		Type:           string(event.Type),
		MessageID:      event.MessageID,
		MemoryID:       event.MemoryID,
		CreatedAt:      event.Timestamp,
	}

	if conv := event.Conversation; conv != nil {
		switch event.Type {
		case EventCreated, EventUpdated:
			entry.Detail = conv.Title
		case EventClosed, EventReopened, EventArchived:
			entry.Detail = string(conv.Status)
		case EventMemoryToggled:
			if _, assoc := conv.FindAssociation(event.MemoryID); assoc != nil {
				entry.Detail = "paused"
				if assoc.IsActive {
					entry.Detail = "active"
				}
			}
		}
	}
	return entry
}
