// ABOUTME: Conversation registry owning every conversation snapshot and the command write path
// ABOUTME: Commands clone, mutate, persist, swap and then publish a state-changed event

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/memex/internal/dedupe"
	"github.com/2389/memex/internal/store"
)

// DefaultTitle is used when a conversation is created without one
const DefaultTitle = "New Conversation"

// Summarizer turns a conversation's message history into a memory.
// The returned memory is a draft; the registry persists it through MemorySource.
type Summarizer interface {
	Summarize(ctx context.Context, conv *store.Conversation, messages []*store.Message) (*store.Memory, error)
}

// MemorySource is what the registry needs from the memory bank
type MemorySource interface {
	GetMemory(ctx context.Context, id string) (*store.Memory, error)
	ListMemoriesByWorkspace(ctx context.Context, workspaceID string) ([]*store.Memory, error)
	SaveMemory(ctx context.Context, mem *store.Memory) error
	DeleteMemory(ctx context.Context, id string) error
}

// Options configures a Registry. Every field is optional.
type Options struct {
	// Store persists conversations beneath the registry. Nil keeps state in memory only.
	Store store.ConversationStore
	// Memories resolves memories for injection and stores close summaries.
	Memories MemorySource
	// Summarizer is required for Close.
	Summarizer Summarizer
	// Broadcaster receives an event per committed command. Nil creates one.
	Broadcaster *EventBroadcaster
	// Dedupe makes AppendRequest.ClientMessageID retries idempotent.
	Dedupe *dedupe.Cache
	// SummarizeTimeout bounds each summarizer call. Zero means no extra bound.
	SummarizeTimeout time.Duration
	Logger           *slog.Logger
}

// Patch lists the conversation fields Update may change
type Patch struct {
	Title *string
}

// Registry owns conversation state. All mutation goes through its commands,
// which are atomic with respect to each other; readers get deep copies of a
// consistent snapshot. A Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	convs map[string]*store.Conversation
	order []string // creation order

	store            store.ConversationStore
	memories         MemorySource
	summarizer       Summarizer
	broadcaster      *EventBroadcaster
	dedupe           *dedupe.Cache
	summarizeTimeout time.Duration
	closing          singleflight.Group
	logger           *slog.Logger
}

// NewRegistry creates an empty registry. Call Load to hydrate it from the store.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := opts.Broadcaster
	if b == nil {
		b = NewEventBroadcaster(DefaultSubscriberBuffer, logger)
	}
	return &Registry{
		convs:            make(map[string]*store.Conversation),
		store:            opts.Store,
		memories:         opts.Memories,
		summarizer:       opts.Summarizer,
		broadcaster:      b,
		dedupe:           opts.Dedupe,
		summarizeTimeout: opts.SummarizeTimeout,
		logger:           logger.With("component", "registry"),
	}
}

// Load replaces the in-memory state with every conversation in the store.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	convs, err := r.store.ListConversations(ctx, "")
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.convs = make(map[string]*store.Conversation, len(convs))
	r.order = r.order[:0]
	for _, c := range convs {
		r.convs[c.ID] = c
		r.order = append(r.order, c.ID)
	}

	r.logger.Info("conversations loaded", "count", len(convs))
	return nil
}

// Broadcaster returns the event broadcaster commands publish to.
func (r *Registry) Broadcaster() *EventBroadcaster {
	return r.broadcaster
}

// Subscribe receives events for one conversation (or AllConversations) until ctx is done.
func (r *Registry) Subscribe(ctx context.Context, conversationID string) (<-chan *Event, string) {
	return r.broadcaster.Subscribe(ctx, conversationID)
}

// Create starts a new active conversation with no messages and no memories.
func (r *Registry) Create(ctx context.Context, workspaceID, modelID, title string) (*store.Conversation, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	modelID = strings.TrimSpace(modelID)
	if workspaceID == "" {
		return nil, invalidArgument("workspace id is required")
	}
	if modelID == "" {
		return nil, invalidArgument("model id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:               uuid.New().String(),
		WorkspaceID:      workspaceID,
		Title:            title,
		ModelID:          modelID,
		Status:           store.StatusActive,
		Messages:         []*store.Message{},
		InjectedMemories: []*store.MemoryAssociation{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.persist(ctx, conv); err != nil {
		return nil, err
	}
	r.convs[conv.ID] = conv
	r.order = append(r.order, conv.ID)

	r.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"workspace_id", workspaceID,
		"model_id", modelID)

	snapshot := conv.Clone()
	r.publish(&Event{Type: EventCreated, ConversationID: conv.ID, Conversation: snapshot})
	return snapshot.Clone(), nil
}

// Update applies a patch. Only the title is mutable.
func (r *Registry) Update(ctx context.Context, conversationID string, patch Patch) (*store.Conversation, error) {
	var title string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, invalidArgument("title cannot be empty")
		}
	}

	return r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		if patch.Title == nil || conv.Title == title {
			return nil, nil
		}
		conv.Title = title
		return &Event{Type: EventUpdated}, nil
	})
}

// Delete destroys a conversation with its messages and associations.
// Memories summarized from it are left in the memory bank.
func (r *Registry) Delete(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convs[conversationID]; !ok {
		return conversationNotFound(conversationID)
	}

	if r.store != nil {
		if err := r.store.DeleteConversation(ctx, conversationID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting conversation: %w", err)
		}
	}

	delete(r.convs, conversationID)
	for i, id := range r.order {
		if id == conversationID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Debug("conversation deleted", "conversation_id", conversationID)
	r.publish(&Event{Type: EventDeleted, ConversationID: conversationID})
	return nil
}

// Get returns a copy of the conversation.
func (r *Registry) Get(conversationID string) (*store.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// ListByWorkspace returns copies of the workspace's conversations in creation
// order. An empty workspaceID lists all conversations.
func (r *Registry) ListByWorkspace(workspaceID string) []*store.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*store.Conversation{}
	for _, id := range r.order {
		conv := r.convs[id]
		if workspaceID != "" && conv.WorkspaceID != workspaceID {
			continue
		}
		result = append(result, conv.Clone())
	}
	return result
}

// mutateFunc changes conv in place. Returning a nil event means nothing
// changed: the registry neither persists nor publishes.
type mutateFunc func(conv *store.Conversation) (*Event, error)

// mutate runs fn against a copy of the conversation under the write lock,
// persists the copy, swaps it in and publishes the event fn returned.
// It returns a copy of the resulting conversation.
func (r *Registry) mutate(ctx context.Context, conversationID string, fn mutateFunc) (*store.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.convs[conversationID]
	if !ok {
		return nil, conversationNotFound(conversationID)
	}

	next := current.Clone()
	event, err := fn(next)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return next, nil
	}

	next.UpdatedAt = time.Now()
	if err := r.persist(ctx, next); err != nil {
		return nil, err
	}
	r.convs[conversationID] = next

	event.ConversationID = conversationID
	event.Conversation = next.Clone()
	r.publish(event)

	return next.Clone(), nil
}

// persist writes conv through to the store. Must be called with mu held.
func (r *Registry) persist(ctx context.Context, conv *store.Conversation) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveConversation(ctx, conv); err != nil {
		r.logger.Error("failed to persist conversation",
			"error", err,
			"conversation_id", conv.ID)
		return fmt.Errorf("persisting conversation: %w", err)
	}
	return nil
}

func (r *Registry) publish(event *Event) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()
	r.broadcaster.Publish(event)
}
