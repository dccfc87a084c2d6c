// ABOUTME: Read-only query facade over the registry and memory bank for presentation layers
// ABOUTME: Every result is a copy; nothing here mutates conversation state

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/memex/internal/store"
)

// Query answers read-only lookups. Absence is reported as a false ok value,
// never as an error; errors come only from the memory bank.
type Query struct {
	registry *Registry
	memories MemorySource
}

// NewQuery creates a query facade. memories may be nil, in which case memory
// lookups return nothing.
func NewQuery(registry *Registry, memories MemorySource) *Query {
	return &Query{registry: registry, memories: memories}
}

// GetConversationByID returns a copy of the conversation.
func (q *Query) GetConversationByID(conversationID string) (*store.Conversation, bool) {
	return q.registry.Get(conversationID)
}

// GetMessageByID returns a copy of a message.
func (q *Query) GetMessageByID(conversationID, messageID string) (*store.Message, bool) {
	return q.registry.GetMessage(conversationID, messageID)
}

// ListConversations returns the workspace's conversations in creation order.
func (q *Query) ListConversations(workspaceID string) []*store.Conversation {
	return q.registry.ListByWorkspace(workspaceID)
}

// GetMemoriesByWorkspace lists the workspace's memories, newest first.
func (q *Query) GetMemoriesByWorkspace(ctx context.Context, workspaceID string) ([]*store.Memory, error) {
	if q.memories == nil {
		return []*store.Memory{}, nil
	}
	mems, err := q.memories.ListMemoriesByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	return mems, nil
}

// GetMemoryByID fetches a memory from the bank.
func (q *Query) GetMemoryByID(ctx context.Context, memoryID string) (*store.Memory, bool, error) {
	if q.memories == nil {
		return nil, false, nil
	}
	mem, err := q.memories.GetMemory(ctx, memoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting memory: %w", err)
	}
	return mem, true, nil
}

// ActiveContext returns the active memories for context assembly.
func (q *Query) ActiveContext(conversationID string) []store.MemoryRef {
	return q.registry.ActiveMemories(conversationID)
}

// PinnedMessages returns the conversation's pinned messages in chronological order.
func (q *Query) PinnedMessages(conversationID string) []*store.Message {
	result := []*store.Message{}
	conv, ok := q.registry.Get(conversationID)
	if !ok {
		return result
	}
	for _, m := range conv.Messages {
		if m.IsPinned {
			result = append(result, m)
		}
	}
	return result
}
