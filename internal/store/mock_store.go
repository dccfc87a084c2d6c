// ABOUTME: In-memory Store implementation for tests and database-less callers
// ABOUTME: Mirrors SQLiteStore semantics including ordering and ErrNotFound

package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MockStore is an in-memory Store implementation.
// All values are copied on the way in and out so callers cannot alias stored state.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	convOrder     []string                 // creation order
	memories      map[string]*Memory       // keyed by memory ID
	memOrder      []string                 // insertion order
	activity      []*ActivityEntry         // append order

	// SaveErr, when set, is returned by SaveConversation and SaveMemory.
	// Tests use it to simulate a failing database.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		memories:      make(map[string]*Memory),
	}
}

// SaveConversation stores a copy of the conversation.
func (m *MockStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}

	if _, exists := m.conversations[conv.ID]; !exists {
		m.convOrder = append(m.convOrder, conv.ID)
	}
	m.conversations[conv.ID] = conv.Clone()
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// ListConversations returns conversations in creation order.
func (m *MockStore) ListConversations(ctx context.Context, workspaceID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, id := range m.convOrder {
		conv := m.conversations[id]
		if workspaceID != "" && conv.WorkspaceID != workspaceID {
			continue
		}
		result = append(result, conv.Clone())
	}
	return result, nil
}

// DeleteConversation removes a conversation.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	m.convOrder = slices.DeleteFunc(m.convOrder, func(s string) bool { return s == id })
	return nil
}

// SaveMemory stores a copy of the memory.
func (m *MockStore) SaveMemory(ctx context.Context, mem *Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}

	if _, exists := m.memories[mem.ID]; !exists {
		m.memOrder = append(m.memOrder, mem.ID)
	}
	m.memories[mem.ID] = copyMemory(mem)
	return nil
}

// GetMemory retrieves a memory by ID.
func (m *MockStore) GetMemory(ctx context.Context, id string) (*Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMemory(mem), nil
}

// ListMemories returns memories newest first.
func (m *MockStore) ListMemories(ctx context.Context, workspaceID string) ([]*Memory, error) {
	return m.filterMemories(func(mem *Memory) bool {
		return workspaceID == "" || mem.WorkspaceID == workspaceID
	}), nil
}

// ListMemoriesByConversation returns memories summarized from a conversation, newest first.
func (m *MockStore) ListMemoriesByConversation(ctx context.Context, conversationID string) ([]*Memory, error) {
	return m.filterMemories(func(mem *Memory) bool {
		return mem.SourceConversationID == conversationID
	}), nil
}

// DeleteMemory removes a memory.
func (m *MockStore) DeleteMemory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memories[id]; !ok {
		return ErrNotFound
	}
	delete(m.memories, id)
	m.memOrder = slices.DeleteFunc(m.memOrder, func(s string) bool { return s == id })
	return nil
}

// SaveActivity appends a copy of the entry.
func (m *MockStore) SaveActivity(ctx context.Context, entry *ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *entry
	m.activity = append(m.activity, &cp)
	return nil
}

// ListActivity pages through a conversation's entries in chronological order.
func (m *MockStore) ListActivity(ctx context.Context, p ListActivityParams) (*ListActivityResult, error) {
	if err := normalizeActivityParams(&p); err != nil {
		return nil, err
	}

	var after func(*ActivityEntry) bool
	if p.Cursor != "" {
		ts, id, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		after = func(e *ActivityEntry) bool {
			return e.CreatedAt.After(ts) || (e.CreatedAt.Equal(ts) && e.ID > id)
		}
	}

	m.mu.RLock()
	var entries []*ActivityEntry
	for _, e := range m.activity {
		if e.ConversationID != p.ConversationID || (after != nil && !after(e)) {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}
	m.mu.RUnlock()

	slices.SortStableFunc(entries, func(a, b *ActivityEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(entries) > p.Limit+1 {
		entries = entries[:p.Limit+1]
	}
	return pageActivity(entries, p.Limit), nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) filterMemories(keep func(*Memory) bool) []*Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Memory
	// Walk insertion order backwards for newest first
	for i := len(m.memOrder) - 1; i >= 0; i-- {
		mem := m.memories[m.memOrder[i]]
		if keep(mem) {
			result = append(result, copyMemory(mem))
		}
	}
	return result
}

func copyMemory(mem *Memory) *Memory {
	cp := *mem
	cp.Tags = slices.Clone(mem.Tags)
	return &cp
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
