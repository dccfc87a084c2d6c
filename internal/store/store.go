// ABOUTME: Store interfaces and data types for memex persistence
// ABOUTME: Defines Conversation, Message, MemoryAssociation and Memory plus the storage contracts

package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConversationStatus is the lifecycle state of a conversation
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"   // accepting messages
	StatusClosed   ConversationStatus = "closed"   // summarized, read-only until reopened
	StatusArchived ConversationStatus = "archived" // closed and filed away
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single entry in a conversation's chronological sequence
type Message struct {
	ID              string
	ConversationID  string
	Role            Role
	Content         string
	IsPinned        bool
	// ClientMessageID is the caller's idempotency key, unique per conversation when set
	ClientMessageID string
	CreatedAt       time.Time
}

// MemoryRef holds the display fields of a memory cached alongside an association.
// The canonical record lives in the memory bank.
type MemoryRef struct {
	ID      string
	Title   string
	Snippet string
	Tags    []string
}

// MemoryAssociation records that a memory is injected into a conversation.
// IsActive controls whether the memory is part of the assembled context.
type MemoryAssociation struct {
	ConversationID string
	MemoryID       string
	IsActive       bool
	Memory         MemoryRef
	InjectedAt     time.Time
}

// Conversation is a titled thread of messages bound to one model and one workspace.
// It owns its messages and memory associations.
type Conversation struct {
	ID               string
	WorkspaceID      string
	Title            string
	ModelID          string
	Status           ConversationStatus
	Messages         []*Message
	InjectedMemories []*MemoryAssociation

	// Revision increases whenever the message sequence changes (append or delete).
	Revision int64

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		cp := *m
		out.Messages[i] = &cp
	}
	out.InjectedMemories = make([]*MemoryAssociation, len(c.InjectedMemories))
	for i, a := range c.InjectedMemories {
		cp := *a
		cp.Memory.Tags = slices.Clone(a.Memory.Tags)
		out.InjectedMemories[i] = &cp
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	return &out
}

// FindClientMessage returns the message stored under a client message ID, or nil.
func (c *Conversation) FindClientMessage(clientMessageID string) *Message {
	if clientMessageID == "" {
		return nil
	}
	for _, m := range c.Messages {
		if m.ClientMessageID == clientMessageID {
			return m
		}
	}
	return nil
}

// FindMessage returns the index and message with the given ID, or -1 and nil.
func (c *Conversation) FindMessage(messageID string) (int, *Message) {
	for i, m := range c.Messages {
		if m.ID == messageID {
			return i, m
		}
	}
	return -1, nil
}

// FindAssociation returns the index and association for memoryID, or -1 and nil.
func (c *Conversation) FindAssociation(memoryID string) (int, *MemoryAssociation) {
	for i, a := range c.InjectedMemories {
		if a.MemoryID == memoryID {
			return i, a
		}
	}
	return -1, nil
}

// Memory is a long-term memory record, usually produced by summarizing a closed conversation.
type Memory struct {
	ID                   string
	WorkspaceID          string
	Title                string
	Snippet              string
	Content              string
	Tags                 []string
	SourceConversationID string // empty for memories not produced by a conversation
	CreatedAt            time.Time
}

// Ref returns the cached display fields for this memory.
func (m *Memory) Ref() MemoryRef {
	return MemoryRef{
		ID:      m.ID,
		Title:   m.Title,
		Snippet: m.Snippet,
		Tags:    slices.Clone(m.Tags),
	}
}

// ConversationStore persists whole conversation aggregates
type ConversationStore interface {
	// SaveConversation inserts or replaces the conversation with its messages and associations.
	SaveConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns conversations in creation order. An empty
	// workspaceID lists every workspace.
	ListConversations(ctx context.Context, workspaceID string) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// MemoryStore persists memory records
type MemoryStore interface {
	SaveMemory(ctx context.Context, mem *Memory) error
	GetMemory(ctx context.Context, id string) (*Memory, error)
	// ListMemories returns memories newest first. An empty workspaceID lists every workspace.
	ListMemories(ctx context.Context, workspaceID string) ([]*Memory, error)
	ListMemoriesByConversation(ctx context.Context, conversationID string) ([]*Memory, error)
	DeleteMemory(ctx context.Context, id string) error
}

// Store is the full persistence surface
type Store interface {
	ConversationStore
	MemoryStore
	ActivityStore

	// Close releases any resources held by the store
	Close() error
}
