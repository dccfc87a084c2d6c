// ABOUTME: Memory console commands: remember, search and inject
// ABOUTME: Handlers decode JSON parameters and drive the memory bank and conversation registry

package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/memex/internal/memory"
	"github.com/2389/memex/internal/store"
)

// DefaultMaxMemories bounds how many memories a single inject command adds
const DefaultMaxMemories = 10

// Conversations is what the memory commands need from the conversation registry
type Conversations interface {
	Get(conversationID string) (*store.Conversation, bool)
	Inject(ctx context.Context, conversationID, memoryID string) (*store.MemoryAssociation, error)
}

// Memories is what the memory commands need from the memory bank
type Memories interface {
	Remember(ctx context.Context, req memory.RememberRequest) (*store.Memory, error)
	Search(ctx context.Context, workspaceID, query string, topK int) ([]memory.SearchResult, error)
	ListMemoriesByWorkspace(ctx context.Context, workspaceID string) ([]*store.Memory, error)
}

// MemoryCommands returns the remember, search and inject commands.
func MemoryCommands(convs Conversations, mems Memories) []*Command {
	h := &memoryHandlers{convs: convs, mems: mems}
	return []*Command{
		{
			Name:        "remember",
			Description: "Store text as a memory in the conversation's workspace",
			Template:    `{"text": "Your memory content here", "conversation_id": "conv-123", "tags": ["tag1"]}`,
			Handler:     h.Remember,
		},
		{
			Name:        "search",
			Description: "Search memories by keyword",
			Template:    `{"query": "your search query", "top_k": 5}`,
			Handler:     h.Search,
		},
		{
			Name:        "inject",
			Description: "Inject the most recent workspace memories into a conversation",
			Template:    `{"conversation_id": "conv-123", "max_memories": 10}`,
			Handler:     h.Inject,
		},
	}
}

type memoryHandlers struct {
	convs Conversations
	mems  Memories
}

type rememberInput struct {
	Text           string   `json:"text"`
	ConversationID string   `json:"conversation_id"`
	Tags           []string `json:"tags"`
}

func (h *memoryHandlers) Remember(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var in rememberInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Text == "" || in.ConversationID == "" {
		return nil, errors.New(`remember() requires "text" and "conversation_id" fields`)
	}

	conv, ok := h.convs.Get(in.ConversationID)
	if !ok {
		return nil, fmt.Errorf("conversation %q not found", in.ConversationID)
	}

	mem, err := h.mems.Remember(ctx, memory.RememberRequest{
		WorkspaceID:          conv.WorkspaceID,
		Text:                 in.Text,
		SourceConversationID: conv.ID,
		Tags:                 in.Tags,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":      true,
		"memory_id":    mem.ID,
		"title":        mem.Title,
		"workspace_id": mem.WorkspaceID,
		"tags":         mem.Tags,
	}, nil
}

type searchInput struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
	WorkspaceID string `json:"workspace_id"`
}

type searchHit struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Tags    []string `json:"tags"`
	Score   float64  `json:"score"`
}

func (h *memoryHandlers) Search(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var in searchInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Query == "" {
		return nil, errors.New(`search() requires "query" field`)
	}

	results, err := h.mems.Search(ctx, in.WorkspaceID, in.Query, in.TopK)
	if err != nil {
		return nil, err
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ID:      r.Memory.ID,
			Title:   r.Memory.Title,
			Snippet: r.Memory.Snippet,
			Tags:    r.Memory.Tags,
			Score:   r.Score,
		})
	}

	return map[string]any{
		"success": true,
		"results": hits,
		"count":   len(hits),
	}, nil
}

type injectInput struct {
	ConversationID string `json:"conversation_id"`
	MaxMemories    int    `json:"max_memories"`
}

func (h *memoryHandlers) Inject(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var in injectInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ConversationID == "" {
		return nil, errors.New(`inject() requires "conversation_id" field`)
	}
	limit := in.MaxMemories
	if limit <= 0 {
		limit = DefaultMaxMemories
	}

	conv, ok := h.convs.Get(in.ConversationID)
	if !ok {
		return nil, fmt.Errorf("conversation %q not found", in.ConversationID)
	}

	candidates, err := h.mems.ListMemoriesByWorkspace(ctx, conv.WorkspaceID)
	if err != nil {
		return nil, err
	}

	injected := []string{}
	for _, mem := range candidates {
		if len(injected) >= limit {
			break
		}
		if _, existing := conv.FindAssociation(mem.ID); existing != nil {
			continue
		}
		if _, err := h.convs.Inject(ctx, conv.ID, mem.ID); err != nil {
			return nil, fmt.Errorf("injecting memory %s: %w", mem.ID, err)
		}
		injected = append(injected, mem.ID)
	}

	return map[string]any{
		"success":         true,
		"conversation_id": conv.ID,
		"injected":        injected,
		"count":           len(injected),
	}, nil
}
