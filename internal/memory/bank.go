// ABOUTME: Memory bank over store.MemoryStore: lookup, listing, remember and term search
// ABOUTME: Serves as the registry's MemorySource and backs the developer console

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/2389/memex/internal/store"
)

const (
	// DefaultSearchLimit is used when Search is called with topK <= 0
	DefaultSearchLimit = 5
	// MaxSearchLimit caps the number of results Search returns
	MaxSearchLimit = 100
)

// ErrEmptyQuery is returned by Search when the query has no searchable terms.
var ErrEmptyQuery = errors.New("search query has no terms")

// RememberRequest describes a memory written directly rather than summarized
type RememberRequest struct {
	WorkspaceID          string
	Text                 string
	SourceConversationID string
	Tags                 []string
}

// SearchResult is a memory with its relevance score
type SearchResult struct {
	Memory *store.Memory
	Score  float64
}

// Bank is the long-term memory collaborator. It is safe for concurrent use
// when the underlying store is.
type Bank struct {
	store       store.MemoryStore
	titleLength int
	logger      *slog.Logger
}

// NewBank creates a memory bank. titleLength bounds titles derived by
// Remember; <= 0 uses DefaultTitleLength.
func NewBank(s store.MemoryStore, titleLength int, logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	if titleLength <= 0 {
		titleLength = DefaultTitleLength
	}
	return &Bank{
		store:       s,
		titleLength: titleLength,
		logger:      logger.With("component", "memory"),
	}
}

// GetMemory returns the memory or store.ErrNotFound.
func (b *Bank) GetMemory(ctx context.Context, id string) (*store.Memory, error) {
	return b.store.GetMemory(ctx, id)
}

// ListMemoriesByWorkspace returns the workspace's memories, newest first.
func (b *Bank) ListMemoriesByWorkspace(ctx context.Context, workspaceID string) ([]*store.Memory, error) {
	mems, err := b.store.ListMemories(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	if mems == nil {
		mems = []*store.Memory{}
	}
	return mems, nil
}

// ListMemoriesByConversation returns memories summarized from a conversation.
func (b *Bank) ListMemoriesByConversation(ctx context.Context, conversationID string) ([]*store.Memory, error) {
	mems, err := b.store.ListMemoriesByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	if mems == nil {
		mems = []*store.Memory{}
	}
	return mems, nil
}

// SaveMemory stores mem, assigning an ID and creation time when missing.
func (b *Bank) SaveMemory(ctx context.Context, mem *store.Memory) error {
	if mem.ID == "" {
		mem.ID = uuid.New().String()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	if err := b.store.SaveMemory(ctx, mem); err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}

	b.logger.Debug("memory saved",
		"memory_id", mem.ID,
		"workspace_id", mem.WorkspaceID,
		"source_conversation_id", mem.SourceConversationID)
	return nil
}

// DeleteMemory removes a memory. Returns store.ErrNotFound if absent.
func (b *Bank) DeleteMemory(ctx context.Context, id string) error {
	return b.store.DeleteMemory(ctx, id)
}

// Remember stores free text as a memory. The title is the first line of the
// text, the snippet its plain-text rendering.
func (b *Bank) Remember(ctx context.Context, req RememberRequest) (*store.Memory, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("memory text is empty")
	}

	plain := PlainText(text)
	title, _, _ := strings.Cut(plain, "\n")

	tags := slices.Clone(req.Tags)
	if req.SourceConversationID != "" {
		if tag := "conversation:" + req.SourceConversationID; !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	mem := &store.Memory{
		WorkspaceID:          req.WorkspaceID,
		Title:                truncate(title, b.titleLength),
		Snippet:              truncate(collapseSpace(plain), DefaultSnippetLength),
		Content:              text,
		Tags:                 tags,
		SourceConversationID: req.SourceConversationID,
	}
	if err := b.SaveMemory(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// Search ranks memories in workspaceID (all workspaces when empty) by how many
// query terms they contain. Title and tag matches weigh more than body matches.
// Ties go to the newer memory.
func (b *Bank) Search(ctx context.Context, workspaceID, query string, topK int) ([]SearchResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultSearchLimit
	}
	topK = min(topK, MaxSearchLimit)

	mems, err := b.store.ListMemories(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := []SearchResult{}
	for _, mem := range mems {
		if score := scoreMemory(mem, terms); score > 0 {
			results = append(results, SearchResult{Memory: mem, Score: score})
		}
	}

	// Stable sort keeps the store's newest-first order among equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	b.logger.Debug("memory search",
		"workspace_id", workspaceID,
		"terms", len(terms),
		"candidates", len(mems),
		"results", len(results))
	return results, nil
}

func scoreMemory(mem *store.Memory, terms []string) float64 {
	title := strings.ToLower(mem.Title)
	body := strings.ToLower(mem.Content + " " + mem.Snippet)
	tags := strings.ToLower(strings.Join(mem.Tags, " "))

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 2
		}
		if strings.Contains(tags, term) {
			score += 1.5
		}
		if n := strings.Count(body, term); n > 0 {
			score += 1 + float64(min(n, 5)-1)*0.1
		}
	}
	return score
}

// tokenize lowercases the query and splits it into unique alphanumeric terms.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	for _, f := range fields {
		if !slices.Contains(terms, f) {
			terms = append(terms, f)
		}
	}
	return terms
}
