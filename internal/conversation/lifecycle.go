// ABOUTME: Lifecycle controller: close-and-summarize, reopen and archive transitions
// ABOUTME: Close commits only after the summary memory is stored and no messages changed meanwhile

package conversation

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/2389/memex/internal/store"
)

// ConversationTag is the tag carried by every memory summarized from a conversation.
func ConversationTag(conversationID string) string {
	return "conversation:" + conversationID
}

// CloseResult reports the outcome of Close
type CloseResult struct {
	Conversation *store.Conversation
	// Memory is the summary produced by this close. Nil when AlreadyClosed.
	Memory *store.Memory
	// AlreadyClosed is set when the conversation was closed before the call.
	AlreadyClosed bool
}

// Close summarizes an active conversation into a memory and transitions it to
// closed. The conversation stays active while the summarizer runs, so appends
// are still accepted; if any message is appended or deleted before the summary
// is committed, the summary is discarded and ErrStaleClose is returned inside a
// *CollaboratorError. Summarizer or memory bank failures leave the conversation
// active and no memory stored.
//
// Closing a closed conversation is a no-op. Concurrent Close calls for the same
// conversation share one summarization and its result.
func (r *Registry) Close(ctx context.Context, conversationID string) (*CloseResult, error) {
	v, err, shared := r.closing.Do(conversationID, func() (any, error) {
		return r.close(ctx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("close request coalesced", "conversation_id", conversationID)
	}
	return v.(*CloseResult), nil
}

func (r *Registry) close(ctx context.Context, conversationID string) (*CloseResult, error) {
	r.mu.RLock()
	current, ok := r.convs[conversationID]
	if !ok {
		r.mu.RUnlock()
		return nil, conversationNotFound(conversationID)
	}
	snapshot := current.Clone()
	r.mu.RUnlock()

	switch snapshot.Status {
	case store.StatusClosed:
		return &CloseResult{Conversation: snapshot, AlreadyClosed: true}, nil
	case store.StatusArchived:
		return nil, &InvalidStateError{Op: "close", ConversationID: conversationID, Status: snapshot.Status}
	}

	if r.summarizer == nil {
		return nil, &CollaboratorError{Op: "summarize", ConversationID: conversationID, Err: errors.New("no summarizer configured")}
	}

	r.logger.Info("summarizing conversation",
		"conversation_id", conversationID,
		"messages", len(snapshot.Messages),
		"revision", snapshot.Revision)

	mem, err := r.summarize(ctx, snapshot)
	if err != nil {
		r.logger.Warn("summarization failed, conversation stays active",
			"conversation_id", conversationID,
			"error", err)
		return nil, &CollaboratorError{Op: "summarize", ConversationID: conversationID, Err: err}
	}

	// Bail out before storing anything if the conversation moved on
	if err := r.checkCloseable(conversationID, snapshot.Revision); err != nil {
		return nil, err
	}

	if r.memories != nil {
		if err := r.memories.SaveMemory(ctx, mem); err != nil {
			return nil, &CollaboratorError{Op: "save summary", ConversationID: conversationID, Err: err}
		}
	}

	closed, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		if conv.Revision != snapshot.Revision {
			return nil, &CollaboratorError{Op: "close", ConversationID: conversationID, Err: ErrStaleClose}
		}
		if conv.Status != store.StatusActive {
			return nil, &InvalidStateError{Op: "close", ConversationID: conversationID, Status: conv.Status}
		}
		now := time.Now()
		conv.Status = store.StatusClosed
		conv.ClosedAt = &now
		return &Event{Type: EventClosed, MemoryID: mem.ID}, nil
	})
	if err != nil {
		r.discardSummary(mem)
		return nil, err
	}

	r.logger.Info("conversation closed",
		"conversation_id", conversationID,
		"memory_id", mem.ID)

	return &CloseResult{Conversation: closed, Memory: mem}, nil
}

// summarize calls the summarizer under the configured timeout and fills in the
// fields that tie the memory to its conversation.
func (r *Registry) summarize(ctx context.Context, conv *store.Conversation) (*store.Memory, error) {
	if r.summarizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.summarizeTimeout)
		defer cancel()
	}

	mem, err := r.summarizer.Summarize(ctx, conv, conv.Messages)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, errors.New("summarizer returned no memory")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mem.ID == "" {
		mem.ID = uuid.New().String()
	}
	if mem.WorkspaceID == "" {
		mem.WorkspaceID = conv.WorkspaceID
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	mem.SourceConversationID = conv.ID
	if tag := ConversationTag(conv.ID); !slices.Contains(mem.Tags, tag) {
		mem.Tags = append(mem.Tags, tag)
	}
	return mem, nil
}

// checkCloseable verifies the conversation still exists, is active and has
// the revision the summary was built from.
func (r *Registry) checkCloseable(conversationID string, revision int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return conversationNotFound(conversationID)
	}
	if conv.Revision != revision {
		r.logger.Info("discarding stale summary",
			"conversation_id", conversationID,
			"summarized_revision", revision,
			"current_revision", conv.Revision)
		return &CollaboratorError{Op: "close", ConversationID: conversationID, Err: ErrStaleClose}
	}
	if conv.Status != store.StatusActive {
		return &InvalidStateError{Op: "close", ConversationID: conversationID, Status: conv.Status}
	}
	return nil
}

// discardSummary deletes a stored summary whose close did not commit.
// Best-effort: the close already failed and that error is what the caller sees.
func (r *Registry) discardSummary(mem *store.Memory) {
	if r.memories == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.memories.DeleteMemory(ctx, mem.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("failed to discard summary memory",
			"memory_id", mem.ID,
			"error", err)
	}
}

// Reopen makes a closed or archived conversation active again. Messages,
// associations and previously produced summaries are untouched. Reopening an
// active conversation is a no-op.
func (r *Registry) Reopen(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		if conv.Status == store.StatusActive {
			return nil, nil
		}
		conv.Status = store.StatusActive
		conv.ClosedAt = nil
		return &Event{Type: EventReopened}, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("conversation reopened", "conversation_id", conversationID)
	return conv, nil
}

// Archive files away a closed conversation. Archiving an archived conversation
// is a no-op; active conversations must be closed first.
func (r *Registry) Archive(ctx context.Context, conversationID string) (*store.Conversation, error) {
	return r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		switch conv.Status {
		case store.StatusArchived:
			return nil, nil
		case store.StatusActive:
			return nil, &InvalidStateError{Op: "archive", ConversationID: conversationID, Status: conv.Status}
		}
		conv.Status = store.StatusArchived
		return &Event{Type: EventArchived}, nil
	})
}
