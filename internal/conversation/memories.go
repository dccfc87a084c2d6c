// ABOUTME: Memory association commands: inject, uninject and toggle active per conversation
// ABOUTME: Injection is idempotent and never resets a paused association to active

package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/2389/memex/internal/store"
)

// Inject associates a memory with a conversation as active. Injecting a memory
// that is already associated returns the existing association unchanged, so a
// paused memory stays paused. Injection is allowed in any lifecycle status.
func (r *Registry) Inject(ctx context.Context, conversationID, memoryID string) (*store.MemoryAssociation, error) {
	if memoryID == "" {
		return nil, invalidArgument("memory id is required")
	}

	conv, ok := r.Get(conversationID)
	if !ok {
		return nil, &InvalidStateError{
			Op:             "inject into",
			ConversationID: conversationID,
			Err:            conversationNotFound(conversationID),
		}
	}
	if _, existing := conv.FindAssociation(memoryID); existing != nil {
		return copyAssociation(existing), nil
	}

	ref, err := r.resolveMemory(ctx, conv, memoryID)
	if err != nil {
		return nil, err
	}

	var result *store.MemoryAssociation
	_, err = r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		// Another caller may have injected while the memory was being resolved
		if _, existing := conv.FindAssociation(memoryID); existing != nil {
			result = existing
			return nil, nil
		}
		assoc := &store.MemoryAssociation{
			ConversationID: conversationID,
			MemoryID:       memoryID,
			IsActive:       true,
			Memory:         ref,
			InjectedAt:     time.Now(),
		}
		conv.InjectedMemories = append(conv.InjectedMemories, assoc)
		result = assoc
		return &Event{Type: EventMemoryInjected, MemoryID: memoryID}, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted between the existence check and the mutation
			return nil, &InvalidStateError{Op: "inject into", ConversationID: conversationID, Err: err}
		}
		return nil, err
	}

	r.logger.Debug("memory injected",
		"conversation_id", conversationID,
		"memory_id", memoryID)
	return copyAssociation(result), nil
}

// resolveMemory fetches the display fields for memoryID from the memory bank.
// Without a memory bank only the ID is cached.
func (r *Registry) resolveMemory(ctx context.Context, conv *store.Conversation, memoryID string) (store.MemoryRef, error) {
	if r.memories == nil {
		return store.MemoryRef{ID: memoryID}, nil
	}

	mem, err := r.memories.GetMemory(ctx, memoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.MemoryRef{}, &NotFoundError{Kind: KindMemory, ID: memoryID}
		}
		return store.MemoryRef{}, &CollaboratorError{Op: "memory lookup", ConversationID: conv.ID, Err: err}
	}
	if mem.WorkspaceID != "" && mem.WorkspaceID != conv.WorkspaceID {
		return store.MemoryRef{}, invalidArgument("memory %q belongs to workspace %q, not %q",
			memoryID, mem.WorkspaceID, conv.WorkspaceID)
	}
	return mem.Ref(), nil
}

// Uninject removes a memory association.
func (r *Registry) Uninject(ctx context.Context, conversationID, memoryID string) error {
	_, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		idx, assoc := conv.FindAssociation(memoryID)
		if assoc == nil {
			return nil, &NotFoundError{Kind: KindAssociation, ID: memoryID}
		}
		conv.InjectedMemories = append(conv.InjectedMemories[:idx], conv.InjectedMemories[idx+1:]...)
		return &Event{Type: EventMemoryRemoved, MemoryID: memoryID}, nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("memory removed",
		"conversation_id", conversationID,
		"memory_id", memoryID)
	return nil
}

// ToggleActive flips whether an injected memory is part of the assembled
// context and returns the new value. Paused memories stay in the injected list.
func (r *Registry) ToggleActive(ctx context.Context, conversationID, memoryID string) (bool, error) {
	var active bool
	_, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		_, assoc := conv.FindAssociation(memoryID)
		if assoc == nil {
			return nil, &NotFoundError{Kind: KindAssociation, ID: memoryID}
		}
		assoc.IsActive = !assoc.IsActive
		active = assoc.IsActive
		return &Event{Type: EventMemoryToggled, MemoryID: memoryID}, nil
	})
	if err != nil {
		return false, err
	}

	r.logger.Debug("memory toggled",
		"conversation_id", conversationID,
		"memory_id", memoryID,
		"active", active)
	return active, nil
}

// IsInjected reports whether memoryID is associated with the conversation.
func (r *Registry) IsInjected(conversationID, memoryID string) bool {
	_, ok := r.association(conversationID, memoryID)
	return ok
}

// IsActive reports whether memoryID is injected and active.
func (r *Registry) IsActive(conversationID, memoryID string) bool {
	a, ok := r.association(conversationID, memoryID)
	return ok && a.IsActive
}

// ActiveMemories returns the memories that context assembly should include,
// in injection order. Paused associations are excluded.
func (r *Registry) ActiveMemories(conversationID string) []store.MemoryRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []store.MemoryRef{}
	conv, ok := r.convs[conversationID]
	if !ok {
		return result
	}
	for _, a := range conv.InjectedMemories {
		if a.IsActive {
			ref := a.Memory
			ref.ID = a.MemoryID
			ref.Tags = append([]string(nil), a.Memory.Tags...)
			result = append(result, ref)
		}
	}
	return result
}

func (r *Registry) association(conversationID, memoryID string) (store.MemoryAssociation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return store.MemoryAssociation{}, false
	}
	_, a := conv.FindAssociation(memoryID)
	if a == nil {
		return store.MemoryAssociation{}, false
	}
	return *a, true
}

func copyAssociation(a *store.MemoryAssociation) *store.MemoryAssociation {
	cp := *a
	cp.Memory.Tags = append([]string(nil), a.Memory.Tags...)
	return &cp
}
