// ABOUTME: Message commands: append, pin, unpin and delete within a conversation
// ABOUTME: Append requires an active conversation; pin and unpin are idempotent

package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/memex/internal/dedupe"
	"github.com/2389/memex/internal/store"
)

// AppendRequest describes a message to add to a conversation
type AppendRequest struct {
	Role    store.Role // defaults to user
	Content string

	// ClientMessageID, when set, makes retries idempotent: a repeat returns the
	// message stored by the first attempt, even after a restart.
	ClientMessageID string
}

// Append adds a message to the end of an active conversation and returns the
// stored message with its generated ID and timestamp.
func (r *Registry) Append(ctx context.Context, conversationID string, req AppendRequest) (*store.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, invalidArgument("message content is empty")
	}
	role := req.Role
	if role == "" {
		role = store.RoleUser
	}
	if !role.Valid() {
		return nil, invalidArgument("unknown role %q", role)
	}

	var dedupeKey string
	if r.dedupe != nil && req.ClientMessageID != "" {
		dedupeKey = dedupe.Key(conversationID, req.ClientMessageID)
	}

	var stored *store.Message
	remembered := false
	_, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		if existing := r.findDuplicate(conv, dedupeKey, req.ClientMessageID); existing != nil {
			r.logger.Debug("duplicate append ignored",
				"conversation_id", conversationID,
				"client_message_id", req.ClientMessageID,
				"message_id", existing.ID)
			stored = existing
			return nil, nil
		}

		if conv.Status != store.StatusActive {
			return nil, &InvalidStateError{Op: "append to", ConversationID: conversationID, Status: conv.Status}
		}

		msg := &store.Message{
			ID:              uuid.New().String(),
			ConversationID:  conversationID,
			Role:            role,
			Content:         content,
			ClientMessageID: req.ClientMessageID,
			CreatedAt:       time.Now(),
		}
		conv.Messages = append(conv.Messages, msg)
		conv.Revision++
		stored = msg

		if dedupeKey != "" {
			r.dedupe.Remember(dedupeKey, msg.ID)
			remembered = true
		}
		return &Event{Type: EventMessageAppended, MessageID: msg.ID}, nil
	})
	if err != nil {
		if remembered {
			r.dedupe.Forget(dedupeKey)
		}
		return nil, err
	}

	r.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", stored.ID,
		"role", stored.Role)

	cp := *stored
	return &cp, nil
}

// findDuplicate resolves a retried append. The cache answers recent retries;
// the persisted client message IDs answer retries from earlier processes.
func (r *Registry) findDuplicate(conv *store.Conversation, dedupeKey, clientMessageID string) *store.Message {
	if clientMessageID == "" {
		return nil
	}
	if dedupeKey != "" {
		if id, ok := r.dedupe.Lookup(dedupeKey); ok {
			if _, msg := conv.FindMessage(id); msg != nil {
				return msg
			}
		}
	}
	msg := conv.FindClientMessage(clientMessageID)
	if msg != nil && dedupeKey != "" {
		r.dedupe.Remember(dedupeKey, msg.ID)
	}
	return msg
}

// Pin marks a message as pinned. Pinning a pinned message is a no-op.
func (r *Registry) Pin(ctx context.Context, conversationID, messageID string) (*store.Message, error) {
	return r.setPinned(ctx, conversationID, messageID, func(bool) bool { return true })
}

// Unpin clears the pinned flag. Unpinning an unpinned message is a no-op.
func (r *Registry) Unpin(ctx context.Context, conversationID, messageID string) (*store.Message, error) {
	return r.setPinned(ctx, conversationID, messageID, func(bool) bool { return false })
}

// TogglePin pins an unpinned message and unpins a pinned one.
func (r *Registry) TogglePin(ctx context.Context, conversationID, messageID string) (*store.Message, error) {
	return r.setPinned(ctx, conversationID, messageID, func(pinned bool) bool { return !pinned })
}

func (r *Registry) setPinned(ctx context.Context, conversationID, messageID string, next func(bool) bool) (*store.Message, error) {
	var result *store.Message
	_, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		_, msg := conv.FindMessage(messageID)
		if msg == nil {
			return nil, &NotFoundError{Kind: KindMessage, ID: messageID}
		}
		result = msg

		want := next(msg.IsPinned)
		if msg.IsPinned == want {
			return nil, nil
		}
		msg.IsPinned = want
		if want {
			return &Event{Type: EventMessagePinned, MessageID: messageID}, nil
		}
		return &Event{Type: EventMessageUnpinned, MessageID: messageID}, nil
	})
	if err != nil {
		return nil, err
	}

	cp := *result
	return &cp, nil
}

// DeleteMessage removes a message from the conversation. Memory associations
// are not affected.
func (r *Registry) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := r.mutate(ctx, conversationID, func(conv *store.Conversation) (*Event, error) {
		idx, msg := conv.FindMessage(messageID)
		if msg == nil {
			return nil, &NotFoundError{Kind: KindMessage, ID: messageID}
		}
		conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
		conv.Revision++
		return &Event{Type: EventMessageDeleted, MessageID: messageID}, nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("message deleted",
		"conversation_id", conversationID,
		"message_id", messageID)
	return nil
}

// GetMessage looks up a message. It never fails: a missing conversation or
// message reports false.
func (r *Registry) GetMessage(conversationID, messageID string) (*store.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, false
	}
	_, msg := conv.FindMessage(messageID)
	if msg == nil {
		return nil, false
	}
	cp := *msg
	return &cp, true
}
