// ABOUTME: Error taxonomy for the conversation core
// ABOUTME: NotFound, InvalidState and Collaborator errors that match sentinels via errors.Is

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/memex/internal/store"
)

var (
	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrInvalidState matches any *InvalidStateError
	ErrInvalidState = errors.New("invalid state")
	// ErrCollaborator matches any *CollaboratorError
	ErrCollaborator = errors.New("collaborator failed")
	// ErrInvalidArgument is returned for malformed command input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStaleClose is wrapped in a *CollaboratorError when messages changed
	// while a close was waiting on the summarizer.
	ErrStaleClose = errors.New("conversation changed while it was being summarized")
)

// Entity kinds reported by NotFoundError
const (
	KindConversation = "conversation"
	KindMessage      = "message"
	KindMemory       = "memory"
	KindAssociation  = "memory association"
)

// NotFoundError reports a missing conversation, message, memory or association.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidStateError reports an operation that the conversation's lifecycle
// status does not permit. Err optionally carries the underlying reason.
type InvalidStateError struct {
	Op             string
	ConversationID string
	Status         store.ConversationStatus
	Err            error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot %s conversation %q: %v", e.Op, e.ConversationID, e.Err)
	}
	return fmt.Sprintf("cannot %s conversation %q in status %q", e.Op, e.ConversationID, e.Status)
}

// Is lets errors.Is(err, ErrInvalidState) match.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}

// CollaboratorError wraps a failure of the summarizer or the memory bank.
type CollaboratorError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed for conversation %q: %v", e.Op, e.ConversationID, e.Err)
}

// Is lets errors.Is(err, ErrCollaborator) match.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func conversationNotFound(id string) error {
	return &NotFoundError{Kind: KindConversation, ID: id}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
