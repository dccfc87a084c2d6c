// Package conversation is the conversation and memory state core.
//
// # Overview
//
// A Registry owns every conversation in memory and is the only write path.
// Each command clones the current aggregate, applies its change, writes the
// clone through the store.ConversationStore beneath it, swaps the clone in and
// then publishes an Event. Commands are atomic with respect to each other and
// readers always get a deep copy of a committed snapshot.
//
//	reg := conversation.NewRegistry(conversation.Options{
//		Store:      db,
//		Memories:   bank,
//		Summarizer: memory.NewExtractiveSummarizer(0, 0),
//		Logger:     logger,
//	})
//	if err := reg.Load(ctx); err != nil { ... }
//
// # Commands
//
// Messages (messages.go):
//
//   - Append: requires an active conversation; optional ClientMessageID makes retries idempotent
//   - Pin, Unpin, TogglePin: idempotent, allowed in any status
//   - DeleteMessage: hard delete, associations untouched
//
// Memory associations (memories.go):
//
//   - Inject: idempotent; an existing association is never reset to active
//   - Uninject, ToggleActive
//   - ActiveMemories: the view context assembly consumes
//
// Lifecycle (lifecycle.go):
//
//	active --Close--> closed --Archive--> archived
//	   ^                 |                    |
//	   +-----Reopen------+--------------------+
//
// Close asks the Summarizer for a memory while the conversation stays active,
// stores it through the MemorySource and only then commits the closed status.
// Summarizer or memory bank failures leave the conversation active. Appends
// and message deletes bump the conversation revision; a close whose revision
// no longer matches is discarded with ErrStaleClose. Duplicate concurrent
// closes share one summarization.
//
// # Errors
//
// Commands return *NotFoundError, *InvalidStateError or *CollaboratorError,
// which match ErrNotFound, ErrInvalidState and ErrCollaborator with errors.Is.
// Malformed input matches ErrInvalidArgument. None of these are fatal.
//
// # Events
//
// EventBroadcaster fans events out per conversation ID, or to every
// conversation for AllConversations subscribers. Publishing never blocks;
// slow subscribers lose events rather than stall commands.
//
// ActivityRecorder subscribes to every conversation and writes each event to
// a store.ActivityStore. Closing the broadcaster ends the subscription; Wait
// returns once the buffered events are written.
//
// # Queries
//
// Query is a read-only facade for presentation layers. Absence is reported
// with a false ok value instead of an error.
package conversation
