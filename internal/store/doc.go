// Package store provides persistence for memex using SQLite.
//
// # Architecture
//
// Storage is split into three interfaces:
//
//   - ConversationStore: whole conversation aggregates (metadata, messages, memory associations)
//   - MemoryStore: long-term memory records produced by summarization or the console
//   - ActivityStore: an append-only log of committed conversation commands
//
// SQLiteStore implements all of them, MockStore is the in-memory equivalent used by
// tests and by callers that do not want a database file.
//
// # Aggregates
//
// A conversation is saved as a unit. SaveConversation upserts the conversation
// row and rewrites its messages and associations inside one transaction, so a
// reader never sees half of a mutation. Message order is kept in an explicit
// position column rather than relying on timestamps.
//
// # Activity Log
//
// ListActivity pages through a conversation's entries oldest first. The
// cursor is an opaque base64 encoding of the last entry's timestamp and ID;
// pass NextCursor back to continue. Entries are kept after the conversation
// they describe is deleted.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode and foreign keys:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Two drivers are supported. "sqlite" (modernc.org/sqlite, pure Go) is the
// default; "sqlite3" (github.com/mattn/go-sqlite3) requires cgo.
//
// # Error Handling
//
// ErrNotFound is returned when a conversation or memory does not exist.
// All methods accept context.Context for cancellation support.
package store
