// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists conversation aggregates and memory records with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteStoreWithDriver
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, needs cgo
)

// timeFormat is fixed width so stored timestamps sort lexically
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver is NewSQLiteStore with an explicit database/sql driver name.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn(driver, path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes the registry and the activity recorder inside
	// this process. busy_timeout covers other processes sharing the file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// busyTimeoutMillis is how long a connection waits on a locked database
const busyTimeoutMillis = 5000

// dsn appends per-connection pragmas in the form each driver understands.
// Pragmas run through db.Exec only reach whichever pooled connection served them.
func dsn(driver, path string) string {
	if driver == DriverCGO {
		return fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=1&_journal_mode=WAL", path, busyTimeoutMillis)
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id           TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			title        TEXT NOT NULL,
			model_id     TEXT NOT NULL,
			status       TEXT NOT NULL,
			revision     INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (status IN ('active', 'closed', 'archived'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_workspace
			ON conversations(workspace_id, created_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position        INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			is_pinned       INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, position);

		-- memory_id is a reference into the memory bank, not a foreign key:
		-- memories are owned elsewhere and outlive conversations
		CREATE TABLE IF NOT EXISTS memory_associations (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			memory_id       TEXT NOT NULL,
			position        INTEGER NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1,
			title           TEXT NOT NULL,
			snippet         TEXT NOT NULL,
			tags            TEXT,
			injected_at     TEXT NOT NULL,

			PRIMARY KEY (conversation_id, memory_id)
		);

		CREATE TABLE IF NOT EXISTS memories (
			id                     TEXT PRIMARY KEY,
			workspace_id           TEXT NOT NULL,
			title                  TEXT NOT NULL,
			snippet                TEXT NOT NULL,
			content                TEXT NOT NULL,
			tags                   TEXT,
			source_conversation_id TEXT,
			created_at             TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source_conversation_id);

		-- no foreign key: the log outlives deleted conversations
		CREATE TABLE IF NOT EXISTS activity_log (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			type            TEXT NOT NULL,
			message_id      TEXT,
			memory_id       TEXT,
			detail          TEXT,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_conversation
			ON activity_log(conversation_id, created_at, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "conversations",
			column: "closed_at",
			apply:  `ALTER TABLE conversations ADD COLUMN closed_at TEXT`,
		},
		{
			table:  "messages",
			column: "client_message_id",
			apply:  `ALTER TABLE messages ADD COLUMN client_message_id TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	// Depends on the migrated column, so it cannot live in createSchema
	_, err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_id
			ON messages(conversation_id, client_message_id)
			WHERE client_message_id IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("creating client message index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveConversation upserts the conversation row and rewrites its messages and
// associations in a single transaction.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var closedAt any
	if conv.ClosedAt != nil {
		closedAt = conv.ClosedAt.UTC().Format(timeFormat)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, title, model_id, status, revision, created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model_id = excluded.model_id,
			status = excluded.status,
			revision = excluded.revision,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at
	`,
		conv.ID,
		conv.WorkspaceID,
		conv.Title,
		conv.ModelID,
		string(conv.Status),
		conv.Revision,
		conv.CreatedAt.UTC().Format(timeFormat),
		conv.UpdatedAt.UTC().Format(timeFormat),
		closedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	for i, m := range conv.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, position, role, content, is_pinned, client_message_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, conv.ID, i, string(m.Role), m.Content, boolToInt(m.IsPinned), nullString(m.ClientMessageID), m.CreatedAt.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_associations WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clearing memory associations: %w", err)
	}
	for i, a := range conv.InjectedMemories {
		tags, err := marshalTags(a.Memory.Tags)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_associations (conversation_id, memory_id, position, is_active, title, snippet, tags, injected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, conv.ID, a.MemoryID, i, boolToInt(a.IsActive), a.Memory.Title, a.Memory.Snippet, tags, a.InjectedAt.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("inserting memory association %s: %w", a.MemoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("saved conversation",
		"id", conv.ID,
		"status", conv.Status,
		"messages", len(conv.Messages),
		"memories", len(conv.InjectedMemories))
	return nil
}

const conversationColumns = `id, workspace_id, title, model_id, status, revision, created_at, updated_at, closed_at`

// GetConversation retrieves a conversation with its messages and associations.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if err := s.loadChildren(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns conversations in creation order, optionally filtered by workspace.
func (s *SQLiteStore) ListConversations(ctx context.Context, workspaceID string) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	rows.Close()

	// Children are loaded after the cursor is released so a single-connection
	// database does not deadlock.
	for _, conv := range convs {
		if err := s.loadChildren(ctx, conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// DeleteConversation removes a conversation with its messages and associations.
// Children are deleted explicitly rather than relying on ON DELETE CASCADE.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_associations WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting memory associations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

func (s *SQLiteStore) loadChildren(ctx context.Context, conv *Conversation) error {
	msgRows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, is_pinned, client_message_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY position ASC
	`, conv.ID)
	if err != nil {
		return fmt.Errorf("querying messages: %w", err)
	}
	conv.Messages = []*Message{}
	for msgRows.Next() {
		var m Message
		var role, createdAt string
		var pinned int
		var clientID sql.NullString
		if err := msgRows.Scan(&m.ID, &role, &m.Content, &pinned, &clientID, &createdAt); err != nil {
			msgRows.Close()
			return fmt.Errorf("scanning message: %w", err)
		}
		m.ConversationID = conv.ID
		m.Role = Role(role)
		m.IsPinned = pinned != 0
		m.ClientMessageID = clientID.String
		if m.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			msgRows.Close()
			return fmt.Errorf("parsing message created_at: %w", err)
		}
		conv.Messages = append(conv.Messages, &m)
	}
	if err := msgRows.Err(); err != nil {
		msgRows.Close()
		return fmt.Errorf("iterating messages: %w", err)
	}
	msgRows.Close()

	assocRows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, is_active, title, snippet, tags, injected_at
		FROM memory_associations
		WHERE conversation_id = ?
		ORDER BY position ASC
	`, conv.ID)
	if err != nil {
		return fmt.Errorf("querying memory associations: %w", err)
	}
	defer assocRows.Close()

	conv.InjectedMemories = []*MemoryAssociation{}
	for assocRows.Next() {
		var a MemoryAssociation
		var active int
		var tags sql.NullString
		var injectedAt string
		if err := assocRows.Scan(&a.MemoryID, &active, &a.Memory.Title, &a.Memory.Snippet, &tags, &injectedAt); err != nil {
			return fmt.Errorf("scanning memory association: %w", err)
		}
		a.ConversationID = conv.ID
		a.Memory.ID = a.MemoryID
		a.IsActive = active != 0
		if a.Memory.Tags, err = unmarshalTags(tags); err != nil {
			return err
		}
		if a.InjectedAt, err = time.Parse(timeFormat, injectedAt); err != nil {
			return fmt.Errorf("parsing injected_at: %w", err)
		}
		conv.InjectedMemories = append(conv.InjectedMemories, &a)
	}
	return assocRows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var status, createdAt, updatedAt string
	var closedAt sql.NullString

	err := row.Scan(
		&conv.ID,
		&conv.WorkspaceID,
		&conv.Title,
		&conv.ModelID,
		&status,
		&conv.Revision,
		&createdAt,
		&updatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.Status = ConversationStatus(status)
	if conv.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if closedAt.Valid {
		t, err := time.Parse(timeFormat, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		conv.ClosedAt = &t
	}
	return &conv, nil
}

// SaveMemory inserts or replaces a memory record
func (s *SQLiteStore) SaveMemory(ctx context.Context, mem *Memory) error {
	tags, err := marshalTags(mem.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (id, workspace_id, title, snippet, content, tags, source_conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		mem.ID,
		mem.WorkspaceID,
		mem.Title,
		mem.Snippet,
		mem.Content,
		tags,
		nullString(mem.SourceConversationID),
		mem.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}

	s.logger.Debug("saved memory", "id", mem.ID, "workspace_id", mem.WorkspaceID)
	return nil
}

const memoryColumns = `id, workspace_id, title, snippet, content, tags, source_conversation_id, created_at`

// GetMemory retrieves a memory by ID.
// Returns ErrNotFound if the memory doesn't exist.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}
	return mem, nil
}

// ListMemories returns memories newest first, optionally filtered by workspace.
func (s *SQLiteStore) ListMemories(ctx context.Context, workspaceID string) ([]*Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	return s.queryMemories(ctx, query, args...)
}

// ListMemoriesByConversation returns the memories summarized from a conversation, newest first.
func (s *SQLiteStore) ListMemoriesByConversation(ctx context.Context, conversationID string) ([]*Memory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE source_conversation_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, conversationID)
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...any) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var mems []*Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		mems = append(mems, mem)
	}
	return mems, rows.Err()
}

// DeleteMemory removes a memory.
// Returns ErrNotFound if the memory doesn't exist.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMemory(row rowScanner) (*Memory, error) {
	var mem Memory
	var tags, source sql.NullString
	var createdAt string

	err := row.Scan(
		&mem.ID,
		&mem.WorkspaceID,
		&mem.Title,
		&mem.Snippet,
		&mem.Content,
		&tags,
		&source,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if mem.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	mem.SourceConversationID = source.String
	if mem.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &mem, nil
}

// nullString converts empty strings to NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	return tags, nil
}
