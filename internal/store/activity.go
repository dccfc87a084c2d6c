// ABOUTME: Activity log store recording every committed conversation command
// ABOUTME: Provides ActivityEntry with cursor-paginated, chronological listing

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Limits for ListActivity
const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

// ActivityEntry is one committed command in a conversation's history.
// Entries outlive the conversation they describe.
type ActivityEntry struct {
	ID             string
	ConversationID string
	Type           string // event type, e.g. "message.appended"
	MessageID      string // set for message events
	MemoryID       string // set for memory events and closes
	Detail         string // status or title after the command, when relevant
	CreatedAt      time.Time
}

// ListActivityParams specifies which page of a conversation's activity to read.
type ListActivityParams struct {
	ConversationID string // required
	Limit          int    // 1-500, defaults to 50
	Cursor         string // opaque cursor from a previous result
}

// ListActivityResult is one page of activity, oldest first.
type ListActivityResult struct {
	Entries    []*ActivityEntry
	NextCursor string // empty when there are no more entries
	HasMore    bool
}

// ActivityStore persists the activity log
type ActivityStore interface {
	SaveActivity(ctx context.Context, entry *ActivityEntry) error
	ListActivity(ctx context.Context, p ListActivityParams) (*ListActivityResult, error)
}

func normalizeActivityParams(p *ListActivityParams) error {
	if p.ConversationID == "" {
		return errors.New("conversation_id required")
	}
	if p.Limit <= 0 {
		p.Limit = DefaultActivityLimit
	}
	if p.Limit > MaxActivityLimit {
		p.Limit = MaxActivityLimit
	}
	return nil
}

// encodeCursor creates an opaque cursor string from a timestamp and entry ID.
// Format is base64(timestamp|entry_id)
func encodeCursor(ts time.Time, id string) string {
	data := fmt.Sprintf("%s|%s", ts.UTC().Format(timeFormat), id)
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// decodeCursor parses an opaque cursor string into a timestamp and entry ID.
func decodeCursor(cursor string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("invalid cursor format: expected timestamp|entry_id")
	}

	parsed, err := time.Parse(timeFormat, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return parsed, id, nil
}

// SaveActivity appends an entry to the activity log
func (s *SQLiteStore) SaveActivity(ctx context.Context, entry *ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, conversation_id, type, message_id, memory_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.ConversationID,
		entry.Type,
		nullString(entry.MessageID),
		nullString(entry.MemoryID),
		nullString(entry.Detail),
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	s.logger.Debug("saved activity",
		"id", entry.ID,
		"conversation_id", entry.ConversationID,
		"type", entry.Type,
	)
	return nil
}

// ListActivity returns a page of a conversation's activity in chronological order.
func (s *SQLiteStore) ListActivity(ctx context.Context, p ListActivityParams) (*ListActivityResult, error) {
	if err := normalizeActivityParams(&p); err != nil {
		return nil, err
	}

	args := []any{p.ConversationID}
	query := `
		SELECT id, conversation_id, type, message_id, memory_id, detail, created_at
		FROM activity_log
		WHERE conversation_id = ?
	`

	if p.Cursor != "" {
		cursorTS, cursorID, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		ts := cursorTS.UTC().Format(timeFormat)
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, ts, ts, cursorID)
	}

	// Fetch limit+1 to detect if there are more results
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		entry, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	return pageActivity(entries, p.Limit), nil
}

func scanActivity(row rowScanner) (*ActivityEntry, error) {
	entry := &ActivityEntry{}
	var messageID, memoryID, detail sql.NullString
	var createdAt string

	if err := row.Scan(
		&entry.ID,
		&entry.ConversationID,
		&entry.Type,
		&messageID,
		&memoryID,
		&detail,
		&createdAt,
	); err != nil {
		return nil, fmt.Errorf("scanning activity row: %w", err)
	}

	entry.MessageID = messageID.String
	entry.MemoryID = memoryID.String
	entry.Detail = detail.String

	var err error
	entry.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing activity timestamp: %w", err)
	}
	return entry, nil
}

// pageActivity trims a limit+1 result set and sets the next cursor.
func pageActivity(entries []*ActivityEntry, limit int) *ListActivityResult {
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []*ActivityEntry{}
	}

	result := &ListActivityResult{Entries: entries, HasMore: hasMore}
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return result
}
