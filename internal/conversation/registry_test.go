// ABOUTME: Tests for the conversation registry: create, update, delete, listing and load
// ABOUTME: Also covers persistence failure rollback and event publication per command

package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/memex/internal/dedupe"
	"github.com/2389/memex/internal/store"
)

func TestRegistry_Create(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.reg.Create(t.Context(), "W1", "M1", "Planning")
	require.NoError(t, err)

	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "W1", conv.WorkspaceID)
	assert.Equal(t, "M1", conv.ModelID)
	assert.Equal(t, "Planning", conv.Title)
	assert.Equal(t, store.StatusActive, conv.Status)
	assert.Empty(t, conv.Messages)
	assert.Empty(t, conv.InjectedMemories)
	assert.Nil(t, conv.ClosedAt)

	persisted, err := env.store.GetConversation(t.Context(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Title, persisted.Title)
}

func TestRegistry_CreateDefaultsTitle(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.reg.Create(t.Context(), "W1", "M1", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, conv.Title)
}

func TestRegistry_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reg.Create(t.Context(), "", "M1", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.reg.Create(t.Context(), "W1", " ", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, env.reg.ListByWorkspace(""))
}

func TestRegistry_CreatePersistFailureLeavesNoConversation(t *testing.T) {
	env := newTestEnv(t)
	env.store.SaveErr = errors.New("disk full")

	_, err := env.reg.Create(t.Context(), "W1", "M1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisting conversation")
	assert.Empty(t, env.reg.ListByWorkspace("W1"))
}

func TestRegistry_Update(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	title := "Renamed"
	updated, err := env.reg.Update(t.Context(), conv.ID, Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	got, ok := env.reg.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Title)
}

func TestRegistry_UpdateErrors(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	title := "x"
	_, err := env.reg.Update(t.Context(), "missing", Patch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindConversation, nf.Kind)

	empty := "  "
	_, err = env.reg.Update(t.Context(), conv.ID, Patch{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistry_UpdateEmptyPatchIsNoop(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	events, _ := env.reg.Subscribe(t.Context(), conv.ID)

	got, err := env.reg.Update(t.Context(), conv.ID, Patch{})
	require.NoError(t, err)
	assert.Equal(t, conv.Title, got.Title)

	select {
	case ev := <-events:
		t.Fatalf("no-op update published %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistry_Delete(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)
	env.appendText(t, conv.ID, "hello")

	require.NoError(t, env.reg.Delete(t.Context(), conv.ID))

	_, ok := env.reg.Get(conv.ID)
	assert.False(t, ok)
	assert.Empty(t, env.reg.ListByWorkspace("W1"))

	_, err := env.store.GetConversation(t.Context(), conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, env.reg.Delete(t.Context(), conv.ID), ErrNotFound)
}

// vanishingStore reports every delete as already gone, wrapped the way a
// driver-backed store annotates its errors.
type vanishingStore struct {
	*store.MockStore
}

func (v vanishingStore) DeleteConversation(ctx context.Context, id string) error {
	return fmt.Errorf("deleting %s: %w", id, store.ErrNotFound)
}

func TestRegistry_DeleteToleratesWrappedNotFound(t *testing.T) {
	reg := NewRegistry(Options{Store: vanishingStore{store.NewMockStore()}})
	t.Cleanup(reg.Broadcaster().Close)

	conv, err := reg.Create(t.Context(), "W1", "M1", "")
	require.NoError(t, err)

	require.NoError(t, reg.Delete(t.Context(), conv.ID))
	_, ok := reg.Get(conv.ID)
	assert.False(t, ok)
}

func TestRegistry_DeleteKeepsSummaryMemories(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)
	env.appendText(t, conv.ID, "hello")

	_, err := env.reg.Close(t.Context(), conv.ID)
	require.NoError(t, err)
	require.NoError(t, env.reg.Delete(t.Context(), conv.ID))

	assert.Len(t, env.memories.taggedWith(ConversationTag(conv.ID)), 1)
}

func TestRegistry_ListByWorkspacePreservesCreationOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	a, err := env.reg.Create(ctx, "W1", "M1", "a")
	require.NoError(t, err)
	_, err = env.reg.Create(ctx, "W2", "M1", "b")
	require.NoError(t, err)
	c, err := env.reg.Create(ctx, "W1", "M1", "c")
	require.NoError(t, err)

	list := env.reg.ListByWorkspace("W1")
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)

	assert.Len(t, env.reg.ListByWorkspace(""), 3)
	assert.NotNil(t, env.reg.ListByWorkspace("nobody"))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)
	env.appendText(t, conv.ID, "hello")

	got, ok := env.reg.Get(conv.ID)
	require.True(t, ok)
	got.Title = "tampered"
	got.Messages[0].Content = "tampered"

	again, _ := env.reg.Get(conv.ID)
	assert.Equal(t, "Test", again.Title)
	assert.Equal(t, "hello", again.Messages[0].Content)
}

func TestRegistry_LoadFromSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memex.db")
	db, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := t.Context()
	mems := newFakeMemories(memoryFixture("mem-42", "W1"))

	reg := NewRegistry(Options{Store: db, Memories: mems})
	conv, err := reg.Create(ctx, "W1", "M1", "Persisted")
	require.NoError(t, err)
	msg, err := reg.Append(ctx, conv.ID, AppendRequest{Content: "hello"})
	require.NoError(t, err)
	_, err = reg.Pin(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	_, err = reg.Inject(ctx, conv.ID, "mem-42")
	require.NoError(t, err)
	_, err = reg.ToggleActive(ctx, conv.ID, "mem-42")
	require.NoError(t, err)

	fresh := NewRegistry(Options{Store: db, Memories: mems})
	require.NoError(t, fresh.Load(ctx))

	loaded, ok := fresh.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Persisted", loaded.Title)
	require.Len(t, loaded.Messages, 1)
	assert.True(t, loaded.Messages[0].IsPinned)
	assert.True(t, fresh.IsInjected(conv.ID, "mem-42"))
	assert.False(t, fresh.IsActive(conv.ID, "mem-42"))
	assert.Equal(t, int64(1), loaded.Revision)
}

func TestRegistry_LoadWithoutStore(t *testing.T) {
	reg := NewRegistry(Options{})
	require.NoError(t, reg.Load(t.Context()))
	assert.Empty(t, reg.ListByWorkspace(""))
}

func TestRegistry_PersistFailureLeavesSnapshotUntouched(t *testing.T) {
	failing := &failingConversationStore{MockStore: store.NewMockStore()}
	reg := NewRegistry(Options{Store: failing})
	t.Cleanup(reg.Broadcaster().Close)

	conv, err := reg.Create(t.Context(), "W1", "M1", "x")
	require.NoError(t, err)

	failing.fail.Store(true)
	_, err = reg.Append(t.Context(), conv.ID, AppendRequest{Content: "lost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	got, _ := reg.Get(conv.ID)
	assert.Empty(t, got.Messages)
	assert.Equal(t, int64(0), got.Revision)
}

func TestRegistry_EventsPerCommand(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"))
	ctx := t.Context()

	all, _ := env.reg.Subscribe(ctx, AllConversations)

	conv := env.create(t)
	msg := env.appendText(t, conv.ID, "hello")
	_, err := env.reg.Pin(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	_, err = env.reg.Pin(ctx, conv.ID, msg.ID) // no-op, no event
	require.NoError(t, err)
	_, err = env.reg.Unpin(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	_, err = env.reg.Inject(ctx, conv.ID, "mem-1")
	require.NoError(t, err)
	_, err = env.reg.ToggleActive(ctx, conv.ID, "mem-1")
	require.NoError(t, err)
	require.NoError(t, env.reg.Uninject(ctx, conv.ID, "mem-1"))
	require.NoError(t, env.reg.DeleteMessage(ctx, conv.ID, msg.ID))
	_, err = env.reg.Close(ctx, conv.ID)
	require.NoError(t, err)
	_, err = env.reg.Archive(ctx, conv.ID)
	require.NoError(t, err)
	_, err = env.reg.Reopen(ctx, conv.ID)
	require.NoError(t, err)
	require.NoError(t, env.reg.Delete(ctx, conv.ID))

	want := []EventType{
		EventCreated,
		EventMessageAppended,
		EventMessagePinned,
		EventMessageUnpinned,
		EventMemoryInjected,
		EventMemoryToggled,
		EventMemoryRemoved,
		EventMessageDeleted,
		EventClosed,
		EventArchived,
		EventReopened,
		EventDeleted,
	}

	var got []EventType
	for range want {
		select {
		case ev := <-all:
			assert.Equal(t, conv.ID, ev.ConversationID)
			assert.NotEmpty(t, ev.ID)
			if ev.Type != EventDeleted {
				require.NotNil(t, ev.Conversation)
			}
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out after events %v", got)
		}
	}
	assert.Equal(t, want, got)
}

func TestRegistry_EventCarriesCommittedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	events, _ := env.reg.Subscribe(t.Context(), conv.ID)
	msg := env.appendText(t, conv.ID, "hello")

	select {
	case ev := <-events:
		assert.Equal(t, EventMessageAppended, ev.Type)
		assert.Equal(t, msg.ID, ev.MessageID)
		require.Len(t, ev.Conversation.Messages, 1)
		assert.Equal(t, "hello", ev.Conversation.Messages[0].Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRegistry_ConcurrentAppends(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	reg := NewRegistry(Options{Store: env.store, Dedupe: cache})
	t.Cleanup(reg.Broadcaster().Close)
	require.NoError(t, reg.Load(t.Context()))

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := reg.Append(t.Context(), conv.ID, AppendRequest{Content: "hi"})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, _ := reg.Get(conv.ID)
	assert.Len(t, got.Messages, 20)
	assert.Equal(t, int64(20), got.Revision)
}
