// ABOUTME: Tests for MockStore
// ABOUTME: Verifies copy semantics, ordering, and injected save failures

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CopiesOnSaveAndGet(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	conv := sampleConversation("c-1", "ws-1", time.Now())
	require.NoError(t, m.SaveConversation(ctx, conv))

	// Mutating the caller's value must not leak into the store
	conv.Title = "changed"
	conv.Messages[0].Content = "changed"

	got, err := m.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, "hello", got.Messages[0].Content)

	// Nor must mutating a returned value
	got.InjectedMemories[0].IsActive = true
	again, err := m.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, again.InjectedMemories[0].IsActive)
}

func TestMockStore_ListConversationsInCreationOrder(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.SaveConversation(ctx, sampleConversation("c-1", "ws-1", now)))
	require.NoError(t, m.SaveConversation(ctx, sampleConversation("c-2", "ws-2", now)))
	require.NoError(t, m.SaveConversation(ctx, sampleConversation("c-3", "ws-1", now)))
	// Re-saving keeps the original position
	require.NoError(t, m.SaveConversation(ctx, sampleConversation("c-1", "ws-1", now)))

	list, err := m.ListConversations(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c-1", list[0].ID)
	assert.Equal(t, "c-3", list[1].ID)

	require.NoError(t, m.DeleteConversation(ctx, "c-1"))
	list, err = m.ListConversations(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c-2", list[0].ID)

	assert.ErrorIs(t, m.DeleteConversation(ctx, "c-1"), ErrNotFound)
}

func TestMockStore_Memories(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.SaveMemory(ctx, &Memory{ID: "mem-1", WorkspaceID: "ws-1", SourceConversationID: "c-1"}))
	require.NoError(t, m.SaveMemory(ctx, &Memory{ID: "mem-2", WorkspaceID: "ws-1"}))
	require.NoError(t, m.SaveMemory(ctx, &Memory{ID: "mem-3", WorkspaceID: "ws-2", SourceConversationID: "c-1"}))

	ws1, err := m.ListMemories(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, ws1, 2)
	assert.Equal(t, "mem-2", ws1[0].ID)

	byConv, err := m.ListMemoriesByConversation(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, byConv, 2)
	assert.Equal(t, "mem-3", byConv[0].ID)

	require.NoError(t, m.DeleteMemory(ctx, "mem-3"))
	_, err = m.GetMemory(ctx, "mem-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_SaveErr(t *testing.T) {
	m := NewMockStore()
	m.SaveErr = errors.New("disk full")

	err := m.SaveConversation(context.Background(), sampleConversation("c-1", "ws-1", time.Now()))
	assert.EqualError(t, err, "disk full")
	err = m.SaveMemory(context.Background(), &Memory{ID: "mem-1"})
	assert.EqualError(t, err, "disk full")

	_, err = m.GetConversation(context.Background(), "c-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
