// ABOUTME: Tests for memory association commands: inject, uninject and toggle active
// ABOUTME: Covers idempotent injection, toggle parity and the active-context view

package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/memex/internal/store"
)

func TestInject_Mem42Scenario(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-42", "W1"))
	conv := env.create(t)
	ctx := t.Context()

	assoc, err := env.reg.Inject(ctx, conv.ID, "mem-42")
	require.NoError(t, err)
	assert.True(t, assoc.IsActive)
	assert.Equal(t, "Memory mem-42", assoc.Memory.Title)
	assert.Equal(t, "snippet mem-42", assoc.Memory.Snippet)

	assert.True(t, env.reg.IsInjected(conv.ID, "mem-42"))
	assert.True(t, env.reg.IsActive(conv.ID, "mem-42"))

	active, err := env.reg.ToggleActive(ctx, conv.ID, "mem-42")
	require.NoError(t, err)
	assert.False(t, active)
	assert.False(t, env.reg.IsActive(conv.ID, "mem-42"))
	assert.True(t, env.reg.IsInjected(conv.ID, "mem-42"), "paused memories stay injected")

	active, err = env.reg.ToggleActive(ctx, conv.ID, "mem-42")
	require.NoError(t, err)
	assert.True(t, active)
	assert.True(t, env.reg.IsActive(conv.ID, "mem-42"))
}

func TestInject_TwiceKeepsOneAssociationAndState(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"))
	conv := env.create(t)
	ctx := t.Context()

	_, err := env.reg.Inject(ctx, conv.ID, "mem-1")
	require.NoError(t, err)
	_, err = env.reg.ToggleActive(ctx, conv.ID, "mem-1")
	require.NoError(t, err)

	assoc, err := env.reg.Inject(ctx, conv.ID, "mem-1")
	require.NoError(t, err)
	assert.False(t, assoc.IsActive, "re-injecting never resets a paused memory")

	got, _ := env.reg.Get(conv.ID)
	assert.Len(t, got.InjectedMemories, 1)
	assert.False(t, env.reg.IsActive(conv.ID, "mem-1"))
}

func TestToggleActive_Parity(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7} {
		env := newTestEnv(t, memoryFixture("mem-1", "W1"))
		conv := env.create(t)

		_, err := env.reg.Inject(t.Context(), conv.ID, "mem-1")
		require.NoError(t, err)

		for range n {
			_, err := env.reg.ToggleActive(t.Context(), conv.ID, "mem-1")
			require.NoError(t, err)
		}
		assert.Equal(t, n%2 == 0, env.reg.IsActive(conv.ID, "mem-1"), "after %d toggles", n)
	}
}

func TestToggleActive_NotInjected(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	_, err := env.reg.ToggleActive(t.Context(), conv.ID, "mem-1")
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindAssociation, nf.Kind)
}

func TestInject_MissingConversationIsInvalidState(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"))

	_, err := env.reg.Inject(t.Context(), "missing", "mem-1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInject_UnknownMemory(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	_, err := env.reg.Inject(t.Context(), conv.ID, "mem-404")
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindMemory, nf.Kind)
	assert.False(t, env.reg.IsInjected(conv.ID, "mem-404"))
}

func TestInject_MemoryBankFailure(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"))
	env.memories.getErr = errors.New("bank offline")
	conv := env.create(t)

	_, err := env.reg.Inject(t.Context(), conv.ID, "mem-1")
	assert.ErrorIs(t, err, ErrCollaborator)
	assert.ErrorContains(t, err, "bank offline")
	assert.False(t, env.reg.IsInjected(conv.ID, "mem-1"))
}

func TestInject_OtherWorkspaceRejected(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W2"))
	conv := env.create(t)

	_, err := env.reg.Inject(t.Context(), conv.ID, "mem-1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInject_WithoutMemoryBankCachesID(t *testing.T) {
	reg := NewRegistry(Options{})
	t.Cleanup(reg.Broadcaster().Close)

	conv, err := reg.Create(t.Context(), "W1", "M1", "")
	require.NoError(t, err)

	assoc, err := reg.Inject(t.Context(), conv.ID, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "mem-1", assoc.Memory.ID)
	assert.Empty(t, assoc.Memory.Title)
}

func TestInject_AllowedWhenClosed(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"))
	conv := env.create(t)
	env.appendText(t, conv.ID, "hello")

	_, err := env.reg.Close(t.Context(), conv.ID)
	require.NoError(t, err)

	_, err = env.reg.Inject(t.Context(), conv.ID, "mem-1")
	require.NoError(t, err)
	assert.True(t, env.reg.IsInjected(conv.ID, "mem-1"))
}

func TestInject_EmptyMemoryID(t *testing.T) {
	env := newTestEnv(t)
	conv := env.create(t)

	_, err := env.reg.Inject(t.Context(), conv.ID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUninject(t *testing.T) {
	env := newTestEnv(t, memoryFixture("mem-1", "W1"), memoryFixture("mem-2", "W1"))
	conv := env.create(t)
	ctx := t.Context()

	_, err := env.reg.Inject(ctx, conv.ID, "mem-1")
	require.NoError(t, err)
	_, err = env.reg.Inject(ctx, conv.ID, "mem-2")
	require.NoError(t, err)

	require.NoError(t, env.reg.Uninject(ctx, conv.ID, "mem-1"))
	assert.False(t, env.reg.IsInjected(conv.ID, "mem-1"))
	assert.True(t, env.reg.IsInjected(conv.ID, "mem-2"))

	err = env.reg.Uninject(ctx, conv.ID, "mem-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The memory itself is owned by the bank and survives
	assert.Equal(t, 2, env.memories.count())
}

func TestActiveMemories(t *testing.T) {
	env := newTestEnv(t,
		memoryFixture("mem-1", "W1"),
		memoryFixture("mem-2", "W1"),
		memoryFixture("mem-3", "W1"),
	)
	conv := env.create(t)
	ctx := t.Context()

	for _, id := range []string{"mem-1", "mem-2", "mem-3"} {
		_, err := env.reg.Inject(ctx, conv.ID, id)
		require.NoError(t, err)
	}
	_, err := env.reg.ToggleActive(ctx, conv.ID, "mem-2")
	require.NoError(t, err)

	active := env.reg.ActiveMemories(conv.ID)
	require.Len(t, active, 2)
	assert.Equal(t, "mem-1", active[0].ID)
	assert.Equal(t, "mem-3", active[1].ID)

	active[0].Tags[0] = "tampered"
	again := env.reg.ActiveMemories(conv.ID)
	assert.Equal(t, []string{"fixture"}, again[0].Tags)

	assert.Equal(t, []store.MemoryRef{}, env.reg.ActiveMemories("missing"))
}

func TestIsInjected_MissingConversation(t *testing.T) {
	env := newTestEnv(t)

	assert.False(t, env.reg.IsInjected("missing", "mem-1"))
	assert.False(t, env.reg.IsActive("missing", "mem-1"))
}
