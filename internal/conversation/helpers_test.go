// ABOUTME: Test fakes for the summarizer and memory bank collaborators
// ABOUTME: Shared registry constructors used across the conversation package tests

package conversation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/memex/internal/store"
)

// fakeSummarizer returns a memory built from the messages, or whatever fn returns.
type fakeSummarizer struct {
	fn    func(ctx context.Context, conv *store.Conversation, messages []*store.Message) (*store.Memory, error)
	calls atomic.Int32
}

func (f *fakeSummarizer) Summarize(ctx context.Context, conv *store.Conversation, messages []*store.Message) (*store.Memory, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, conv, messages)
	}
	return &store.Memory{
		Title:   "Summary of " + conv.Title,
		Snippet: "summary",
		Tags:    []string{"summary"},
	}, nil
}

// summarizeAs returns a summarizer that always produces a memory with the given id.
func summarizeAs(id string) *fakeSummarizer {
	return &fakeSummarizer{fn: func(ctx context.Context, conv *store.Conversation, messages []*store.Message) (*store.Memory, error) {
		return &store.Memory{ID: id, Title: "Summary", Snippet: "summary"}, nil
	}}
}

// fakeMemories is an in-memory MemorySource with injectable failures.
type fakeMemories struct {
	mu        sync.Mutex
	mems      map[string]*store.Memory
	order     []string
	getErr    error
	saveErr   error
	deleteErr error
}

func newFakeMemories(mems ...*store.Memory) *fakeMemories {
	f := &fakeMemories{mems: make(map[string]*store.Memory)}
	for _, m := range mems {
		f.mems[m.ID] = m
		f.order = append(f.order, m.ID)
	}
	return f
}

func (f *fakeMemories) GetMemory(ctx context.Context, id string) (*store.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.mems[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemories) ListMemoriesByWorkspace(ctx context.Context, workspaceID string) ([]*store.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*store.Memory{}
	for i := len(f.order) - 1; i >= 0; i-- {
		m := f.mems[f.order[i]]
		if m.WorkspaceID == workspaceID {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeMemories) SaveMemory(ctx context.Context, mem *store.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.mems[mem.ID]; !ok {
		f.order = append(f.order, mem.ID)
	}
	cp := *mem
	f.mems[mem.ID] = &cp
	return nil
}

func (f *fakeMemories) DeleteMemory(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.mems[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.mems, id)
	f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == id })
	return nil
}

// taggedWith returns the stored memories carrying tag.
func (f *fakeMemories) taggedWith(tag string) []*store.Memory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*store.Memory
	for _, id := range f.order {
		if slices.Contains(f.mems[id].Tags, tag) {
			result = append(result, f.mems[id])
		}
	}
	return result
}

func (f *fakeMemories) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mems)
}

// failingConversationStore fails SaveConversation once armed.
type failingConversationStore struct {
	*store.MockStore
	fail atomic.Bool
}

func (s *failingConversationStore) SaveConversation(ctx context.Context, conv *store.Conversation) error {
	if s.fail.Load() {
		return errors.New("database is locked")
	}
	return s.MockStore.SaveConversation(ctx, conv)
}

type testEnv struct {
	reg        *Registry
	store      *store.MockStore
	memories   *fakeMemories
	summarizer *fakeSummarizer
}

// newTestEnv builds a registry over a MockStore, a fake memory bank seeded
// with mems and the default fake summarizer.
func newTestEnv(t *testing.T, mems ...*store.Memory) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      store.NewMockStore(),
		memories:   newFakeMemories(mems...),
		summarizer: &fakeSummarizer{},
	}
	env.reg = NewRegistry(Options{
		Store:            env.store,
		Memories:         env.memories,
		Summarizer:       env.summarizer,
		SummarizeTimeout: time.Second,
	})
	t.Cleanup(env.reg.Broadcaster().Close)
	return env
}

func (env *testEnv) create(t *testing.T) *store.Conversation {
	t.Helper()
	conv, err := env.reg.Create(t.Context(), "W1", "M1", "Test")
	require.NoError(t, err)
	return conv
}

func (env *testEnv) appendText(t *testing.T, convID, content string) *store.Message {
	t.Helper()
	msg, err := env.reg.Append(t.Context(), convID, AppendRequest{Content: content})
	require.NoError(t, err)
	return msg
}

func memoryFixture(id, workspaceID string) *store.Memory {
	return &store.Memory{
		ID:          id,
		WorkspaceID: workspaceID,
		Title:       "Memory " + id,
		Snippet:     "snippet " + id,
		Tags:        []string{"fixture"},
		CreatedAt:   time.Now(),
	}
}
