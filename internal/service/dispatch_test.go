package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slop-factory-server/internal/config"
	"slop-factory-server/internal/model"
)

// fakeGenerator records which messages it was asked to process.
type fakeGenerator struct {
	mu        sync.Mutex
	processed []int64

	// failFor makes generation fail for specific message IDs
	failFor map[int64]error
}

func (g *fakeGenerator) Generate(ctx context.Context, msg *model.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failFor[msg.ID]; ok {
		return err
	}
	g.processed = append(g.processed, msg.ID)
	return nil
}

func (g *fakeGenerator) processedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.processed...)
}

// fakeLocker is an in-memory message lock with the same owner semantics
// as the Redis implementation.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[int64]string

	acquireErr error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[int64]string)}
}

func (l *fakeLocker) AcquireMessageLock(ctx context.Context, messageID int64, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if _, held := l.locks[messageID]; held {
		return false, nil
	}
	l.locks[messageID] = token
	return true, nil
}

func (l *fakeLocker) ReleaseMessageLock(ctx context.Context, messageID int64, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[messageID] == token {
		delete(l.locks, messageID)
	}
	return nil
}

func (l *fakeLocker) held(messageID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[messageID]
	return ok
}

func newTestDispatcher(t *testing.T, store *memStore, gen *fakeGenerator, locker *fakeLocker) *Dispatcher {
	t.Helper()
	return NewDispatcher(messageStoreView{store}, gen, locker, zap.NewNop(), config.DispatchConfig{
		BatchSize: 5,
		LockTTL:   time.Minute,
	})
}

func TestRunCycleProcessesPendingMessages(t *testing.T) {
	store := newMemStore()
	a := store.addProject("a", "")
	b := store.addProject("b", "")
	m1 := store.addMessage(a.ID, model.MessageRoleUser, "one", false)
	m2 := store.addMessage(b.ID, model.MessageRoleUser, "two", false)
	m3 := store.addMessage(a.ID, model.MessageRoleUser, "three", false)
	// Noise that must never be selected.
	store.addMessage(a.ID, model.MessageRoleAssistant, "<html></html>", true)
	store.addMessage(b.ID, model.MessageRoleUser, "done already", true)

	gen := &fakeGenerator{}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Selected)
	require.Equal(t, 3, result.Succeeded)
	require.Zero(t, result.Failed)
	require.Zero(t, result.Skipped)

	require.ElementsMatch(t, []int64{m1.ID, m2.ID, m3.ID}, gen.processedIDs())
}

func TestRunCycleHonorsBatchLimit(t *testing.T) {
	store := newMemStore()
	p := store.addProject("p", "")
	var first []int64
	for i := 0; i < 7; i++ {
		m := store.addMessage(p.ID, model.MessageRoleUser, "req", false)
		if i < 5 {
			first = append(first, m.ID)
		}
	}

	gen := &fakeGenerator{}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, result.Selected)

	// Oldest messages win when there are more than fit in a cycle.
	require.ElementsMatch(t, first, gen.processedIDs())
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	store := newMemStore()
	a := store.addProject("a", "")
	b := store.addProject("b", "")
	bad := store.addMessage(a.ID, model.MessageRoleUser, "broken", false)
	good := store.addMessage(b.ID, model.MessageRoleUser, "fine", false)

	gen := &fakeGenerator{failFor: map[int64]error{bad.ID: errors.New("llm exploded")}}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Selected)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)

	// The healthy message was still processed.
	require.ElementsMatch(t, []int64{good.ID}, gen.processedIDs())
}

func TestRunCycleSkipsLockedMessages(t *testing.T) {
	store := newMemStore()
	p := store.addProject("p", "")
	locked := store.addMessage(p.ID, model.MessageRoleUser, "taken", false)
	free := store.addMessage(p.ID, model.MessageRoleUser, "free", false)

	locker := newFakeLocker()
	// Another trigger path already holds the lease on the first message.
	acquired, err := locker.AcquireMessageLock(context.Background(), locked.ID, "other-owner", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	gen := &fakeGenerator{}
	d := newTestDispatcher(t, store, gen, locker)

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Skipped)
	require.ElementsMatch(t, []int64{free.ID}, gen.processedIDs())

	// The foreign lease survives; our own lease on the free message was released.
	require.True(t, locker.held(locked.ID))
	require.False(t, locker.held(free.ID))
}

func TestRunCycleSelectionErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("connection refused")

	d := newTestDispatcher(t, store, &fakeGenerator{}, newFakeLocker())

	_, err := d.RunCycle(context.Background())
	require.Error(t, err)
}

func TestDispatchMessageIgnoresNonUserMessages(t *testing.T) {
	store := newMemStore()
	p := store.addProject("p", "")
	assistant := store.addMessage(p.ID, model.MessageRoleAssistant, "<html></html>", true)
	done := store.addMessage(p.ID, model.MessageRoleUser, "old", true)

	gen := &fakeGenerator{}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	require.NoError(t, d.DispatchMessage(context.Background(), assistant))
	require.NoError(t, d.DispatchMessage(context.Background(), done))
	require.Empty(t, gen.processedIDs())
}

func TestDispatchMessageSurfacesGenerationError(t *testing.T) {
	store := newMemStore()
	p := store.addProject("p", "")
	msg := store.addMessage(p.ID, model.MessageRoleUser, "req", false)

	wantErr := errors.New("upstream down")
	gen := &fakeGenerator{failFor: map[int64]error{msg.ID: wantErr}}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	err := d.DispatchMessage(context.Background(), msg)
	require.ErrorIs(t, err, wantErr)
}

func TestDispatchMessageByID(t *testing.T) {
	store := newMemStore()
	p := store.addProject("p", "")
	msg := store.addMessage(p.ID, model.MessageRoleUser, "req", false)

	gen := &fakeGenerator{}
	d := newTestDispatcher(t, store, gen, newFakeLocker())

	require.NoError(t, d.DispatchMessageByID(context.Background(), msg.ID))
	require.ElementsMatch(t, []int64{msg.ID}, gen.processedIDs())

	err := d.DispatchMessageByID(context.Background(), 9999)
	require.ErrorIs(t, err, ErrMessageNotFound)
}
