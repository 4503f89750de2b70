package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Save(ctx context.Context, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, sess)
}

func (s *SlowStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func TestManager_WithLockSerializesReadModifyWrite(t *testing.T) {
	store := &SlowStore{Store: memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	workers := 10
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, id, func(ctx context.Context) error {
				s, err := manager.LoadOrNew(ctx, id)
				if err != nil {
					return err
				}
				s.Append(domain.LogEntry{State: "Count", Event: "inc"})
				return store.Save(ctx, s)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, s.Log, workers, "no update may be lost")
}

func TestManager_LoadOrNew(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	s, err := manager.LoadOrNew(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.ID)
	assert.False(t, s.Active())

	_, err = manager.Load(ctx, "fresh")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "LoadOrNew does not persist")
}

func TestManager_Abandon(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	s := domain.NewSession("u1")
	s.FlowID = "survey"
	s.CurrentState = "Ask"
	s.MiscData["answer"] = "yes"
	s.Append(domain.LogEntry{State: "Ask", Event: "start"})
	require.NoError(t, manager.Save(ctx, s))

	rec, err := manager.Abandon(ctx, "u1", domain.ReasonAbandoned)
	require.NoError(t, err)
	assert.Equal(t, "Ask", rec.State)

	live, err := manager.Load(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, live.Active())
	assert.Empty(t, live.MiscData)

	history, err := manager.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "yes", history[0].MiscData["answer"])

	_, err = manager.Abandon(ctx, "nobody", domain.ReasonAbandoned)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

type countingLocker struct {
	mu       sync.Mutex
	locked   int
	unlocked int
	ttl      time.Duration
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked++
	l.ttl = ttl
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Minute))

	err := manager.WithLock(context.Background(), "u1", func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
	assert.Equal(t, time.Minute, locker.ttl)
}
