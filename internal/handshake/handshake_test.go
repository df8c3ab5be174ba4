package handshake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-amnesia/internal/models"
)

const timeout = 30 * time.Second

type storeFactory func(t *testing.T) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, "test:pending:", 5*time.Minute)
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store)) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
			store := factory(t)
			fn(t, New(store, clock, timeout), clock, store)
		})
	}
}

func TestRequestCreatesPendingEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		p, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)
		assert.Equal(t, "C1", p.ConversationID)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "C1", got.ConversationID)
		assert.True(t, got.CreatedAt.Equal(clock.Now()))
	})
}

func TestRequestWhilePendingIsRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)

		clock.Advance(10 * time.Second)
		_, err = h.Request(ctx, "u1", "C2")
		require.ErrorIs(t, err, ErrAlreadyPending)

		var pending *PendingError
		require.True(t, errors.As(err, &pending))
		assert.Equal(t, 20*time.Second, pending.Remaining)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "C1", got.ConversationID, "original request must be kept")
	})
}

func TestRequestAfterExpiryStartsOver(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)

		clock.Advance(timeout)
		p, err := h.Request(ctx, "u1", "C2")
		require.NoError(t, err)
		assert.Equal(t, "C2", p.ConversationID)
		assert.True(t, p.CreatedAt.Equal(clock.Now()))
	})
}

func TestConfirmWithoutRequest(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		_, err := h.Confirm(context.Background(), "u1", "C1")
		assert.ErrorIs(t, err, ErrNoPendingRequest)
	})
}

func TestConfirmAfterTimeoutClearsEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)

		clock.Advance(timeout + time.Second)
		_, err = h.Confirm(ctx, "u1", "C1")
		require.ErrorIs(t, err, ErrExpired)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, got)

		// a fresh request goes through right away
		_, err = h.Request(ctx, "u1", "C1")
		require.NoError(t, err)
		_, err = h.Confirm(ctx, "u1", "C1")
		require.NoError(t, err)
	})
}

func TestConfirmFromOtherConversationKeepsEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)

		_, err = h.Confirm(ctx, "u1", "C2")
		require.ErrorIs(t, err, ErrWrongConversation)

		p, err := h.Confirm(ctx, "u1", "C1")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.RequesterID)
	})
}

func TestConfirmIsSingleUse(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)

		_, err = h.Confirm(ctx, "u1", "C1")
		require.NoError(t, err)
		_, err = h.Confirm(ctx, "u1", "C1")
		assert.ErrorIs(t, err, ErrNoPendingRequest)
	})
}

func TestConcurrentConfirmsOnlyOneWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		for round := 0; round < 20; round++ {
			_, err := h.Request(ctx, "u1", "C1")
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				rejected  int
			)
			start := make(chan struct{})
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := h.Confirm(ctx, "u1", "C1")
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
					} else if errors.Is(err, ErrNoPendingRequest) {
						rejected++
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, 7, rejected)
		}
	})
}

func TestRequestersAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		_, err := h.Request(ctx, "u1", "C1")
		require.NoError(t, err)
		_, err = h.Request(ctx, "u2", "C1")
		require.NoError(t, err)

		_, err = h.Confirm(ctx, "u2", "C1")
		require.NoError(t, err)
		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore()
	h := New(store, clock, timeout)

	_, err := h.Request(ctx, "old", "C1")
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	_, err = h.Request(ctx, "new", "C1")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	removed, err := h.Sweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestRedisStoreExpiresWithRetention(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, "p:", time.Minute)

	require.NoError(t, store.Ping(ctx))
	ok, err := store.Create(ctx, &models.PendingErasure{RequesterID: "u1", ConversationID: "C1", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("p:u1"))

	ok, err = store.Create(ctx, &models.PendingErasure{RequesterID: "u1", ConversationID: "C2", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHasKeepsExpiredEntryUntilConfirm(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *Handshake, clock *clockwork.FakeClock, store Store) {
		ctx := context.Background()

		ok, err := h.Has(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = h.Request(ctx, "u1", "C1")
		require.NoError(t, err)
		ok, err = h.Has(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)

		clock.Advance(timeout + time.Second)
		ok, err = h.Has(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "expired entries stay until something consumes them")

		_, err = h.Confirm(ctx, "u1", "C1")
		require.ErrorIs(t, err, ErrExpired)
		ok, err = h.Has(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
