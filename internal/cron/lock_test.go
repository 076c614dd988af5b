package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "vdl:lock:cron-worker", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "vdl:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLockTTL, store.ttls["vdl:lock:cron-worker"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "vdl:lock:cron-worker", "non-owner release dropped the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockLeavesExpiredLeaseToNewOwner(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	stale, _ := NewRedisLock(store, "k", time.Minute)
	ok, _ := stale.Acquire(ctx)
	require.True(t, ok)

	// Simulate expiry followed by another worker taking the lease.
	delete(store.values, "k")
	fresh, _ := NewRedisLock(store, "k", time.Minute)
	ok, _ = fresh.Acquire(ctx)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	require.Contains(t, store.values, "k")
}

func TestRedisLockAcquireError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	lock, _ := NewRedisLock(store, "k", time.Minute)
	_, err := lock.Acquire(context.Background())
	require.ErrorContains(t, err, "connection refused")
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", 0)
	require.Error(t, err)
}
