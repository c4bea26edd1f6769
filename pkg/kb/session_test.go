package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionManagerAllocateSkipsReserved(t *testing.T) {
	ctx := context.Background()
	manager := NewSessionManager(NewMemoryStore(4))

	index, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, index, "index 0 is reserved for the VT cache")
}

func TestSessionManagerAllocateSkipsBusyIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	manager := NewSessionManager(store)

	// Index 1 was claimed by the engine on its own; it never went
	// through Allocate but is non-empty.
	require.NoError(t, store.Push(ctx, 1, "internal/scan_id", "abc"))

	index, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, index)
}

func TestSessionManagerReleaseAndReuse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	manager := NewSessionManager(store)

	first, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Push(ctx, first, "internal/x", "v"))

	second, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = manager.Allocate(ctx)
	require.ErrorIs(t, err, ErrNoFreeIndex)

	require.NoError(t, manager.Release(ctx, first))

	// The released index comes back empty and reusable.
	keys, err := store.Keys(ctx, first, "")
	require.NoError(t, err)
	require.Empty(t, keys)

	again, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestSessionManagerDoubleRelease(t *testing.T) {
	ctx := context.Background()
	manager := NewSessionManager(NewMemoryStore(3))

	index, err := manager.Allocate(ctx)
	require.NoError(t, err)
	require.NoError(t, manager.Release(ctx, index))

	err = manager.Release(ctx, index)
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	require.Equal(t, index, sessionErr.Index)
}

func TestConnSelect(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	conn := NewConn(store)

	conn.Select(2)
	require.NoError(t, conn.Push(ctx, "internal/ip", "10.0.0.1"))

	value, ok, err := store.Get(ctx, 2, "internal/ip")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", value)

	conn.Select(1)
	_, ok, err = conn.Get(ctx, "internal/ip")
	require.NoError(t, err)
	require.False(t, ok)
}
