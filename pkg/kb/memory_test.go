package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListOps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)

	require.NoError(t, store.Push(ctx, 1, "internal/results", "a", "b", "c"))

	value, ok, err := store.Get(ctx, 1, "internal/results")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", value)

	values, err := store.List(ctx, 1, "internal/results")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, values)

	popped, ok, err := store.Pop(ctx, 1, "internal/results")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", popped)

	require.NoError(t, store.RemoveListValue(ctx, 1, "internal/results", "c"))
	values, err = store.List(ctx, 1, "internal/results")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, values)
}

func TestMemoryStoreIndexIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)

	require.NoError(t, store.Push(ctx, 1, "internal/scan_id", "one"))
	require.NoError(t, store.Push(ctx, 2, "internal/scan_id", "two"))

	value, ok, err := store.Get(ctx, 2, "internal/scan_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", value)

	require.NoError(t, store.Flush(ctx, 1))
	_, ok, err = store.Get(ctx, 1, "internal/scan_id")
	require.NoError(t, err)
	require.False(t, ok)

	value, ok, err = store.Get(ctx, 2, "internal/scan_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", value)
}

func TestMemoryStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.Push(ctx, 0, "nvt:1.2.3:meta", "name|||x"))
	require.NoError(t, store.Push(ctx, 0, "nvt:1.2.3:prefs", "1|||entry|||p|||"))
	require.NoError(t, store.Push(ctx, 0, "nvticache/version", "1234"))

	keys, err := store.Keys(ctx, 0, "nvt:1.2.3:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"nvt:1.2.3:meta", "nvt:1.2.3:prefs"}, keys)

	all, err := store.Keys(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestMemoryStoreIndexBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	_, _, err := store.Get(ctx, 2, "key")
	require.Error(t, err)

	err = store.Push(ctx, -1, "key", "value")
	require.Error(t, err)
}
