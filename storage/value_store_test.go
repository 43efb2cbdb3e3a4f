package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

func TestMemoryValueStorePutGet(t *testing.T) {
	store := NewMemoryValueStore(0)
	key := crypto.HashContent([]byte("k1"))

	require.NoError(t, store.Put(context.Background(), key, []byte("v1"), time.Minute))

	value, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), value)
}

func TestMemoryValueStoreMissingKey(t *testing.T) {
	store := NewMemoryValueStore(0)
	_, found, err := store.Get(context.Background(), crypto.HashContent([]byte("nope")))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryValueStoreExpiry(t *testing.T) {
	store := NewMemoryValueStore(0)
	frozen := time.Now()
	store.now = func() time.Time { return frozen }

	key := crypto.HashContent([]byte("expiring"))
	require.NoError(t, store.Put(context.Background(), key, []byte("v"), time.Second))

	store.now = func() time.Time { return frozen.Add(2 * time.Second) }
	_, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryValueStoreEvictsOverCapacity(t *testing.T) {
	store := NewMemoryValueStore(2)
	a := crypto.HashContent([]byte("a"))
	b := crypto.HashContent([]byte("b"))
	c := crypto.HashContent([]byte("c"))

	require.NoError(t, store.Put(context.Background(), a, []byte("a"), 0))
	require.NoError(t, store.Put(context.Background(), b, []byte("b"), 0))
	require.NoError(t, store.Put(context.Background(), c, []byte("c"), 0))

	assert.Equal(t, 2, store.Len())
	_, found, _ := store.Get(context.Background(), a)
	assert.False(t, found, "oldest entry should have been evicted")
}
