package dht

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

// memoryValueStore is a trivial in-memory ValueStore for exercising
// Table.Store and Table.FindValueOrLocal without a real persistence layer.
type memoryValueStore struct {
	mu     sync.Mutex
	values map[crypto.ContentHash][]byte
}

func newMemoryValueStore() *memoryValueStore {
	return &memoryValueStore{values: make(map[crypto.ContentHash][]byte)}
}

func (m *memoryValueStore) Put(ctx context.Context, key crypto.ContentHash, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryValueStore) Get(ctx context.Context, key crypto.ContentHash) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func TestStoreCachesLocallyAndReplicatesToClosestPeers(t *testing.T) {
	network, ids := buildMeshNetwork(t, 6)
	origin := ids[0]
	local := newMemoryValueStore()
	key := crypto.HashContent([]byte("replicated-key"))

	err := network.tables[origin].Store(context.Background(), network.senderFor(origin), nil, local, key, []byte("hello"), time.Minute, LookupConfig{})
	require.NoError(t, err)

	value, found, err := local.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), value)

	replicated := 0
	for _, id := range ids {
		if id == origin {
			continue
		}
		if _, ok := network.values[id][key]; ok {
			replicated++
		}
	}
	assert.Greater(t, replicated, 0, "at least one closest peer should have received the STORE")
}

func TestFindValueOrLocalPrefersLocalCache(t *testing.T) {
	network, ids := buildMeshNetwork(t, 4)
	origin := ids[0]
	local := newMemoryValueStore()
	key := crypto.HashContent([]byte("local-only"))
	require.NoError(t, local.Put(context.Background(), key, []byte("cached"), time.Minute))

	value, found := network.tables[origin].FindValueOrLocal(context.Background(), network.senderFor(origin), nil, local, key, LookupConfig{})
	assert.True(t, found)
	assert.Equal(t, []byte("cached"), value)
}

func TestFindValueOrLocalFallsBackToNetwork(t *testing.T) {
	network, ids := buildMeshNetwork(t, 5)
	holder := ids[3]
	key := crypto.HashContent([]byte("remote-only"))
	network.values[holder][key] = []byte("from-network")

	origin := ids[0]
	local := newMemoryValueStore()
	value, found := network.tables[origin].FindValueOrLocal(context.Background(), network.senderFor(origin), nil, local, key, LookupConfig{})
	assert.True(t, found)
	assert.Equal(t, []byte("from-network"), value)
}

func TestStoreWithNoClosestPeersStillCachesLocally(t *testing.T) {
	self := randomID(t)
	tbl := NewTable(self, nil)
	network := newFakeNetwork()
	network.addNode(self)
	local := newMemoryValueStore()
	key := crypto.HashContent([]byte("isolated"))

	err := tbl.Store(context.Background(), network.senderFor(self), nil, local, key, []byte("solo"), time.Minute, LookupConfig{})
	require.NoError(t, err)

	value, found, err := local.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("solo"), value)
}
