package keystore

import "sync"

// shardCount governs parallelism of concurrent Lookup/Set calls across
// unrelated keys; the key space here is small (tens to low hundreds of
// entries per device family) so a fixed shard count, rather than the
// teacher's size-derived shard count, is enough.
const shardCount = 16

type shard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Memory is a sharded-lock in-memory KeyStore, adapted from the RAM
// backend's sharded-mutex design: keys are partitioned across shards by
// hash so concurrent Lookup/Set calls for unrelated keys don't contend.
type Memory struct {
	shards [shardCount]*shard
}

// NewMemory returns an empty in-memory key store.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{data: make(map[string][]byte)}
	}
	return m
}

func compositeKey(kind KeyKind, id string) string {
	return kind.String() + "\x00" + id
}

func (m *Memory) shardFor(key string) *shard {
	return m.shards[fnv32(key)%shardCount]
}

// Set installs or replaces the key blob for (kind, id).
func (m *Memory) Set(kind KeyKind, id string, key []byte) {
	ck := compositeKey(kind, id)
	s := m.shardFor(ck)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(key))
	copy(cp, key)
	s.data[ck] = cp
}

// Lookup implements KeyStore.
func (m *Memory) Lookup(kind KeyKind, id string) ([]byte, bool) {
	ck := compositeKey(kind, id)
	s := m.shardFor(ck)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[ck]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

// fnv32 is a tiny non-cryptographic hash used only to spread keys across
// shards, not for anything security-sensitive.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
