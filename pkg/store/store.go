// Package store provides the key-value persistence used by the exchange.
// A KV exposes reads plus an atomic multi-key apply; a Batch layers
// read-your-writes staging on top so one request either commits every
// mutation it made or none of them.
package store

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Op is a single staged mutation.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// KV is the storage collaborator. Apply must be atomic: either every op in
// the slice lands or none do.
type KV interface {
	Get(key []byte) ([]byte, error)
	Apply(ops []Op) error
}

// Batch stages writes over a base KV. Reads see staged writes first
// (read-your-writes), then fall through to the base. Nothing touches the
// base until Commit.
type Batch struct {
	base    KV
	ops     []Op
	staged  map[string][]byte
	deleted map[string]struct{}
}

// NewBatch returns an empty batch over base.
func NewBatch(base KV) *Batch {
	return &Batch{
		base:    base,
		staged:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get returns the staged value if any, otherwise reads through to the base.
func (b *Batch) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := b.deleted[k]; ok {
		return nil, ErrNotFound
	}
	if v, ok := b.staged[k]; ok {
		return v, nil
	}
	return b.base.Get(key)
}

// Set stages a write.
func (b *Batch) Set(key, value []byte) {
	k := string(key)
	delete(b.deleted, k)
	b.staged[k] = value
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

// Delete stages a removal.
func (b *Batch) Delete(key []byte) {
	k := string(key)
	delete(b.staged, k)
	b.deleted[k] = struct{}{}
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Delete: true})
}

// Commit applies every staged op to the base atomically.
func (b *Batch) Commit() error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.base.Apply(b.ops)
}

// MemKV is an in-memory KV used by tests and as the default ledger backend
// in single-process runs.
type MemKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemKV returns an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemKV) Apply(ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		m.data[string(op.Key)] = v
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
