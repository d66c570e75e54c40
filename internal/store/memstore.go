package store

import (
	"errors"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests. FailWrites makes every write
// fail, which tests use to simulate storage faults.
type MemStore struct {
	mu         sync.RWMutex
	data       map[string][]byte
	FailWrites bool
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (s *MemStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("simulated write failure")
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("simulated write failure")
	}
	delete(s.data, key)
	return nil
}

func (s *MemStore) WriteBatch(fn func(b Batch) error) error {
	batch := &memBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("simulated write failure")
	}
	for _, op := range batch.ops {
		if op.delete {
			delete(s.data, op.key)
			continue
		}
		s.data[op.key] = op.value
	}
	return nil
}

func (s *MemStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemStore) Close() error { return nil }

type memOp struct {
	key    string
	value  []byte
	delete bool
}

type memBatch struct {
	ops []memOp
}

func (b *memBatch) Put(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, memOp{key: key, value: cp})
}

func (b *memBatch) Delete(key string) {
	b.ops = append(b.ops, memOp{key: key, delete: true})
}
