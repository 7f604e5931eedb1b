package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MemoryStore struct {
	mu   *sync.Mutex
	data map[string][]byte

	// pending transaction writes; a nil value is a delete
	tx map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("get within a write transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (s *MemoryStore) Put(key string, value []byte) error {
	value = append([]byte{}, value...)
	if s.tx != nil {
		s.tx[key] = value
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	if s.tx != nil {
		s.tx[key] = nil
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) List(prefix string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Record{}
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Record{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Begin() (Store, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("nested write transaction")
	}
	return &MemoryStore{mu: s.mu, data: s.data, tx: make(map[string][]byte)}, nil
}

func (s *MemoryStore) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("commit without a write transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.tx {
		if v == nil {
			delete(s.data, k)
		} else {
			s.data[k] = v
		}
	}
	s.tx = nil
	return nil
}

func (s *MemoryStore) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("rollback without a write transaction")
	}
	s.tx = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
