package store

import (
	"sort"
	"strings"
	"sync"
)

// MemoryKV is an in-memory KV for tests and the demo. Same transactional
// surface as Badger, no durability.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (s *MemoryKV) Close() error { return nil }

func (s *MemoryKV) View(fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{kv: s, readOnly: true})
}

func (s *MemoryKV) Update(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 写入先进入暂存区，事务函数返回成功后才提交。
	tx := &memoryTx{kv: s, staged: make(map[string]*[]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.staged {
		if v == nil {
			delete(s.data, k)
		} else {
			s.data[k] = *v
		}
	}
	return nil
}

type memoryTx struct {
	kv       *MemoryKV
	readOnly bool
	staged   map[string]*[]byte // nil value = staged delete
}

func (tx *memoryTx) Set(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnlyTx
	}
	v := make([]byte, len(value))
	copy(v, value)
	tx.staged[string(key)] = &v
	return nil
}

func (tx *memoryTx) Get(key []byte) ([]byte, error) {
	if tx.staged != nil {
		if v, ok := tx.staged[string(key)]; ok {
			if v == nil {
				return nil, ErrKeyNotFound
			}
			out := make([]byte, len(*v))
			copy(out, *v)
			return out, nil
		}
	}
	v, ok := tx.kv.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (tx *memoryTx) Delete(key []byte) error {
	if tx.readOnly {
		return ErrReadOnlyTx
	}
	tx.staged[string(key)] = nil
	return nil
}

func (tx *memoryTx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	keys := make([]string, 0, len(tx.kv.data))
	for k := range tx.kv.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if tx.staged != nil {
			if v, ok := tx.staged[k]; ok {
				if v == nil {
					continue
				}
				if err := fn([]byte(k), *v); err != nil {
					return err
				}
				continue
			}
		}
		if err := fn([]byte(k), tx.kv.data[k]); err != nil {
			return err
		}
	}
	return nil
}
