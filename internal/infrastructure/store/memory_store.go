package store

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory. It backs tests and the
// "memory" state backend.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers []chan []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	keys := make([]string, 0, len(entries))
	for k, v := range entries {
		cp := make([]byte, len(v))
		copy(cp, v)
		s.values[k] = cp
		keys = append(keys, k)
	}
	watchers := s.watchers
	s.mu.Unlock()

	s.notify(watchers, keys)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	watchers := s.watchers
	s.mu.Unlock()

	s.notify(watchers, keys)
	return nil
}

// Watch reports keys written through this store until ctx is done.
func (s *MemoryStore) Watch(ctx context.Context, onChange func(keys []string)) error {
	ch := make(chan []string, 16)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case keys := <-ch:
			onChange(keys)
		}
	}
}

// notify never blocks a writer: a watcher that falls behind misses the
// notification and catches up on its next reload.
func (s *MemoryStore) notify(watchers []chan []string, keys []string) {
	if len(keys) == 0 {
		return
	}
	for _, w := range watchers {
		select {
		case w <- keys:
		default:
		}
	}
}
