// Package memory provides an in-process hierarchical store. It is the
// default backend for local development and the fake used by tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fintrack/internal/store"
)

// Store keeps the whole tree in memory as JSON-shaped values
// (map[string]any / float64 / string). Values round-trip through
// encoding/json on the way in so reads behave exactly like a remote
// JSON document store.
type Store struct {
	mu       sync.RWMutex
	root     map[string]any
	notifier store.Notifier
}

func New() *Store {
	return &Store{root: map[string]any{}}
}

func (s *Store) Read(ctx context.Context, path string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	node, ok := s.lookup(path)
	var raw []byte
	var err error
	if ok {
		raw, err = json.Marshal(node)
	}
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("encode node at %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode node at %q: %w", path, err)
	}
	return true, nil
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs := store.SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}
	if value == nil {
		s.mu.Lock()
		s.remove(segs)
		s.mu.Unlock()
		s.notifier.Notify(path)
		return nil
	}
	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", path, err)
	}
	s.mu.Lock()
	parent := s.ensureParent(segs)
	parent[segs[len(segs)-1]] = normalized
	s.mu.Unlock()
	s.notifier.Notify(path)
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs := store.SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("encode field %q for %q: %w", k, path, err)
		}
		normalized[k] = nv
	}
	s.mu.Lock()
	parent := s.ensureParent(segs)
	leaf := segs[len(segs)-1]
	obj, ok := parent[leaf].(map[string]any)
	if !ok {
		obj = map[string]any{}
		parent[leaf] = obj
	}
	for k, v := range normalized {
		if v == nil {
			delete(obj, k)
			continue
		}
		obj[k] = v
	}
	s.mu.Unlock()
	s.notifier.Notify(path)
	return nil
}

func (s *Store) Subscribe(path string, onChange func()) func() {
	return s.notifier.Subscribe(path, onChange)
}

// lookup walks the tree; callers hold at least the read lock.
func (s *Store) lookup(path string) (any, bool) {
	var node any = s.root
	for _, seg := range store.SplitPath(path) {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// ensureParent creates intermediate objects down to the parent of the
// final segment; callers hold the write lock.
func (s *Store) ensureParent(segs []string) map[string]any {
	cur := s.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	return cur
}

func (s *Store) remove(segs []string) {
	cur := s.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
