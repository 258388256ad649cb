// Package store defines the contract for the hierarchical key-path store
// that holds the monthly ledger records, plus the path layout shared by
// every backend.
package store

import (
	"context"
	"strings"
	"sync"
)

// Store is a key-path-addressable hierarchical store. Paths are
// slash-separated segments ("months/2025/6/totals"). There is no
// transactional primitive: each call is an independent round trip.
type Store interface {
	// Read decodes the value at path into dest. Returns false when the
	// path is absent; dest is untouched in that case.
	Read(ctx context.Context, path string, dest any) (bool, error)

	// Write replaces the value at path. Writing nil removes the node,
	// mirroring the hosted store's set-to-null semantics.
	Write(ctx context.Context, path string, value any) error

	// Update merges fields into the object at path without touching
	// siblings. The merge is top-level only.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Subscribe registers onChange for every mutation at or around path
	// (ancestors and descendants both count). The returned func cancels
	// the subscription.
	Subscribe(path string, onChange func()) (cancel func())
}

// SplitPath breaks a path into its segments, dropping empty ones.
func SplitPath(path string) []string {
	raw := strings.Split(path, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Related reports whether a mutation at mutated should wake a subscriber
// of sub: true when either path is a prefix of the other.
func Related(sub, mutated string) bool {
	a, b := SplitPath(sub), SplitPath(mutated)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Notifier implements the Subscribe half of Store for in-process
// backends. Callbacks run synchronously on the mutating goroutine.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	path     string
	onChange func()
}

func (n *Notifier) Subscribe(path string, onChange func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]subscription)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = subscription{path: path, onChange: onChange}
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Notify invokes every subscriber related to the mutated path.
func (n *Notifier) Notify(mutated string) {
	n.mu.Lock()
	var fns []func()
	for _, s := range n.subs {
		if Related(s.path, mutated) {
			fns = append(fns, s.onChange)
		}
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
