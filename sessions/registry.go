package sessions

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const defaultShardCount = 32

// Registry maps session identities to live channels of type C. All methods are
// safe for concurrent use and each one is atomic with respect to the others.
type Registry[C any] struct {
	shards []*registryShard[C]
	newID  func() string
}

type registryShard[C any] struct {
	mu      sync.RWMutex
	entries map[string]C
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	shardCount int
	newID      func() string
}

// WithShardCount sets the number of independently locked shards. Values below
// one are ignored.
func WithShardCount(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// WithIDGenerator replaces the identity generator. The generator must not
// return an identity that is still live.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(c *registryConfig) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry[C any](opts ...RegistryOption) *Registry[C] {
	cfg := registryConfig{shardCount: defaultShardCount, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry[C]{
		shards: make([]*registryShard[C], cfg.shardCount),
		newID:  cfg.newID,
	}
	for i := range r.shards {
		r.shards[i] = &registryShard[C]{entries: make(map[string]C)}
	}
	return r
}

func (r *Registry[C]) shard(id string) *registryShard[C] {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// Create mints a fresh identity, stores ch under it and returns the identity.
// It panics if the generator yields an identity that is already live.
func (r *Registry[C]) Create(ch C) string {
	id := r.newID()
	if id == "" {
		panic("sessions: id generator returned an empty identity")
	}
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		panic(fmt.Sprintf("sessions: duplicate session identity %q", id))
	}
	s.entries[id] = ch
	return id
}

// Lookup returns the channel registered under id, or ErrSessionNotFound.
func (r *Registry[C]) Lookup(id string) (C, error) {
	var zero C
	if id == "" {
		return zero, ErrSessionNotFound
	}
	s := r.shard(id)
	s.mu.RLock()
	ch, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return zero, ErrSessionNotFound
	}
	return ch, nil
}

// Remove deletes the entry for id. It reports whether an entry was present;
// removing an absent identity is a no-op.
func (r *Registry[C]) Remove(id string) bool {
	if id == "" {
		return false
	}
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Len returns the number of live entries.
func (r *Registry[C]) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for a snapshot of the live entries until fn returns false.
// fn runs without any registry lock held, so it may call Remove.
func (r *Registry[C]) Range(fn func(id string, ch C) bool) {
	type entry struct {
		id string
		ch C
	}
	for _, s := range r.shards {
		s.mu.RLock()
		snapshot := make([]entry, 0, len(s.entries))
		for id, ch := range s.entries {
			snapshot = append(snapshot, entry{id: id, ch: ch})
		}
		s.mu.RUnlock()
		for _, e := range snapshot {
			if !fn(e.id, e.ch) {
				return
			}
		}
	}
}
