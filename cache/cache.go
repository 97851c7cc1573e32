// Package cache provides a read-through TTL cache for query results.
// Entries are stored encoded, so hits hand back independent copies, and
// concurrent misses on one key collapse into a single fetch. The cache is
// informational: it never participates in transactions, and mutations
// invalidate by key prefix rather than tracking rows.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Codec encodes cached values. The default is msgpack.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// Store is an in-memory TTL cache. Expired entries are dropped lazily on
// access; there is no background sweeper. Safe for concurrent use.
type Store struct {
	ttl   time.Duration
	codec Codec
	clock func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	items map[string]item
}

type item struct {
	data      []byte
	expiresAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCodec replaces the value codec.
func WithCodec(c Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New returns a store whose entries live for ttl. A non-positive ttl
// keeps entries until they are invalidated.
func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:   ttl,
		codec: msgpackCodec{},
		clock: time.Now,
		items: make(map[string]item),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key joins key parts with an unprintable separator so distinct part
// lists never collide. The first part is conventionally the entity name,
// making DeletePrefix(Key(entity)+sep) invalidate one entity's entries.
func Key(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Prefix returns the key prefix covering every key built from parts plus
// further parts, for use with DeletePrefix.
func Prefix(parts ...string) string {
	return Key(parts...) + "\x1f"
}

// Set stores a value under the key.
func (s *Store) Set(key string, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item{data: data, expiresAt: s.deadline()}
	return nil
}

func (s *Store) deadline() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.clock().Add(s.ttl)
}

// Get decodes the cached value into dst and reports whether the key was
// present and fresh.
func (s *Store) Get(key string, dst any) bool {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if !it.expiresAt.IsZero() && s.clock().After(it.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return false
	}
	return s.codec.Unmarshal(it.data, dst) == nil
}

// Do is the read-through path: a hit decodes into dst, a miss runs fetch
// once per key (concurrent misses share the flight), stores the result
// and decodes it into dst. dst always receives the decoded form, so hit
// and miss hand the caller identical types.
func (s *Store) Do(key string, dst any, fetch func() (any, error)) error {
	if s.Get(key, dst) {
		return nil
	}
	data, err, _ := s.group.Do(key, func() (any, error) {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		data, err := s.codec.Marshal(v)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.items[key] = item{data: data, expiresAt: s.deadline()}
		s.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return err
	}
	return s.codec.Unmarshal(data.([]byte), dst)
}

// Delete removes one key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// DeletePrefix removes every key with the given prefix. Mutation paths
// call it with the entity's key prefix.
func (s *Store) DeletePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
		}
	}
}

// Purge removes every entry.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]item)
}

// Len returns the number of stored entries, counting expired entries not
// yet evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
