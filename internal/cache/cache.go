// Package cache holds the last good payload per operation identity and mediates
// invalidation.
//
// Every key has a validity token. A payload is trusted only while the token it was
// stamped with equals the key's current token. Tokens change only through
// invalidation (one key, one kind, or everything) and are independent of job
// generations. Writers stamp entries with the token they captured when their job was
// dispatched, so a job that started before an invalidation can never make its payload
// visible after it.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/metrics"
)

// Key identifies a cached payload: the operation kind plus its serialized parameters
type Key struct {
	Kind   git.Kind
	Params string
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Kind.String()
	}
	return k.Kind.String() + ":" + k.Params
}

// NewKey builds a key from a kind and its parameters. Parameters are serialized as
// JSON so that equal parameter values always produce equal keys.
func NewKey(kind git.Kind, params any) Key {
	if params == nil {
		return Key{Kind: kind}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return Key{Kind: kind, Params: fmt.Sprintf("%#v", params)}
	}
	s := string(data)
	if s == "{}" || s == "null" {
		s = ""
	}
	return Key{Kind: kind, Params: s}
}

// Token is a validity token. Two tokens are either equal (payload trusted) or not.
type Token struct {
	Global uint64
	Kind   uint64
	Key    uint64
}

type entry struct {
	mu      sync.Mutex
	token   uint64
	filled  bool
	stamp   Token
	payload any
}

// Cache is safe for concurrent use. Each key has its own lock; kind and global
// epochs are atomics, so unrelated keys never contend.
type Cache struct {
	global  atomic.Uint64
	seq     atomic.Uint64
	kinds   sync.Map // git.Kind -> *atomic.Uint64
	entries sync.Map // Key -> *entry
	metrics *metrics.Metrics
}

// New creates an empty cache. m may be nil.
func New(m *metrics.Metrics) *Cache {
	return &Cache{metrics: m}
}

func (c *Cache) kindEpoch(kind git.Kind) *atomic.Uint64 {
	if v, ok := c.kinds.Load(kind); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := c.kinds.LoadOrStore(kind, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (c *Cache) entryFor(key Key) *entry {
	if v, ok := c.entries.Load(key); ok {
		return v.(*entry)
	}
	// A fresh entry starts at the current sequence value, never at zero, so a
	// recreated entry cannot match a token captured from an earlier incarnation.
	v, _ := c.entries.LoadOrStore(key, &entry{token: c.seq.Load()})
	return v.(*entry)
}

// current must be called with e.mu held
func (c *Cache) current(key Key, e *entry) Token {
	return Token{
		Global: c.global.Load(),
		Kind:   c.kindEpoch(key.Kind).Load(),
		Key:    e.token,
	}
}

// Token returns the key's current validity token. Job slots capture it at
// dispatch time and hand it back to Put.
func (c *Cache) Token(key Key) Token {
	e := c.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.current(key, e)
}

// Get returns the payload for key only if its token is still current
func (c *Cache) Get(key Key) (any, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		c.metrics.ObserveCacheLookup(false)
		return nil, false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.filled || e.stamp != c.current(key, e) {
		c.metrics.ObserveCacheLookup(false)
		return nil, false
	}
	c.metrics.ObserveCacheLookup(true)
	return e.payload, true
}

// Put stores payload stamped with token, the value captured when the producing job
// was dispatched. It reports whether the stored entry is currently valid. A put with
// an outdated token still lands unless it would replace a payload that is valid
// right now.
func (c *Cache) Put(key Key, payload any, token Token) bool {
	e := c.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := c.current(key, e)
	fresh := token == cur
	if !fresh && e.filled && e.stamp == cur {
		return false
	}
	e.payload = payload
	e.stamp = token
	e.filled = true
	return fresh
}

// Invalidate bumps the validity token of one key
func (c *Cache) Invalidate(key Key) {
	e := c.entryFor(key)
	e.mu.Lock()
	e.token = c.seq.Add(1)
	e.mu.Unlock()
	c.metrics.ObserveInvalidation("key")
}

// InvalidateKind bumps the validity token of every key of one kind
func (c *Cache) InvalidateKind(kind git.Kind) {
	c.kindEpoch(kind).Add(1)
	c.metrics.ObserveInvalidation("kind")
}

// InvalidateAll bumps the validity token of every key
func (c *Cache) InvalidateAll() {
	c.global.Add(1)
	c.metrics.ObserveInvalidation("all")
}

// Prune releases the payloads that can no longer be served and returns how many
// were released. Entries and their tokens stay in place, since an in-flight job
// may still hold a token captured from them.
func (c *Cache) Prune() int {
	released := 0
	c.entries.Range(func(k, v any) bool {
		key := k.(Key)
		e := v.(*entry)
		e.mu.Lock()
		if e.filled && e.stamp != c.current(key, e) {
			e.payload = nil
			e.filled = false
			released++
		}
		e.mu.Unlock()
		return true
	})
	return released
}

// Len returns the number of tracked keys, valid or not
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
