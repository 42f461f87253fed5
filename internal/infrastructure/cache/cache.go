package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/golang/groupcache/lru"
)

// Script is a compiled program together with the modification time of the
// source it was compiled from. A zero ModTime means the time was unknown.
type Script struct {
	Program    *goja.Program
	SourceName string
	ModTime    time.Time
}

// FreshAgainst reports whether the script may be reused when the source's
// current modification time is latest. An unknown latest time counts as
// fresh; an unknown stored time never does.
func (s *Script) FreshAgainst(latest time.Time) bool {
	if latest.IsZero() {
		return true
	}
	if s.ModTime.IsZero() {
		return false
	}
	return !s.ModTime.Before(latest)
}

// Tier is one level of the script cache.
type Tier interface {
	Get(key string) (*Script, bool)
	Put(key string, s *Script)
	Len() int
	Name() string
}

// Library is the unbounded tier for trusted engine scripts.
type Library struct {
	entries sync.Map
	n       atomic.Int64
}

// NewLibrary creates an empty library tier.
func NewLibrary() *Library {
	return &Library{}
}

func (c *Library) Get(key string) (*Script, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Script), true
}

func (c *Library) Put(key string, s *Script) {
	if _, loaded := c.entries.Swap(key, s); !loaded {
		c.n.Add(1)
	}
}

func (c *Library) Len() int { return int(c.n.Load()) }

func (c *Library) Name() string { return "library" }

// User is the bounded LRU tier for tenant scripts.
type User struct {
	mu    sync.Mutex
	cache *lru.Cache
	// OnEvict, when set, observes evictions. It runs with the tier locked
	// and must not call back into the tier.
	onEvict func(key string)
}

// NewUser creates a user tier holding at most capacity scripts.
func NewUser(capacity int) *User {
	if capacity <= 0 {
		capacity = 1
	}
	u := &User{cache: lru.New(capacity)}
	u.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		if u.onEvict != nil {
			u.onEvict(key.(string))
		}
	}
	return u
}

// OnEvict registers an eviction observer.
func (c *User) OnEvict(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the script for key and marks it most recently used.
func (c *User) Get(key string) (*Script, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Script), true
}

// Put stores s, evicting the least recently used entry when full.
func (c *User) Put(key string, s *Script) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, s)
}

func (c *User) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *User) Name() string { return "user" }
