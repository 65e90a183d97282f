package storage

import (
	"strings"
	"sync"
	"time"
)

// CacheStorage holds named cache generations.
// Each generation stores []byte values, which represent HTTP responses,
// under request keys, and remembers the order in which keys were inserted.
//
// Implementations must be thread-safe!
type CacheStorage interface {
	// Open returns the generation with the given name, creating it if needed.
	Open(name string) (Cache, error)
	// Has checks if a generation with the given name exists.
	Has(name string) (bool, error)
	// Delete removes the generation and all of its entries.
	// It returns false if there was no such generation.
	Delete(name string) (bool, error)
	// Names returns the names of all generations in creation order.
	Names() ([]string, error)
	// All returns the entries of every generation whose key has the given prefix.
	// Entries are ordered by generation creation order, then by insertion order.
	All(prefix string) ([]Entry, error)
}

// Cache is a single named generation.
type Cache interface {
	Name() string
	// All returns all entries that have the specific key prefix, in insertion order.
	All(prefix string) ([]Entry, error)
	// Put stores the entry, replacing any entry with the same key.
	// A replaced key moves to the newest position.
	Put(entry Entry) error
	// PutAll stores all entries or none of them.
	PutAll(entries []Entry) error
	// Delete removes the entry for the given key.
	// It returns false if the key was not present.
	Delete(key string) (bool, error)
	// Keys returns all keys, oldest first.
	Keys() ([]string, error)
}

type Entry struct {
	// Name of the generation holding the entry. Set by the storage on reads.
	Cache    string
	Key      string
	StoredAt time.Time
	Bytes    []byte
}

type memCache struct {
	entries map[string]Entry
	order   []string
}

func (c *memCache) put(e Entry) {
	if _, ok := c.entries[e.Key]; ok {
		c.remove(e.Key)
	}
	c.entries[e.Key] = e
	c.order = append(c.order, e.Key)
}

func (c *memCache) remove(key string) bool {
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *memCache) all(name, prefix string) []Entry {
	entries := make([]Entry, 0)
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			e := c.entries[key]
			e.Cache = name
			entries = append(entries, e)
		}
	}
	return entries
}

// MemStorage keeps all generations in memory.
type MemStorage struct {
	mutex  *sync.RWMutex
	caches map[string]*memCache
	names  []string
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex:  &sync.RWMutex{},
		caches: make(map[string]*memCache),
	}
}

// ensure returns the named generation, creating it if needed.
// The caller must hold the write lock.
func (m *MemStorage) ensure(name string) *memCache {
	c, ok := m.caches[name]
	if !ok {
		c = &memCache{entries: make(map[string]Entry)}
		m.caches[name] = c
		m.names = append(m.names, name)
	}
	return c
}

func (m *MemStorage) Open(name string) (Cache, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ensure(name)
	return memHandle{m, name}, nil
}

func (m *MemStorage) Has(name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.caches[name]
	return ok, nil
}

func (m *MemStorage) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.caches[name]; !ok {
		return false, nil
	}
	delete(m.caches, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i], m.names[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *MemStorage) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names, nil
}

func (m *MemStorage) All(prefix string) ([]Entry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries := make([]Entry, 0)
	for _, name := range m.names {
		entries = append(entries, m.caches[name].all(name, prefix)...)
	}
	return entries, nil
}

// memHandle is a Cache backed by a MemStorage generation.
// Writes through a handle whose generation was deleted recreate it.
type memHandle struct {
	m    *MemStorage
	name string
}

func (h memHandle) Name() string {
	return h.name
}

func (h memHandle) All(prefix string) ([]Entry, error) {
	h.m.mutex.RLock()
	defer h.m.mutex.RUnlock()
	c, ok := h.m.caches[h.name]
	if !ok {
		return []Entry{}, nil
	}
	return c.all(h.name, prefix), nil
}

func (h memHandle) Put(entry Entry) error {
	return h.PutAll([]Entry{entry})
}

func (h memHandle) PutAll(entries []Entry) error {
	h.m.mutex.Lock()
	defer h.m.mutex.Unlock()
	c := h.m.ensure(h.name)
	for _, e := range entries {
		bts := make([]byte, len(e.Bytes))
		copy(bts, e.Bytes)
		c.put(Entry{Key: e.Key, StoredAt: e.StoredAt, Bytes: bts})
	}
	return nil
}

func (h memHandle) Delete(key string) (bool, error) {
	h.m.mutex.Lock()
	defer h.m.mutex.Unlock()
	c, ok := h.m.caches[h.name]
	if !ok {
		return false, nil
	}
	return c.remove(key), nil
}

func (h memHandle) Keys() ([]string, error) {
	h.m.mutex.RLock()
	defer h.m.mutex.RUnlock()
	c, ok := h.m.caches[h.name]
	if !ok {
		return []string{}, nil
	}
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys, nil
}
