package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStorages(t *testing.T) map[string]CacheStorage {
	t.Helper()
	db, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]CacheStorage{
		"memory": NewMemStorage(),
		"sqlite": db,
	}
}

func entry(key, body string) Entry {
	return Entry{Key: key, StoredAt: time.Now(), Bytes: []byte(body)}
}

func keysOf(t *testing.T, c Cache) []string {
	t.Helper()
	keys, err := c.Keys()
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func TestOpenCreatesGenerationOnce(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			if ok, _ := s.Has("static-v1"); ok {
				t.Fatal("Generation exists before open")
			}
			if _, err := s.Open("static-v1"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Open("static-v1"); err != nil {
				t.Fatal(err)
			}
			if ok, err := s.Has("static-v1"); err != nil || !ok {
				t.Fatalf("Has is %v (%v)", ok, err)
			}
			names, err := s.Names()
			if err != nil || len(names) != 1 {
				t.Fatalf("Names are %v (%v)", names, err)
			}
		})
	}
}

func TestNamesInCreationOrder(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"b", "a", "c"} {
				if _, err := s.Open(n); err != nil {
					t.Fatal(err)
				}
			}
			names, _ := s.Names()
			if fmt.Sprint(names) != "[b a c]" {
				t.Fatalf("Names are %v", names)
			}
		})
	}
}

func TestPutReplacesAndMovesToNewest(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := s.Open("dynamic")
			c.Put(entry("a", "1"))
			c.Put(entry("b", "2"))
			c.Put(entry("a", "3"))

			if keys := keysOf(t, c); fmt.Sprint(keys) != "[b a]" {
				t.Fatalf("Keys are %v", keys)
			}
			entries, err := c.All("a")
			if err != nil || len(entries) != 1 {
				t.Fatalf("Entries are %v (%v)", entries, err)
			}
			if body := string(entries[0].Bytes); body != "3" {
				t.Fatalf("Body is %s", body)
			}
			if entries[0].Cache != "dynamic" {
				t.Fatalf("Cache name is %s", entries[0].Cache)
			}
		})
	}
}

func TestDeleteKey(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := s.Open("dynamic")
			c.PutAll([]Entry{entry("a", "1"), entry("b", "2")})

			if ok, err := c.Delete("a"); err != nil || !ok {
				t.Fatalf("Delete returned %v (%v)", ok, err)
			}
			if ok, err := c.Delete("a"); err != nil || ok {
				t.Fatalf("Second delete returned %v (%v)", ok, err)
			}
			if keys := keysOf(t, c); fmt.Sprint(keys) != "[b]" {
				t.Fatalf("Keys are %v", keys)
			}
		})
	}
}

func TestDeleteGeneration(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			old, _ := s.Open("static-v0")
			old.Put(entry("a", "old"))
			cur, _ := s.Open("static-v1")
			cur.Put(entry("a", "new"))

			if ok, err := s.Delete("static-v0"); err != nil || !ok {
				t.Fatalf("Delete returned %v (%v)", ok, err)
			}
			if ok, _ := s.Delete("static-v0"); ok {
				t.Fatal("Deleted a missing generation")
			}
			entries, _ := s.All("a")
			if len(entries) != 1 || string(entries[0].Bytes) != "new" {
				t.Fatalf("Entries are %+v", entries)
			}
		})
	}
}

func TestStorageAllSearchesGenerationsInOrder(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			static, _ := s.Open("static")
			dynamic, _ := s.Open("dynamic")
			dynamic.Put(entry("GET:/x", "dynamic"))
			static.Put(entry("GET:/x", "static"))
			static.Put(entry("GET:/y", "other"))

			entries, err := s.All("GET:/x")
			if err != nil || len(entries) != 2 {
				t.Fatalf("Entries are %+v (%v)", entries, err)
			}
			if entries[0].Cache != "static" || entries[1].Cache != "dynamic" {
				t.Fatalf("Order is %s, %s", entries[0].Cache, entries[1].Cache)
			}
		})
	}
}

func TestPrefixIsLiteral(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := s.Open("dynamic")
			c.Put(entry("GET:/a%20b", "1"))
			c.Put(entry("GET:/axxb", "2"))

			entries, _ := c.All("GET:/a%")
			if len(entries) != 1 || entries[0].Key != "GET:/a%20b" {
				t.Fatalf("Entries are %+v", entries)
			}
		})
	}
}

func TestConcurrentPuts(t *testing.T) {
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := s.Open("dynamic")
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if err := c.Put(entry(fmt.Sprintf("k%d", i), "v")); err != nil {
						t.Error(err)
					}
				}(i)
			}
			wg.Wait()
			if keys := keysOf(t, c); len(keys) != 20 {
				t.Fatalf("Have %d keys", len(keys))
			}
		})
	}
}
