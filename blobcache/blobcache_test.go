package blobcache

import (
	"fmt"
	"testing"

	"github.com/ndlib/lfstore/fsys"
)

func TestEviction(t *testing.T) {
	cache := NewLRU(fsys.NewMemory(fsys.Local), 100)
	// "hello world" is 11 bytes. so 10 should cause a cache eviction
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("aa/bb/cc/%04d", i)
		err := cache.Put(id, []byte("hello world"), "text/plain", 1)
		if err != nil {
			t.Fatalf("received %s", err.Error())
		}
	}

	var nEvicted int
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("aa/bb/cc/%04d", i)
		data, typ, _, ok := cache.Get(id)
		if !ok {
			nEvicted++
			continue
		}
		if string(data) != "hello world" || typ != "text/plain" {
			t.Errorf("Received %q, %q", data, typ)
		}
	}
	t.Logf("nEvicted = %d", nEvicted)
	if nEvicted != 1 {
		t.Errorf("Got %d evicted, expected 1", nEvicted)
	}
	// the oldest one goes first
	if cache.Contains("aa/bb/cc/0000") {
		t.Errorf("LRU item was not the one evicted")
	}
	size, n := cache.Size()
	if size != 99 || n != 9 {
		t.Errorf("Got size %d, %d items, expected 99, 9", size, n)
	}
}

func TestRecentlyUsedSurvives(t *testing.T) {
	cache := NewLRU(fsys.NewMemory(fsys.Local), 30)
	cache.Put("a", []byte("0123456789"), "", 1)
	cache.Put("b", []byte("0123456789"), "", 1)
	cache.Put("c", []byte("0123456789"), "", 1)
	cache.Get("a")
	cache.Put("d", []byte("0123456789"), "", 1)
	if !cache.Contains("a") {
		t.Errorf("recently used item was evicted")
	}
	if cache.Contains("b") {
		t.Errorf("expected b to be evicted")
	}
}

func TestTooLargeItem(t *testing.T) {
	cache := NewLRU(fsys.NewMemory(fsys.Local), 10)
	err := cache.Put("qwerty", []byte("hello world"), "", 1)
	if err != ErrCacheFull {
		t.Errorf("Got %v, expected ErrCacheFull", err)
	}
	size, _ := cache.Size()
	if size != 0 {
		t.Errorf("Cache size is %d. Expected %d", size, 0)
	}
}

func TestReplaceAndRemove(t *testing.T) {
	fs := fsys.NewMemory(fsys.Local)
	cache := NewLRU(fs, 100)
	cache.Put("aa/bb/cc/dddd", []byte("first"), "a/b", 1)
	cache.Put("aa/bb/cc/dddd", []byte("second!"), "c/d", 2)
	data, typ, version, ok := cache.Get("aa/bb/cc/dddd")
	if !ok || string(data) != "second!" || typ != "c/d" || version != 2 {
		t.Errorf("Got %q, %q, %d, %v", data, typ, version, ok)
	}
	if size, n := cache.Size(); size != 7 || n != 1 {
		t.Errorf("Got size %d, %d items, expected 7, 1", size, n)
	}
	if err := cache.Remove("aa/bb/cc/dddd"); err != nil {
		t.Errorf("Got %v", err)
	}
	if err := cache.Remove("aa/bb/cc/dddd"); err != nil {
		t.Errorf("Got %v removing twice", err)
	}
	if _, _, _, ok := cache.Get("aa/bb/cc/dddd"); ok {
		t.Errorf("Got a hit after Remove")
	}
	if entries, _ := fs.ListFolder(""); len(entries) != 0 {
		t.Errorf("Got %d files left in the volume", len(entries))
	}
	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Got %d hits, %d misses, expected 1, 1", hits, misses)
	}
}

func TestLostContentIsAMiss(t *testing.T) {
	fs := fsys.NewMemory(fsys.Local)
	cache := NewLRU(fs, 100)
	cache.Put("x", []byte("data"), "", 1)
	fs.DeleteFile("x")
	if _, _, _, ok := cache.Get("x"); ok {
		t.Errorf("Got a hit for missing content")
	}
	if cache.Contains("x") {
		t.Errorf("entry was kept after its content vanished")
	}
}

func TestScan(t *testing.T) {
	mem := fsys.NewMemory(fsys.Local)

	var table = []struct {
		id, contents string
	}{
		{"qw/er/ty/0000", "1234567890"},
		{"as/df/gh/0000", "1234567890-="},
		{"zx/cv/bn/0000", "abcdefghijklmnopqrstuvwxyz"},
	}
	for _, elem := range table {
		name := fileName(elem.id)
		err := mem.WriteBytes(name, []byte(elem.contents), fsys.WriteOptions{Create: true})
		if err != nil {
			t.Fatal(err)
		}
		mem.UpdateXAttrs(name, fsys.XAttrsChanges{Set: map[string]string{versionAttr: "3"}})
	}

	cache := NewLRU(mem, 100)
	if err := cache.Scan(); err != nil {
		t.Fatal(err)
	}
	for _, elem := range table {
		data, _, version, ok := cache.Get(elem.id)
		if !ok || string(data) != elem.contents || version != 3 {
			t.Errorf("id %s: Got %q, %d, %v", elem.id, data, version, ok)
		}
	}

	// a small cache keeps what fits and drops the rest from the volume
	cache = NewLRU(mem, 15)
	cache.Scan()
	size, n := cache.Size()
	if size > 15 {
		t.Errorf("Got size %d, %d items", size, n)
	}
	entries, _ := mem.ListFolder("")
	if len(entries) != n {
		t.Errorf("Got %d files in volume, expected %d", len(entries), n)
	}
}

func TestMissingVersionIsAMiss(t *testing.T) {
	fs := fsys.NewMemory(fsys.Local)
	fs.WriteBytes("x", []byte("data"), fsys.WriteOptions{Create: true})
	cache := NewLRU(fs, 100)
	cache.Scan()
	if _, _, _, ok := cache.Get("x"); ok {
		t.Errorf("Got a hit for a copy with no version")
	}
	if cache.Contains("x") {
		t.Errorf("entry was kept without a version")
	}
}

func TestEmptyCache(t *testing.T) {
	var c Cache = EmptyCache{}
	c.Put("a", []byte("data"), "", 1)
	if _, _, _, ok := c.Get("a"); ok {
		t.Errorf("EmptyCache returned a hit")
	}
}
