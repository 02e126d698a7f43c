// Package blobcache keeps recently read blob contents close at hand. The
// cached bytes live in an fsys volume, so the cache can be entirely in
// memory or on disk.
//
// While the contents are kept in the volume, the list recording usage is
// kept only in memory. On startup Scan enumerates the volume and adds what
// it finds to the list in an undetermined order.
//
// The cache uses an LRU replacement policy.
package blobcache

import (
	"container/list"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ndlib/lfstore/fsys"
)

// Cache is what the store needs from a blob cache. Implementations are
// goroutine safe. A cache never reports errors on Get; anything it cannot
// produce is a miss.
//
// Each copy is saved with the version the item had when it was read. The
// cache does not compare versions itself; callers check the one returned by
// Get against the item before trusting the copy.
type Cache interface {
	Get(id string) (data []byte, typ string, version int64, ok bool)
	Put(id string, data []byte, typ string, version int64) error
	Remove(id string) error
}

// ErrCacheFull means an item is larger than the entire cache.
var ErrCacheFull = errors.New("blobcache: item is larger than the cache")

const (
	typeAttr    = "type"
	versionAttr = "version"
)

// LRU is a size bounded Cache.
type LRU struct {
	fs      fsys.WritableFS
	maxSize int64

	hits, misses int64 // atomic

	m     sync.Mutex // protects everything below, and access to fs
	size  int64      // total bytes of the entries in lru
	lru   *list.List // front is MRU, back is LRU
	index map[string]*list.Element
}

type entry struct {
	id   string
	size int64
}

var _ Cache = &LRU{}

// NewLRU makes a cache holding at most maxSize bytes in fs. The volume
// may already have items in it; call Scan to take them into account.
func NewLRU(fs fsys.WritableFS, maxSize int64) *LRU {
	return &LRU{
		fs:      fs,
		maxSize: maxSize,
		lru:     list.New(),
		index:   make(map[string]*list.Element),
	}
}

// ids contain slashes. They are flattened so the cache volume stays a
// single folder.
func fileName(id string) string { return strings.Replace(id, "/", "_", -1) }
func idOf(name string) string   { return strings.Replace(name, "_", "/", -1) }

// Scan adds the items already in the volume to the cache. Items which no
// longer fit are removed from the volume.
func (t *LRU) Scan() error {
	entries, err := t.fs.ListFolder("")
	if err != nil {
		return err
	}
	t.m.Lock()
	defer t.m.Unlock()
	for _, e := range entries {
		if !e.IsFile {
			continue
		}
		id := idOf(e.Name)
		if _, ok := t.index[id]; ok {
			continue
		}
		st, err := t.fs.Stat(e.Name)
		if err != nil {
			continue
		}
		if err := t.reserve(st.Size); err != nil {
			t.fs.DeleteFile(e.Name)
			continue
		}
		t.index[id] = t.lru.PushFront(entry{id: id, size: st.Size})
	}
	return nil
}

// Contains returns true if id is cached. It does not change the LRU order.
func (t *LRU) Contains(id string) bool {
	t.m.Lock()
	defer t.m.Unlock()
	_, ok := t.index[id]
	return ok
}

// Get returns the cached content, content type and item version of id,
// marking it as most recently used.
func (t *LRU) Get(id string) ([]byte, string, int64, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	e, ok := t.index[id]
	if !ok {
		atomic.AddInt64(&t.misses, 1)
		return nil, "", 0, false
	}
	name := fileName(id)
	data, err := t.fs.ReadBytes(name)
	var typ, v string
	var version int64
	if err == nil {
		typ, err = t.fs.GetXAttr(name, typeAttr)
	}
	if err == nil {
		v, err = t.fs.GetXAttr(name, versionAttr)
	}
	if err == nil {
		version, err = strconv.ParseInt(v, 10, 64)
	}
	if err != nil {
		// the copy is unusable, so forget it
		t.unlink(e)
		atomic.AddInt64(&t.misses, 1)
		return nil, "", 0, false
	}
	t.lru.MoveToFront(e)
	atomic.AddInt64(&t.hits, 1)
	return data, typ, version, true
}

// Put saves a copy of data under id, replacing any earlier copy and
// evicting other items as needed. version is the item version data was
// read at.
func (t *LRU) Put(id string, data []byte, typ string, version int64) error {
	size := int64(len(data))
	if size > t.maxSize {
		return ErrCacheFull
	}
	t.m.Lock()
	defer t.m.Unlock()
	if e, ok := t.index[id]; ok {
		t.unlink(e)
	}
	if err := t.reserve(size); err != nil {
		return err
	}
	name := fileName(id)
	err := t.fs.WriteBytes(name, data, fsys.WriteOptions{Create: true})
	if err == nil {
		err = t.fs.UpdateXAttrs(name, fsys.XAttrsChanges{Set: map[string]string{
			typeAttr:    typ,
			versionAttr: strconv.FormatInt(version, 10),
		}})
	}
	if err != nil {
		t.size -= size
		t.fs.DeleteFile(name)
		return errors.Wrapf(err, "blobcache: saving %s", id)
	}
	t.index[id] = t.lru.PushFront(entry{id: id, size: size})
	return nil
}

// Remove drops id from the cache. Removing something not cached is not an
// error.
func (t *LRU) Remove(id string) error {
	t.m.Lock()
	defer t.m.Unlock()
	e, ok := t.index[id]
	if !ok {
		return nil
	}
	return t.unlink(e)
}

// Size returns the number of bytes used and the number of items cached.
func (t *LRU) Size() (int64, int) {
	t.m.Lock()
	defer t.m.Unlock()
	return t.size, t.lru.Len()
}

// Stats returns the number of hits and misses seen by Get.
func (t *LRU) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&t.hits), atomic.LoadInt64(&t.misses)
}

// unlink removes an entry from the list and its content from the volume.
// Assumes t.m is held.
func (t *LRU) unlink(e *list.Element) error {
	ent := t.lru.Remove(e).(entry)
	delete(t.index, ent.id)
	t.size -= ent.size
	err := t.fs.DeleteFile(fileName(ent.id))
	if err != nil && !fsys.IsNotFound(err) {
		return err
	}
	return nil
}

// reserve space for size bytes, evicting items if necessary to stay
// under maxSize. Nothing is reserved if there is an error. Assumes t.m is
// held.
func (t *LRU) reserve(size int64) error {
	t.size += size
	for t.size > t.maxSize {
		e := t.lru.Back()
		if e == nil {
			t.size -= size
			return ErrCacheFull
		}
		if err := t.unlink(e); err != nil {
			t.size -= size
			return err
		}
	}
	return nil
}
