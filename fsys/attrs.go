package fsys

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is the bookkeeping kept for one entry: its version, times and
// extended attributes.
type Record struct {
	Version int64             `msgpack:"v"`
	Ctime   time.Time         `msgpack:"c"`
	Mtime   time.Time         `msgpack:"m"`
	XAttrs  map[string]string `msgpack:"x,omitempty"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.XAttrs != nil {
		c.XAttrs = make(map[string]string, len(r.XAttrs))
		for k, v := range r.XAttrs {
			c.XAttrs[k] = v
		}
	}
	return &c
}

func (r *Record) names() []string {
	result := make([]string, 0, len(r.XAttrs))
	for k := range r.XAttrs {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// AttrTable keeps the Records of a volume, keyed by the slash separated
// path of the entry from the volume root. The root itself has the key "".
// Implementations must be goroutine safe.
type AttrTable interface {
	// Get returns nil and no error if there is no record for key.
	Get(key string) (*Record, error)
	Put(key string, r *Record) error
	// DeleteTree removes the record for key and every record below it.
	DeleteTree(key string) error
	Close() error
}

// MemoryAttrs is an AttrTable kept entirely in memory. It is intended for
// testing and for volumes which do not outlive the process.
type MemoryAttrs struct {
	m       sync.RWMutex
	records map[string]*Record
}

var _ AttrTable = &MemoryAttrs{}

// NewMemoryAttrs returns an empty MemoryAttrs.
func NewMemoryAttrs() *MemoryAttrs {
	return &MemoryAttrs{records: make(map[string]*Record)}
}

func (ma *MemoryAttrs) Get(key string) (*Record, error) {
	ma.m.RLock()
	defer ma.m.RUnlock()
	r, ok := ma.records[key]
	if !ok {
		return nil, nil
	}
	return r.clone(), nil
}

func (ma *MemoryAttrs) Put(key string, r *Record) error {
	ma.m.Lock()
	ma.records[key] = r.clone()
	ma.m.Unlock()
	return nil
}

func (ma *MemoryAttrs) DeleteTree(key string) error {
	ma.m.Lock()
	defer ma.m.Unlock()
	prefix := treePrefix(key)
	for k := range ma.records {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(ma.records, k)
		}
	}
	return nil
}

func (ma *MemoryAttrs) Close() error { return nil }

// return the prefix shared by every key strictly below key
func treePrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}
