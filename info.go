package lfstore

import (
	"sort"
	"time"

	"github.com/ndlib/lfstore/fsys"
)

// Attribute names kept by the store itself. They never appear in Attrs or
// Info and cannot be set through the attribute methods.
const (
	IDAttr   = "lfs:id"
	TypeAttr = "lfs:type"
)

// FileNameAttr is the attribute giving the name an item is exported under.
const FileNameAttr = "fileName"

// Attrs are the labels attached to an item.
type Attrs map[string]string

// AttrChanges is a set of label edits. A nil value removes the label, any
// other value sets it.
type AttrChanges map[string]*string

// Value returns a pointer to s, for building AttrChanges.
func Value(s string) *string { return &s }

// Blob is the content of a blob item along with its content type.
type Blob struct {
	Content []byte
	Type    string
}

// Info describes a stored item. Size and Type are only set for file shaped
// items, that is blobs and files.
type Info struct {
	ID       string    `json:"id"`
	Version  int64     `json:"version"`
	Ctime    time.Time `json:"ctime"`
	Mtime    time.Time `json:"mtime"`
	IsFile   bool      `json:"isFile,omitempty"`
	IsFolder bool      `json:"isFolder,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Type     string    `json:"type,omitempty"`
	Attrs    Attrs     `json:"attrs,omitempty"`
}

func reserved(name string) bool {
	return name == IDAttr || name == TypeAttr
}

func checkNames(names []string) error {
	for _, name := range names {
		if reserved(name) {
			return &Error{Message: name, Err: ErrReservedAttr}
		}
	}
	return nil
}

func (a Attrs) names() []string {
	result := make([]string, 0, len(a))
	for k := range a {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// xattrs returns the changes setting a, with room for the reserved names.
func (a Attrs) xattrs() fsys.XAttrsChanges {
	set := make(map[string]string, len(a)+2)
	for k, v := range a {
		set[k] = v
	}
	return fsys.XAttrsChanges{Set: set}
}

func (c AttrChanges) names() []string {
	result := make([]string, 0, len(c))
	for k := range c {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func (c AttrChanges) xattrs() fsys.XAttrsChanges {
	var changes fsys.XAttrsChanges
	for _, k := range c.names() {
		v := c[k]
		if v == nil {
			changes.Remove = append(changes.Remove, k)
			continue
		}
		if changes.Set == nil {
			changes.Set = make(map[string]string)
		}
		changes.Set[k] = *v
	}
	return changes
}
