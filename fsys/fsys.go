// Package fsys describes the versioned, writable filesystem that the labelled
// store is kept in, and provides an implementation of it on top of a
// go-billy filesystem.
//
// Every entry carries a version, a creation and a modification time, and a
// small set of string valued extended attributes (xattrs). Paths are always
// slash separated and relative to the root of the filesystem value they are
// given to. A sub-root is a view of one folder as a filesystem of its own.
package fsys

import (
	"time"
)

// Type tells whether a filesystem is synced to other devices or is kept
// only on this one.
type Type string

const (
	Synced Type = "synced"
	Local  Type = "local"
)

// Stats describe one entry.
type Stats struct {
	Name     string
	IsFile   bool
	IsFolder bool
	Size     int64 // only for files
	Version  int64
	Ctime    time.Time
	Mtime    time.Time
}

// Entry is one element of a folder listing.
type Entry struct {
	Name     string
	IsFile   bool
	IsFolder bool
}

// WriteOptions control how whole-file writes treat an existing entry.
type WriteOptions struct {
	Create    bool // create the file if it is missing
	Exclusive bool // fail with AlreadyExists if the file is present
}

// XAttrsChanges is a batch of attribute updates. Removals are applied
// after the sets.
type XAttrsChanges struct {
	Set    map[string]string
	Remove []string
}

// ReadonlyFS is the read-only part of a filesystem.
type ReadonlyFS interface {
	Type() Type
	Versioned() bool

	Stat(path string) (Stats, error)
	ReadBytes(path string) ([]byte, error)
	// ReadRange returns the bytes in [start, end) of a file. The end is
	// clamped to the file size.
	ReadRange(path string, start, end int64) ([]byte, error)
	ReadTxtFile(path string) (string, error)
	ListFolder(path string) ([]Entry, error)
	CheckFolderPresence(path string) (bool, error)

	// GetXAttr returns "" for an attribute which is not set.
	GetXAttr(path, name string) (string, error)
	ListXAttrs(path string) ([]string, error)

	ReadonlyFile(path string) (ReadonlyFile, error)
	ReadonlySubRoot(path string) (ReadonlyFS, error)
}

// WritableFS adds the mutating operations.
type WritableFS interface {
	ReadonlyFS

	WriteBytes(path string, data []byte, opts WriteOptions) error
	// WriteAt overwrites part of an existing file, extending it if needed.
	WriteAt(path string, off int64, data []byte) error
	WriteTxtFile(path, txt string, opts WriteOptions) error
	// MakeFolder creates the folder and any missing parents. It is not an
	// error if the folder already exists.
	MakeFolder(path string) error
	// DeleteFile removes a file.
	DeleteFile(path string) error
	// DeleteFolder removes a folder. A non-empty folder is only removed
	// if removeContent is true.
	DeleteFolder(path string, removeContent bool) error
	// SaveFile copies src, with its attributes, into a new file at dst.
	SaveFile(src ReadonlyFile, dst string) error
	// SaveFolder copies the whole tree src, with attributes, into a new
	// folder at dst.
	SaveFolder(src ReadonlyFS, dst string) error
	UpdateXAttrs(path string, changes XAttrsChanges) error

	WritableFile(path string, create bool) (WritableFile, error)
	WritableSubRoot(path string, create bool) (WritableFS, error)
}

// ReadonlyFile is a handle onto one file.
type ReadonlyFile interface {
	Name() string
	Stat() (Stats, error)
	ReadBytes() ([]byte, error)
	ReadRange(start, end int64) ([]byte, error)
	ReadTxt() (string, error)
	GetXAttr(name string) (string, error)
	ListXAttrs() ([]string, error)
}

// WritableFile is a handle onto one file which may be changed.
type WritableFile interface {
	ReadonlyFile
	WriteBytes(data []byte) error
	// Copy replaces the content of this file with the content of src.
	Copy(src ReadonlyFile) error
	UpdateXAttrs(changes XAttrsChanges) error
}
