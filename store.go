// Package lfstore is an embedded store of labelled items. An item is a blob
// of bytes with a content type, a copied in file, or a copied in folder
// tree. Each item gets a generated id and carries a set of string labels.
//
// Items are spread over a fixed depth tree of bucket folders by a
// bucket.Allocator so no folder grows without bound. Every operation
// addressing an existing id runs through a keyed task serializer, so the
// operations on one id happen one after the other in the order they were
// made, while operations on different ids run concurrently.
//
// The store lives in two filesystem roots. The synced root holds the items
// under a private "lfs_data" folder. The local root is scratch space for
// the allocator marker and is never synced.
package lfstore

import (
	"context"
	"path"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/lfstore/blobcache"
	"github.com/ndlib/lfstore/bucket"
	"github.com/ndlib/lfstore/fsys"
	"github.com/ndlib/lfstore/task"
)

// DataFolder is the folder inside the synced root holding item content.
const DataFolder = "lfs_data"

// DefaultMaxAttempts is how many ids an add operation tries before giving
// up.
const DefaultMaxAttempts = 8

// Options tune a Store. The zero value gives the defaults.
type Options struct {
	BucketCeiling int             // items per bucket, 0 for bucket.DefaultCeiling
	MaxAttempts   int             // ids an add may try, 0 for DefaultMaxAttempts
	Cache         blobcache.Cache // nil for no cache
	Logger        *log.Entry      // nil for the standard logger
}

// Store is a Labelled Object Store. Make one with Open. It is safe for
// concurrent use. Context arguments only bound how long a caller waits; an
// operation which has been accepted always runs to completion.
type Store struct {
	main        fsys.WritableFS
	data        fsys.WritableFS
	scratch     fsys.WritableFS
	alloc       *bucket.Allocator
	procs       *task.Keyed
	cache       blobcache.Cache
	log         *log.Entry
	maxAttempts int
}

// Open makes a store over a synced root for the data and a local root for
// scratch. Both must be versioned.
func Open(synced, local fsys.WritableFS, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	switch {
	case !synced.Versioned():
		return nil, errors.New("lfstore: data root must be versioned")
	case synced.Type() != fsys.Synced:
		return nil, errors.New("lfstore: data root must be synced")
	case !local.Versioned():
		return nil, errors.New("lfstore: scratch root must be versioned")
	case local.Type() != fsys.Local:
		return nil, errors.New("lfstore: scratch root must be local")
	}
	data, err := synced.WritableSubRoot(DataFolder, true)
	if err != nil {
		return nil, wrapErr("", err, "Fail to open data folder")
	}
	s := &Store{
		main:        synced,
		data:        data,
		scratch:     local,
		procs:       task.NewKeyed(),
		cache:       opts.Cache,
		log:         opts.Logger,
		maxAttempts: opts.MaxAttempts,
	}
	if s.log == nil {
		s.log = log.WithField("module", "lfstore")
	}
	if s.cache == nil {
		s.cache = blobcache.EmptyCache{}
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	s.alloc = bucket.New(data, local, opts.BucketCeiling).WithLogger(s.log)
	if err := s.alloc.Resume(context.Background()); err != nil {
		return nil, wrapErr("", err, "Fail to set store bucket")
	}
	return s, nil
}

// Root returns the synced root the store was opened on.
func (s *Store) Root() fsys.ReadonlyFS { return s.main }

// Pending returns the number of ids with operations outstanding.
func (s *Store) Pending() int { return s.procs.Len() }

// Bucket returns the bucket new items currently go into and how many items
// it holds.
func (s *Store) Bucket() (string, int) { return s.alloc.Current() }

// run chains fn after whatever is outstanding for id and waits for it.
// Values set by fn may only be read if run returns nil.
func (s *Store) run(ctx context.Context, id string, fn func() error) error {
	return s.procs.StartOrChain(id, fn).WaitContext(ctx)
}

// errExhausted is the cause when every id tried by an add was taken.
var errExhausted = errors.New("no free id found")

// add saves a new item under a freshly generated id. When save reports an
// error for which collided is true another id is tried.
func (s *Store) add(ctx context.Context, what string, collided func(error) bool, save func(id string) error) (string, error) {
	for i := 0; i < s.maxAttempts; i++ {
		id, err := s.alloc.GenerateID(ctx)
		if err != nil {
			return "", wrapErr("", err, "Fail to generate id")
		}
		err = s.run(ctx, id, func() error {
			if err := save(id); err != nil {
				return err
			}
			return s.alloc.Placed(context.Background())
		})
		if err == nil {
			return id, nil
		}
		if !collided(err) {
			return "", wrapErr(id, err, "Fail to save %s", what)
		}
		s.log.WithField("id", id).Debugf("%s collided, trying another id", what)
	}
	return "", wrapErr("", errExhausted, "Fail to save %s", what)
}

func fileCollision(err error) bool {
	return fsys.IsAlreadyExists(err) || fsys.IsDirectoryErr(err)
}

func folderCollision(err error) bool {
	return fsys.IsAlreadyExists(err) || fsys.IsNotDirectory(err)
}

// tag records attrs and the reserved names for a newly saved item.
func (s *Store) tag(id string, attrs Attrs, typ *string) error {
	changes := attrs.xattrs()
	changes.Set[IDAttr] = id
	if typ != nil {
		changes.Set[TypeAttr] = *typ
	}
	return s.data.UpdateXAttrs(id, changes)
}

// AddBlob saves blob as a new item and returns its id.
func (s *Store) AddBlob(ctx context.Context, blob Blob, attrs Attrs) (string, error) {
	if err := checkNames(attrs.names()); err != nil {
		return "", err
	}
	return s.add(ctx, "blob", fileCollision, func(id string) error {
		err := s.data.WriteBytes(id, blob.Content, fsys.WriteOptions{Create: true, Exclusive: true})
		if err != nil {
			return err
		}
		return s.tag(id, attrs, &blob.Type)
	})
}

// AddFile copies src in as a new item and returns its id.
func (s *Store) AddFile(ctx context.Context, src fsys.ReadonlyFile, attrs Attrs) (string, error) {
	if err := checkNames(attrs.names()); err != nil {
		return "", err
	}
	return s.add(ctx, "file", fileCollision, func(id string) error {
		if err := s.data.SaveFile(src, id); err != nil {
			return err
		}
		return s.tag(id, attrs, nil)
	})
}

// AddFolder copies the tree src in as a new item and returns its id.
func (s *Store) AddFolder(ctx context.Context, src fsys.ReadonlyFS, attrs Attrs) (string, error) {
	if err := checkNames(attrs.names()); err != nil {
		return "", err
	}
	return s.add(ctx, "folder", folderCollision, func(id string) error {
		if err := s.data.SaveFolder(src, id); err != nil {
			return err
		}
		return s.tag(id, attrs, nil)
	})
}

// GetBlob returns the content and type of a blob.
func (s *Store) GetBlob(ctx context.Context, id string) (*Blob, error) {
	if !bucket.ValidID(id) {
		return nil, notFound(id, nil)
	}
	var blob *Blob
	err := s.run(ctx, id, func() error {
		// the synced root may change underneath us, so a cached copy is
		// only good for the version it was read at
		st, err := s.data.Stat(id)
		if err != nil {
			s.uncache(id)
			return kindErr(id, err, kindBlob, "Fail to read content of %s", id)
		}
		if data, typ, version, ok := s.cache.Get(id); ok {
			if st.IsFile && version == st.Version {
				blob = &Blob{Content: data, Type: typ}
				return nil
			}
			s.uncache(id)
		}
		data, err := s.data.ReadBytes(id)
		if err != nil {
			return kindErr(id, err, kindBlob, "Fail to read content of %s", id)
		}
		typ, err := s.data.GetXAttr(id, TypeAttr)
		if err != nil {
			return wrapErr(id, err, "Fail to read type of %s", id)
		}
		blob = &Blob{Content: data, Type: typ}
		if err := s.cache.Put(id, data, typ, st.Version); err != nil && err != blobcache.ErrCacheFull {
			s.log.WithError(err).WithField("id", id).Warnln("caching blob")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// GetFile returns a read only handle onto a file or blob item.
func (s *Store) GetFile(ctx context.Context, id string) (fsys.ReadonlyFile, error) {
	if !bucket.ValidID(id) {
		return nil, notFound(id, nil)
	}
	var f fsys.ReadonlyFile
	err := s.run(ctx, id, func() error {
		var err error
		f, err = s.data.ReadonlyFile(id)
		if err != nil {
			return kindErr(id, err, kindFile, "Fail to get file of %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetFolderRO returns a read only view of a folder item.
func (s *Store) GetFolderRO(ctx context.Context, id string) (fsys.ReadonlyFS, error) {
	if !bucket.ValidID(id) {
		return nil, notFound(id, nil)
	}
	var folder fsys.ReadonlyFS
	err := s.run(ctx, id, func() error {
		var err error
		folder, err = s.data.ReadonlySubRoot(id)
		if err != nil {
			return kindErr(id, err, kindFolder, "Fail to get folder of %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// GetFolderWR returns a writable view of a folder item.
func (s *Store) GetFolderWR(ctx context.Context, id string) (fsys.WritableFS, error) {
	if !bucket.ValidID(id) {
		return nil, notFound(id, nil)
	}
	var folder fsys.WritableFS
	err := s.run(ctx, id, func() error {
		var err error
		folder, err = s.data.WritableSubRoot(id, false)
		if err != nil {
			return kindErr(id, err, kindFolder, "Fail to get folder of %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// uncache drops any cached copy of id. A failure only costs cache space.
func (s *Store) uncache(id string) {
	if err := s.cache.Remove(id); err != nil {
		s.log.WithError(err).WithField("id", id).Warnln("uncaching blob")
	}
}

// UpdateBlob replaces the content and content type of a blob. Its other
// attributes are left alone.
func (s *Store) UpdateBlob(ctx context.Context, id string, blob Blob) error {
	if !bucket.ValidID(id) {
		return notFound(id, nil)
	}
	return s.run(ctx, id, func() error {
		s.uncache(id)
		err := s.data.WriteBytes(id, blob.Content, fsys.WriteOptions{})
		if err != nil {
			return kindErr(id, err, kindBlob, "Fail to update content of %s", id)
		}
		err = s.data.UpdateXAttrs(id, fsys.XAttrsChanges{Set: map[string]string{TypeAttr: blob.Type}})
		if err != nil {
			return wrapErr(id, err, "Fail to update type of %s", id)
		}
		return nil
	})
}

// UpdateInfo applies label changes to an item.
func (s *Store) UpdateInfo(ctx context.Context, id string, changes AttrChanges) error {
	if err := checkNames(changes.names()); err != nil {
		return err
	}
	if !bucket.ValidID(id) {
		return notFound(id, nil)
	}
	return s.run(ctx, id, func() error {
		err := s.data.UpdateXAttrs(id, changes.xattrs())
		if err != nil {
			if fsys.IsNotFound(err) {
				return notFound(id, err)
			}
			return wrapErr(id, err, "Fail to update info of %s", id)
		}
		return nil
	})
}

// GetInfo returns the metadata and labels of an item.
func (s *Store) GetInfo(ctx context.Context, id string) (*Info, error) {
	if !bucket.ValidID(id) {
		return nil, notFound(id, nil)
	}
	var info *Info
	err := s.run(ctx, id, func() error {
		var err error
		info, err = s.getInfo(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Store) getInfo(id string) (*Info, error) {
	st, err := s.data.Stat(id)
	if err != nil {
		if fsys.IsNotFound(err) {
			return nil, notFound(id, err)
		}
		return nil, wrapErr(id, err, "Fail to read content of %s", id)
	}
	if !st.IsFile && !st.IsFolder {
		return nil, &Error{
			ID:           id,
			NotDirectory: true,
			NotBlob:      true,
			Message:      "Type of item " + id + " is not recognized",
		}
	}
	info := &Info{
		ID:       id,
		Version:  st.Version,
		Ctime:    st.Ctime,
		Mtime:    st.Mtime,
		IsFile:   st.IsFile,
		IsFolder: st.IsFolder,
	}
	names, err := s.data.ListXAttrs(id)
	if err != nil {
		return nil, wrapErr(id, err, "Fail to read info of %s", id)
	}
	for _, name := range names {
		value, err := s.data.GetXAttr(id, name)
		if err != nil {
			return nil, wrapErr(id, err, "Fail to read info of %s", id)
		}
		switch {
		case name == TypeAttr && st.IsFile:
			info.Type = value
		case reserved(name):
		default:
			if info.Attrs == nil {
				info.Attrs = make(Attrs)
			}
			info.Attrs[name] = value
		}
	}
	if st.IsFile {
		info.Size = st.Size
	}
	return info, nil
}

// Delete removes an item. Deleting an id with no item succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !bucket.ValidID(id) {
		return nil
	}
	return s.run(ctx, id, func() error {
		s.uncache(id)
		st, err := s.data.Stat(id)
		if err == nil {
			if st.IsFolder {
				err = s.data.DeleteFolder(id, true)
			} else {
				err = s.data.DeleteFile(id)
			}
		}
		if err != nil && !fsys.IsNotFound(err) {
			return wrapErr(id, err, "Fail to delete item with id %s", id)
		}
		return nil
	})
}

type kind int

const (
	kindBlob kind = iota
	kindFile
	kindFolder
)

// kindErr turns a filesystem error met while reading id as the given kind
// into a store Error.
func kindErr(id string, err error, k kind, format string, args ...interface{}) error {
	if fsys.IsNotFound(err) {
		return notFound(id, err)
	}
	mismatch := fsys.IsNotFile(err) || fsys.IsDirectoryErr(err)
	if k == kindFolder {
		mismatch = fsys.IsNotDirectory(err)
	}
	if !mismatch {
		return wrapErr(id, err, format, args...)
	}
	e := &Error{ID: id, Err: err}
	switch k {
	case kindBlob:
		e.NotBlob = true
	case kindFile:
		e.NotFile = true
	case kindFolder:
		e.NotDirectory = true
	}
	return e
}

// exportName is the file name an item is exported under.
func exportName(id, fileName string) string {
	if fileName == "" {
		return path.Base(id)
	}
	return path.Base("/" + fileName)
}
