// Package bucket hands out storage locations inside a fixed depth tree of
// folders, keeping the number of entries in any one folder near a ceiling.
//
// A location looks like "k3/9a/x0/p2zq": three folder segments of FolderLen
// random characters (the bucket) followed by an item name of ItemLen random
// characters. The bucket in use is written to a marker file in a scratch
// area so a restarted process carries on filling it instead of rescanning
// the whole tree.
package bucket

import (
	"context"
	"path"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/lfstore/fsys"
	"github.com/ndlib/lfstore/task"
)

const (
	Depth          = 3
	FolderLen      = 2
	ItemLen        = 4
	DefaultCeiling = 200

	// MarkerName is the file in the scratch area holding the current bucket.
	MarkerName = "lfs_last-bucket"
)

// how many times a folder name is redrawn before giving up
const maxResample = 1000

// ErrNoRoom means no unused folder name could be found.
var ErrNoRoom = errors.New("bucket: no free folder name")

// An Allocator generates locations for new items in a data tree.
//
// The current bucket and the count of items placed in it are only touched
// by actions run through a single task.Serializer, so allocation steps never
// overlap. The count goes up when the caller reports a finished write with
// Placed, so callers racing between GenerateID and Placed may overfill a
// bucket by a few items before the rollover is noticed.
type Allocator struct {
	data    fsys.WritableFS
	scratch fsys.WritableFS
	ceiling int
	log     *log.Entry
	token   func(n int) (string, error)

	guard  task.Serializer
	bucket string // "" until resolved
	count  int
}

// New makes an allocator placing items under data and keeping its marker
// in scratch. A ceiling of zero or less means DefaultCeiling. Nothing is
// read until the first call of Resume or GenerateID.
func New(data, scratch fsys.WritableFS, ceiling int) *Allocator {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Allocator{
		data:    data,
		scratch: scratch,
		ceiling: ceiling,
		log:     log.WithField("module", "bucket"),
		token:   Token,
	}
}

// WithLogger sets the entry log messages are written to.
func (a *Allocator) WithLogger(entry *log.Entry) *Allocator {
	if entry != nil {
		a.log = entry
	}
	return a
}

// Ceiling returns the item ceiling of a bucket.
func (a *Allocator) Ceiling() int { return a.ceiling }

// run runs fn through the guard and waits for it. The results written by fn
// may only be read if run returns nil.
func (a *Allocator) run(ctx context.Context, fn func() error) error {
	return a.guard.StartOrChain(fn).WaitContext(ctx)
}

// Resume resolves the current bucket if that has not happened yet, either
// from the marker or by making a new tree.
func (a *Allocator) Resume(ctx context.Context) error {
	return a.run(ctx, func() error {
		if a.bucket != "" {
			return nil
		}
		return a.setBucket()
	})
}

// GenerateID returns a new location inside the current bucket, first moving
// to another bucket if the current one is over the ceiling. The location is
// not reserved; a writer finding it taken should ask for another one.
func (a *Allocator) GenerateID(ctx context.Context) (string, error) {
	var id string
	err := a.run(ctx, func() error {
		if a.bucket == "" || a.count > a.ceiling {
			if err := a.setBucket(); err != nil {
				return err
			}
		}
		name, err := a.token(ItemLen)
		if err != nil {
			return err
		}
		id = a.bucket + "/" + name
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Placed records that an item was written into the current bucket.
func (a *Allocator) Placed(ctx context.Context) error {
	return a.run(ctx, func() error {
		a.count++
		return nil
	})
}

// Current returns the bucket in use and the number of items known to be in
// it. The bucket is "" before the first allocation.
func (a *Allocator) Current() (bucket string, count int) {
	a.guard.StartOrChain(func() error {
		bucket, count = a.bucket, a.count
		return nil
	}).Wait()
	return
}

// setBucket picks the bucket to use next and records it in the marker.
// Only called from inside the guard.
func (a *Allocator) setBucket() error {
	var (
		bucket string
		count  int
		err    error
	)
	if a.bucket != "" {
		bucket, err = a.rollover(a.bucket)
		if err == nil {
			a.log.Infof("bucket %s is full (%d items), moving to %s", a.bucket, a.count, bucket)
		}
	} else {
		bucket, count, err = a.resume()
	}
	if err != nil {
		return errors.Wrap(err, "bucket: setting bucket")
	}
	err = a.scratch.WriteTxtFile(MarkerName, bucket, fsys.WriteOptions{Create: true})
	if err != nil {
		return errors.Wrap(err, "bucket: writing marker")
	}
	a.bucket, a.count = bucket, count
	return nil
}

// resume reads the marker and recovers the true count of the bucket it
// names. A missing or unusable marker leads to a new tree.
func (a *Allocator) resume() (string, int, error) {
	txt, err := a.scratch.ReadTxtFile(MarkerName)
	if err != nil {
		if !fsys.IsNotFound(err) {
			a.discard("unreadable", err)
		}
		bucket, err := a.freshTree()
		return bucket, 0, err
	}
	last := strings.TrimSpace(txt)
	if !ValidBucket(last) {
		a.discard("corrupt", errors.Errorf("bad bucket %q", last))
		bucket, err := a.freshTree()
		return bucket, 0, err
	}
	entries, err := a.data.ListFolder(last)
	if err != nil {
		a.discard("stale", err)
		bucket, err := a.freshTree()
		return bucket, 0, err
	}
	if len(entries) > a.ceiling {
		bucket, err := a.rollover(last)
		return bucket, 0, err
	}
	return last, len(entries), nil
}

func (a *Allocator) discard(why string, err error) {
	a.log.WithError(err).Warnf("discarding %s bucket marker", why)
	if err := a.scratch.DeleteFile(MarkerName); err != nil && !fsys.IsNotFound(err) {
		a.log.WithError(err).Warnln("removing bucket marker")
	}
}

// rollover finds a new bucket near old. Ancestors of old are tried from the
// deepest up; the first with room below the ceiling gets a new chain of
// folders down to a bucket. If none has room a new tree is started.
func (a *Allocator) rollover(old string) (string, error) {
	p := old
	for {
		i := strings.LastIndexByte(p, '/')
		if i < 0 {
			break
		}
		p = p[:i]
		entries, err := a.data.ListFolder(p)
		if err != nil {
			// a vanished ancestor is simply passed over
			continue
		}
		if len(entries) < a.ceiling {
			return a.extend(p)
		}
	}
	return a.freshTree()
}

func (a *Allocator) freshTree() (string, error) {
	return a.extend("")
}

// extend adds new randomly named folders below p until it is Depth
// segments deep, and creates them.
func (a *Allocator) extend(p string) (string, error) {
	for depth(p) < Depth {
		name, err := a.freeName(p)
		if err != nil {
			return "", err
		}
		p = path.Join(p, name)
	}
	if err := a.data.MakeFolder(p); err != nil {
		return "", err
	}
	return p, nil
}

// freeName draws folder names until one is not in use inside parent.
func (a *Allocator) freeName(parent string) (string, error) {
	for i := 0; i < maxResample; i++ {
		name, err := a.token(FolderLen)
		if err != nil {
			return "", err
		}
		present, err := a.data.CheckFolderPresence(path.Join(parent, name))
		switch {
		case fsys.IsNotDirectory(err):
			continue
		case err != nil:
			return "", err
		case !present:
			return name, nil
		}
	}
	return "", ErrNoRoom
}

func depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// ValidBucket returns true if b has the shape of a bucket path.
func ValidBucket(b string) bool {
	segs := strings.Split(b, "/")
	if len(segs) != Depth {
		return false
	}
	for _, s := range segs {
		if !isToken(s, FolderLen) {
			return false
		}
	}
	return true
}

// ValidID returns true if id has the shape of a location made by GenerateID.
func ValidID(id string) bool {
	i := strings.LastIndexByte(id, '/')
	return i > 0 && ValidBucket(id[:i]) && isToken(id[i+1:], ItemLen)
}
