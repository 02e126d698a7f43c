package fsys

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// Volume implements WritableFS over a billy.Filesystem. Versions, times and
// extended attributes live in an AttrTable beside the tree, since billy has
// no notion of them.
//
// Sub-roots share the billy filesystem, the AttrTable and the lock of the
// volume they were made from. All operations are goroutine safe. An entry
// changed behind the volume's back (directly through the billy filesystem)
// picks up a fresh record the next time the volume writes to it.
type Volume struct {
	fs        billy.Filesystem
	attrs     AttrTable
	m         *sync.RWMutex // shared by every view onto fs
	root      string        // slash separated, "" is the top of fs
	typ       Type
	versioned bool
	readonly  bool
	now       func() time.Time
}

var _ WritableFS = &Volume{}

// NewVolume makes a volume of the given type over fs, keeping entry
// records in attrs.
func NewVolume(fs billy.Filesystem, attrs AttrTable, typ Type) *Volume {
	return &Volume{
		fs:        fs,
		attrs:     attrs,
		m:         new(sync.RWMutex),
		typ:       typ,
		versioned: true,
		now:       time.Now,
	}
}

// NewMemory returns an empty volume kept entirely in memory.
func NewMemory(typ Type) *Volume {
	return NewVolume(memfs.New(), NewMemoryAttrs(), typ)
}

func (v *Volume) Type() Type      { return v.typ }
func (v *Volume) Versioned() bool { return v.versioned }

// clean validates a path given to this volume and returns it relative to
// the volume root, with "" meaning the root.
func clean(op, p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fileErr(op, p, BadPath)
		}
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	return p, nil
}

// key returns the AttrTable key, which is also the path inside fs without
// the leading slash.
func (v *Volume) key(rel string) string {
	return strings.Trim(path.Join(v.root, rel), "/")
}

func (v *Volume) abs(rel string) string {
	return "/" + v.key(rel)
}

func (v *Volume) view(rel string, readonly bool) *Volume {
	sub := *v
	sub.root = v.key(rel)
	sub.readonly = readonly
	return &sub
}

// lstat returns nil info and no error if the entry is missing.
func (v *Volume) lstat(op, rel string) (os.FileInfo, error) {
	fi, err := v.fs.Stat(v.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ioErr(op, rel, err)
	}
	return fi, nil
}

// mustStat is lstat with a missing entry turned into a NotFound error.
func (v *Volume) mustStat(op, rel string) (os.FileInfo, error) {
	fi, err := v.lstat(op, rel)
	if err == nil && fi == nil {
		err = fileErr(op, rel, NotFound)
	}
	return fi, err
}

func (v *Volume) record(op, rel string, fi os.FileInfo) (*Record, error) {
	rec, err := v.attrs.Get(v.key(rel))
	if err != nil {
		return nil, ioErr(op, rel, err)
	}
	if rec == nil {
		rec = &Record{Ctime: fi.ModTime(), Mtime: fi.ModTime()}
	}
	return rec, nil
}

// touch bumps the version of an entry. If fresh is true any old record is
// discarded, since the entry has just been made.
func (v *Volume) touch(op, rel string, fresh bool) error {
	now := v.now()
	var rec *Record
	if !fresh {
		var err error
		rec, err = v.attrs.Get(v.key(rel))
		if err != nil {
			return ioErr(op, rel, err)
		}
	}
	if rec == nil {
		rec = &Record{Ctime: now}
	}
	rec.Version++
	rec.Mtime = now
	if err := v.attrs.Put(v.key(rel), rec); err != nil {
		return ioErr(op, rel, err)
	}
	return nil
}

func (v *Volume) checkWritable(op, p string) error {
	if v.readonly {
		return fileErr(op, p, ReadOnly)
	}
	return nil
}

//// reading

func (v *Volume) Stat(p string) (Stats, error) {
	const op = "stat"
	rel, err := clean(op, p)
	if err != nil {
		return Stats{}, err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	return v.stat(op, rel)
}

func (v *Volume) stat(op, rel string) (Stats, error) {
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return Stats{}, err
	}
	rec, err := v.record(op, rel, fi)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Name:     path.Base("/" + rel),
		IsFile:   fi.Mode().IsRegular(),
		IsFolder: fi.IsDir(),
		Version:  rec.Version,
		Ctime:    rec.Ctime,
		Mtime:    rec.Mtime,
	}
	if st.IsFile {
		st.Size = fi.Size()
	}
	return st, nil
}

func (v *Volume) ReadBytes(p string) ([]byte, error) {
	return v.ReadRange(p, 0, -1)
}

func (v *Volume) ReadRange(p string, start, end int64) ([]byte, error) {
	const op = "read"
	rel, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	return v.readRange(op, rel, start, end)
}

// readRange reads [start, end) of a file. A negative end means to the end
// of the file.
func (v *Volume) readRange(op, rel string, start, end int64) ([]byte, error) {
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fileErr(op, rel, NotFile)
	}
	size := fi.Size()
	if end < 0 || end > size {
		end = size
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return []byte{}, nil
	}
	f, err := v.fs.Open(v.abs(rel))
	if err != nil {
		return nil, ioErr(op, rel, err)
	}
	defer f.Close()
	buf := make([]byte, end-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, ioErr(op, rel, err)
	}
	return buf[:n], nil
}

func (v *Volume) ReadTxtFile(p string) (string, error) {
	b, err := v.ReadBytes(p)
	return string(b), err
}

func (v *Volume) ListFolder(p string) ([]Entry, error) {
	const op = "list"
	rel, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	return v.list(op, rel)
}

func (v *Volume) list(op, rel string) ([]Entry, error) {
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fileErr(op, rel, NotDirectory)
	}
	infos, err := v.fs.ReadDir(v.abs(rel))
	if err != nil {
		return nil, ioErr(op, rel, err)
	}
	result := make([]Entry, 0, len(infos))
	for _, info := range infos {
		result = append(result, Entry{
			Name:     info.Name(),
			IsFile:   info.Mode().IsRegular(),
			IsFolder: info.IsDir(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (v *Volume) CheckFolderPresence(p string) (bool, error) {
	const op = "check folder"
	rel, err := clean(op, p)
	if err != nil {
		return false, err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	fi, err := v.lstat(op, rel)
	if err != nil || fi == nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, fileErr(op, rel, NotDirectory)
	}
	return true, nil
}

func (v *Volume) GetXAttr(p, name string) (string, error) {
	const op = "getxattr"
	rel, err := clean(op, p)
	if err != nil {
		return "", err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return "", err
	}
	rec, err := v.record(op, rel, fi)
	if err != nil {
		return "", err
	}
	return rec.XAttrs[name], nil
}

func (v *Volume) ListXAttrs(p string) ([]string, error) {
	const op = "listxattrs"
	rel, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	v.m.RLock()
	defer v.m.RUnlock()
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return nil, err
	}
	rec, err := v.record(op, rel, fi)
	if err != nil {
		return nil, err
	}
	return rec.names(), nil
}

func (v *Volume) ReadonlyFile(p string) (ReadonlyFile, error) {
	f, err := v.file("open", p, false, true)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (v *Volume) ReadonlySubRoot(p string) (ReadonlyFS, error) {
	sub, err := v.subRoot("subroot", p, false, true)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (v *Volume) subRoot(op, p string, create, readonly bool) (*Volume, error) {
	rel, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	if create {
		if err := v.checkWritable(op, p); err != nil {
			return nil, err
		}
		v.m.Lock()
		defer v.m.Unlock()
	} else {
		v.m.RLock()
		defer v.m.RUnlock()
	}
	fi, err := v.lstat(op, rel)
	if err != nil {
		return nil, err
	}
	switch {
	case fi == nil && create:
		if err := v.mkdirs(op, rel); err != nil {
			return nil, err
		}
	case fi == nil:
		return nil, fileErr(op, rel, NotFound)
	case !fi.IsDir():
		return nil, fileErr(op, rel, NotDirectory)
	}
	return v.view(rel, readonly || v.readonly), nil
}

//// writing

func (v *Volume) WriteBytes(p string, data []byte, opts WriteOptions) error {
	const op = "write"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	return v.writeFile(op, rel, data, opts)
}

// writeFile replaces the content of a file. Assumes v.m is held.
func (v *Volume) writeFile(op, rel string, data []byte, opts WriteOptions) error {
	if rel == "" {
		return fileErr(op, rel, IsDirectory)
	}
	fi, err := v.lstat(op, rel)
	if err != nil {
		return err
	}
	switch {
	case fi != nil && fi.IsDir():
		return fileErr(op, rel, IsDirectory)
	case fi != nil && opts.Exclusive:
		return fileErr(op, rel, AlreadyExists)
	case fi == nil && !opts.Create:
		return fileErr(op, rel, NotFound)
	}
	if fi == nil {
		if err := v.mkdirs(op, path.Dir("/"+rel)[1:]); err != nil {
			return err
		}
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.Exclusive {
		flag |= os.O_EXCL
	}
	f, err := v.fs.OpenFile(v.abs(rel), flag, 0664)
	if err != nil {
		if os.IsExist(err) {
			return fileErr(op, rel, AlreadyExists)
		}
		return ioErr(op, rel, err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ioErr(op, rel, err)
	}
	return v.touch(op, rel, fi == nil)
}

func (v *Volume) WriteAt(p string, off int64, data []byte) error {
	const op = "writeat"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fileErr(op, rel, NotFile)
	}
	f, err := v.fs.OpenFile(v.abs(rel), os.O_WRONLY, 0664)
	if err != nil {
		return ioErr(op, rel, err)
	}
	_, err = f.Seek(off, io.SeekStart)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ioErr(op, rel, err)
	}
	return v.touch(op, rel, false)
}

func (v *Volume) WriteTxtFile(p, txt string, opts WriteOptions) error {
	return v.WriteBytes(p, []byte(txt), opts)
}

func (v *Volume) MakeFolder(p string) error {
	const op = "mkdir"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	return v.mkdirs(op, rel)
}

// mkdirs creates rel and any missing parents, giving each new folder a
// record. Assumes v.m is held.
func (v *Volume) mkdirs(op, rel string) error {
	if rel == "" || rel == "." {
		return nil
	}
	var sofar string
	for _, seg := range strings.Split(rel, "/") {
		sofar = path.Join(sofar, seg)
		fi, err := v.lstat(op, sofar)
		if err != nil {
			return err
		}
		if fi != nil {
			if !fi.IsDir() {
				return fileErr(op, sofar, NotDirectory)
			}
			continue
		}
		if err := v.fs.MkdirAll(v.abs(sofar), 0775); err != nil {
			return ioErr(op, sofar, err)
		}
		if err := v.touch(op, sofar, true); err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) DeleteFile(p string) error {
	const op = "delete"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fileErr(op, rel, NotFile)
	}
	if err := v.fs.Remove(v.abs(rel)); err != nil {
		if os.IsNotExist(err) {
			return fileErr(op, rel, NotFound)
		}
		return ioErr(op, rel, err)
	}
	if err := v.attrs.DeleteTree(v.key(rel)); err != nil {
		return ioErr(op, rel, err)
	}
	return nil
}

func (v *Volume) DeleteFolder(p string, removeContent bool) error {
	const op = "rmdir"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if rel == "" {
		return fileErr(op, p, BadPath)
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fileErr(op, rel, NotDirectory)
	}
	if !removeContent {
		infos, err := v.fs.ReadDir(v.abs(rel))
		if err != nil {
			return ioErr(op, rel, err)
		}
		if len(infos) > 0 {
			return fileErr(op, rel, NotEmpty)
		}
	}
	if err := util.RemoveAll(v.fs, v.abs(rel)); err != nil {
		return ioErr(op, rel, err)
	}
	if err := v.attrs.DeleteTree(v.key(rel)); err != nil {
		return ioErr(op, rel, err)
	}
	return nil
}

func (v *Volume) UpdateXAttrs(p string, changes XAttrsChanges) error {
	const op = "setxattr"
	rel, err := clean(op, p)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, p); err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	return v.updateXAttrs(op, rel, changes)
}

// Assumes v.m is held.
func (v *Volume) updateXAttrs(op, rel string, changes XAttrsChanges) error {
	fi, err := v.mustStat(op, rel)
	if err != nil {
		return err
	}
	rec, err := v.record(op, rel, fi)
	if err != nil {
		return err
	}
	if rec.XAttrs == nil {
		rec.XAttrs = make(map[string]string, len(changes.Set))
	}
	for k, val := range changes.Set {
		rec.XAttrs[k] = val
	}
	for _, k := range changes.Remove {
		delete(rec.XAttrs, k)
	}
	rec.Version++
	rec.Mtime = v.now()
	if err := v.attrs.Put(v.key(rel), rec); err != nil {
		return ioErr(op, rel, err)
	}
	return nil
}

func (v *Volume) WritableFile(p string, create bool) (WritableFile, error) {
	f, err := v.file("open", p, create, false)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (v *Volume) WritableSubRoot(p string, create bool) (WritableFS, error) {
	sub, err := v.subRoot("subroot", p, create, false)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
