package fsys

import (
	"path"
)

// File is a handle onto one file of a Volume. It holds nothing open; every
// call goes back to the volume.
type File struct {
	v   *Volume
	rel string
}

var _ WritableFile = &File{}

// file resolves p into a File handle. With create, a missing file is made
// empty.
func (v *Volume) file(op, p string, create, readonly bool) (*File, error) {
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
		if err := v.writeFile(op, rel, nil, WriteOptions{Create: true}); err != nil {
			return nil, err
		}
	case fi == nil:
		return nil, fileErr(op, rel, NotFound)
	case fi.IsDir() || rel == "":
		return nil, fileErr(op, rel, NotFile)
	}
	// the handle is rooted at the file's folder so it keeps working even
	// though callers only know its name
	dir := path.Dir("/" + rel)[1:]
	return &File{v: v.view(dir, readonly || v.readonly), rel: path.Base(rel)}, nil
}

func (f *File) Name() string { return f.rel }

func (f *File) Stat() (Stats, error)       { return f.v.Stat(f.rel) }
func (f *File) ReadBytes() ([]byte, error) { return f.v.ReadBytes(f.rel) }
func (f *File) ReadTxt() (string, error)   { return f.v.ReadTxtFile(f.rel) }

func (f *File) ReadRange(start, end int64) ([]byte, error) {
	return f.v.ReadRange(f.rel, start, end)
}

func (f *File) GetXAttr(name string) (string, error) { return f.v.GetXAttr(f.rel, name) }
func (f *File) ListXAttrs() ([]string, error)        { return f.v.ListXAttrs(f.rel) }

func (f *File) WriteBytes(data []byte) error {
	return f.v.WriteBytes(f.rel, data, WriteOptions{})
}

func (f *File) UpdateXAttrs(changes XAttrsChanges) error {
	return f.v.UpdateXAttrs(f.rel, changes)
}

// Copy replaces this file's content with that of src. Attributes are left
// alone.
func (f *File) Copy(src ReadonlyFile) error {
	data, err := src.ReadBytes()
	if err != nil {
		return err
	}
	return f.WriteBytes(data)
}
