package fsys

import (
	"path"
)

// snapshot is an in-memory copy of a file or a folder tree, taken before
// the destination is locked. The source may be another view onto the same
// volume, and its lock is not reentrant.
type snapshot struct {
	name     string
	folder   bool
	data     []byte
	xattrs   map[string]string
	children []*snapshot
}

func snapFile(src ReadonlyFile) (*snapshot, error) {
	data, err := src.ReadBytes()
	if err != nil {
		return nil, err
	}
	snap := &snapshot{name: src.Name(), data: data}
	snap.xattrs, err = snapAttrs(src.ListXAttrs, src.GetXAttr)
	return snap, err
}

func snapTree(src ReadonlyFS, p string) (*snapshot, error) {
	snap := &snapshot{name: path.Base("/" + p), folder: true}
	var err error
	snap.xattrs, err = snapAttrs(
		func() ([]string, error) { return src.ListXAttrs(p) },
		func(name string) (string, error) { return src.GetXAttr(p, name) },
	)
	if err != nil {
		return nil, err
	}
	entries, err := src.ListFolder(p)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		child := path.Join(p, e.Name)
		var c *snapshot
		switch {
		case e.IsFolder:
			c, err = snapTree(src, child)
		case e.IsFile:
			var f ReadonlyFile
			f, err = src.ReadonlyFile(child)
			if err == nil {
				c, err = snapFile(f)
			}
		default:
			// links and other oddities are not carried over
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.children = append(snap.children, c)
	}
	return snap, nil
}

func snapAttrs(list func() ([]string, error), get func(string) (string, error)) (map[string]string, error) {
	names, err := list()
	if err != nil || len(names) == 0 {
		return nil, err
	}
	result := make(map[string]string, len(names))
	for _, name := range names {
		result[name], err = get(name)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SaveFile copies src into a new file at dst. It fails with AlreadyExists
// if dst is a file, and with IsDirectory if dst is a folder.
func (v *Volume) SaveFile(src ReadonlyFile, dst string) error {
	const op = "savefile"
	rel, err := clean(op, dst)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, dst); err != nil {
		return err
	}
	snap, err := snapFile(src)
	if err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	return v.restore(op, rel, snap)
}

// SaveFolder copies the tree src into a new folder at dst. It fails with
// AlreadyExists if dst is a folder, and with NotDirectory if dst is a file.
func (v *Volume) SaveFolder(src ReadonlyFS, dst string) error {
	const op = "savefolder"
	rel, err := clean(op, dst)
	if err != nil {
		return err
	}
	if err := v.checkWritable(op, dst); err != nil {
		return err
	}
	snap, err := snapTree(src, "")
	if err != nil {
		return err
	}
	v.m.Lock()
	defer v.m.Unlock()
	fi, err := v.lstat(op, rel)
	if err != nil {
		return err
	}
	switch {
	case fi != nil && fi.IsDir():
		return fileErr(op, rel, AlreadyExists)
	case fi != nil:
		return fileErr(op, rel, NotDirectory)
	}
	return v.restore(op, rel, snap)
}

// restore writes snap out at rel, which must not exist. Assumes v.m is held.
func (v *Volume) restore(op, rel string, snap *snapshot) error {
	if snap.folder {
		if err := v.mkdirs(op, rel); err != nil {
			return err
		}
		for _, c := range snap.children {
			if err := v.restore(op, path.Join(rel, c.name), c); err != nil {
				return err
			}
		}
	} else {
		err := v.writeFile(op, rel, snap.data, WriteOptions{Create: true, Exclusive: true})
		if err != nil {
			return err
		}
	}
	if len(snap.xattrs) == 0 {
		return nil
	}
	return v.updateXAttrs(op, rel, XAttrsChanges{Set: snap.xattrs})
}
