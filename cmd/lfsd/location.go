package main

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"github.com/ndlib/lfstore/fsys"
)

// openVolume makes a volume of the given type from a location. An empty
// location or "memory:" gives a volume kept in memory. A path, optionally
// with a "file:" scheme, gives a volume whose tree lives in <path>/tree and
// whose entry records live in the bolt file <path>/attrs.db.
//
// The returned close function releases the attribute table.
func openVolume(location string, typ fsys.Type) (*fsys.Volume, func() error, error) {
	nop := func() error { return nil }
	if location == "" {
		return fsys.NewMemory(typ), nop, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parsing location %s", location)
	}
	switch u.Scheme {
	case "memory":
		return fsys.NewMemory(typ), nop, nil
	case "", "file":
		dir := u.Path
		if dir == "" {
			// "file:rel/path" parses as opaque
			dir = u.Opaque
		}
		tree := filepath.Join(dir, "tree")
		if err := os.MkdirAll(tree, 0755); err != nil {
			return nil, nil, errors.Wrapf(err, "making %s", tree)
		}
		attrs, err := fsys.OpenBoltAttrs(filepath.Join(dir, "attrs.db"), 0644)
		if err != nil {
			return nil, nil, err
		}
		return fsys.NewVolume(osfs.New(tree), attrs, typ), attrs.Close, nil
	}
	return nil, nil, errors.Errorf("unknown location scheme %q in %s", u.Scheme, location)
}
