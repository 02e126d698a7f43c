package fsys

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// BoltAttrs is an AttrTable persisted in a bolt database file. Records are
// msgpack encoded. Bolt does not allow empty keys, so every key is stored
// with a leading slash.
type BoltAttrs struct {
	db *bolt.DB
}

var _ AttrTable = &BoltAttrs{}

// OpenBoltAttrs opens (creating if needed) the database file at path.
func OpenBoltAttrs(path string, mode os.FileMode) (*BoltAttrs, error) {
	db, err := bolt.Open(path, mode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open attribute table %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init attribute table")
	}
	return &BoltAttrs{db: db}, nil
}

func (ba *BoltAttrs) Get(key string) (*Record, error) {
	var rec *Record
	err := ba.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get(dbKey(key))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction; Unmarshal copies out
		rec = new(Record)
		return msgpack.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read record %q", key)
	}
	return rec, nil
}

func (ba *BoltAttrs) Put(key string, r *Record) error {
	buf, err := msgpack.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "encode record %q", key)
	}
	return ba.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put(dbKey(key), buf)
	})
}

func (ba *BoltAttrs) DeleteTree(key string) error {
	return ba.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		prefix := []byte("/" + treePrefix(key))
		// gather first; deleting under a live cursor skips keys
		doomed := [][]byte{dbKey(key)}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func dbKey(key string) []byte {
	return []byte("/" + key)
}

func (ba *BoltAttrs) Close() error {
	return ba.db.Close()
}
