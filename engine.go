package mstor

import (
	"fmt"
	"os"

	"github.com/boltdb/bolt"
	lru "github.com/hashicorp/golang-lru"
)

// bucketName is the single bolt bucket every record family shares, so
// that lexicographic key order inside it matches the flat tagged keyspace
// the codec describes.
var bucketName = []byte("mstor")

// engine is the Backing Store Adapter: a thin contract over bolt giving
// point get/put, atomic multi-key batches (bolt transactions), ordered
// iteration, and an LRU cache of decoded node payloads standing in for
// the block cache a LevelDB-backed store would keep.
type engine struct {
	db    *bolt.DB
	cache *lru.Cache
}

// openEngine opens the bolt database at path, creating the file if
// create is set, and prepares the shared bucket. cacheSize bounds the
// number of decoded node payloads kept in the LRU cache.
func openEngine(path string, create bool, cacheSize int) (*engine, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	db, err := bolt.Open(path, 0666, &bolt.Options{ReadOnly: false})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	e := &engine{db: db, cache: cache}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return e, nil
}

// close drops the cache and then releases the engine handle, the reverse
// of the order openEngine built them in: the store is responsible for
// closing the engine last among its owned resources.
func (e *engine) close() error {
	e.cache.Purge()
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// view runs fn in a read-only bolt transaction.
func (e *engine) view(fn func(*bolt.Tx) error) error {
	return e.db.View(fn)
}

// update runs fn in a read-write bolt transaction; every Put/Delete fn
// issues commits atomically together, which is how every "batched write"
// operation in the core is implemented.
func (e *engine) update(fn func(*bolt.Tx) error) error {
	return e.db.Update(fn)
}

// bucket returns the shared bucket within an open transaction.
func (e *engine) bucket(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket(bucketName)
}

// cursor returns a cursor over the shared bucket within an open
// transaction.
func (e *engine) cursor(tx *bolt.Tx) *bolt.Cursor {
	return e.bucket(tx).Cursor()
}

// getNode fetches and decodes a node payload, consulting the cache
// first.
func (e *engine) getNode(tx *bolt.Tx, nid uint64) (*NodePayload, error) {
	if v, ok := e.cache.Get(nid); ok {
		return v.(*NodePayload), nil
	}
	raw := e.bucket(tx).Get(nodeKey(nid))
	if raw == nil {
		return nil, ErrNotFound
	}
	n, err := decodeNodePayload(raw)
	if err != nil {
		return nil, err
	}
	e.cache.Add(nid, n)
	return n, nil
}

// putNode writes a node payload and refreshes the cache entry for nid.
func (e *engine) putNode(tx *bolt.Tx, nid uint64, n *NodePayload) error {
	if err := e.bucket(tx).Put(nodeKey(nid), encodeNodePayload(n)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.cache.Add(nid, n)
	return nil
}

// deleteNode removes a node record and evicts it from the cache.
func (e *engine) deleteNode(tx *bolt.Tx, nid uint64) error {
	if err := e.bucket(tx).Delete(nodeKey(nid)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.cache.Remove(nid)
	return nil
}

// lastKeyInFamily seeks to upperBound and steps backward once, returning
// the key/value pair found there if it still carries the given tag. This
// is the technique Bootstrap/Recovery uses to find the maximum existing
// id in a family: seek past the family's range, then step back.
func lastKeyInFamily(c *bolt.Cursor, tag byte, upperBound []byte) (key, value []byte, found bool) {
	k, v := c.Seek(upperBound)
	if k == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	if k == nil || len(k) == 0 || k[0] != tag {
		return nil, nil, false
	}
	return k, v, true
}
