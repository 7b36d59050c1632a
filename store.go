package mstor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/boltdb/bolt"
)

// lockStripes is the width of the striped per-node lock array guarding
// the mutation handlers (chmod, chown, utimes, open) against the
// lost-update race that comes from reading and rewriting a whole node
// payload without serialization.
const lockStripes = 256

// Config carries the options an embedder supplies at Open. It is
// consumed as a plain struct built by the embedding process, not parsed
// from a file or flag set.
type Config struct {
	// Path is the filesystem location of the backing bolt database.
	Path string
	// Create, if true, creates the backing store when Path doesn't
	// exist yet.
	Create bool
	// CacheSize bounds the number of decoded node payloads kept in the
	// LRU block cache.
	CacheSize int
	// MinSequesterTime is the number of seconds a chunk remains
	// sequestered before deletion.
	MinSequesterTime uint64
	// MinRepl and ManRepl are the minimum and mandated replica counts,
	// clamped to [1, MaxReplicas].
	MinRepl int
	ManRepl int
	// Users resolves request user names to identities. A
	// StaticUserDirectory is used if nil.
	Users UserDirectory
	// Logger receives diagnostic output. A discard logger is used if
	// nil.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = 4096
	}
	if c.MinSequesterTime == 0 {
		c.MinSequesterTime = defaultMinSequesterTime
	}
	c.MinRepl = clampRepl(c.MinRepl, defaultMinRepl)
	c.ManRepl = clampRepl(c.ManRepl, defaultManRepl)
	if c.Users == nil {
		c.Users = NewStaticUserDirectory()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
}

func clampRepl(v, def int) int {
	if v <= 0 {
		return def
	}
	if v > MaxReplicas {
		return MaxReplicas
	}
	return v
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Store is the embedded metadata store: a single owner value holding the
// engine handle, the id allocators, and the striped node locks, torn
// down in reverse-construction order on Close.
type Store struct {
	cfg    Config
	eng    *engine
	nids   *idAllocator
	cids   *idAllocator
	locks  [lockStripes]sync.Mutex
	logger *slog.Logger
}

// Open opens or creates (per cfg.Create) the backing store at cfg.Path,
// bootstrapping a fresh store or recovering id counters from an existing
// one.
func Open(cfg Config) (*Store, error) {
	cfg.setDefaults()

	eng, err := openEngine(cfg.Path, cfg.Create, cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:    cfg,
		eng:    eng,
		logger: cfg.Logger.With("component", "mstor"),
	}

	nextNID, nextCID, err := bootstrapOrRecover(eng)
	if err != nil {
		eng.close()
		return nil, err
	}
	s.nids = newIDAllocator("nid", nextNID, NIDMax)
	s.cids = newIDAllocator("cid", nextCID, CIDMax)

	s.logger.Info("store opened", "path", cfg.Path, "next_nid", nextNID, "next_cid", nextCID)
	return s, nil
}

// Close releases the store's resources in reverse-construction order:
// the engine (and with it, the LRU cache) last.
func (s *Store) Close() error {
	return s.eng.close()
}

// bootstrapOrRecover detects an empty store and formats it, or verifies
// an existing store's version and recovers its id counters by seeking to
// the largest key in each id-bearing family.
func bootstrapOrRecover(eng *engine) (nextNID, nextCID uint64, err error) {
	err = eng.update(func(tx *bolt.Tx) error {
		c := eng.cursor(tx)
		if k, _ := c.First(); k == nil {
			nextNID, nextCID = 1, 1
			return formatStore(eng, tx)
		}

		raw := eng.bucket(tx).Get(versionKey())
		if raw == nil {
			return fmt.Errorf("%w: missing version record", ErrIncompatibleVersion)
		}
		if _, err := decodeVersionValue(raw); err != nil {
			return err
		}

		nextNID = recoverNextID(c, tagNode, nodeKey(math.MaxUint64), func(k []byte) uint64 {
			nid, _ := decodeNodeKey(k)
			return nid
		})
		nextCID = recoverNextID(c, tagChunk, chunkKey(math.MaxUint64), func(k []byte) uint64 {
			cid, _ := decodeChunkKey(k)
			return cid
		})
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return nextNID, nextCID, nil
}

// recoverNextID returns one greater than the largest existing id in the
// given family, or 1 if the family is empty.
func recoverNextID(c *bolt.Cursor, tag byte, upperBound []byte, decode func([]byte) uint64) uint64 {
	k, _, found := lastKeyInFamily(c, tag, upperBound)
	if !found {
		return 1
	}
	return decode(k) + 1
}

// formatStore writes the version record and the root node, establishing
// the invariants a fresh store must satisfy: exactly one version record,
// and a root node with IS_DIR set, owned by the superuser, mode 0755.
func formatStore(eng *engine, tx *bolt.Tx) error {
	b := eng.bucket(tx)
	if err := b.Put(versionKey(), encodeVersionValue(CurVersion)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	now := uint64(time.Now().Unix())
	root := &NodePayload{
		Mtime: now, Atime: now, Length: 0,
		UID: SuperuserUID, GID: SuperuserGID,
		ModeType: IsDir | 0755,
	}
	if err := eng.putNode(tx, RootNID, root); err != nil {
		return err
	}
	return nil
}

// lockFor returns the striped mutex guarding nid's mutation handlers.
func (s *Store) lockFor(nid uint64) *sync.Mutex {
	return &s.locks[nid%lockStripes]
}
