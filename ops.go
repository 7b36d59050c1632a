package mstor

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// StatInfo is the information a stat-like call returns about one node.
type StatInfo struct {
	NID     uint64
	IsDir   bool
	Mode    uint16
	Mtime   uint64
	Atime   uint64
	Length  uint64
	UID     uint32
	GID     uint32
	MinRepl int
	ManRepl int
}

func (s *Store) statInfo(nid uint64, n *NodePayload) StatInfo {
	return StatInfo{
		NID: nid, IsDir: n.IsDir(), Mode: n.Mode(),
		Mtime: n.Mtime, Atime: n.Atime, Length: n.Length,
		UID: n.UID, GID: n.GID,
		MinRepl: s.cfg.MinRepl, ManRepl: s.cfg.ManRepl,
	}
}

// DirEntry is one packed entry returned by Listdir.
type DirEntry struct {
	Name string
	Stat StatInfo
}

// ChunkInfo describes one chunk covering part of a file.
type ChunkInfo struct {
	Off uint64
	CID uint64
}

func (s *Store) path(op, full string) (Path, error) {
	p, err := Canonicalize(full)
	if err != nil {
		return nil, &pathOpErr{op: op, path: full, err: err}
	}
	return p, nil
}

type pathOpErr struct {
	op, path string
	err      error
}

func (e *pathOpErr) Error() string { return fmt.Sprintf("mstor: %s %s: %v", e.op, e.path, e.err) }
func (e *pathOpErr) Unwrap() error { return e.err }

// Creat creates a new file node named at path. The parent must be
// writable; the terminal component must not already exist.
func (s *Store) Creat(fullPath string, mode uint16, ctime uint64, userName string) (*StatInfo, error) {
	path, err := s.path("creat", fullPath)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, path.Err("creat", ErrAlreadyExists)
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		parentNID, parentNode, err := s.walkAncestors(tx, path, user, bypass)
		if err != nil {
			return err
		}
		if err := checkPerms(parentNode, user, wantWrite|wantDir, bypass); err != nil {
			return err
		}
		if _, err := s.lookupChild(tx, parentNID, path.Base()); err != ErrNotFound {
			if err == nil {
				return ErrAlreadyExists
			}
			return err
		}
		nid, err := s.createNode(tx, parentNID, path.Base(), mode&^IsDir, ctime, user)
		if err != nil {
			return err
		}
		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("creat", err)
	}
	return &info, nil
}

// Open rewrites a file's atime. The terminal must exist and be readable.
func (s *Store) Open(fullPath string, atime uint64, userName string) (*StatInfo, error) {
	path, err := s.path("open", fullPath)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, path.Err("open", ErrIsDir)
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		nid, _, n, err := s.resolveTerminal(tx, path, user, bypass)
		if err != nil {
			return err
		}
		if err := checkPerms(n, user, wantRead, bypass); err != nil {
			return err
		}

		lock := s.lockFor(nid)
		lock.Lock()
		defer lock.Unlock()

		n, err = s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		n.Atime = atime
		if err := s.eng.putNode(tx, nid, n); err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("open", err)
	}
	return &info, nil
}

// Mkdirs creates every missing directory along path.
func (s *Store) Mkdirs(fullPath string, mode uint16, ctime uint64, userName string) (*StatInfo, error) {
	path, err := s.path("mkdirs", fullPath)
	if err != nil {
		return nil, err
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		if len(path) == 0 {
			n, err := s.eng.getNode(tx, RootNID)
			if err != nil {
				return err
			}
			info = s.statInfo(RootNID, n)
			return nil
		}
		nid, err := s.walkMkdirs(tx, path, user, bypass, mode, ctime)
		if err != nil {
			return err
		}
		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("mkdirs", err)
	}
	return &info, nil
}

// Listdir returns every entry of the directory at path.
func (s *Store) Listdir(fullPath string, userName string) ([]DirEntry, error) {
	path, err := s.path("listdir", fullPath)
	if err != nil {
		return nil, err
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	err = s.eng.view(func(tx *bolt.Tx) error {
		nid, _, n, err := s.resolveTerminalOrRoot(tx, path, user, bypass)
		if err != nil {
			return err
		}
		if err := checkPerms(n, user, wantRead|wantExec|wantDir, bypass); err != nil {
			return err
		}

		prefix := childKeyPrefix(nid)
		c := s.eng.cursor(tx)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			_, name, err := decodeChildKey(k)
			if err != nil {
				return err
			}
			childNID := getU64(v)
			childNode, err := s.eng.getNode(tx, childNID)
			if err == ErrNotFound {
				// a concurrent removal between the child listing and
				// the node fetch is tolerated: skip it.
				continue
			}
			if err != nil {
				return err
			}
			entries = append(entries, DirEntry{Name: name, Stat: s.statInfo(childNID, childNode)})
		}
		return nil
	})
	if err != nil {
		return nil, path.Err("listdir", err)
	}
	return entries, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Stat returns the StatInfo of path's terminal node. It requires read and
// exec permission on the parent directory; Stat on root skips that check,
// since the root has no parent.
func (s *Store) Stat(fullPath string, userName string) (*StatInfo, error) {
	path, err := s.path("stat", fullPath)
	if err != nil {
		return nil, err
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.view(func(tx *bolt.Tx) error {
		nid, parentNID, n, err := s.resolveTerminalOrRoot(tx, path, user, bypass)
		if err != nil {
			return err
		}
		if len(path) > 0 {
			parentNode, err := s.eng.getNode(tx, parentNID)
			if err != nil {
				return err
			}
			if err := checkPerms(parentNode, user, wantRead|wantExec|wantDir, bypass); err != nil {
				return err
			}
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("stat", err)
	}
	return &info, nil
}

// Chmod rewrites a node's mode bits, preserving its IS_DIR flag.
func (s *Store) Chmod(fullPath string, mode uint16, userName string) (*StatInfo, error) {
	path, err := s.path("chmod", fullPath)
	if err != nil {
		return nil, err
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		nid, _, _, err := s.resolveTerminalOrRoot(tx, path, user, bypass)
		if err != nil {
			return err
		}

		lock := s.lockFor(nid)
		lock.Lock()
		defer lock.Unlock()

		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		isDir := n.ModeType & IsDir
		n.ModeType = isDir | (mode &^ IsDir)
		if err := s.eng.putNode(tx, nid, n); err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("chmod", err)
	}
	return &info, nil
}

// Chown rewrites a node's uid/gid. Only the superuser may change the
// uid; changing the gid requires ownership and membership in the new
// gid.
func (s *Store) Chown(fullPath string, newUser, newGroup, userName string) (*StatInfo, error) {
	path, err := s.path("chown", fullPath)
	if err != nil {
		return nil, err
	}
	caller, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var targetUID, targetGID *uint32
	if newUser != "" {
		u, err := s.cfg.Users.LookupUser(newUser)
		if err != nil {
			return nil, err
		}
		targetUID = &u.UID
	}
	if newGroup != "" {
		gid, err := s.cfg.Users.LookupGroup(newGroup)
		if err != nil {
			return nil, err
		}
		targetGID = &gid
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		nid, _, _, err := s.resolveTerminalOrRoot(tx, path, caller, bypass)
		if err != nil {
			return err
		}

		lock := s.lockFor(nid)
		lock.Lock()
		defer lock.Unlock()

		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		if targetUID != nil {
			if !bypass {
				return ErrPermission
			}
			n.UID = *targetUID
		}
		if targetGID != nil {
			if !bypass && (caller.UID != n.UID || !caller.inGID(*targetGID)) {
				return ErrPermission
			}
			n.GID = *targetGID
		}
		if err := s.eng.putNode(tx, nid, n); err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("chown", err)
	}
	return &info, nil
}

// Utimes rewrites a node's mtime/atime. A nil pointer leaves the
// corresponding field unchanged.
func (s *Store) Utimes(fullPath string, atime, mtime *uint64, userName string) (*StatInfo, error) {
	path, err := s.path("utimes", fullPath)
	if err != nil {
		return nil, err
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var info StatInfo
	err = s.eng.update(func(tx *bolt.Tx) error {
		nid, _, _, err := s.resolveTerminalOrRoot(tx, path, user, bypass)
		if err != nil {
			return err
		}

		lock := s.lockFor(nid)
		lock.Lock()
		defer lock.Unlock()

		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		if atime != nil {
			n.Atime = *atime
		}
		if mtime != nil {
			n.Mtime = *mtime
		}
		if err := s.eng.putNode(tx, nid, n); err != nil {
			return err
		}
		info = s.statInfo(nid, n)
		return nil
	})
	if err != nil {
		return nil, path.Err("utimes", err)
	}
	return &info, nil
}

// Rmdir removes the directory at path. recursive, when set, removes all
// descendants in the same atomic batch; otherwise a non-empty directory
// fails with ErrNotEmpty. Removing the root always fails with
// ErrPermission.
func (s *Store) Rmdir(fullPath string, recursive bool, userName string) error {
	path, err := s.path("rmdir", fullPath)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		return path.Err("rmdir", ErrPermission)
	}
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return err
	}

	err = s.eng.update(func(tx *bolt.Tx) error {
		parentNID, parentNode, err := s.walkAncestors(tx, path, user, bypass)
		if err != nil {
			return err
		}
		if err := checkPerms(parentNode, user, wantWrite|wantDir, bypass); err != nil {
			return err
		}
		childNID, err := s.lookupChild(tx, parentNID, path.Base())
		if err != nil {
			return err
		}
		if !recursive {
			if hasAnyChild(s, tx, childNID) {
				return ErrNotEmpty
			}
		}
		return s.deleteTree(tx, parentNID, path.Base(), childNID, recursive)
	})
	if err != nil {
		return path.Err("rmdir", err)
	}
	return nil
}

func hasAnyChild(s *Store, tx *bolt.Tx, nid uint64) bool {
	c := s.eng.cursor(tx)
	prefix := childKeyPrefix(nid)
	k, _ := c.Seek(prefix)
	return k != nil && hasPrefix(k, prefix)
}

// deleteTree removes the (parent, child) entry and child's node, and
// when recursive, every descendant visited underneath it, all within the
// caller's already-open transaction. The batched delete always passes
// (parent, child) in that consistent order, for the terminal entry and
// every descendant alike.
func (s *Store) deleteTree(tx *bolt.Tx, parent uint64, name string, child uint64, recursive bool) error {
	node, err := s.eng.getNode(tx, child)
	if err != nil {
		return err
	}
	if node.IsDir() && recursive {
		c := s.eng.cursor(tx)
		prefix := childKeyPrefix(child)
		var names []string
		var nids []uint64
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			_, childName, err := decodeChildKey(k)
			if err != nil {
				return err
			}
			names = append(names, childName)
			nids = append(nids, getU64(v))
		}
		for i, n := range names {
			if err := s.deleteTree(tx, child, n, nids[i], recursive); err != nil {
				return err
			}
		}
	}
	if err := s.eng.bucket(tx).Delete(childKey(parent, name)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return s.eng.deleteNode(tx, child)
}

// resolveTerminal walks path's ancestors and resolves its terminal
// component, failing with ErrNotFound if absent. path must have at least
// one component.
func (s *Store) resolveTerminal(tx *bolt.Tx, path Path, user *ResolvedUser, bypass bool) (nid, parentNID uint64, n *NodePayload, err error) {
	parentNID, _, err = s.walkAncestors(tx, path, user, bypass)
	if err != nil {
		return 0, 0, nil, err
	}
	nid, err = s.lookupChild(tx, parentNID, path.Base())
	if err != nil {
		return 0, 0, nil, err
	}
	n, err = s.eng.getNode(tx, nid)
	if err != nil {
		return 0, 0, nil, err
	}
	return nid, parentNID, n, nil
}

// resolveTerminalOrRoot behaves like resolveTerminal, except an empty
// path resolves directly to the root node without any ancestor walk or
// parent-dir check.
func (s *Store) resolveTerminalOrRoot(tx *bolt.Tx, path Path, user *ResolvedUser, bypass bool) (nid, parentNID uint64, n *NodePayload, err error) {
	if len(path) == 0 {
		n, err := s.eng.getNode(tx, RootNID)
		if err != nil {
			return 0, 0, nil, err
		}
		return RootNID, RootNID, n, nil
	}
	return s.resolveTerminal(tx, path, user, bypass)
}

// seekChunkAtOrBefore seeks c to the file-chunk record belonging to nid
// whose start-offset is the largest one that is ≤ threshold, by seeking to
// threshold+1 and stepping back once. This is the technique spec.md's
// chunkfind ordering rule describes. The cursor is left positioned at the
// found key on success.
func seekChunkAtOrBefore(c *bolt.Cursor, nid, threshold uint64) (k, v []byte, foundOff uint64, ok bool) {
	k, v = c.Seek(fileChunkKey(nid, threshold+1))
	if k != nil {
		k, v = c.Prev()
	} else {
		k, v = c.Last()
	}
	if k == nil || k[0] != tagFile {
		return nil, nil, 0, false
	}
	foundNID, off, err := decodeFileChunkKey(k)
	if err != nil || foundNID != nid {
		return nil, nil, 0, false
	}
	return k, v, off, true
}

// ChunkFind returns the chunks of nid in offset order, starting from the
// chunk covering rangeStart (the one with the largest start-offset ≤
// rangeStart, or nid's first chunk if none starts that early) and stopping
// before the first chunk whose start-offset exceeds rangeEnd.
func (s *Store) ChunkFind(nid, rangeStart, rangeEnd uint64, userName string) ([]ChunkInfo, error) {
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return nil, err
	}

	var out []ChunkInfo
	err = s.eng.view(func(tx *bolt.Tx) error {
		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		if err := checkPerms(n, user, wantRead, bypass); err != nil {
			return err
		}

		c := s.eng.cursor(tx)
		prefix := fileChunkKeyPrefix(nid)
		k, v, _, ok := seekChunkAtOrBefore(c, nid, rangeStart)
		if !ok {
			// no chunk covers rangeStart: start from nid's first chunk
			// instead.
			k, v = c.Seek(prefix)
		}

		for k != nil && hasPrefix(k, prefix) {
			_, off, err := decodeFileChunkKey(k)
			if err != nil {
				return err
			}
			if off > rangeEnd {
				break
			}
			out = append(out, ChunkInfo{Off: off, CID: getU64(v)})
			k, v = c.Next()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunkfind: %w", err)
	}
	return out, nil
}

// stubReplicas is the fixed replica pair chunkalloc assigns pending the
// cluster-membership collaborator.
var stubReplicas = []uint32{123, 456}

// ChunkAlloc allocates a new cid for nid at byte offset off, assigns the
// stub replica pair, and writes the file-chunk and chunk-replicas
// records in one atomic batch. It fails with ErrChunkConflict if nid
// already has a chunk starting at or after off, an exact duplicate start
// included.
func (s *Store) ChunkAlloc(nid, off uint64, userName string) (cid uint64, replicas []uint32, err error) {
	user, bypass, err := s.resolveUser(userName)
	if err != nil {
		return 0, nil, err
	}

	err = s.eng.update(func(tx *bolt.Tx) error {
		n, err := s.eng.getNode(tx, nid)
		if err != nil {
			return err
		}
		if err := checkPerms(n, user, wantWrite, bypass); err != nil {
			return err
		}
		c := s.eng.cursor(tx)
		if k, _ := c.Seek(fileChunkKey(nid, off)); k != nil && hasPrefix(k, fileChunkKeyPrefix(nid)) {
			_, foundOff, _ := decodeFileChunkKey(k)
			return fmt.Errorf("%w: existing chunk at offset %d is not before %d", ErrChunkConflict, foundOff, off)
		}

		cid = s.cids.Next()
		replicas = stubReplicas
		if err := s.eng.bucket(tx).Put(fileChunkKey(nid, off), u64bytes(cid)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if err := s.eng.bucket(tx).Put(chunkKey(cid), encodeReplicaSet(replicas)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("chunkalloc: %w", err)
	}
	return cid, replicas, nil
}

// SequesterTree, FindSequestered, and DestroySequestered are reserved:
// the original marks tree-sequestering and its destruction as not yet
// implemented, and rename as well.
func (s *Store) SequesterTree(fullPath string, unlinkTime uint64, userName string) error {
	return ErrUnsupported
}

func (s *Store) FindSequestered(before uint64) ([]uint64, error) {
	return nil, ErrUnsupported
}

func (s *Store) DestroySequestered(cid uint64) error {
	return ErrUnsupported
}

func (s *Store) Rename(fromPath, toPath, userName string) error {
	return ErrUnsupported
}
