package mstor

import (
	"github.com/boltdb/bolt"
)

// resolveUser looks up name in the store's user directory and reports
// whether it is the superuser, who bypasses permission checks (the
// CHECK_PERMS flag cleared up front, in the original's terms).
func (s *Store) resolveUser(name string) (user *ResolvedUser, bypass bool, err error) {
	user, err = s.cfg.Users.LookupUser(name)
	if err != nil {
		return nil, false, err
	}
	return user, user.isSuperuser(), nil
}

// lookupChild resolves the child nid of name under parent, or
// ErrNotFound.
func (s *Store) lookupChild(tx *bolt.Tx, parent uint64, name string) (uint64, error) {
	v := s.eng.bucket(tx).Get(childKey(parent, name))
	if v == nil {
		return 0, ErrNotFound
	}
	return getU64(v), nil
}

// walkAncestors descends path's non-terminal components starting from
// root, requiring EXEC|IS_DIR at each step, and returns the nid/node of
// the directory that should contain path's final component. path must
// have at least one component (callers handle the root path specially).
func (s *Store) walkAncestors(tx *bolt.Tx, path Path, user *ResolvedUser, bypass bool) (dirNID uint64, dirNode *NodePayload, err error) {
	dirNID = RootNID
	dirNode, err = s.eng.getNode(tx, RootNID)
	if err != nil {
		return 0, nil, err
	}

	for _, comp := range path[:len(path)-1] {
		childNID, err := s.lookupChild(tx, dirNID, comp)
		if err != nil {
			return 0, nil, err
		}
		childNode, err := s.eng.getNode(tx, childNID)
		if err != nil {
			return 0, nil, err
		}
		if err := checkPerms(childNode, user, wantExec|wantDir, bypass); err != nil {
			return 0, nil, err
		}
		dirNID, dirNode = childNID, childNode
	}
	return dirNID, dirNode, nil
}

// walkMkdirs descends the whole of path, creating any missing
// intermediate or terminal directory with the given mode and ctime. Once
// the first directory is created, permission checks are cleared for the
// remainder of the walk, so later creations succeed in the same call
// regardless of the new directory's mode.
func (s *Store) walkMkdirs(tx *bolt.Tx, path Path, user *ResolvedUser, bypass bool, mode uint16, ctime uint64) (uint64, error) {
	curNID := uint64(RootNID)
	curNode, err := s.eng.getNode(tx, RootNID)
	if err != nil {
		return 0, err
	}

	for _, comp := range path {
		childNID, lookupErr := s.lookupChild(tx, curNID, comp)
		var childNode *NodePayload
		switch {
		case lookupErr == ErrNotFound:
			if err := checkPerms(curNode, user, wantWrite|wantDir, bypass); err != nil {
				return 0, err
			}
			childNID, err = s.createNode(tx, curNID, comp, IsDir|mode, ctime, user)
			if err != nil {
				return 0, err
			}
			childNode, err = s.eng.getNode(tx, childNID)
			if err != nil {
				return 0, err
			}
			bypass = true
		case lookupErr != nil:
			return 0, lookupErr
		default:
			childNode, err = s.eng.getNode(tx, childNID)
			if err != nil {
				return 0, err
			}
			if err := checkPerms(childNode, user, wantExec|wantDir, bypass); err != nil {
				return 0, err
			}
		}
		curNID, curNode = childNID, childNode
	}
	return curNID, nil
}

// createNode allocates a new nid, writes its node payload, and links it
// into parent under name, all as part of the caller's already-open
// transaction.
func (s *Store) createNode(tx *bolt.Tx, parent uint64, name string, modeType uint16, ctime uint64, user *ResolvedUser) (uint64, error) {
	nid := s.nids.Next()
	n := &NodePayload{
		Mtime: ctime, Atime: ctime, Length: 0,
		UID: user.UID, GID: user.GID, ModeType: modeType,
	}
	if err := s.eng.putNode(tx, nid, n); err != nil {
		return 0, err
	}
	if err := s.eng.bucket(tx).Put(childKey(parent, name), u64bytes(nid)); err != nil {
		return 0, err
	}
	return nid, nil
}

func u64bytes(v uint64) []byte {
	b := make([]byte, 8)
	putU64(b, v)
	return b
}
