package mstor

// want is a wanted-permission bit-set, optionally combined with IsDir to
// additionally require (or, inverted, forbid) the target being a
// directory.
type want uint16

const (
	wantExec  = want(PermExec)
	wantWrite = want(PermWrite)
	wantRead  = want(PermRead)
	wantDir   = want(IsDir)
)

// checkPerms applies the mode-check algorithm against node on behalf of
// caller, wanting the bits in w. bypassChecks is the superuser override:
// when set, every check below the directory-type check is skipped.
//
// The bit layout checked is: other position (node.Mode() unshifted),
// tried first and unconditionally; then owner position (node.Mode()
// shifted right 6) if caller.UID equals node.UID; then group position
// (node.Mode() shifted right 3) if caller is a member of node.GID. Any
// match grants access.
func checkPerms(node *NodePayload, caller *ResolvedUser, w want, bypassChecks bool) error {
	if w&wantDir != 0 {
		if !node.IsDir() {
			return ErrNotDir
		}
	} else if node.IsDir() {
		return ErrIsDir
	}

	if bypassChecks {
		return nil
	}

	bits := uint16(w &^ wantDir)
	mode := node.Mode()

	if mode&bits == bits {
		return nil
	}
	if caller.UID == node.UID && mode&(bits<<6) == (bits<<6) {
		return nil
	}
	if caller.inGID(node.GID) && mode&(bits<<3) == (bits<<3) {
		return nil
	}
	return ErrPermission
}

// ResolvedUser is the authenticated identity attached to a request, after
// the user-directory collaborator has resolved a user name to uid/gid and
// group membership.
type ResolvedUser struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

func (u *ResolvedUser) inGID(gid uint32) bool {
	if u.GID == gid {
		return true
	}
	for _, g := range u.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

// isSuperuser reports whether u is the fixed superuser identity that
// bypasses permission checks.
func (u *ResolvedUser) isSuperuser() bool {
	return u.UID == SuperuserUID
}
