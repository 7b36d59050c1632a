package mstor

import "testing"

func dirNode(mode uint16, uid, gid uint32) *NodePayload {
	return &NodePayload{UID: uid, GID: gid, ModeType: IsDir | mode}
}

func fileNode(mode uint16, uid, gid uint32) *NodePayload {
	return &NodePayload{UID: uid, GID: gid, ModeType: mode}
}

func TestCheckPermsRejectsFileWhenDirWanted(t *testing.T) {
	n := fileNode(0755, 1, 1)
	u := &ResolvedUser{UID: 1, GID: 1}
	if err := checkPerms(n, u, wantDir|wantRead, true); err != ErrNotDir {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
}

func TestCheckPermsRejectsDirWhenFileWanted(t *testing.T) {
	n := dirNode(0755, 1, 1)
	u := &ResolvedUser{UID: 1, GID: 1}
	if err := checkPerms(n, u, wantRead, true); err != ErrIsDir {
		t.Errorf("expected ErrIsDir, got %v", err)
	}
}

func TestCheckPermsBypassSkipsModeCheck(t *testing.T) {
	n := fileNode(0000, 1, 1)
	u := &ResolvedUser{UID: 2, GID: 2}
	if err := checkPerms(n, u, wantRead, true); err != nil {
		t.Errorf("expected bypass to succeed, got %v", err)
	}
}

func TestCheckPermsOtherBitsCheckedFirst(t *testing.T) {
	n := fileNode(0004, 99, 99)
	u := &ResolvedUser{UID: 1, GID: 1}
	if err := checkPerms(n, u, wantRead, false); err != nil {
		t.Errorf("expected other-read bit to grant access, got %v", err)
	}
}

func TestCheckPermsOwnerBit(t *testing.T) {
	n := fileNode(0400, 1, 1)
	u := &ResolvedUser{UID: 1, GID: 99}
	if err := checkPerms(n, u, wantRead, false); err != nil {
		t.Errorf("expected owner-read bit to grant access, got %v", err)
	}
}

func TestCheckPermsGroupBit(t *testing.T) {
	n := fileNode(0040, 5, 7)
	u := &ResolvedUser{UID: 1, GID: 2, Groups: []uint32{7}}
	if err := checkPerms(n, u, wantRead, false); err != nil {
		t.Errorf("expected group-read bit to grant access, got %v", err)
	}
}

func TestCheckPermsDeniesWhenNoBitMatches(t *testing.T) {
	n := fileNode(0750, 5, 7)
	u := &ResolvedUser{UID: 1, GID: 2}
	if err := checkPerms(n, u, wantRead, false); err != ErrPermission {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestResolvedUserInGID(t *testing.T) {
	u := &ResolvedUser{UID: 1, GID: 10, Groups: []uint32{20, 30}}
	if !u.inGID(10) || !u.inGID(20) || !u.inGID(30) {
		t.Error("expected primary and supplementary gids to match")
	}
	if u.inGID(40) {
		t.Error("expected unrelated gid not to match")
	}
}

func TestResolvedUserIsSuperuser(t *testing.T) {
	u := &ResolvedUser{UID: SuperuserUID}
	if !u.isSuperuser() {
		t.Error("expected uid 0 to be superuser")
	}
	u2 := &ResolvedUser{UID: 1}
	if u2.isSuperuser() {
		t.Error("expected uid 1 not to be superuser")
	}
}
