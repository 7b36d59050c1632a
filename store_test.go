package mstor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testStore opens a fresh store backed by a temp-dir bolt database, with
// a root-user directory preloaded.
func testStore(t *testing.T) (s *Store, cleanup func()) {
	t.Helper()
	tmpdir, err := os.MkdirTemp("", "mstor_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	users := NewStaticUserDirectory()
	users.AddUser("root", SuperuserUID, SuperuserGID)
	users.AddUser("alice", 1000, 1000)
	users.AddGroup("alice", 1000)
	users.AddGroup("eng", 2000)

	s, err = Open(Config{
		Path:   filepath.Join(tmpdir, "mstor.bolt"),
		Create: true,
		Users:  users,
	})
	if err != nil {
		os.RemoveAll(tmpdir)
		t.Fatalf("failed to open store: %v", err)
	}

	return s, func() {
		s.Close()
		os.RemoveAll(tmpdir)
	}
}

func TestFreshStoreMkdirsAndStat(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a/b/c", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}

	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		info, err := s.Stat(p, "root")
		if err != nil {
			t.Fatalf("stat(%s) failed: %v", p, err)
		}
		if !info.IsDir {
			t.Errorf("stat(%s): expected directory", p)
		}
		if info.Mode != 0755 {
			t.Errorf("stat(%s): expected mode 0755, got %o", p, info.Mode)
		}
		if info.Mtime != 100 || info.Atime != 100 {
			t.Errorf("stat(%s): expected mtime=atime=100, got mtime=%d atime=%d", p, info.Mtime, info.Atime)
		}
	}
}

func TestCreatOpenStat(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a/b", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/b/f", 0644, 200, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}
	if _, err := s.Open("/a/b/f", 250, "root"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	info, err := s.Stat("/a/b/f", "root")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.IsDir {
		t.Error("expected a file, got a directory")
	}
	if info.Length != 0 {
		t.Errorf("expected length 0, got %d", info.Length)
	}
	if info.Mode != 0644 {
		t.Errorf("expected mode 0644, got %o", info.Mode)
	}
	if info.Mtime != 200 {
		t.Errorf("expected mtime 200, got %d", info.Mtime)
	}
	if info.Atime != 250 {
		t.Errorf("expected atime 250, got %d", info.Atime)
	}
}

func TestChunkAllocDuplicateOffsetRejected(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	fileInfo, err := s.Creat("/a/f", 0644, 100, "root")
	if err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	cid, replicas, err := s.ChunkAlloc(fileInfo.NID, 0, "root")
	if err != nil {
		t.Fatalf("chunkalloc failed: %v", err)
	}
	if cid < 1 {
		t.Errorf("expected cid >= 1, got %d", cid)
	}
	if len(replicas) != 2 {
		t.Errorf("expected 2 replicas, got %d", len(replicas))
	}

	if _, _, err := s.ChunkAlloc(fileInfo.NID, 0, "root"); !errors.Is(err, ErrChunkConflict) {
		t.Errorf("expected ErrChunkConflict for duplicate chunkalloc at offset 0, got %v", err)
	}

	if _, _, err := s.ChunkAlloc(fileInfo.NID, 4096, "root"); err != nil {
		t.Errorf("expected chunkalloc at offset 4096 to succeed, got %v", err)
	}

	if _, _, err := s.ChunkAlloc(fileInfo.NID, 100, "root"); !errors.Is(err, ErrChunkConflict) {
		t.Errorf("expected ErrChunkConflict for an offset already covered by the chunk at 0, got %v", err)
	}
}

func TestListdirSingleEntry(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a/b", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/b/f", 0644, 200, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	entries, err := s.Listdir("/a/b", "root")
	if err != nil {
		t.Fatalf("listdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Name != "f" {
		t.Errorf("expected entry named f, got %s", entries[0].Name)
	}
}

func TestChmodRoundTrip(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	info, err := s.Chmod("/a/f", 0600, "root")
	if err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	if info.Mode != 0600 {
		t.Errorf("expected mode 0600, got %o", info.Mode)
	}
	if info.IsDir {
		t.Error("chmod must not flip IsDir")
	}

	again, err := s.Stat("/a/f", "root")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if again.Mode != 0600 {
		t.Errorf("expected mode 0600 after re-stat, got %o", again.Mode)
	}
}

func TestUtimesRoundTripsNonSentinelFields(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	atime := uint64(500)
	info, err := s.Utimes("/a/f", &atime, nil, "root")
	if err != nil {
		t.Fatalf("utimes failed: %v", err)
	}
	if info.Atime != 500 {
		t.Errorf("expected atime 500, got %d", info.Atime)
	}
	if info.Mtime != 100 {
		t.Errorf("expected mtime left unchanged at 100, got %d", info.Mtime)
	}

	mtime := uint64(900)
	info2, err := s.Utimes("/a/f", nil, &mtime, "root")
	if err != nil {
		t.Fatalf("utimes failed: %v", err)
	}
	if info2.Mtime != 900 {
		t.Errorf("expected mtime 900, got %d", info2.Mtime)
	}
	if info2.Atime != 500 {
		t.Errorf("expected atime left unchanged at 500, got %d", info2.Atime)
	}
}

func TestChownSuperuserCanChangeUID(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0777, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	info, err := s.Chown("/a/f", "alice", "", "root")
	if err != nil {
		t.Fatalf("chown as superuser failed: %v", err)
	}
	if info.UID != 1000 {
		t.Errorf("expected uid 1000, got %d", info.UID)
	}
}

func TestChownNonSuperuserCannotChangeUID(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0777, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "alice"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	if _, err := s.Chown("/a/f", "root", "", "alice"); !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission for non-superuser uid change, got %v", err)
	}
}

func TestChownOwnerInNewGroupCanChangeGID(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0777, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "alice"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	info, err := s.Chown("/a/f", "", "alice", "alice")
	if err != nil {
		t.Fatalf("chown gid change by owner-member failed: %v", err)
	}
	if info.GID != 1000 {
		t.Errorf("expected gid 1000, got %d", info.GID)
	}
}

func TestChownNonMemberCannotChangeGID(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a", 0777, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/f", 0644, 100, "alice"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}

	if _, err := s.Chown("/a/f", "", "eng", "alice"); !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission for gid change outside caller's groups, got %v", err)
	}
}

func TestRmdirNotEmptyThenRecursive(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if _, err := s.Mkdirs("/a/b/c", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}

	if err := s.Rmdir("/a", false, "root"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("expected ErrNotEmpty, got %v", err)
	}

	if err := s.Rmdir("/a", true, "root"); err != nil {
		t.Fatalf("recursive rmdir failed: %v", err)
	}

	if _, err := s.Stat("/a", "root"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after recursive rmdir, got %v", err)
	}
}

func TestRmdirRootIsPermissionDenied(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	if err := s.Rmdir("/", false, "root"); !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestCloseReopenDurability(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "mstor_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpdir)
	dbPath := filepath.Join(tmpdir, "mstor.bolt")

	users := NewStaticUserDirectory()
	users.AddUser("root", SuperuserUID, SuperuserGID)

	s, err := Open(Config{Path: dbPath, Create: true, Users: users})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if _, err := s.Mkdirs("/a/b", 0755, 100, "root"); err != nil {
		t.Fatalf("mkdirs failed: %v", err)
	}
	if _, err := s.Creat("/a/b/f", 0644, 200, "root"); err != nil {
		t.Fatalf("creat failed: %v", err)
	}
	var before, after struct{ dump string }
	var buf1 stringWriter
	if err := s.Dump(&buf1); err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	before.dump = buf1.String()
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	s2, err := Open(Config{Path: dbPath, Create: false, Users: users})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s2.Close()

	info, err := s2.Stat("/a/b/f", "root")
	if err != nil {
		t.Fatalf("stat after reopen failed: %v", err)
	}
	if info.Mode != 0644 || info.Mtime != 200 {
		t.Errorf("unexpected stat after reopen: %+v", info)
	}

	var buf2 stringWriter
	if err := s2.Dump(&buf2); err != nil {
		t.Fatalf("dump after reopen failed: %v", err)
	}
	after.dump = buf2.String()
	if before.dump != after.dump {
		t.Errorf("expected identical dump before/after reopen:\nbefore:\n%s\nafter:\n%s", before.dump, after.dump)
	}
}

type stringWriter struct {
	b []byte
}

func (w *stringWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *stringWriter) String() string {
	return string(w.b)
}
