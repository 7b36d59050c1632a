package mstor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
)

func testEngine(t *testing.T) (*engine, func()) {
	t.Helper()
	tmpdir, err := os.MkdirTemp("", "mstor_engine_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	e, err := openEngine(filepath.Join(tmpdir, "e.bolt"), true, 16)
	if err != nil {
		os.RemoveAll(tmpdir)
		t.Fatalf("failed to open engine: %v", err)
	}
	return e, func() {
		e.close()
		os.RemoveAll(tmpdir)
	}
}

func TestEngineNodeRoundTripThroughCache(t *testing.T) {
	e, cleanup := testEngine(t)
	defer cleanup()

	n := &NodePayload{Mtime: 1, Atime: 2, Length: 3, UID: 4, GID: 5, ModeType: IsDir | 0755}
	err := e.update(func(tx *bolt.Tx) error {
		return e.putNode(tx, 42, n)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = e.view(func(tx *bolt.Tx) error {
		got, err := e.getNode(tx, 42)
		if err != nil {
			return err
		}
		if *got != *n {
			t.Errorf("expected %+v, got %+v", n, got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEngineGetNodeNotFound(t *testing.T) {
	e, cleanup := testEngine(t)
	defer cleanup()

	err := e.view(func(tx *bolt.Tx) error {
		_, err := e.getNode(tx, 999)
		return err
	})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineDeleteNodeEvictsCache(t *testing.T) {
	e, cleanup := testEngine(t)
	defer cleanup()

	n := &NodePayload{ModeType: 0644}
	e.update(func(tx *bolt.Tx) error {
		return e.putNode(tx, 7, n)
	})
	e.update(func(tx *bolt.Tx) error {
		return e.deleteNode(tx, 7)
	})

	err := e.view(func(tx *bolt.Tx) error {
		_, err := e.getNode(tx, 7)
		return err
	})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLastKeyInFamily(t *testing.T) {
	e, cleanup := testEngine(t)
	defer cleanup()

	err := e.update(func(tx *bolt.Tx) error {
		for _, nid := range []uint64{1, 5, 9} {
			if err := e.putNode(tx, nid, &NodePayload{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = e.view(func(tx *bolt.Tx) error {
		c := e.cursor(tx)
		k, _, found := lastKeyInFamily(c, tagNode, nodeKey(^uint64(0)))
		if !found {
			t.Fatal("expected to find a key")
		}
		nid, err := decodeNodeKey(k)
		if err != nil {
			return err
		}
		if nid != 9 {
			t.Errorf("expected max nid 9, got %d", nid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
