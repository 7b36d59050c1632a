package mstor

import (
	"bufio"
	"fmt"
	"io"

	"github.com/boltdb/bolt"
)

// Dump writes a deterministic, key-ordered textual enumeration of every
// record in the store to w. One line per record:
//
//	CHILD(parent,name) => cid
//	FILE(nid,off) => cid
//	CHUNK(cid) => [ oid, ... ]
//	NODE(nid) => { ty, mode, mtime, atime, uid, gid }
//	MSTOR_VERSION(n)
func (s *Store) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	err := s.eng.view(func(tx *bolt.Tx) error {
		c := s.eng.cursor(tx)
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) < 1 {
				return ErrMalformedRecord
			}
			var line string
			var err error
			switch k[0] {
			case tagChild:
				line, err = dumpChild(k, v)
			case tagFile:
				line, err = dumpFile(k, v)
			case tagChunk:
				line, err = dumpChunk(k, v)
			case tagNode:
				line, err = dumpNode(k, v)
			case tagVersion:
				line, err = dumpVersion(v)
			case tagSeq:
				line, err = dumpSequester(k, v)
			default:
				return ErrMalformedRecord
			}
			if err != nil {
				return err
			}
			if _, err := bw.WriteString(line); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func dumpChild(k, v []byte) (string, error) {
	parent, name, err := decodeChildKey(k)
	if err != nil {
		return "", err
	}
	if len(v) != 8 {
		return "", ErrMalformedRecord
	}
	cid := getU64(v)
	return fmt.Sprintf("CHILD(0x%x, %s) => 0x%x\n", parent, name, cid), nil
}

func dumpFile(k, v []byte) (string, error) {
	nid, off, err := decodeFileChunkKey(k)
	if err != nil {
		return "", err
	}
	if len(v) != 8 {
		return "", ErrMalformedRecord
	}
	cid := getU64(v)
	return fmt.Sprintf("FILE(0x%x, 0x%x) => 0x%x\n", nid, off, cid), nil
}

func dumpChunk(k, v []byte) (string, error) {
	cid, err := decodeChunkKey(k)
	if err != nil {
		return "", err
	}
	oids, err := decodeReplicaSet(v)
	if err != nil {
		return "", err
	}
	buf := ""
	for i, oid := range oids {
		if i > 0 {
			buf += ", "
		}
		buf += fmt.Sprintf("%x", oid)
	}
	return fmt.Sprintf("CHUNK(0x%x) => [ %s ]\n", cid, buf), nil
}

func dumpNode(k, v []byte) (string, error) {
	nid, err := decodeNodeKey(k)
	if err != nil {
		return "", err
	}
	n, err := decodeNodePayload(v)
	if err != nil {
		return "", err
	}
	ty := "FILE"
	if n.IsDir() {
		ty = "DIR"
	}
	return fmt.Sprintf("NODE(0x%x) => { ty=%s, mode=%04o, mtime=%d, atime=%d, uid='%d', gid='%d' }\n",
		nid, ty, n.Mode(), n.Mtime, n.Atime, n.UID, n.GID), nil
}

func dumpVersion(v []byte) (string, error) {
	vers, err := decodeVersionValue(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MSTOR_VERSION(%d)\n", vers), nil
}

func dumpSequester(k, v []byte) (string, error) {
	unlinkTime, err := decodeSequesterKey(k)
	if err != nil {
		return "", err
	}
	if len(v) != 8 {
		return "", ErrMalformedRecord
	}
	cid := getU64(v)
	return fmt.Sprintf("SEQUESTERED(0x%x) => 0x%x\n", unlinkTime, cid), nil
}
