package mstor

import "encoding/binary"

// Record family tags: the first byte of every key in the backing store,
// chosen so that unsigned lexicographic key order matches numeric id
// order within each family.
const (
	tagVersion byte = 'v'
	tagNode    byte = 'n'
	tagChild   byte = 'c'
	tagFile    byte = 'f'
	tagChunk   byte = 'h'
	tagSeq     byte = 'u'
)

const (
	keyLenVersion = 1
	keyLenNode    = 1 + 8
	keyLenFile    = 1 + 8 + 8
	keyLenChunk   = 1 + 8
	keyLenSeq     = 1 + 8
	// keyLenChildMin is 1 tag byte + 8 parent-id bytes + at least one name
	// byte.
	keyLenChildMin = 1 + 8 + 1
)

// nodePayloadLen is the width of the fixed on-disk node record: mtime (8),
// atime (8), length (8), uid (4), gid (4), mode-and-type (2).
const nodePayloadLen = 8 + 8 + 8 + 4 + 4 + 2

func putU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getU64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// versionKey is the sole key of the 'v' family.
func versionKey() []byte {
	return []byte{tagVersion}
}

// encodeVersionValue packs the magic and version stamp written at format
// time.
func encodeVersionValue(version uint32) []byte {
	out := make([]byte, 4+4)
	copy(out, VersionMagic)
	binary.BigEndian.PutUint32(out[4:], version)
	return out
}

// decodeVersionValue unpacks a version record, failing with
// IncompatibleVersion if the magic or the version this build understands
// don't match.
func decodeVersionValue(v []byte) (uint32, error) {
	if len(v) != 8 {
		return 0, ErrMalformedRecord
	}
	if string(v[:4]) != VersionMagic {
		return 0, ErrIncompatibleVersion
	}
	got := binary.BigEndian.Uint32(v[4:])
	if got != CurVersion {
		return 0, ErrIncompatibleVersion
	}
	return got, nil
}

// nodeKey builds the key of a node record: 'n' || nid.
func nodeKey(nid uint64) []byte {
	k := make([]byte, keyLenNode)
	k[0] = tagNode
	putU64(k[1:], nid)
	return k
}

// decodeNodeKey parses a node key back into its nid. It rejects any key
// of the wrong length or wrong tag.
func decodeNodeKey(k []byte) (uint64, error) {
	if len(k) != keyLenNode || k[0] != tagNode {
		return 0, ErrMalformedRecord
	}
	return getU64(k[1:]), nil
}

// childKey builds the key of a directory entry: 'c' || parent-nid ||
// name. name must already satisfy the path-component length invariant;
// callers are expected to have checked that with Path.Validate.
func childKey(parent uint64, name string) []byte {
	k := make([]byte, 1+8+len(name))
	k[0] = tagChild
	putU64(k[1:], parent)
	copy(k[9:], name)
	return k
}

// childKeyPrefix builds the shared prefix of every child key under
// parent, for range scans over a directory's entries.
func childKeyPrefix(parent uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = tagChild
	putU64(k[1:], parent)
	return k
}

// decodeChildKey parses a child key back into its parent nid and child
// name.
func decodeChildKey(k []byte) (parent uint64, name string, err error) {
	if len(k) < keyLenChildMin || k[0] != tagChild {
		return 0, "", ErrMalformedRecord
	}
	parent = getU64(k[1:9])
	name = string(k[9:])
	if len(name) < 1 || len(name) >= ComponentMax {
		return 0, "", ErrMalformedRecord
	}
	return parent, name, nil
}

// fileChunkKey builds the key of a file-chunk record: 'f' || nid ||
// start-offset.
func fileChunkKey(nid, off uint64) []byte {
	k := make([]byte, keyLenFile)
	k[0] = tagFile
	putU64(k[1:], nid)
	putU64(k[9:], off)
	return k
}

// fileChunkKeyPrefix builds the shared prefix of every file-chunk key
// belonging to nid.
func fileChunkKeyPrefix(nid uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = tagFile
	putU64(k[1:], nid)
	return k
}

// decodeFileChunkKey parses a file-chunk key back into its nid and
// start-offset.
func decodeFileChunkKey(k []byte) (nid, off uint64, err error) {
	if len(k) != keyLenFile || k[0] != tagFile {
		return 0, 0, ErrMalformedRecord
	}
	return getU64(k[1:9]), getU64(k[9:17]), nil
}

// chunkKey builds the key of a chunk-replicas record: 'h' || cid.
func chunkKey(cid uint64) []byte {
	k := make([]byte, keyLenChunk)
	k[0] = tagChunk
	putU64(k[1:], cid)
	return k
}

// decodeChunkKey parses a chunk-replicas key back into its cid.
func decodeChunkKey(k []byte) (uint64, error) {
	if len(k) != keyLenChunk || k[0] != tagChunk {
		return 0, ErrMalformedRecord
	}
	return getU64(k[1:]), nil
}

// sequesterKey builds the key of a sequestered-chunk record: 'u' ||
// unlink-time.
func sequesterKey(unlinkTime uint64) []byte {
	k := make([]byte, keyLenSeq)
	k[0] = tagSeq
	putU64(k[1:], unlinkTime)
	return k
}

// decodeSequesterKey parses a sequestered-chunk key back into its
// unlink-time.
func decodeSequesterKey(k []byte) (uint64, error) {
	if len(k) != keyLenSeq || k[0] != tagSeq {
		return 0, ErrMalformedRecord
	}
	return getU64(k[1:]), nil
}

// NodePayload is the decoded form of a node record's fixed-width value.
type NodePayload struct {
	Mtime    uint64
	Atime    uint64
	Length   uint64
	UID      uint32
	GID      uint32
	ModeType uint16
}

// IsDir reports whether the node's IsDir flag is set.
func (n *NodePayload) IsDir() bool {
	return n.ModeType&IsDir != 0
}

// Mode returns the low 9 permission bits, with the type flag masked out.
func (n *NodePayload) Mode() uint16 {
	return n.ModeType &^ IsDir
}

// encodeNodePayload packs a node payload in the fixed field order: mtime,
// atime, length, uid, gid, mode-and-type.
func encodeNodePayload(n *NodePayload) []byte {
	b := make([]byte, nodePayloadLen)
	binary.BigEndian.PutUint64(b[0:8], n.Mtime)
	binary.BigEndian.PutUint64(b[8:16], n.Atime)
	binary.BigEndian.PutUint64(b[16:24], n.Length)
	binary.BigEndian.PutUint32(b[24:28], n.UID)
	binary.BigEndian.PutUint32(b[28:32], n.GID)
	binary.BigEndian.PutUint16(b[32:34], n.ModeType)
	return b
}

// decodeNodePayload unpacks a node record's value, failing with
// MalformedRecord if its length doesn't match the fixed width.
func decodeNodePayload(v []byte) (*NodePayload, error) {
	if len(v) != nodePayloadLen {
		return nil, ErrMalformedRecord
	}
	return &NodePayload{
		Mtime:    binary.BigEndian.Uint64(v[0:8]),
		Atime:    binary.BigEndian.Uint64(v[8:16]),
		Length:   binary.BigEndian.Uint64(v[16:24]),
		UID:      binary.BigEndian.Uint32(v[24:28]),
		GID:      binary.BigEndian.Uint32(v[28:32]),
		ModeType: binary.BigEndian.Uint16(v[32:34]),
	}, nil
}

// encodeReplicaSet packs a chunk's replica OSD ids as a big-endian u32
// array.
func encodeReplicaSet(oids []uint32) []byte {
	b := make([]byte, 4*len(oids))
	for i, oid := range oids {
		binary.BigEndian.PutUint32(b[i*4:], oid)
	}
	return b
}

// decodeReplicaSet unpacks a chunk-replicas record's value, enforcing the
// non-empty, 4-byte-aligned invariant.
func decodeReplicaSet(v []byte) ([]uint32, error) {
	if len(v) == 0 || len(v)%4 != 0 {
		return nil, ErrMalformedRecord
	}
	out := make([]uint32, len(v)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(v[i*4:])
	}
	return out, nil
}
