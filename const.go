package mstor

// Limits mirror the fixed ceilings the original mds/mstor.c enforces via
// RF_PCOMP_MAX / RF_PATH_MAX / RF_MAX_OID. They aren't part of the wire
// format (only id ceilings and the version magic are) so picking concrete,
// POSIX-familiar values here doesn't change any on-disk invariant.
const (
	// ComponentMax is the maximum length, in bytes, a single path
	// component name may have. A name of ComponentMax-1 bytes succeeds; a
	// name of ComponentMax bytes fails with NameTooLong.
	ComponentMax = 256

	// PathMax bounds the length, in bytes, of a raw slash-separated path as
	// passed to Canonicalize: a path of PathMax bytes or more fails with
	// NameTooLong.
	PathMax = 4096

	// MaxReplicas bounds the replication settings accepted from Config.
	MaxReplicas = 16
)

const (
	// SuperuserUID is the uid that bypasses all permission checks.
	SuperuserUID = 0
	// SuperuserGID is the gid the root node and bootstrap records are
	// stamped with.
	SuperuserGID = 0
)

const (
	// NIDMax is the ceiling for node ids. The tail above it is reserved
	// guard space for future sharding across metadata servers.
	NIDMax = 0xFFFFFFFFFFFF0000
	// CIDMax is the ceiling for chunk ids, same rationale as NIDMax.
	CIDMax = 0xFFFFFFFFFFFF0000

	// RootNID is the fixed node id of the root directory.
	RootNID = 0
)

const (
	// VersionMagic is the literal 4-byte stamp every formatted store
	// begins with.
	VersionMagic = "Fish"
	// CurVersion is the store format version this build understands.
	CurVersion uint32 = 0x00000001
)

const (
	defaultMinSequesterTime = 300
	defaultMinRepl          = 2
	defaultManRepl          = 3
)

// Permission bits. Bits 0-2 are everyone else's rwx, bits 3-5 are the
// group's rwx, bits 6-8 are the owner's rwx (the usual POSIX layout), and
// the "other" bits are checked first and unconditionally regardless of
// uid/gid match.
const (
	PermExec  = 01
	PermWrite = 02
	PermRead  = 04
)

// IsDir is combined with a permission want-set to additionally require (or,
// inverted, forbid) the target being a directory, and is also the single
// flag bit stored in a node's mode-and-type field.
const IsDir = 0x200
