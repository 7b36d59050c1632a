package mstor

import "errors"

// Sentinel errors corresponding to the abstract error kinds the core
// operations report. Callers should compare against these with errors.Is;
// handlers wrap them with fmt.Errorf("...: %w", ...) to add context, and
// path-carrying operations wrap them again in an *os.PathError via
// Path.Err.
var (
	ErrNotFound      = errors.New("mstor: not found")
	ErrAlreadyExists = errors.New("mstor: already exists")
	ErrPermission    = errors.New("mstor: permission denied")
	ErrNotDir        = errors.New("mstor: not a directory")
	ErrIsDir         = errors.New("mstor: is a directory")
	ErrNotEmpty      = errors.New("mstor: directory not empty")
	ErrNameTooLong   = errors.New("mstor: name too long")
	ErrCorruption    = errors.New("mstor: corrupt record")
	ErrIO            = errors.New("mstor: storage engine error")
	ErrNoSuchUser    = errors.New("mstor: no such user")
	ErrUnsupported   = errors.New("mstor: operation not implemented")
	ErrInvalidPath   = errors.New("mstor: invalid path component")

	// ErrIncompatibleVersion is a Corruption-class error: the store was
	// formatted by a build that doesn't match this one's VersionMagic /
	// CurVersion stamp.
	ErrIncompatibleVersion = errors.New("mstor: incompatible store version")

	// ErrMalformedRecord is a Corruption-class error raised by the key and
	// payload codecs when a stored record's length or layout is invalid.
	ErrMalformedRecord = errors.New("mstor: malformed record")

	// ErrChunkConflict is raised by ChunkAlloc when the file already has a
	// chunk starting at or after the requested offset, an exact duplicate
	// start included.
	ErrChunkConflict = errors.New("mstor: offset already covered by an existing chunk")
)
