package mstor

// Result carries the op-specific output of Do. Exactly the fields
// relevant to req.Op are populated; this is the Go-struct analogue of
// the original's output-parameter style, where a request and its result
// travel together.
type Result struct {
	Stat     *StatInfo
	Entries  []DirEntry
	Chunks   []ChunkInfo
	CID      uint64
	Replicas []uint32
}

// Do dispatches req to the operation handler named by req.Op. It exists
// so that callers that already assemble Requests (e.g. a transport layer
// decoding a wire request into this shape) have a single entry point,
// without forcing every caller through it: the typed methods (Creat,
// Stat, Mkdirs, ...) remain the primary, directly-callable API.
func (s *Store) Do(req *Request) (*Result, error) {
	switch req.Op {
	case OpCreat:
		info, err := s.Creat(req.FullPath, req.Mode, req.Ctime, req.UserName)
		return &Result{Stat: info}, err
	case OpOpen:
		atime := uint64(0)
		if req.Atime != nil {
			atime = *req.Atime
		}
		info, err := s.Open(req.FullPath, atime, req.UserName)
		return &Result{Stat: info}, err
	case OpMkdirs:
		info, err := s.Mkdirs(req.FullPath, req.Mode, req.Ctime, req.UserName)
		return &Result{Stat: info}, err
	case OpListdir:
		entries, err := s.Listdir(req.FullPath, req.UserName)
		return &Result{Entries: entries}, err
	case OpStat:
		info, err := s.Stat(req.FullPath, req.UserName)
		return &Result{Stat: info}, err
	case OpChmod:
		info, err := s.Chmod(req.FullPath, req.Mode, req.UserName)
		return &Result{Stat: info}, err
	case OpChown:
		info, err := s.Chown(req.FullPath, req.NewUser, req.NewGroup, req.UserName)
		return &Result{Stat: info}, err
	case OpUtimes:
		info, err := s.Utimes(req.FullPath, req.Atime, req.Mtime, req.UserName)
		return &Result{Stat: info}, err
	case OpRmdir:
		err := s.Rmdir(req.FullPath, req.Recursive, req.UserName)
		return &Result{}, err
	case OpChunkFind:
		chunks, err := s.ChunkFind(req.NID, req.RangeStart, req.RangeEnd, req.UserName)
		return &Result{Chunks: chunks}, err
	case OpChunkAlloc:
		cid, replicas, err := s.ChunkAlloc(req.NID, req.ChunkOffset, req.UserName)
		return &Result{CID: cid, Replicas: replicas}, err
	default:
		return nil, ErrUnsupported
	}
}
