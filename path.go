package mstor

import (
	"os"
	"strings"
)

// PathSeparator joins path components into the human-readable form. It is
// fixed regardless of host platform, so on-disk paths stay portable.
const PathSeparator = "/"

// Path is a canonicalized, slash-free sequence of path components. Root is
// the path with zero components.
type Path []string

// Root is the path with zero components: len(Root) == 0.
var Root = Path{}

// Canonicalize turns a raw slash-separated path into a Path: it collapses
// repeated slashes, resolves "." and ".." components, and rejects paths
// that are too long overall or that have an over-long component. This
// mirrors the component-splitting loop mstor_do_path_operation runs before
// walking the tree.
func Canonicalize(full string) (Path, error) {
	if len(full) >= PathMax {
		return nil, ErrNameTooLong
	}
	if full == "" || full[0] != '/' {
		return nil, ErrInvalidPath
	}

	var out []string
	for _, c := range strings.Split(full, "/") {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			if len(c) >= ComponentMax {
				return nil, ErrNameTooLong
			}
			out = append(out, c)
		}
	}
	return Path(out), nil
}

// Validate rejects a Path carrying a component with an embedded separator
// or an out-of-range length. Canonicalize already guarantees this for any
// path it produces; Validate exists for paths assembled by hand.
func (p Path) Validate() error {
	for _, c := range p {
		if strings.Contains(c, PathSeparator) {
			return ErrInvalidPath
		}
		if len(c) == 0 || len(c) >= ComponentMax {
			return ErrNameTooLong
		}
	}
	return nil
}

// Parent returns the path to p's containing directory. The root's parent
// is the root.
func (p Path) Parent() Path {
	if len(p) < 1 {
		return Root
	}
	return p[:len(p)-1]
}

// Base returns the final component of p, or the separator for the root.
func (p Path) Base() string {
	if len(p) < 1 {
		return PathSeparator
	}
	return p[len(p)-1]
}

// String renders p the familiar forward-slash way.
func (p Path) String() string {
	return PathSeparator + strings.Join(p, PathSeparator)
}

// Err wraps err in an *os.PathError carrying op and p's string form, so
// callers get a path-qualified error from every operation.
func (p Path) Err(op string, err error) *os.PathError {
	return &os.PathError{Op: op, Err: err, Path: p.String()}
}
