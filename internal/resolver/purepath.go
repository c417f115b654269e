package resolver

import "strings"

// purePath is a minimal POSIX-style pure path. Parsing drops empty and
// "." segments; ".." segments are kept and never collapsed. parent and
// join only manipulate segments, so "/" and "." are their own parents
// and joining never errors.
type purePath struct {
	rooted   bool
	segments []string
}

func newPurePath(p string) purePath {
	pp := purePath{rooted: strings.HasPrefix(p, "/")}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		pp.segments = append(pp.segments, seg)
	}
	return pp
}

// parent drops the last segment. At the root (or at "." for unrooted
// paths) it returns the path unchanged.
func (p purePath) parent() purePath {
	if len(p.segments) == 0 {
		return p
	}
	return purePath{rooted: p.rooted, segments: p.segments[:len(p.segments)-1]}
}

// join appends the segments of rel. A rooted rel replaces the whole
// path, matching pure-path join semantics.
func (p purePath) join(rel string) purePath {
	other := newPurePath(rel)
	if other.rooted {
		return other
	}
	joined := purePath{rooted: p.rooted}
	joined.segments = append(joined.segments, p.segments...)
	joined.segments = append(joined.segments, other.segments...)
	return joined
}

func (p purePath) String() string {
	if p.rooted {
		return "/" + strings.Join(p.segments, "/")
	}
	if len(p.segments) == 0 {
		return "."
	}
	return strings.Join(p.segments, "/")
}
