// Package scope provides URL validity and origin rules for a crawl.
package scope

import (
	"net/url"
	"strings"
)

// Relation describes how a candidate reference relates to the crawl origin.
type Relation int

const (
	// RelationUnknown means the candidate is not itself a syntactically
	// valid absolute URL, so no origin comparison is possible. Fragments,
	// tel: links, and unresolved relative paths land here.
	RelationUnknown Relation = iota
	// RelationSame means the candidate shares the base URL root.
	RelationSame
	// RelationExternal means the candidate has a different URL root.
	RelationExternal
)

// String returns a short label for the relation.
func (r Relation) String() string {
	switch r {
	case RelationSame:
		return "same-origin"
	case RelationExternal:
		return "external"
	default:
		return "unknown"
	}
}

// IsValidURL reports whether raw is a well-formed absolute http(s) URL,
// the precondition for fetching it.
func IsValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// URLRoot returns the scheme://host prefix of raw, or "" when raw has no
// host component. The scheme may be empty (protocol-relative candidates
// parse with a host but no scheme), yielding a root like "://host" that
// never equals the root of a fetched resource.
func URLRoot(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Domain returns the host of raw with a leading "www." stripped, or ""
// when raw has no parsable host. The port, when present, is kept.
func Domain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

// RelationOf compares a candidate reference against a base URL root.
// Candidates that are not valid absolute URLs (missing scheme or host)
// have no origin of their own and compare as RelationUnknown.
func RelationOf(candidate, baseRoot string) Relation {
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return RelationUnknown
	}
	if parsed.Scheme+"://"+parsed.Host == baseRoot {
		return RelationSame
	}
	return RelationExternal
}

// Checker applies a single crawl's external-link policy to candidate
// references. It is immutable and safe for concurrent use.
type Checker struct {
	baseRoot      string
	allowExternal bool
}

// NewChecker builds a checker for references found on a resource rooted
// at baseRoot.
func NewChecker(baseRoot string, allowExternal bool) *Checker {
	return &Checker{baseRoot: baseRoot, allowExternal: allowExternal}
}

// Relation classifies candidate against the base root.
func (c *Checker) Relation(candidate string) Relation {
	return RelationOf(candidate, c.baseRoot)
}

// Excludes reports whether a reference with the given relation must be
// dropped from the crawl entirely: a confirmed external origin while
// external processing is off. Undetermined relations are never excluded.
func (c *Checker) Excludes(rel Relation) bool {
	return !c.allowExternal && rel == RelationExternal
}

// ExcludesURL is Excludes applied to a raw candidate.
func (c *Checker) ExcludesURL(candidate string) bool {
	return c.Excludes(c.Relation(candidate))
}

// AllowExternal reports whether external-link processing is enabled.
func (c *Checker) AllowExternal() bool { return c.allowExternal }

// BaseRoot returns the URL root the checker compares against.
func (c *Checker) BaseRoot() string { return c.baseRoot }
