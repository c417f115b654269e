// Package resolver turns raw markup references into absolute links.
//
// References arrive in every shape markup allows: absolute URLs,
// protocol-relative, root-relative, dotted-relative, page-relative,
// fragments, and pseudo-schemes like tel:. A fixed precedence of rules
// decides how each one resolves; references no rule can place are kept
// verbatim as bad links so reports retain their provenance.
package resolver

import (
	"net/url"
	"strings"

	"github.com/sriharshay/web-resource-processor/internal/scope"
)

// Base describes the resource a reference was extracted from.
type Base struct {
	// URL is the resource's own location, as fetched.
	URL string
	// Root is the scheme://host prefix of URL.
	Root string
	// AllowExternal mirrors the crawl policy's external-link flag.
	AllowExternal bool
}

// Result is the outcome of resolving one raw reference. For a non-empty
// input exactly one of Link and BadLink is set; an empty input yields
// the zero value, which callers drop without recording.
type Result struct {
	// Link is the resolved reference. Rules that keep the input verbatim
	// (fragments, tel:, external absolutes) still count as resolved.
	Link string
	// BadLink mirrors the raw input when no rule applied.
	BadLink string
	// Relation is the origin comparison for whichever value survived,
	// computed after resolution. Candidates that are not valid absolute
	// URLs compare as RelationUnknown.
	Relation scope.Relation
}

// Resolved reports whether a resolution rule produced a link.
func (r Result) Resolved() bool { return r.Link != "" }

// Candidate returns whichever of Link and BadLink is set.
func (r Result) Candidate() string {
	if r.Link != "" {
		return r.Link
	}
	return r.BadLink
}

// Resolve applies the resolution rules to one raw reference found on
// base. Rules are evaluated in order; the first match wins:
//
//  1. empty reference: zero Result
//  2. absolute same-origin reference: kept as-is
//  3. protocol-relative, external processing on: prefixed with https:
//  4. root-relative: base root + reference
//  5. leading ../ groups: parent-stripped against the base path
//  6. fragment, tel:, javascript:void: kept verbatim
//  7. page-relative (has a separator, no scheme): base URL + reference,
//     joined verbatim
//  8. external processing on: kept verbatim
//  9. otherwise: unresolved, raw input kept as BadLink
func Resolve(base Base, reference string) Result {
	if reference == "" {
		return Result{}
	}

	link, bad := applyRules(base, reference)

	res := Result{Link: link, BadLink: bad}
	res.Relation = scope.RelationOf(res.Candidate(), base.Root)
	return res
}

func applyRules(base Base, ref string) (link, bad string) {
	switch {
	case base.Root != "" && scope.URLRoot(ref) == base.Root:
		return ref, ""
	case base.AllowExternal && strings.HasPrefix(ref, "//") && len(ref) > 2:
		return "https:" + ref, ""
	case strings.HasPrefix(ref, "/") && len(ref) > 1 && ref[1] != '/':
		return base.Root + ref, ""
	case strings.HasPrefix(ref, "../"):
		return dottedPath(base, ref), ""
	case strings.HasPrefix(ref, "#"), strings.HasPrefix(ref, "tel:"), strings.HasPrefix(ref, "javascript:void"):
		return ref, ""
	case !strings.HasPrefix(ref, "/") && strings.Contains(ref, "/") && !strings.Contains(ref, "://"):
		return base.URL + ref, ""
	case base.AllowExternal:
		return ref, ""
	default:
		return "", ref
	}
}

// dottedPath resolves a reference with one or more leading "../" groups.
// Each group strips one trailing segment from the base resource's path;
// stripping past the root is a no-op. The leading group string is then
// deleted from the reference wherever it occurs (a long-standing quirk
// this resolver preserves) and the remainder joined on, unnormalized,
// under the base root.
func dottedPath(base Base, ref string) string {
	groups := 0
	for rest := ref; strings.HasPrefix(rest, "../"); rest = rest[3:] {
		groups++
	}
	leading := strings.Repeat("../", groups)
	relative := strings.ReplaceAll(ref, leading, "")

	prefix := newPurePath(escapedPath(base.URL))
	for i := 0; i < groups; i++ {
		prefix = prefix.parent()
	}
	return base.Root + prefix.join(relative).String()
}

// escapedPath returns the raw path component of rawURL, "" when it does
// not parse.
func escapedPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.EscapedPath()
}
