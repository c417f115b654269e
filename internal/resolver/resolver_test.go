package resolver

import (
	"testing"

	"github.com/sriharshay/web-resource-processor/internal/scope"
)

func testBase(allowExternal bool) Base {
	return Base{
		URL:           "https://example.com/a/b.html",
		Root:          "https://example.com",
		AllowExternal: allowExternal,
	}
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name         string
		base         Base
		reference    string
		wantLink     string
		wantBad      string
		wantRelation scope.Relation
	}{
		{
			name:         "empty reference yields zero result",
			base:         testBase(false),
			reference:    "",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "absolute same-origin kept as-is",
			base:         testBase(false),
			reference:    "https://example.com/x.png",
			wantLink:     "https://example.com/x.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "absolute external unresolved when disabled",
			base:         testBase(false),
			reference:    "https://other.com/x.png",
			wantBad:      "https://other.com/x.png",
			wantRelation: scope.RelationExternal,
		},
		{
			name:         "absolute external verbatim when enabled",
			base:         testBase(true),
			reference:    "https://other.com/x.png",
			wantLink:     "https://other.com/x.png",
			wantRelation: scope.RelationExternal,
		},
		{
			name:         "scheme change is not same-origin",
			base:         testBase(false),
			reference:    "http://example.com/x.png",
			wantBad:      "http://example.com/x.png",
			wantRelation: scope.RelationExternal,
		},
		{
			name:         "protocol-relative prefixed when enabled",
			base:         testBase(true),
			reference:    "//other.com/x",
			wantLink:     "https://other.com/x",
			wantRelation: scope.RelationExternal,
		},
		{
			name:         "protocol-relative falls through when disabled",
			base:         testBase(false),
			reference:    "//other.com/x",
			wantBad:      "//other.com/x",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "root-relative joined to root",
			base:         testBase(false),
			reference:    "/c.png",
			wantLink:     "https://example.com/c.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "bare slash is not root-relative",
			base:         testBase(false),
			reference:    "/",
			wantBad:      "/",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "single parent strip",
			base:         testBase(false),
			reference:    "../c.png",
			wantLink:     "https://example.com/a/c.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "double parent strip",
			base:         testBase(false),
			reference:    "../../c.png",
			wantLink:     "https://example.com/c.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "strip past root is a no-op",
			base:         testBase(false),
			reference:    "../../../c.png",
			wantLink:     "https://example.com/c.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "bare parent group resolves to parent",
			base:         testBase(false),
			reference:    "../",
			wantLink:     "https://example.com/a",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "leading group deleted everywhere in reference",
			base:         testBase(false),
			reference:    "../a/../b",
			wantLink:     "https://example.com/a/a/b",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "fragment kept verbatim",
			base:         testBase(false),
			reference:    "#top",
			wantLink:     "#top",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "tel kept verbatim",
			base:         testBase(false),
			reference:    "tel:+15551234",
			wantLink:     "tel:+15551234",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "javascript void kept verbatim",
			base:         testBase(false),
			reference:    "javascript:void(0)",
			wantLink:     "javascript:void(0)",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "page-relative concatenated verbatim",
			base:         testBase(false),
			reference:    "img/x.png",
			wantLink:     "https://example.com/a/b.htmlimg/x.png",
			wantRelation: scope.RelationSame,
		},
		{
			name:         "bare name unresolved when external disabled",
			base:         testBase(false),
			reference:    "x.png",
			wantBad:      "x.png",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "bare name verbatim when external enabled",
			base:         testBase(true),
			reference:    "x.png",
			wantLink:     "x.png",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "mailto unresolved when external disabled",
			base:         testBase(false),
			reference:    "mailto:a@example.com",
			wantBad:      "mailto:a@example.com",
			wantRelation: scope.RelationUnknown,
		},
		{
			name:         "garbage unresolved",
			base:         testBase(false),
			reference:    "://bad",
			wantBad:      "://bad",
			wantRelation: scope.RelationUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.base, tt.reference)
			if got.Link != tt.wantLink {
				t.Errorf("Resolve(%q).Link = %q, want %q", tt.reference, got.Link, tt.wantLink)
			}
			if got.BadLink != tt.wantBad {
				t.Errorf("Resolve(%q).BadLink = %q, want %q", tt.reference, got.BadLink, tt.wantBad)
			}
			if got.Relation != tt.wantRelation {
				t.Errorf("Resolve(%q).Relation = %v, want %v", tt.reference, got.Relation, tt.wantRelation)
			}
		})
	}
}

func TestResolveIdempotence(t *testing.T) {
	base := testBase(false)
	ref := "https://example.com/a/b.html"

	first := Resolve(base, ref)
	if first.Link != ref {
		t.Fatalf("Resolve(%q).Link = %q, want unchanged", ref, first.Link)
	}
	second := Resolve(base, first.Link)
	if second.Link != first.Link {
		t.Errorf("second Resolve changed the link: %q -> %q", first.Link, second.Link)
	}
}

func TestResolveDottedWithEmptyBasePath(t *testing.T) {
	base := Base{URL: "https://example.com", Root: "https://example.com"}

	// With no path to strip, the parent walk stays at "." and the join
	// degenerates to a bare concatenation under the root.
	got := Resolve(base, "../c.png")
	if got.Link != "https://example.comc.png" {
		t.Errorf("Resolve(../c.png) = %q, want %q", got.Link, "https://example.comc.png")
	}
}

func TestResultCandidate(t *testing.T) {
	resolved := Result{Link: "https://example.com/x"}
	if !resolved.Resolved() || resolved.Candidate() != "https://example.com/x" {
		t.Errorf("resolved Result: Resolved() = %v, Candidate() = %q", resolved.Resolved(), resolved.Candidate())
	}

	unresolved := Result{BadLink: "://bad"}
	if unresolved.Resolved() || unresolved.Candidate() != "://bad" {
		t.Errorf("unresolved Result: Resolved() = %v, Candidate() = %q", unresolved.Resolved(), unresolved.Candidate())
	}
}

func TestPurePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		parents int
		join    string
		want    string
	}{
		{"strip filename", "/a/b.html", 1, "c.png", "/a/c.png"},
		{"strip to root", "/a/b.html", 2, "c.png", "/c.png"},
		{"root is fixed point", "/a/b.html", 5, "c.png", "/c.png"},
		{"empty path behaves like dot", "", 1, "c.png", "c.png"},
		{"join empty keeps path", "/a/b.html", 1, "", "/a"},
		{"rooted operand replaces", "/a/b.html", 0, "/x/y", "/x/y"},
		{"dot segments dropped on parse", "/a/./b", 0, "", "/a/b"},
		{"dotdot segments kept on join", "/a", 0, "x/../y", "/a/x/../y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPurePath(tt.path)
			for i := 0; i < tt.parents; i++ {
				p = p.parent()
			}
			if got := p.join(tt.join).String(); got != tt.want {
				t.Errorf("path %q after %d parents join %q = %q, want %q",
					tt.path, tt.parents, tt.join, got, tt.want)
			}
		})
	}
}
