// Package classify maps resource URLs to coarse resource types.
package classify

import "strings"

// Type is the coarse kind of a web resource, derived from its URL.
type Type int

const (
	// Generic is any resource whose URL matches no known extension.
	Generic Type = iota
	// Page is an HTML document (.html, .htm).
	Page
	// Image is a raster or vector image (.png, .jpg, .jpeg, .gif, .svg, .ico).
	Image
	// Script is a JavaScript file (.js).
	Script
	// Stylesheet is a CSS file (.css).
	Stylesheet
)

// String returns the report vocabulary for the type. Script prints as
// "JavaScript", the label the CSV format has always used.
func (t Type) String() string {
	switch t {
	case Page:
		return "Page"
	case Image:
		return "Image"
	case Script:
		return "JavaScript"
	case Stylesheet:
		return "Stylesheet"
	default:
		return "Generic"
	}
}

// Extension token groups, checked in declaration order. The first group
// containing a matching token decides the type.
var tokenGroups = []struct {
	typ    Type
	tokens []string
}{
	{Page, []string{".html", ".htm"}},
	{Image, []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico"}},
	{Script, []string{".js"}},
	{Stylesheet, []string{".css"}},
}

// Find classifies a URL by extension token. Tokens match anywhere in the
// URL (not only as a suffix) as long as at least one character precedes
// them, and matching is case-sensitive. A URL containing tokens from
// several groups gets the first-listed group, so "/image.html?src=a.png"
// is a Page. Every input maps to exactly one type; unmatched input is
// Generic.
func Find(url string) Type {
	for _, group := range tokenGroups {
		for _, tok := range group.tokens {
			if strings.Index(url, tok) > 0 {
				return group.typ
			}
		}
	}
	return Generic
}
