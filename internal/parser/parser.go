// Package parser extracts resource references from HTML documents.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/sriharshay/web-resource-processor/internal/logger"
)

// refAttrs maps each recognized tag to the attribute carrying its reference.
var refAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"source": "srcset",
}

var tagNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Reference is one tag occurrence with its extracted reference value.
type Reference struct {
	Tag      string // Tag name
	Value    string // Raw attribute value, may be empty
	OuterTag string // Serialized originating tag, used as provenance
}

// Parser scans documents for references inside an allowed set of tags.
type Parser struct {
	tags     []string
	selector string
	log      *logger.Logger
}

// New creates a parser restricted to the given tags. Tag names are
// normalized to lower case; names that cannot form a selector are rejected.
func New(tags []string, log *logger.Logger) (*Parser, error) {
	if log == nil {
		log = logger.Global()
	}

	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.ToLower(strings.TrimSpace(tag))
		if !tagNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid tag name %q", tag)
		}
		normalized = append(normalized, name)
	}

	return &Parser{
		tags:     normalized,
		selector: strings.Join(normalized, ", "),
		log:      log,
	}, nil
}

// Tags returns the normalized tag set.
func (p *Parser) Tags() []string {
	out := make([]string, len(p.tags))
	copy(out, p.tags)
	return out
}

// Extract returns every allowed-tag occurrence in body, in document order.
// The body is decoded according to contentType before parsing; occurrences
// whose tag has no mapped attribute, or whose attribute is absent, carry an
// empty Value.
func (p *Parser) Extract(body []byte, contentType string) ([]Reference, error) {
	if len(p.tags) == 0 {
		return nil, nil
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, err
	}

	var refs []Reference
	doc.Find(p.selector).Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			outer = ""
		}

		attr, ok := refAttrs[name]
		if !ok {
			p.log.Debugf("tag %s has no reference attribute", name)
			refs = append(refs, Reference{Tag: name, OuterTag: outer})
			return
		}

		value, _ := s.Attr(attr)
		refs = append(refs, Reference{Tag: name, Value: value, OuterTag: outer})
	})

	return refs, nil
}
