// Package inspect turns URLs into inspected web resources: fetched,
// classified, and, for pages, scanned for references to further resources.
package inspect

import (
	"context"
	"strings"
	"time"

	"github.com/sriharshay/web-resource-processor/internal/classify"
	"github.com/sriharshay/web-resource-processor/internal/errors"
	"github.com/sriharshay/web-resource-processor/internal/fetch"
	"github.com/sriharshay/web-resource-processor/internal/logger"
	"github.com/sriharshay/web-resource-processor/internal/parser"
	"github.com/sriharshay/web-resource-processor/internal/resolver"
	"github.com/sriharshay/web-resource-processor/internal/scope"
)

// Policy carries the per-crawl settings that shape inspection.
type Policy struct {
	AllowedHeaders []string // Response headers to capture, caller's spelling kept
	AllowExternal  bool     // Process references to foreign origins
}

// ChildRef is one reference extracted from a page.
type ChildRef struct {
	Link       string // Resolved candidate, or the raw reference when unresolved
	Tag        string // Serialized originating tag
	IsExternal bool   // Confirmed foreign origin
}

// Resource is the inspected state of one URL.
type Resource struct {
	URL              string
	URLRoot          string
	Domain           string
	Type             classify.Type
	StatusCode       int
	FilteredHeaders  map[string]string
	Children         []ChildRef // Resolved references, in extraction order
	ChildrenInvalid  []ChildRef // Unresolved references, in extraction order
	ExternalsDropped int        // References discarded as off-origin
	Err              *errors.ResourceError
	Bytes            int64
	Duration         time.Duration
}

// Inspector fetches and analyzes resources under one policy.
type Inspector struct {
	client *fetch.Client
	parser *parser.Parser
	policy Policy
	log    *logger.Logger
}

// New creates an inspector.
func New(client *fetch.Client, p *parser.Parser, policy Policy, log *logger.Logger) *Inspector {
	if log == nil {
		log = logger.Global()
	}
	return &Inspector{
		client: client,
		parser: p,
		policy: policy,
		log:    log.WithComponent("inspect"),
	}
}

// Inspect fetches rawURL and captures its status, filtered headers, and
// classification. When fetchReferences is set and the resource is a page,
// its references are extracted, resolved, and partitioned. Failures are
// absorbed into the resource's Err; Inspect never returns an error.
func (in *Inspector) Inspect(ctx context.Context, rawURL string, fetchReferences bool) *Resource {
	url := strings.TrimSpace(rawURL)

	res := &Resource{
		URL:  url,
		Type: classify.Find(url),
	}

	if !scope.IsValidURL(url) {
		res.Err = errors.NewMalformedURL(url)
		in.log.WithURL(url).Debug(res.Err.Error())
		return res
	}

	res.URLRoot = scope.URLRoot(url)
	res.Domain = scope.Domain(url)

	// The body is only needed when the resource may yield references.
	parseable := res.Type == classify.Page || res.Type == classify.Generic
	readBody := fetchReferences && parseable

	resp, err := in.client.GetWithRetry(ctx, url, readBody)
	res.StatusCode = resp.StatusCode
	res.Duration = resp.Duration
	res.Bytes = int64(len(resp.Body))
	if err != nil {
		res.Err = errors.Categorize(err, url)
		in.log.ErrorEvent(res.Err, url, "fetch")
		return res
	}

	res.FilteredHeaders = FilterHeaders(resp, in.policy.AllowedHeaders)

	if !fetchReferences {
		return res
	}
	if !parseable {
		in.log.WithURL(url).Debugf("not a page, skipping reference extraction (type %s)", res.Type)
		return res
	}

	refs, perr := in.parser.Extract(resp.Body, resp.ContentType)
	if perr != nil {
		res.Err = errors.NewParse(url, perr)
		in.log.ErrorEvent(res.Err, url, "parse")
		return res
	}

	in.partition(res, refs)
	return res
}

// partition resolves every extracted reference and splits the outcomes
// into the valid and invalid child sets, dropping confirmed-external
// references when the policy excludes them.
func (in *Inspector) partition(res *Resource, refs []parser.Reference) {
	base := resolver.Base{
		URL:           res.URL,
		Root:          res.URLRoot,
		AllowExternal: in.policy.AllowExternal,
	}
	checker := scope.NewChecker(res.URLRoot, in.policy.AllowExternal)

	for _, ref := range refs {
		if ref.Value == "" {
			continue
		}

		result := resolver.Resolve(base, ref.Value)
		if checker.Excludes(result.Relation) {
			res.ExternalsDropped++
			continue
		}

		child := ChildRef{
			Tag:        ref.OuterTag,
			IsExternal: result.Relation == scope.RelationExternal,
		}

		if result.Resolved() {
			child.Link = result.Link
			res.Children = append(res.Children, child)
		} else {
			child.Link = result.BadLink
			res.ChildrenInvalid = append(res.ChildrenInvalid, child)
			in.log.BadLinkEvent(res.URL, result.BadLink)
		}
	}
}

// FilterHeaders intersects the response headers with the allowed names.
// Lookup is case-insensitive and the caller's spelling is kept as the key;
// absent or empty headers are omitted.
func FilterHeaders(resp *fetch.Response, allowed []string) map[string]string {
	if resp == nil || len(allowed) == 0 {
		return nil
	}

	filtered := make(map[string]string, len(allowed))
	for _, name := range allowed {
		if value := resp.Header(name); value != "" {
			filtered[name] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
