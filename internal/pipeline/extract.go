package pipeline

import (
	"net/url"
	"slices"
	"strings"
)

// ImageReference is an image to fetch: its absolute URL plus every raw src
// value in the article that resolved to it.
type ImageReference struct {
	URL     string
	Sources []string
}

// ImageCollector is a TagVisitor gathering fetchable image URLs from img tags.
// References are deduplicated by resolved URL and kept in first-seen order.
type ImageCollector struct {
	base  *url.URL
	refs  []ImageReference
	index map[string]int
}

// Compile-time interface check.
var _ TagVisitor = (*ImageCollector)(nil)

// NewImageCollector creates a collector resolving relative sources against
// baseURL. An empty or non-absolute baseURL disables resolution, so only
// sources that are already absolute are kept.
func NewImageCollector(baseURL string) *ImageCollector {
	c := &ImageCollector{index: make(map[string]int)}
	if baseURL == "" {
		return c
	}
	if u, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && u.IsAbs() && u.Host != "" {
		c.base = u
	}
	return c
}

// VisitTag records the src of img elements.
func (c *ImageCollector) VisitTag(tag Tag) {
	if tag.Name != "img" {
		return
	}
	src, ok := tag.Attr("src")
	if !ok {
		return
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return
	}

	resolved, ok := c.resolve(src)
	if !ok {
		return
	}

	if i, seen := c.index[resolved]; seen {
		if !slices.Contains(c.refs[i].Sources, src) {
			c.refs[i].Sources = append(c.refs[i].Sources, src)
		}
		return
	}
	c.index[resolved] = len(c.refs)
	c.refs = append(c.refs, ImageReference{URL: resolved, Sources: []string{src}})
}

// References returns the collected references in first-seen order.
func (c *ImageCollector) References() []ImageReference {
	return c.refs
}

// URLs returns the resolved URLs in first-seen order.
func (c *ImageCollector) URLs() []string {
	urls := make([]string, len(c.refs))
	for i, r := range c.refs {
		urls[i] = r.URL
	}
	return urls
}

// resolve turns src into an absolute http(s) URL.
// Inline data and non-fetchable schemes are rejected.
func (c *ImageCollector) resolve(src string) (string, bool) {
	if isDataURI(src) {
		return "", false
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" && c.base != nil {
		u = c.base.ResolveReference(u)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// isDataURI reports whether src carries inline data instead of a location.
func isDataURI(src string) bool {
	return len(src) >= 5 && strings.EqualFold(src[:5], "data:")
}

// ExtractImages scans htmlContent for img sources and resolves them against
// baseURL. It never fails on malformed markup.
func ExtractImages(htmlContent, baseURL string) []ImageReference {
	c := NewImageCollector(baseURL)
	WalkTags(htmlContent, c)
	return c.References()
}
