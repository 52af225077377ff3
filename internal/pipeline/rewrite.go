package pipeline

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SourceMap builds the src-value to local-filename table used by
// RewriteImageSources. fetched maps resolved URLs to local names; every raw
// source that resolved to a fetched URL maps to the same file, so relative
// references are rewritten along with absolute ones.
func SourceMap(refs []ImageReference, fetched map[string]string) map[string]string {
	sources := make(map[string]string, len(fetched))
	for _, ref := range refs {
		local, ok := fetched[ref.URL]
		if !ok {
			continue
		}
		sources[ref.URL] = local
		for _, src := range ref.Sources {
			sources[src] = local
		}
	}
	return sources
}

// RewriteImageSources replaces img src attributes whose value (ignoring
// surrounding whitespace) is a key of sources with the mapped local filename.
//
// Only the rewritten tags are re-serialized. Every other byte, including
// text that merely looks like a URL, is copied verbatim from the input.
// Sources absent from the map are left untouched.
func RewriteImageSources(htmlContent string, sources map[string]string) string {
	if len(sources) == 0 {
		return htmlContent
	}

	var b strings.Builder
	b.Grow(len(htmlContent))

	z := html.NewTokenizer(strings.NewReader(htmlContent))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			b.Write(z.Raw())
			return b.String()
		}

		// Token() lowercases the tokenizer buffer in place; keep the
		// original bytes first.
		raw := string(z.Raw())

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			b.WriteString(raw)
			continue
		}

		tok := z.Token()
		if rewriteSrc(&tok, sources) {
			b.WriteString(tok.String())
		} else {
			b.WriteString(raw)
		}
	}
}

// rewriteSrc updates the src attribute of an img tok in place. Other
// elements (source, iframe, script) keep their src.
// Reports whether anything changed.
func rewriteSrc(tok *html.Token, sources map[string]string) bool {
	if tok.DataAtom != atom.Img {
		return false
	}
	changed := false
	for i, attr := range tok.Attr {
		if attr.Namespace != "" || attr.Key != "src" {
			continue
		}
		local, ok := sources[strings.TrimSpace(attr.Val)]
		if !ok {
			continue
		}
		tok.Attr[i].Val = local
		changed = true
	}
	return changed
}
