package pipeline

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr is a single element attribute with its value already unescaped.
type Attr struct {
	Key string
	Val string
}

// Tag is an opened element as seen by a TagVisitor.
// Name and attribute keys are lowercase.
type Tag struct {
	Name  string
	Attrs []Attr
}

// Attr returns the value of the first attribute named key.
func (t Tag) Attr(key string) (string, bool) {
	for _, a := range t.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TagVisitor is invoked once per opened element, including self-closing ones.
// Implementations see only the Tag and never the underlying parser.
type TagVisitor interface {
	VisitTag(tag Tag)
}

// TagVisitorFunc adapts a plain function to TagVisitor.
type TagVisitorFunc func(tag Tag)

// VisitTag calls f(tag).
func (f TagVisitorFunc) VisitTag(tag Tag) { f(tag) }

// WalkTags streams the start tags of htmlContent to v.
// Malformed markup never fails the walk: the tokenizer recovers where it can
// and the walk ends quietly at the first unrecoverable error.
func WalkTags(htmlContent string, v TagVisitor) {
	z := html.NewTokenizer(strings.NewReader(htmlContent))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			v.VisitTag(tagFromToken(z.Token()))
		}
	}
}

// tagFromToken converts a tokenizer token to the parser-independent Tag.
func tagFromToken(tok html.Token) Tag {
	tag := Tag{Name: tok.Data}
	if len(tok.Attr) > 0 {
		tag.Attrs = make([]Attr, len(tok.Attr))
		for i, a := range tok.Attr {
			tag.Attrs[i] = Attr{Key: a.Key, Val: a.Val}
		}
	}
	return tag
}
