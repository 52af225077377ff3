// Package pipeline implements the HTML stages of the article pipeline.
//
// This package handles the markup side of turning a web article into an
// offline document:
//   - Tag walking decoupled from the parser (TagVisitor)
//   - Image reference extraction and URL resolution
//   - Image source rewriting to local workspace files
//   - Relative images of local articles resolved to file:// URLs
//   - Markdown to HTML conversion via Goldmark, for local input files
//
// Fetching images and running the EPUB converter are handled elsewhere
// (internal/fetch and the root kindlebeam package). Apart from the existence
// check callers pass to LocalImageSources, this package performs no I/O and
// never fails on malformed HTML.
package pipeline
