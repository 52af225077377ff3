package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// TestRewriteImageSources - Attribute-scoped substitution
// ---------------------------------------------------------------------------

func TestRewriteImageSources(t *testing.T) {
	t.Parallel()

	const remote = "https://x.example/a.png"
	sources := map[string]string{remote: "img_0123456789ab.png"}

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "double quoted",
			html: `<p><img src="https://x.example/a.png" alt="A"></p>`,
			want: `<p><img src="img_0123456789ab.png" alt="A"></p>`,
		},
		{
			name: "single quoted",
			html: `<img src='https://x.example/a.png'>`,
			want: `<img src="img_0123456789ab.png">`,
		},
		{
			name: "unquoted",
			html: `<img src=https://x.example/a.png>`,
			want: `<img src="img_0123456789ab.png">`,
		},
		{
			name: "whitespace around equals and value",
			html: `<img src = " https://x.example/a.png ">`,
			want: `<img src="img_0123456789ab.png">`,
		},
		{
			name: "self closing",
			html: `<img src="https://x.example/a.png"/>`,
			want: `<img src="img_0123456789ab.png"/>`,
		},
		{
			name: "every occurrence",
			html: `<img src="https://x.example/a.png"><img src="https://x.example/a.png">`,
			want: `<img src="img_0123456789ab.png"><img src="img_0123456789ab.png">`,
		},
		{
			name: "url in text untouched",
			html: `<p>see https://x.example/a.png or src="https://x.example/a.png"</p>`,
			want: `<p>see https://x.example/a.png or src="https://x.example/a.png"</p>`,
		},
		{
			name: "url in other attributes untouched",
			html: `<a href="https://x.example/a.png" data-src="https://x.example/a.png">link</a>`,
			want: `<a href="https://x.example/a.png" data-src="https://x.example/a.png">link</a>`,
		},
		{
			name: "longer url with same prefix untouched",
			html: `<img src="https://x.example/a.png?size=large">`,
			want: `<img src="https://x.example/a.png?size=large">`,
		},
		{
			name: "unmapped source untouched",
			html: `<IMG SRC="https://x.example/b.png" Class="Keep">`,
			want: `<IMG SRC="https://x.example/b.png" Class="Keep">`,
		},
		{
			name: "src on non-img elements untouched",
			html: `<iframe src="https://x.example/a.png"></iframe><video><source src="https://x.example/a.png"></video><script src="https://x.example/a.png"></script>`,
			want: `<iframe src="https://x.example/a.png"></iframe><video><source src="https://x.example/a.png"></video><script src="https://x.example/a.png"></script>`,
		},
		{
			name: "uppercase img rewritten",
			html: `<IMG SRC="https://x.example/a.png">`,
			want: `<img src="img_0123456789ab.png">`,
		},
		{
			name: "script content untouched",
			html: `<script>var s = '<img src="https://x.example/a.png">';</script>`,
			want: `<script>var s = '<img src="https://x.example/a.png">';</script>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := RewriteImageSources(tt.html, sources)
			if got != tt.want {
				t.Errorf("RewriteImageSources()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestRewriteImageSources_EmptyMapReturnsInput(t *testing.T) {
	t.Parallel()

	in := `<p>unchanged <img src="x.png"></p>`
	if got := RewriteImageSources(in, nil); got != in {
		t.Errorf("RewriteImageSources() = %q, want input unchanged", got)
	}
}

func TestRewriteImageSources_PreservesUnrelatedBytes(t *testing.T) {
	t.Parallel()

	in := "<!DOCTYPE html>\r\n<DIV  Class = 'a'>caf&eacute; &amp; <b>bold</b>\n<img src=\"https://x.example/a.png\"><!-- c --></DIV>"
	got := RewriteImageSources(in, map[string]string{"https://x.example/a.png": "img_aaaaaaaaaaaa.png"})

	want := strings.Replace(in, `<img src="https://x.example/a.png">`, `<img src="img_aaaaaaaaaaaa.png">`, 1)
	if got != want {
		t.Errorf("RewriteImageSources()\n got: %q\nwant: %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// TestSourceMap - Raw and resolved sources
// ---------------------------------------------------------------------------

func TestSourceMap(t *testing.T) {
	t.Parallel()

	refs := []ImageReference{
		{URL: "https://site.example/a.png", Sources: []string{"/a.png", "https://site.example/a.png"}},
		{URL: "https://site.example/b.png", Sources: []string{"b.png"}},
	}
	fetched := map[string]string{"https://site.example/a.png": "img_aaaaaaaaaaaa.png"}

	want := map[string]string{
		"https://site.example/a.png": "img_aaaaaaaaaaaa.png",
		"/a.png":                     "img_aaaaaaaaaaaa.png",
	}
	if diff := cmp.Diff(want, SourceMap(refs, fetched)); diff != "" {
		t.Errorf("SourceMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractRewrite_RelativeSourcesAreRewritten(t *testing.T) {
	t.Parallel()

	in := `<p><img src="/a.png"><img src="/missing.png"><img src="data:image/png;base64,AA"></p>`
	refs := ExtractImages(in, "https://site.example/article")
	fetched := map[string]string{"https://site.example/a.png": "img_aaaaaaaaaaaa.png"}

	got := RewriteImageSources(in, SourceMap(refs, fetched))
	want := `<p><img src="img_aaaaaaaaaaaa.png"><img src="/missing.png"><img src="data:image/png;base64,AA"></p>`
	if got != want {
		t.Errorf("rewrite\n got: %s\nwant: %s", got, want)
	}
}
