package assets

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// TestLoadStyle / TestLoadTemplate - Package-level embedded access
// ---------------------------------------------------------------------------

func TestLoadStyle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		styleName string
		wantErr   error
	}{
		{
			name:      "default style returns content",
			styleName: DefaultStyleName,
		},
		{
			name:      "sans style returns content",
			styleName: "sans",
		},
		{
			name:      "nonexistent style returns ErrStyleNotFound",
			styleName: "nonexistent",
			wantErr:   ErrStyleNotFound,
		},
		{
			name:      "empty name returns ErrInvalidAssetName",
			styleName: "",
			wantErr:   ErrInvalidAssetName,
		},
		{
			name:      "path traversal returns ErrInvalidAssetName",
			styleName: "../secret",
			wantErr:   ErrInvalidAssetName,
		},
		{
			name:      "uppercase returns ErrInvalidAssetName",
			styleName: "Kindle",
			wantErr:   ErrInvalidAssetName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			content, err := LoadStyle(tt.styleName)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadStyle(%q) error = %v, want %v", tt.styleName, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadStyle(%q) unexpected error: %v", tt.styleName, err)
			}
			if !strings.Contains(content, "img") {
				t.Errorf("LoadStyle(%q) should constrain images", tt.styleName)
			}
		})
	}
}

func TestLoadTemplate_Article(t *testing.T) {
	t.Parallel()

	content, err := LoadTemplate(ArticleTemplateName)
	if err != nil {
		t.Fatalf("LoadTemplate(article) error: %v", err)
	}

	for _, part := range []string{
		`<meta charset="UTF-8">`,
		"<title>{{.Title}}</title>",
		"<h1>{{.Title}}</h1>",
		"{{.Body}}",
		"{{.Stylesheet}}",
	} {
		if !strings.Contains(content, part) {
			t.Errorf("article template should contain %q", part)
		}
	}
}

func TestLoadTemplate_NotFound(t *testing.T) {
	t.Parallel()

	if _, err := LoadTemplate("cover"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("LoadTemplate(cover) error = %v, want ErrTemplateNotFound", err)
	}
}

func TestStyles(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff([]string{"kindle", "sans"}, Styles()); diff != "" {
		t.Errorf("Styles() mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// TestValidateAssetName - Name safety
// ---------------------------------------------------------------------------

func TestValidateAssetName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"kindle", false},
		{"my-style_2", false},
		{"", true},
		{"style.name", true},
		{"a/b", true},
		{`a\b`, true},
		{"..", true},
		{"Serif", true},
		{"café", true},
		{strings.Repeat("a", MaxAssetNameLength), false},
		{strings.Repeat("a", MaxAssetNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateAssetName(tt.name)
			if tt.wantErr && !errors.Is(err, ErrInvalidAssetName) {
				t.Errorf("ValidateAssetName(%q) = %v, want ErrInvalidAssetName", tt.name, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateAssetName(%q) unexpected error: %v", tt.name, err)
			}
		})
	}
}
