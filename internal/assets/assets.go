package assets

// Built-in asset names.
const (
	// DefaultStyleName is the style applied when none is configured.
	DefaultStyleName = "kindle"

	// StyleNone disables the stylesheet entirely.
	StyleNone = "none"

	// ArticleTemplateName is the HTML shell wrapped around article bodies.
	ArticleTemplateName = "article"
)

// defaultLoader is the package-level embedded loader.
var defaultLoader = NewEmbeddedLoader()

// LoadStyle loads a built-in CSS style by name (without .css extension).
func LoadStyle(name string) (string, error) {
	return defaultLoader.LoadStyle(name)
}

// LoadTemplate loads a built-in HTML template by name (without .html extension).
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}

// Styles lists the built-in style names, sorted.
func Styles() []string {
	return defaultLoader.Styles()
}
