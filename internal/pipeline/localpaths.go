package pipeline

import (
	"net/url"
	"path/filepath"
	"strings"
)

// LocalImageSources maps relative img sources in htmlContent to file://
// URLs of existing files under dir. The result feeds RewriteImageSources.
//
// Skipped sources:
//   - URLs with a scheme, protocol-relative URLs and fragments
//   - absolute paths
//   - paths escaping dir
//   - files for which exists reports false
func LocalImageSources(htmlContent, dir string, exists func(path string) bool) map[string]string {
	if dir == "" {
		return nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil
	}

	sources := make(map[string]string)
	WalkTags(htmlContent, TagVisitorFunc(func(tag Tag) {
		if tag.Name != "img" {
			return
		}
		src, ok := tag.Attr("src")
		if !ok {
			return
		}
		src = strings.TrimSpace(src)
		if _, done := sources[src]; done || !isLocalRelative(src) {
			return
		}

		rel := src
		if unescaped, err := url.PathUnescape(src); err == nil {
			rel = unescaped
		}
		p := filepath.Join(absDir, filepath.FromSlash(rel))
		if !isPathUnderDir(p, absDir) || !exists(p) {
			return
		}
		sources[src] = fileURL(p)
	}))
	return sources
}

// isLocalRelative reports whether src is a relative filesystem path.
func isLocalRelative(src string) bool {
	if src == "" || strings.HasPrefix(src, "#") || strings.HasPrefix(src, "//") || strings.HasPrefix(src, "/") {
		return false
	}
	if filepath.IsAbs(src) {
		return false
	}
	if u, err := url.Parse(src); err != nil || u.Scheme != "" {
		return false
	}
	return true
}

// isPathUnderDir checks that absPath stays inside dir.
func isPathUnderDir(absPath, dir string) bool {
	cleanDir := filepath.Clean(dir)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(filepath.Clean(absPath)+string(filepath.Separator), cleanDir)
}

// fileURL converts an absolute path to a file:// URL, Windows paths included.
func fileURL(absPath string) string {
	p := filepath.ToSlash(absPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}
