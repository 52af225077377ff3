// Package epubtest writes EPUB fixtures for tests that stand in for pandoc.
package epubtest

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/alnah/go-kindlebeam/internal/epub"
)

// WriteMinimal writes a small but structurally valid EPUB container to path.
func WriteMinimal(path, title string) error {
	f, err := os.Create(path) // #nosec G304 -- caller-provided output path
	if err != nil {
		return err
	}

	zw := zip.NewWriter(f)
	entries := []struct {
		name    string
		method  uint16
		content string
	}{
		{"mimetype", zip.Store, epub.MimeType},
		{"META-INF/container.xml", zip.Deflate, containerXML},
		{"EPUB/content.opf", zip.Deflate, fmt.Sprintf(opfTemplate, title)},
	}
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := w.Write([]byte(e.content)); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="EPUB/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const opfTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>%s</dc:title></metadata>
</package>`
