// Package epub checks that a converter produced a usable EPUB container.
package epub

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// MimeType is the exact content of the mimetype entry of an EPUB container.
const MimeType = "application/epub+zip"

// Sentinel errors for container verification.
var (
	ErrNotZip          = errors.New("not a zip archive")
	ErrMissingMimetype = errors.New("first entry is not mimetype")
	ErrBadMimetype     = errors.New("invalid mimetype entry")
	ErrMissingOPF      = errors.New("missing META-INF/container.xml")
)

// Info summarizes a verified container.
type Info struct {
	Entries int
	Size    int64
}

// Verify opens the archive at path and checks the OCF container rules
// e-readers rely on: a leading, uncompressed mimetype entry holding
// MimeType, and a META-INF/container.xml entry.
func Verify(path string) (*Info, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	defer func() { _ = r.Close() }()

	if len(r.File) == 0 || r.File[0].Name != "mimetype" {
		return nil, ErrMissingMimetype
	}

	first := r.File[0]
	if first.Method != zip.Store {
		return nil, fmt.Errorf("%w: entry is compressed", ErrBadMimetype)
	}
	content, err := readEntry(first, int64(len(MimeType))+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMimetype, err)
	}
	if string(content) != MimeType {
		return nil, fmt.Errorf("%w: %q", ErrBadMimetype, content)
	}

	info := &Info{Entries: len(r.File)}
	hasContainer := false
	for _, f := range r.File {
		if f.Name == "META-INF/container.xml" {
			hasContainer = true
		}
		info.Size += int64(f.UncompressedSize64) // #nosec G115 -- entry sizes fit int64
	}
	if !hasContainer {
		return nil, ErrMissingOPF
	}

	return info, nil
}

// readEntry reads at most limit bytes of a zip entry.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(io.LimitReader(rc, limit))
}
