// Package fileutil provides file and path utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel errors for file utility operations.
var (
	ErrExtensionEmpty         = errors.New("extension cannot be empty")
	ErrExtensionPathTraversal = errors.New("extension contains path separator or null byte")
)

// TempPrefix names every temporary file and directory the tool creates.
const TempPrefix = "kindle-beam-"

// MakeWorkspace creates a private temporary directory under parent
// (the system temp directory when parent is empty).
func MakeWorkspace(parent string) (string, error) {
	dir, err := os.MkdirTemp(parent, TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	return dir, nil
}

// ReserveTempFile creates an empty temporary file with the given extension
// under parent and returns its path. The caller owns the file and must
// remove it.
func ReserveTempFile(parent, extension string) (string, error) {
	if err := ValidateExtension(extension); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(parent, TempPrefix+"*."+extension)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return path, nil
}

// Remove deletes path and anything below it. A missing path is not an error,
// so Remove can run more than once on the same path.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ValidateExtension checks that the extension is safe for use in temp file names.
func ValidateExtension(extension string) error {
	if extension == "" {
		return ErrExtensionEmpty
	}
	if strings.ContainsAny(extension, "/\\\x00") {
		return ErrExtensionPathTraversal
	}
	return nil
}

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsFilePath returns true if the string looks like a file path rather than a name.
// A string containing path separators (/, \) or ending in .css is treated as a path.
//
// Examples:
//   - "kindle" -> false (name)
//   - "./custom.css" -> true (relative path)
//   - "/absolute/path.css" -> true (absolute)
//   - "C:\styles\a.css" -> true (Windows)
//   - "serif.css" -> true (file in working directory)
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\") || strings.HasSuffix(strings.ToLower(s), ".css")
}
