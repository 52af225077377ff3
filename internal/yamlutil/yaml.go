// Package yamlutil wraps YAML parsing to isolate the external dependency.
// JSON documents are YAML too: DecodeFile strips JSONC comments and trailing
// commas from .json input, then both formats share the same decoder.
package yamlutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tidwall/jsonc"
)

// MaxInputSize limits decoder input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
)

func validateInput(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if v == nil {
		return ErrNilDestination
	}
	return nil
}

func Unmarshal(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// UnmarshalStrict rejects unknown fields in the input.
func UnmarshalStrict(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// IsJSON reports whether name has a .json extension (case-insensitive).
func IsJSON(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// DecodeFile decodes the contents of the file called name into v, choosing
// the input dialect by extension. With strict set, unknown fields fail.
func DecodeFile(name string, data []byte, v any, strict bool) error {
	if IsJSON(name) && len(data) > 0 {
		data = jsonc.ToJSON(data)
	}
	if strict {
		return UnmarshalStrict(data, v)
	}
	return Unmarshal(data, v)
}
