package main

import (
	"errors"
	"strings"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/hints"
)

// hintFor returns the actionable hint for err, formatted to be appended to
// an error line. cfg may be nil when the config did not load.
func hintFor(err error, cfg *config.Config, path string) string {
	var mk *config.MissingKeysError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrConfigNotFound):
		return hints.ForConfigNotFound(path)
	case errors.As(err, &mk):
		return hints.ForMissingKeys(mk.Keys)
	case errors.Is(err, kindlebeam.ErrConverterNotFound):
		return hints.ForConverterNotFound()
	case errors.Is(err, kindlebeam.ErrConversionTimeout):
		return hints.ForTimeout()
	case errors.Is(err, kindlebeam.ErrDeliveryAuth):
		host := config.DefaultSMTPHost
		if cfg != nil {
			host = cfg.SMTPHost
		}
		return hints.ForAuth(host)
	}
	return ""
}

// hintText is hintFor without the leading line break and label, for
// structured log attributes.
func hintText(err error, cfg *config.Config, path string) string {
	return strings.TrimPrefix(hintFor(err, cfg, path), "\n  hint: ")
}
