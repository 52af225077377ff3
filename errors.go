package kindlebeam

import (
	"errors"
	"fmt"

	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/framing"
)

// Sentinel errors for pipeline operations.
var (
	// ErrNoMessage reports that the input stream ended before any request.
	ErrNoMessage = errors.New("no message received")

	ErrEmptyContent = errors.New("no content provided")

	ErrConversionTimeout = errors.New("conversion timed out")
	ErrConversionFailed  = errors.New("conversion failed")
	// ErrConverterNotFound also matches ErrConversionFailed.
	ErrConverterNotFound = fmt.Errorf("%w: converter executable not found", ErrConversionFailed)

	ErrDeliveryAuth      = errors.New("delivery authentication failed")
	ErrDeliveryTransport = errors.New("delivery failed")

	ErrIO       = errors.New("i/o error")
	ErrInternal = errors.New("internal error")
)

// ConversionError carries the converter's diagnostic output: its trimmed
// stderr, or a description of why it could not run.
type ConversionError struct {
	Err    error // ErrConversionFailed or ErrConverterNotFound
	Detail string
}

func (e *ConversionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ErrorKind classifies pipeline failures for responses and exit codes.
type ErrorKind int

// Error kinds, from the framing layer outwards.
const (
	KindNone ErrorKind = iota
	KindProtocol
	KindValidation
	KindConfig
	KindConversionTimeout
	KindConversionFailed
	KindDeliveryAuth
	KindDeliveryTransport
	KindIO
	KindUnknown
)

var kindNames = map[ErrorKind]string{
	KindNone:              "",
	KindProtocol:          "ProtocolError",
	KindValidation:        "ValidationError",
	KindConfig:            "ConfigError",
	KindConversionTimeout: "ConversionTimeout",
	KindConversionFailed:  "ConversionFailed",
	KindDeliveryAuth:      "DeliveryAuthError",
	KindDeliveryTransport: "DeliveryTransportError",
	KindIO:                "IOError",
	KindUnknown:           "UnknownError",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownError"
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoMessage),
		errors.Is(err, framing.ErrProtocol),
		errors.Is(err, framing.ErrMalformedPayload),
		errors.Is(err, framing.ErrMessageTooLarge):
		return KindProtocol
	case errors.Is(err, ErrEmptyContent):
		return KindValidation
	case errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, config.ErrConfigParse),
		errors.Is(err, config.ErrMissingKeys),
		errors.Is(err, config.ErrInvalidValue):
		return KindConfig
	case errors.Is(err, ErrConversionTimeout):
		return KindConversionTimeout
	case errors.Is(err, ErrConversionFailed):
		return KindConversionFailed
	case errors.Is(err, ErrDeliveryAuth):
		return KindDeliveryAuth
	case errors.Is(err, ErrDeliveryTransport):
		return KindDeliveryTransport
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}
