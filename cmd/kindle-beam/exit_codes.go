package main

import (
	"errors"
	"os"

	kindlebeam "github.com/alnah/go-kindlebeam"
)

// Exit codes for the kindle-beam CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess   = 0 // Article delivered, or command succeeded
	ExitGeneral   = 1 // General/unexpected error
	ExitUsage     = 2 // Invalid flags, config, or validation
	ExitIO        = 3 // File not found, permission denied, temp files
	ExitConverter = 4 // pandoc missing, failed, or timed out
	ExitDelivery  = 5 // SMTP authentication or transport
	ExitProtocol  = 6 // Unreadable native message
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, ErrUsage) {
		return ExitUsage
	}

	switch kindlebeam.KindOf(err) {
	case kindlebeam.KindProtocol:
		return ExitProtocol
	case kindlebeam.KindValidation, kindlebeam.KindConfig:
		return ExitUsage
	case kindlebeam.KindConversionTimeout, kindlebeam.KindConversionFailed:
		return ExitConverter
	case kindlebeam.KindDeliveryAuth, kindlebeam.KindDeliveryTransport:
		return ExitDelivery
	case kindlebeam.KindIO:
		return ExitIO
	}

	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return ExitIO
	}
	return ExitGeneral
}
