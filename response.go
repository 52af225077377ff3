package kindlebeam

import (
	"errors"
	"strings"

	"github.com/alnah/go-kindlebeam/internal/config"
)

// Response is the single reply written for a request.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResponseFor maps the outcome of a run to the message shown to the user.
func ResponseFor(err error) Response {
	if err == nil {
		return Response{Success: true}
	}
	return Response{Success: false, Error: messageFor(err)}
}

func messageFor(err error) string {
	switch KindOf(err) {
	case KindProtocol:
		if errors.Is(err, ErrNoMessage) {
			return "No message received"
		}
		return "Invalid message: " + err.Error()

	case KindValidation:
		return "No content provided"

	case KindConfig:
		var nf *config.NotFoundError
		if errors.As(err, &nf) {
			return "Config file not found: " + nf.Path +
				" - create it with: " + strings.Join(config.RequiredKeys, ", ")
		}
		var mk *config.MissingKeysError
		if errors.As(err, &mk) {
			return "Missing config keys: " + strings.Join(mk.Keys, ", ")
		}
		return "Invalid config: " + err.Error()

	case KindConversionTimeout:
		return "pandoc timed out - article may be too large"

	case KindConversionFailed:
		var ce *ConversionError
		if errors.As(err, &ce) && ce.Detail != "" {
			return "pandoc failed: " + ce.Detail
		}
		return "pandoc failed: " + err.Error()

	case KindDeliveryAuth:
		return "SMTP authentication failed - check your App Password"

	case KindDeliveryTransport:
		return "Email failed: " + detail(err, ErrDeliveryTransport)

	case KindIO:
		return "I/O error: " + detail(err, ErrIO)

	default:
		return "Unexpected error: " + err.Error()
	}
}

// detail strips the leading sentinel text added by fmt.Errorf("%w: ...").
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
