// Package framing implements the length-prefixed message protocol used by
// browser native messaging hosts.
//
// Each message is a 4-byte unsigned length in the host's native byte order,
// followed by that many bytes of UTF-8 encoded JSON.
package framing

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Sentinel errors for framing operations.
var (
	// ErrProtocol indicates the byte stream does not follow the framing:
	// a truncated prefix, a short payload, or an absurd declared length.
	// The stream position is unknown afterwards, so no reply can be framed
	// reliably.
	ErrProtocol = errors.New("protocol error")

	// ErrMalformedPayload indicates a complete frame whose payload is not
	// valid UTF-8 JSON. The stream is still in sync.
	ErrMalformedPayload = errors.New("malformed message payload")

	// ErrMessageTooLarge indicates an outgoing message exceeds MaxOutgoingSize.
	ErrMessageTooLarge = errors.New("message too large")
)

// Size limits.
const (
	// PrefixSize is the length of the header preceding every payload.
	PrefixSize = 4

	// MaxIncomingSize bounds a declared payload length. Browsers allow up to
	// 4 GiB toward the host; articles are orders of magnitude smaller.
	MaxIncomingSize = 64 << 20

	// MaxOutgoingSize is the browser's limit for host-to-extension messages.
	MaxOutgoingSize = 1 << 20
)

// flusher is implemented by buffered writers such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// ReadMessage reads one framed message from r and decodes it into v.
// Returns io.EOF when the stream ends before any prefix byte is read.
func ReadMessage(r io.Reader, v any) error {
	var prefix [PrefixSize]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated length prefix (%d of %d bytes)", ErrProtocol, n, PrefixSize)
		}
		return fmt.Errorf("%w: reading length prefix: %v", ErrProtocol, err)
	}

	length := binary.NativeEndian.Uint32(prefix[:])
	if length > MaxIncomingSize {
		return fmt.Errorf("%w: declared length %d exceeds %d", ErrProtocol, length, MaxIncomingSize)
	}

	payload := make([]byte, length)
	n, err = io.ReadFull(r, payload)
	if err != nil {
		return fmt.Errorf("%w: short payload (%d of %d bytes)", ErrProtocol, n, length)
	}

	return Decode(payload, v)
}

// WriteMessage encodes v and writes it to w as a single framed message.
// Prefix and payload go out in one Write call, followed by Flush when w
// supports it.
func WriteMessage(w io.Writer, v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}

	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing message: %w", err)
		}
	}
	return nil
}

// Encode returns the complete frame (prefix + compact JSON) for v.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	if len(payload) > MaxOutgoingSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(payload), MaxOutgoingSize)
	}

	frame := make([]byte, PrefixSize+len(payload))
	binary.NativeEndian.PutUint32(frame[:PrefixSize], uint32(len(payload))) // #nosec G115 -- bounded by MaxOutgoingSize
	copy(frame[PrefixSize:], payload)
	return frame, nil
}

// Decode parses a payload (without prefix) into v.
func Decode(payload []byte, v any) error {
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
