package codec

import (
	"errors"
	"fmt"

	"github.com/aliskhannn/image-compressor/internal/model"
)

var (
	// ErrUnsupportedFormat is returned for an SVG with neither explicit
	// dimensions nor a viewBox.
	ErrUnsupportedFormat = errors.New("svg must have width/height or viewBox")

	// ErrUnknownEncoder is returned for an encoder kind missing from the registry.
	ErrUnknownEncoder = errors.New("unknown encoder")
)

// DecodeError reports a source or re-encoded artifact that cannot be decoded.
type DecodeError struct {
	MimeType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.MimeType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failed encoder run.
type EncodeError struct {
	Kind model.EncoderKind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
