package codec

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // register the WebP decoder
)

// Decoder turns encoded bytes into pixels.
type Decoder struct {
	pool *Pool
}

// NewDecoder creates a Decoder running on pool.
func NewDecoder(pool *Pool) *Decoder {
	return &Decoder{pool: pool}
}

// Sniff returns the MIME type detected from the content, falling back to hint
// when detection gives nothing specific.
func Sniff(data []byte, hint string) string {
	m := mimetype.Detect(data)
	if m.Is("application/octet-stream") && hint != "" {
		return hint
	}
	return m.String()
}

// Decode decodes data into an image. The MIME hint is used only for error
// reporting when the content sniffer cannot identify the format.
func (d *Decoder) Decode(ctx context.Context, data []byte, mimeHint string) (image.Image, error) {
	mimeType := Sniff(data, mimeHint)

	return Do(ctx, d.pool, func() (image.Image, error) {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, &DecodeError{MimeType: mimeType, Err: err}
		}
		return img, nil
	})
}
