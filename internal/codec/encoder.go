package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// EncodeFunc encodes pixels into an artifact.
type EncodeFunc func(ctx context.Context, img image.Image, opts model.EncoderOptions) ([]byte, error)

// Format is the behaviour bundle of one encoder kind.
type Format struct {
	Kind           model.EncoderKind
	Encode         EncodeFunc
	MimeType       string
	Extension      string
	DefaultOptions model.EncoderOptions
}

// Registry maps encoder kinds to formats. It is built once at startup.
type Registry struct {
	formats map[model.EncoderKind]Format
}

// NewRegistry builds a Registry from the given formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{formats: make(map[model.EncoderKind]Format, len(formats))}
	for _, f := range formats {
		r.formats[f.Kind] = f
	}
	return r
}

// Lookup returns the format registered for kind.
func (r *Registry) Lookup(kind model.EncoderKind) (Format, error) {
	f, ok := r.formats[kind]
	if !ok {
		return Format{}, fmt.Errorf("%w: %q", ErrUnknownEncoder, kind)
	}
	return f, nil
}

// Defaults returns new encoder settings for kind with its default options.
func (r *Registry) Defaults(kind model.EncoderKind) (*model.EncoderSettings, error) {
	f, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return &model.EncoderSettings{Kind: kind, Options: f.DefaultOptions}, nil
}

// Kinds returns the registered kinds in name order.
func (r *Registry) Kinds() []model.EncoderKind {
	kinds := make([]model.EncoderKind, 0, len(r.formats))
	for k := range r.formats {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DefaultRegistry returns the encoders backed by imaging.
func DefaultRegistry(pool *Pool) *Registry {
	return NewRegistry(
		Format{
			Kind:           model.EncoderJPEG,
			MimeType:       "image/jpeg",
			Extension:      "jpg",
			DefaultOptions: model.EncoderOptions{Quality: 75},
			Encode: imagingEncoder(pool, imaging.JPEG, func(o model.EncoderOptions) []imaging.EncodeOption {
				return []imaging.EncodeOption{imaging.JPEGQuality(o.Quality)}
			}),
		},
		Format{
			Kind:           model.EncoderPNG,
			MimeType:       "image/png",
			Extension:      "png",
			DefaultOptions: model.EncoderOptions{CompressionLevel: 3},
			Encode: imagingEncoder(pool, imaging.PNG, func(o model.EncoderOptions) []imaging.EncodeOption {
				return []imaging.EncodeOption{imaging.PNGCompressionLevel(pngLevel(o.CompressionLevel))}
			}),
		},
		Format{
			Kind:           model.EncoderGIF,
			MimeType:       "image/gif",
			Extension:      "gif",
			DefaultOptions: model.EncoderOptions{NumColors: 256},
			Encode: imagingEncoder(pool, imaging.GIF, func(o model.EncoderOptions) []imaging.EncodeOption {
				return []imaging.EncodeOption{
					imaging.GIFNumColors(o.NumColors),
					imaging.GIFQuantizer(quantize.MedianCutQuantizer{}),
				}
			}),
		},
		Format{
			Kind:      model.EncoderTIFF,
			MimeType:  "image/tiff",
			Extension: "tiff",
			Encode:    imagingEncoder(pool, imaging.TIFF, nil),
		},
		Format{
			Kind:      model.EncoderBMP,
			MimeType:  "image/bmp",
			Extension: "bmp",
			Encode:    imagingEncoder(pool, imaging.BMP, nil),
		},
	)
}

func imagingEncoder(pool *Pool, format imaging.Format, options func(model.EncoderOptions) []imaging.EncodeOption) EncodeFunc {
	return func(ctx context.Context, img image.Image, opts model.EncoderOptions) ([]byte, error) {
		var encOpts []imaging.EncodeOption
		if options != nil {
			encOpts = options(opts)
		}

		return Do(ctx, pool, func() ([]byte, error) {
			buf := new(bytes.Buffer)
			if err := imaging.Encode(buf, img, format, encOpts...); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		})
	}
}

func pngLevel(level int) png.CompressionLevel {
	switch level {
	case 1:
		return png.NoCompression
	case 2:
		return png.BestSpeed
	case 3:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}
