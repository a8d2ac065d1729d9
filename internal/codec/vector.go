package codec

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Limits on the intrinsic size of a rasterized SVG.
const (
	MaxRasterSide   = 16384
	MaxRasterPixels = 64 << 20
)

// Rasterizer renders SVG sources to pixels.
type Rasterizer struct {
	pool *Pool
}

// NewRasterizer creates a Rasterizer running on pool.
func NewRasterizer(pool *Pool) *Rasterizer {
	return &Rasterizer{pool: pool}
}

// Rasterize renders data at its intrinsic size. The size comes from the
// width/height attributes when both are present, else from the viewBox.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) (*model.Vector, image.Image, error) {
	w, h, err := svgSize(data)
	if err != nil {
		return nil, nil, err
	}
	if w > MaxRasterSide || h > MaxRasterSide || w*h > MaxRasterPixels {
		return nil, nil, &DecodeError{
			MimeType: "image/svg+xml",
			Err:      fmt.Errorf("%w: %dx%d exceeds the raster limit", ErrUnsupportedFormat, w, h),
		}
	}

	img, err := Do(ctx, r.pool, func() (image.Image, error) {
		return renderSVG(data, w, h)
	})
	if err != nil {
		return nil, nil, err
	}

	return &model.Vector{Data: data, Width: w, Height: h}, img, nil
}

func renderSVG(data []byte, w, h int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, &DecodeError{MimeType: "image/svg+xml", Err: err}
	}
	if icon.ViewBox.W == 0 || icon.ViewBox.H == 0 {
		icon.ViewBox.W, icon.ViewBox.H = float64(w), float64(h)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	return dst, nil
}

// svgSize reads the root element's dimensions.
func svgSize(data []byte) (int, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return 0, 0, &DecodeError{MimeType: "image/svg+xml", Err: errors.New("no root element")}
		}
		if err != nil {
			return 0, 0, &DecodeError{MimeType: "image/svg+xml", Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, &DecodeError{MimeType: "image/svg+xml", Err: fmt.Errorf("root element is %q", start.Name.Local)}
		}

		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			attrs[a.Name.Local] = a.Value
		}

		w, wok := parseLength(attrs["width"])
		h, hok := parseLength(attrs["height"])
		if wok && hok {
			return w, h, nil
		}

		viewBox, ok := attrs["viewBox"]
		if !ok {
			return 0, 0, ErrUnsupportedFormat
		}
		parts := strings.Fields(strings.ReplaceAll(viewBox, ",", " "))
		if len(parts) != 4 {
			return 0, 0, ErrUnsupportedFormat
		}
		w, wok = parseLength(parts[2])
		h, hok = parseLength(parts[3])
		if !wok || !hok {
			return 0, 0, ErrUnsupportedFormat
		}
		return w, h, nil
	}
}

func parseLength(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false
	}
	if v > MaxRasterSide {
		// Keep the value representable; Rasterize rejects it.
		v = MaxRasterSide + 1
	}
	return int(math.Ceil(v)), true
}
