package codec

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"github.com/fogleman/gg"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Processor executes the per-side processing steps.
type Processor struct {
	pool *Pool
}

// New creates a Processor running on pool.
func New(pool *Pool) *Processor {
	return &Processor{pool: pool}
}

var resizeFilters = map[model.ResizeMethod]imaging.ResampleFilter{
	model.ResizeLanczos3: imaging.Lanczos,
	model.ResizeMitchell: imaging.MitchellNetravali,
	model.ResizeCatrom:   imaging.CatmullRom,
	model.ResizeTriangle: imaging.Linear,
	model.ResizeNearest:  imaging.NearestNeighbor,
}

// Resize scales img to the requested width and height.
func (p *Processor) Resize(ctx context.Context, img image.Image, opts model.ResizeOptions) (image.Image, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("resize: invalid size %dx%d", opts.Width, opts.Height)
	}

	filter, ok := resizeFilters[opts.Method]
	if !ok {
		filter = imaging.Lanczos
	}

	return Do(ctx, p.pool, func() (image.Image, error) {
		if opts.FitMethod != model.FitContain {
			return imaging.Resize(img, opts.Width, opts.Height, filter), nil
		}

		// Fit inside the target and center it on a transparent canvas.
		fitted := imaging.Fit(img, opts.Width, opts.Height, filter)
		dc := gg.NewContext(opts.Width, opts.Height)
		dc.DrawImageAnchored(fitted, opts.Width/2, opts.Height/2, 0.5, 0.5)

		return dc.Image(), nil
	})
}

// Quantize reduces img to a palette of at most MaxNumColors colors.
func (p *Processor) Quantize(ctx context.Context, img image.Image, opts model.QuantizeOptions) (image.Image, error) {
	n := opts.MaxNumColors
	if n < 2 || n > 256 {
		return nil, fmt.Errorf("quantize: max colors %d out of range 2..256", n)
	}

	return Do(ctx, p.pool, func() (image.Image, error) {
		q := quantize.MedianCutQuantizer{}
		palette := q.Quantize(make(color.Palette, 0, n), img)

		b := img.Bounds()
		dst := image.NewPaletted(b, palette)

		var drawer draw.Drawer = draw.Src
		if opts.Dither > 0 {
			drawer = draw.FloydSteinberg
		}
		drawer.Draw(dst, b, img, b.Min)

		return dst, nil
	})
}
