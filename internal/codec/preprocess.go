package codec

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Preprocessor applies the shared preprocessing settings.
type Preprocessor struct {
	pool *Pool
}

// NewPreprocessor creates a Preprocessor running on pool.
func NewPreprocessor(pool *Pool) *Preprocessor {
	return &Preprocessor{pool: pool}
}

// Preprocess rotates img clockwise by the configured angle. A zero angle
// returns img unchanged.
func (p *Preprocessor) Preprocess(ctx context.Context, img image.Image, s *model.PreprocessorSettings) (image.Image, error) {
	deg := ((s.Rotate.Rotate % 360) + 360) % 360
	if deg == 0 {
		return img, nil
	}

	return Do(ctx, p.pool, func() (image.Image, error) {
		// imaging rotates counter-clockwise.
		switch deg {
		case 90:
			return imaging.Rotate270(img), nil
		case 180:
			return imaging.Rotate180(img), nil
		case 270:
			return imaging.Rotate90(img), nil
		default:
			return nil, fmt.Errorf("rotate: unsupported angle %d", s.Rotate.Rotate)
		}
	})
}
