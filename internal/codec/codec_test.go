package codec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-compressor/internal/cancel"
	"github.com/aliskhannn/image-compressor/internal/model"
)

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// TestDecoder_DecodesPNG tests decoding of a valid source.
func TestDecoder_DecodesPNG(t *testing.T) {
	d := NewDecoder(NewPool(2))

	img, err := d.Decode(context.Background(), pngBytes(t, gradient(8, 4)), "")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

// TestDecoder_MalformedInput tests that garbage yields a DecodeError.
func TestDecoder_MalformedInput(t *testing.T) {
	d := NewDecoder(NewPool(2))

	_, err := d.Decode(context.Background(), []byte("not an image"), "image/png")
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.NotEmpty(t, decErr.MimeType)
}

// TestSniff tests MIME detection and the hint fallback.
func TestSniff(t *testing.T) {
	assert.Equal(t, "image/png", Sniff(pngBytes(t, gradient(2, 2)), "image/jpeg"))
	assert.Equal(t, "image/x-custom", Sniff([]byte{0x00, 0x01, 0x02, 0x03}, "image/x-custom"))
}

// TestRasterizer_Size tests SVG sizing from attributes and from viewBox.
func TestRasterizer_Size(t *testing.T) {
	r := NewRasterizer(NewPool(1))
	ctx := context.Background()

	explicit := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="20px" height="10"><rect width="20" height="10" fill="red"/></svg>`)
	v, img, err := r.Rasterize(ctx, explicit)
	require.NoError(t, err)
	assert.Equal(t, 20, v.Width)
	assert.Equal(t, 10, img.Bounds().Dy())

	viewBox := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 12 6"><rect width="12" height="6" fill="blue"/></svg>`)
	v, img, err = r.Rasterize(ctx, viewBox)
	require.NoError(t, err)
	assert.Equal(t, 12, v.Width)
	assert.Equal(t, 6, v.Height)
	assert.Equal(t, 12, img.Bounds().Dx())
}

// TestRasterizer_Unsupported tests an SVG without any size information.
func TestRasterizer_Unsupported(t *testing.T) {
	r := NewRasterizer(NewPool(1))

	_, _, err := r.Rasterize(context.Background(), []byte(`<svg xmlns="http://www.w3.org/2000/svg"><circle r="4"/></svg>`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

// TestRasterizer_TooLarge tests that oversized documents are rejected before allocation.
func TestRasterizer_TooLarge(t *testing.T) {
	r := NewRasterizer(NewPool(1))

	for _, doc := range []string{
		`<svg xmlns="http://www.w3.org/2000/svg" width="100000" height="100000"/>`,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1e300 10"/>`,
		`<svg xmlns="http://www.w3.org/2000/svg" width="16000" height="16000"/>`,
	} {
		_, _, err := r.Rasterize(context.Background(), []byte(doc))
		assert.ErrorIs(t, err, ErrUnsupportedFormat, doc)

		var decErr *DecodeError
		assert.ErrorAs(t, err, &decErr, doc)
	}
}

// TestPreprocessor_Rotate tests clockwise rotation and the zero-angle shortcut.
func TestPreprocessor_Rotate(t *testing.T) {
	p := NewPreprocessor(NewPool(1))
	src := gradient(8, 4)
	ctx := context.Background()

	same, err := p.Preprocess(ctx, src, model.DefaultPreprocessorSettings())
	require.NoError(t, err)
	assert.Same(t, src.(*image.NRGBA), same.(*image.NRGBA))

	rotated, err := p.Preprocess(ctx, src, model.DefaultPreprocessorSettings().WithRotate(90))
	require.NoError(t, err)
	assert.Equal(t, 4, rotated.Bounds().Dx())
	assert.Equal(t, 8, rotated.Bounds().Dy())

	// The top-left pixel moves to the top-right after a clockwise turn.
	assert.Equal(t, color.NRGBAModel.Convert(src.At(0, 0)), color.NRGBAModel.Convert(rotated.At(3, 0)))

	_, err = p.Preprocess(ctx, src, model.DefaultPreprocessorSettings().WithRotate(45))
	assert.Error(t, err)
}

// TestProcessor_Resize tests stretch and contain fitting.
func TestProcessor_Resize(t *testing.T) {
	p := New(NewPool(1))
	ctx := context.Background()
	src := gradient(40, 20)

	out, err := p.Resize(ctx, src, model.ResizeOptions{Enabled: true, Width: 10, Height: 10, Method: model.ResizeMitchell})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())

	out, err = p.Resize(ctx, src, model.ResizeOptions{Enabled: true, Width: 10, Height: 10, FitMethod: model.FitContain})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	_, _, _, a := out.At(5, 0).RGBA()
	assert.Zero(t, a, "contain leaves the letterbox transparent")

	_, err = p.Resize(ctx, src, model.ResizeOptions{Enabled: true})
	assert.Error(t, err)
}

// TestProcessor_Quantize tests palette reduction.
func TestProcessor_Quantize(t *testing.T) {
	p := New(NewPool(1))

	out, err := p.Quantize(context.Background(), gradient(16, 16), model.QuantizeOptions{Enabled: true, MaxNumColors: 4, Dither: 1})
	require.NoError(t, err)

	pal, ok := out.(*image.Paletted)
	require.True(t, ok)
	assert.LessOrEqual(t, len(pal.Palette), 4)

	_, err = p.Quantize(context.Background(), gradient(4, 4), model.QuantizeOptions{MaxNumColors: 1})
	assert.Error(t, err)
}

// TestProcessor_QuantizeDither tests that any positive dither diffuses error
// and that zero maps pixels to the nearest palette entry.
func TestProcessor_QuantizeDither(t *testing.T) {
	p := New(NewPool(1))
	src := gradient(32, 32)

	run := func(dither float64) *image.Paletted {
		out, err := p.Quantize(context.Background(), src, model.QuantizeOptions{Enabled: true, MaxNumColors: 2, Dither: dither})
		require.NoError(t, err)
		pal, ok := out.(*image.Paletted)
		require.True(t, ok)
		return pal
	}

	full, partial, none := run(1), run(0.1), run(0)
	assert.Equal(t, full.Pix, partial.Pix)
	assert.NotEqual(t, full.Pix, none.Pix)
}

// TestRegistry_EncodeAndDecode tests that each registered encoder produces a
// decodable artifact of the advertised type.
func TestRegistry_EncodeAndDecode(t *testing.T) {
	pool := NewPool(2)
	reg := DefaultRegistry(pool)
	dec := NewDecoder(pool)
	src := gradient(6, 6)

	for _, kind := range reg.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			f, err := reg.Lookup(kind)
			require.NoError(t, err)

			data, err := f.Encode(context.Background(), src, f.DefaultOptions)
			require.NoError(t, err)
			assert.Equal(t, f.MimeType, Sniff(data, ""))

			img, err := dec.Decode(context.Background(), data, f.MimeType)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds().Size(), img.Bounds().Size())
		})
	}
}

// TestRegistry_Unknown tests lookup of an unregistered kind.
func TestRegistry_Unknown(t *testing.T) {
	reg := DefaultRegistry(NewPool(1))

	_, err := reg.Lookup("webp2")
	assert.ErrorIs(t, err, ErrUnknownEncoder)

	s, err := reg.Defaults(model.EncoderJPEG)
	require.NoError(t, err)
	assert.Equal(t, 75, s.Options.Quality)
}

// TestDo_Cancelled tests that a signalled token wins over a slow worker.
func TestDo_Cancelled(t *testing.T) {
	pool := NewPool(1)
	m := cancel.NewManager(context.Background())
	tok := m.Token(cancel.Main)

	release := make(chan struct{})
	defer close(release)

	errCh := make(chan error, 1)
	go func() {
		_, err := Do(tok, pool, func() (int, error) {
			<-release
			return 1, nil
		})
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Renew(cancel.Main)

	select {
	case err := <-errCh:
		assert.True(t, cancel.IsSignal(err))
		assert.True(t, errors.Is(err, cancel.ErrSuperseded))
	case <-time.After(time.Second):
		t.Fatal("Do did not observe cancellation")
	}
}
