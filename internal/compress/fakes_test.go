package compress

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/aliskhannn/image-compressor/internal/cache"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/model"
)

var errEncoderBroken = errors.New("encoder broken")

// fakes implements every collaborator and counts calls. Encodes with a gated
// quality and preprocessing with a gated angle block until released,
// ignoring cancellation, to model collaborators that finish late.
type fakes struct {
	mu       sync.Mutex
	counts   map[string]int
	encGates map[int]chan struct{}
	preGates map[int]chan struct{}
	started  chan string

	preprocessErr error // returned by Preprocess when set
	quantizeErr   error // returned by Quantize when set
	quantizeWaits bool  // Quantize blocks until its context ends
	previewErr    error // returned when decoding an encoded artifact
}

func newFakes() *fakes {
	return &fakes{
		counts:   make(map[string]int),
		encGates: make(map[int]chan struct{}),
		preGates: make(map[int]chan struct{}),
		started:  make(chan string, 16),
	}
}

func (f *fakes) inc(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
}

func (f *fakes) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func (f *fakes) snapshot() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

func (f *fakes) gateEncode(quality int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.encGates[quality] = ch
	return ch
}

func (f *fakes) gatePreprocess(angle int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.preGates[angle] = ch
	return ch
}

func (f *fakes) Decode(_ context.Context, data []byte, mimeHint string) (image.Image, error) {
	f.inc("decode")
	if string(data) == "bad" {
		return nil, errors.New("malformed")
	}

	f.mu.Lock()
	previewErr := f.previewErr
	f.mu.Unlock()
	if previewErr != nil && strings.HasPrefix(string(data), "quality=") {
		return nil, previewErr
	}
	return image.NewNRGBA(image.Rect(0, 0, 8, 4)), nil
}

func (f *fakes) Rasterize(_ context.Context, data []byte) (*model.Vector, image.Image, error) {
	f.inc("rasterize")
	if string(data) == "nosize" {
		return nil, nil, codec.ErrUnsupportedFormat
	}
	return &model.Vector{Data: data, Width: 10, Height: 10}, image.NewNRGBA(image.Rect(0, 0, 10, 10)), nil
}

func (f *fakes) Preprocess(_ context.Context, img image.Image, s *model.PreprocessorSettings) (image.Image, error) {
	f.inc("preprocess")

	f.mu.Lock()
	gate, failure := f.preGates[s.Rotate.Rotate], f.preprocessErr
	f.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	if gate != nil {
		f.started <- fmt.Sprintf("rotate=%d", s.Rotate.Rotate)
		<-gate
	}

	if s.Rotate.Rotate == 0 {
		return img, nil
	}
	b := img.Bounds()
	return image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx())), nil
}

func (f *fakes) Resize(_ context.Context, _ image.Image, opts model.ResizeOptions) (image.Image, error) {
	f.inc("resize")
	return image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height)), nil
}

func (f *fakes) Quantize(ctx context.Context, img image.Image, _ model.QuantizeOptions) (image.Image, error) {
	f.inc("quantize")

	f.mu.Lock()
	failure, waits := f.quantizeErr, f.quantizeWaits
	f.mu.Unlock()
	if waits {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failure != nil {
		return nil, failure
	}
	return image.NewNRGBA(img.Bounds()), nil
}

func (f *fakes) set(fn func(f *fakes)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakes) encode(_ context.Context, _ image.Image, opts model.EncoderOptions) ([]byte, error) {
	f.inc("encode")

	f.mu.Lock()
	gate := f.encGates[opts.Quality]
	f.mu.Unlock()
	if gate != nil {
		f.started <- fmt.Sprintf("quality=%d", opts.Quality)
		<-gate
	}

	return []byte(fmt.Sprintf("quality=%d", opts.Quality)), nil
}

func (f *fakes) registry() *codec.Registry {
	return codec.NewRegistry(
		codec.Format{
			Kind:           model.EncoderJPEG,
			Encode:         f.encode,
			MimeType:       "image/jpeg",
			Extension:      "jpg",
			DefaultOptions: model.EncoderOptions{Quality: 75},
		},
		codec.Format{
			Kind: model.EncoderPNG,
			Encode: func(context.Context, image.Image, model.EncoderOptions) ([]byte, error) {
				f.inc("encode")
				return nil, errEncoderBroken
			},
			MimeType:  "image/png",
			Extension: "png",
		},
	)
}

type events struct {
	mu  sync.Mutex
	all []model.SideEvent
}

func (e *events) add(ev model.SideEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) list() []model.SideEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.SideEvent(nil), e.all...)
}

func newController(t *testing.T, f *fakes, defaults Defaults) (*Controller, *events) {
	t.Helper()
	return newControllerWith(t, f, defaults, Options{})
}

func newControllerWith(t *testing.T, f *fakes, defaults Defaults, opts Options) (*Controller, *events) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	evs := &events{}
	opts.OnSideDone = evs.add
	c := New(ctx, Collaborators{
		Decoder:      f,
		Rasterizer:   f,
		Preprocessor: f,
		Processor:    f,
		Encoders:     f.registry(),
	}, cache.New(4, 16), defaults, opts)

	return c, evs
}

func jpegQ(q int) *model.EncoderSettings {
	return &model.EncoderSettings{Kind: model.EncoderJPEG, Options: model.EncoderOptions{Quality: q}}
}

func photo() *model.File {
	return model.NewFile("photo.png", "image/png", []byte("pixels"))
}
