// Package compress implements the pipeline reconciliation controller: it
// diffs the desired settings against the jobs that produced the current
// results, reruns only the stages whose inputs changed and discards the
// results of superseded work.
package compress

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/aliskhannn/image-compressor/internal/cache"
	"github.com/aliskhannn/image-compressor/internal/cancel"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/job"
	"github.com/aliskhannn/image-compressor/internal/model"
)

// ErrNilSettings is returned when a setter receives nil settings where a
// value is required.
var ErrNilSettings = errors.New("settings must not be nil")

// Decoder decodes raster sources and encoded artifacts.
type Decoder interface {
	Decode(ctx context.Context, data []byte, mimeHint string) (image.Image, error)
}

// Rasterizer renders vector sources.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) (*model.Vector, image.Image, error)
}

// Preprocessor applies the shared preprocessing settings.
type Preprocessor interface {
	Preprocess(ctx context.Context, img image.Image, s *model.PreprocessorSettings) (image.Image, error)
}

// Processor runs the per-side processing steps.
type Processor interface {
	Resize(ctx context.Context, img image.Image, opts model.ResizeOptions) (image.Image, error)
	Quantize(ctx context.Context, img image.Image, opts model.QuantizeOptions) (image.Image, error)
}

// Encoders resolves encoder kinds to formats.
type Encoders interface {
	Lookup(kind model.EncoderKind) (codec.Format, error)
}

// Collaborators bundles the external codec services.
type Collaborators struct {
	Decoder      Decoder
	Rasterizer   Rasterizer
	Preprocessor Preprocessor
	Processor    Processor
	Encoders     Encoders
}

// Defaults are the initial settings of a session. Nil processor or
// preprocessor settings fall back to the model defaults; a nil encoder
// means identity output.
type Defaults struct {
	Preprocessor *model.PreprocessorSettings
	Processor    [2]*model.ProcessorSettings
	Encoder      [2]*model.EncoderSettings
}

// Options tunes the controller.
type Options struct {
	// StageTimeout bounds each collaborator call; zero disables it.
	StageTimeout time.Duration
	// OnSideDone is called after a side result has been applied.
	OnSideDone func(model.SideEvent)
}

type mainRun struct {
	token  context.Context
	job    job.Main
	done   chan struct{}
	source *model.SourceImage // set on success before done is closed
}

// Controller owns the session state and drives the pipeline.
type Controller struct {
	codecs   Collaborators
	cache    *cache.Cache
	scopes   *cancel.Manager
	disabled *model.ProcessorSettings
	opts     Options

	mu         sync.Mutex
	state      model.State
	activeMain *job.Main
	activeSide [2]*job.Side
	mainRun    *mainRun
}

// New creates a Controller. Cancelling ctx signals every stage token.
func New(ctx context.Context, codecs Collaborators, rc *cache.Cache, defaults Defaults, opts Options) *Controller {
	pre := defaults.Preprocessor
	if pre == nil {
		pre = model.DefaultPreprocessorSettings()
	}

	st := model.State{Preprocessor: pre}
	for _, i := range model.Sides {
		p := defaults.Processor[i]
		if p == nil {
			p = model.DefaultProcessorSettings()
		}
		st.Sides[i].Latest = model.SideSettings{Processor: p, Encoder: defaults.Encoder[i]}
	}

	return &Controller{
		codecs:   codecs,
		cache:    rc,
		scopes:   cancel.NewManager(ctx),
		disabled: model.DefaultProcessorSettings(),
		opts:     opts,
		state:    st,
	}
}

// State returns the current snapshot.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) update(fn func(model.State) model.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = fn(c.state)
}

// SetFile replaces the source file.
func (c *Controller) SetFile(f *model.File) error {
	if f == nil {
		return ErrNilSettings
	}
	c.update(func(s model.State) model.State {
		s.File = f
		return s
	})
	return nil
}

// SetPreprocessorSettings replaces the shared preprocessing settings.
func (c *Controller) SetPreprocessorSettings(p *model.PreprocessorSettings) error {
	if p == nil {
		return ErrNilSettings
	}
	c.update(func(s model.State) model.State {
		s.Preprocessor = p
		return s
	})
	return nil
}

// SetProcessorSettings replaces the processing settings of side i.
func (c *Controller) SetProcessorSettings(i model.Side, p *model.ProcessorSettings) error {
	if !i.Valid() {
		return model.ErrInvalidSide
	}
	if p == nil {
		return ErrNilSettings
	}
	c.update(func(s model.State) model.State {
		side := s.Sides[i]
		side.Latest.Processor = p
		return s.WithSide(i, side)
	})
	return nil
}

// SetEncoderSettings replaces the encoder of side i; nil selects identity output.
func (c *Controller) SetEncoderSettings(i model.Side, e *model.EncoderSettings) error {
	if !i.Valid() {
		return model.ErrInvalidSide
	}
	c.update(func(s model.State) model.State {
		side := s.Sides[i]
		side.Latest.Encoder = e
		return s.WithSide(i, side)
	})
	return nil
}
