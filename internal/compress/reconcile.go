package compress

import (
	"context"
	"errors"
	"image"

	"github.com/sourcegraph/conc/pool"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/cache"
	"github.com/aliskhannn/image-compressor/internal/cancel"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/job"
	"github.com/aliskhannn/image-compressor/internal/model"
)

// Reconcile brings both sides up to date with the latest settings. It is
// safe to call concurrently: a newer call supersedes the stages of an older
// one instead of queueing behind it. Cancelled work is never reported;
// other failures are returned joined, one per affected scope.
func (c *Controller) Reconcile() error {
	c.mu.Lock()
	st := c.state

	desiredMain := job.DesiredMain(st)
	var lastSide, desiredSide [2]job.Side
	for _, i := range model.Sides {
		desiredSide[i] = job.DesiredSide(st.Sides[i].Latest, c.disabled)
		lastSide[i] = job.LastSide(c.activeSide[i], st.Sides[i])
	}

	plan := job.Diff(job.LastMain(c.activeMain, st), desiredMain, lastSide, desiredSide)
	if desiredMain.File == nil {
		plan.Decode, plan.Preprocess = false, false
	}
	if plan.Empty() {
		c.mu.Unlock()
		return nil
	}

	run := c.mainRun
	if plan.Main() {
		run = &mainRun{
			token: c.scopes.Renew(cancel.Main),
			job:   desiredMain,
			done:  make(chan struct{}),
		}
		c.activeMain = &desiredMain
		c.mainRun = run
		st.Loading = true
	}

	var tokens [2]context.Context
	for _, i := range model.Sides {
		if !plan.Side(i) {
			continue
		}
		tokens[i] = c.scopes.Renew(cancel.SideScope(i))
		d := desiredSide[i]
		c.activeSide[i] = &d

		side := st.Sides[i]
		side.Loading = true
		st = st.WithSide(i, side)
	}

	prev := st.Source
	c.state = st
	c.mu.Unlock()

	zlog.Logger.Debug().
		Bool("decode", plan.Decode).
		Bool("preprocess", plan.Preprocess).
		Bools("process", plan.Process[:]).
		Bools("encode", plan.Encode[:]).
		Msg("reconcile")

	var mainErr error
	if plan.Main() {
		mainErr = c.runMain(run, plan, prev)
	}

	source := prev
	if run != nil {
		<-run.done
		source = run.source
	}
	if source == nil {
		c.abandonSides(plan, tokens)
		return mainErr
	}

	p := pool.New().WithErrors()
	for _, i := range model.Sides {
		if !plan.Side(i) {
			continue
		}
		i := i
		p.Go(func() error {
			return c.runSide(i, tokens[i], plan.Process[i], source)
		})
	}

	return errors.Join(mainErr, p.Wait())
}

// abandonSides clears the loading state of sides that cannot run because
// no preprocessed image is available.
func (c *Controller) abandonSides(plan job.Plan, tokens [2]context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, i := range model.Sides {
		if !plan.Side(i) || !c.scopes.Current(cancel.SideScope(i), tokens[i]) {
			continue
		}
		side := c.state.Sides[i]
		side.Loading = false
		c.state = c.state.WithSide(i, side)
		c.activeSide[i] = nil
	}
}

// call runs fn under tok, applying the stage timeout. A token signalled
// before or during the call turns any outcome into a cancellation.
func call[T any](c *Controller, tok context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cancel.Err(tok); err != nil {
		return zero, err
	}

	ctx := tok
	if c.opts.StageTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(tok, c.opts.StageTimeout)
		defer cancelTimeout()
	}

	v, err := fn(ctx)
	if cerr := cancel.Err(tok); cerr != nil {
		return zero, cerr
	}
	return v, err
}

// runMain decodes and preprocesses the source. It always closes run.done.
func (c *Controller) runMain(run *mainRun, plan job.Plan, prev *model.SourceImage) error {
	defer close(run.done)

	tok, d := run.token, run.job
	log := zlog.Logger.With().Str("scope", cancel.Main.String()).Str("file", d.File.Name).Logger()

	var src model.SourceImage
	if !plan.Decode && prev != nil && prev.File.ID == d.File.ID {
		src = model.SourceImage{File: prev.File, Decoded: prev.Decoded, Vector: prev.Vector}
	} else {
		log.Debug().Msg("decoding source")
		decoded, vector, err := c.decode(tok, d.File)
		if err != nil {
			return c.failMain(run, stageErr(tok, cancel.Main, StageDecode, err))
		}
		src = model.SourceImage{File: d.File, Decoded: decoded, Vector: vector}
	}

	log.Debug().Int("rotate", d.Preprocessor.Rotate.Rotate).Msg("preprocessing source")
	img, err := call(c, tok, func(ctx context.Context) (image.Image, error) {
		return c.codecs.Preprocessor.Preprocess(ctx, src.Decoded.Image, d.Preprocessor)
	})
	if err != nil {
		return c.failMain(run, stageErr(tok, cancel.Main, StagePreprocess, err))
	}
	if img == src.Decoded.Image {
		src.Preprocessed = src.Decoded
	} else {
		src.Preprocessed = model.NewBitmap(img)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.scopes.Current(cancel.Main, tok) {
		log.Debug().Msg("main stage superseded")
		return nil
	}

	st := c.state
	st.Source = &src
	st.EncodedPreprocessor = d.Preprocessor
	st.Loading = false

	w, h := src.Preprocessed.Size()
	for _, i := range model.Sides {
		side := st.Sides[i]
		latest := side.Latest.Processor
		reset := latest.WithResize(model.ResizeOptions{
			Width:     w,
			Height:    h,
			Method:    latest.Resize.Method,
			FitMethod: latest.Resize.FitMethod,
		})
		side.Latest.Processor = reset
		side.Processed = nil
		side.Encoded = nil
		st = st.WithSide(i, side)

		// The pending side job asked for the latest settings; keep it
		// pointing at them so the next diff sees no change.
		if a := c.activeSide[i]; a != nil && a.Processor == latest {
			c.activeSide[i] = &job.Side{Processor: reset, Encoder: a.Encoder}
		}
	}

	c.state = st
	c.activeMain = nil
	if c.mainRun == run {
		c.mainRun = nil
	}
	run.source = &src

	log.Debug().Int("width", w).Int("height", h).Msg("main stage done")
	return nil
}

func (c *Controller) failMain(run *mainRun, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.scopes.Current(cancel.Main, run.token) {
		zlog.Logger.Debug().Str("scope", cancel.Main.String()).Msg("main stage cancelled")
		return nil
	}

	st := c.state
	st.Loading = false
	c.state = st
	c.activeMain = nil
	if c.mainRun == run {
		c.mainRun = nil
	}

	zlog.Logger.Error().Err(err).Msg("main stage failed")
	return err
}

func (c *Controller) decode(tok context.Context, f *model.File) (*model.Bitmap, *model.Vector, error) {
	if f.IsVector() {
		var vector *model.Vector
		img, err := call(c, tok, func(ctx context.Context) (image.Image, error) {
			v, img, err := c.codecs.Rasterizer.Rasterize(ctx, f.Data)
			vector = v
			return img, err
		})
		if err != nil {
			return nil, nil, err
		}
		return model.NewBitmap(img), vector, nil
	}

	img, err := call(c, tok, func(ctx context.Context) (image.Image, error) {
		return c.codecs.Decoder.Decode(ctx, f.Data, f.MimeType)
	})
	if err != nil {
		return nil, nil, asDecodeError(tok, f.MimeType, err)
	}
	return model.NewBitmap(img), nil, nil
}

// asDecodeError tags err as a decode failure unless tok was signalled.
func asDecodeError(tok context.Context, mimeType string, err error) error {
	if cerr := cancel.Err(tok); cerr != nil {
		return cerr
	}
	var decErr *codec.DecodeError
	if errors.As(err, &decErr) {
		return err
	}
	return &codec.DecodeError{MimeType: mimeType, Err: err}
}

type sideResult struct {
	processed *model.Bitmap
	file      *model.File
	preview   *model.Bitmap
	cached    bool
}

// runSide processes and encodes one side and applies the result if the
// side's token is still current.
func (c *Controller) runSide(i model.Side, tok context.Context, needsProcess bool, source *model.SourceImage) error {
	scope := cancel.SideScope(i)
	log := zlog.Logger.With().Str("scope", scope.String()).Logger()

	c.mu.Lock()
	if !c.scopes.Current(scope, tok) || c.activeSide[i] == nil {
		c.mu.Unlock()
		return nil
	}
	d := *c.activeSide[i]
	prev := c.state.Sides[i]
	c.mu.Unlock()

	res, err := c.produce(tok, scope, d, needsProcess, source, prev)

	c.mu.Lock()
	if !c.scopes.Current(scope, tok) {
		c.mu.Unlock()
		log.Debug().Msg("discarding superseded side result")
		return nil
	}
	if err != nil {
		side := c.state.Sides[i]
		side.Loading = false
		c.state = c.state.WithSide(i, side)
		c.activeSide[i] = nil
		c.mu.Unlock()

		log.Error().Err(err).Msg("side stage failed")
		return err
	}

	side := c.state.Sides[i]
	side.Encoded = d.Settings()
	side.Processed = res.processed
	side.File = res.file
	side.Preview = res.preview
	side.Loading = false
	c.state = c.state.WithSide(i, side)
	c.activeSide[i] = nil
	c.mu.Unlock()

	ev := model.SideEvent{Side: i, Cached: res.cached, Identity: d.Encoder == nil}
	ev.Width, ev.Height = res.preview.Size()
	if res.file != nil {
		ev.FileName, ev.MimeType, ev.Size = res.file.Name, res.file.MimeType, res.file.Size()
	}
	log.Debug().Bool("cached", ev.Cached).Bool("identity", ev.Identity).Int("size", ev.Size).Msg("side stage done")

	if c.opts.OnSideDone != nil {
		c.opts.OnSideDone(ev)
	}
	return nil
}

func (c *Controller) produce(tok context.Context, scope cancel.Scope, d job.Side, needsProcess bool, source *model.SourceImage, prev model.SideState) (sideResult, error) {
	pre := source.Preprocessed

	if d.Encoder == nil {
		return sideResult{processed: pre, preview: pre}, nil
	}

	if e, ok := c.cache.Match(pre.ID, d.Processor, d.Encoder); ok {
		return sideResult{processed: e.Processed, file: e.File, preview: e.Preview, cached: true}, nil
	}

	processed := prev.Processed
	reusable := processed != nil && prev.Encoded != nil &&
		job.ProcessorSettingsEquivalent(prev.Encoded.Processor, d.Processor)
	if needsProcess || !reusable {
		var err error
		processed, err = c.process(tok, pre, d.Processor)
		if err != nil {
			return sideResult{}, stageErr(tok, scope, StageProcess, err)
		}
	}

	format, err := c.codecs.Encoders.Lookup(d.Encoder.Kind)
	if err != nil {
		return sideResult{}, stageErr(tok, scope, StageEncode, &codec.EncodeError{Kind: d.Encoder.Kind, Err: err})
	}

	data, err := call(c, tok, func(ctx context.Context) ([]byte, error) {
		return format.Encode(ctx, processed.Image, d.Encoder.Options)
	})
	if err != nil {
		if cerr := cancel.Err(tok); cerr != nil {
			return sideResult{}, cerr
		}
		return sideResult{}, stageErr(tok, scope, StageEncode, &codec.EncodeError{Kind: d.Encoder.Kind, Err: err})
	}
	file := model.NewFile(model.ReplaceExt(source.File.Name, format.Extension), format.MimeType, data)

	// Encoded output can differ visually from its input, so preview the
	// artifact itself.
	img, err := call(c, tok, func(ctx context.Context) (image.Image, error) {
		return c.codecs.Decoder.Decode(ctx, data, format.MimeType)
	})
	if err != nil {
		return sideResult{}, stageErr(tok, scope, StageDecode, asDecodeError(tok, format.MimeType, err))
	}
	preview := model.NewBitmap(img)

	c.cache.Add(cache.Entry{
		Image:     pre.ID,
		Processor: d.Processor,
		Encoder:   d.Encoder,
		Processed: processed,
		File:      file,
		Preview:   preview,
	})

	return sideResult{processed: processed, file: file, preview: preview}, nil
}

// process applies the enabled steps in their fixed order.
func (c *Controller) process(tok context.Context, src *model.Bitmap, p *model.ProcessorSettings) (*model.Bitmap, error) {
	img := src.Image
	changed := false

	for _, step := range model.StepOrder {
		if !p.Enabled(step) {
			continue
		}

		var err error
		img, err = call(c, tok, func(ctx context.Context) (image.Image, error) {
			if step == model.StepResize {
				return c.codecs.Processor.Resize(ctx, img, p.Resize)
			}
			return c.codecs.Processor.Quantize(ctx, img, p.Quantize)
		})
		if err != nil {
			return nil, err
		}
		changed = true
	}

	if !changed {
		return src, nil
	}
	return model.NewBitmap(img), nil
}
