package model

// Settings values are immutable: every With* method returns a new instance,
// so pointer identity tells whether a setting was edited.

// RotateOptions holds the rotation angle in degrees (0, 90, 180 or 270).
type RotateOptions struct {
	Rotate int `json:"rotate"`
}

// PreprocessorSettings are shared by both sides.
type PreprocessorSettings struct {
	Rotate RotateOptions `json:"rotate"`
}

// DefaultPreprocessorSettings returns settings that leave the image untouched.
func DefaultPreprocessorSettings() *PreprocessorSettings {
	return &PreprocessorSettings{}
}

// WithRotate returns a copy of p rotated by deg degrees.
func (p *PreprocessorSettings) WithRotate(deg int) *PreprocessorSettings {
	next := *p
	next.Rotate.Rotate = deg
	return &next
}

// StepName names a processing step.
type StepName string

const (
	StepResize   StepName = "resize"
	StepQuantize StepName = "quantize"
)

// StepOrder is the fixed order in which enabled steps are applied.
var StepOrder = []StepName{StepResize, StepQuantize}

// ResizeMethod selects the resampling filter.
type ResizeMethod string

const (
	ResizeLanczos3 ResizeMethod = "lanczos3"
	ResizeMitchell ResizeMethod = "mitchell"
	ResizeCatrom   ResizeMethod = "catrom"
	ResizeTriangle ResizeMethod = "triangle"
	ResizeNearest  ResizeMethod = "nearest"
)

// FitMethod controls how the source aspect ratio maps onto the target size.
type FitMethod string

const (
	FitStretch FitMethod = "stretch"
	FitContain FitMethod = "contain"
)

// ResizeOptions configures the resize step.
type ResizeOptions struct {
	Enabled   bool         `json:"enabled"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Method    ResizeMethod `json:"method"`
	FitMethod FitMethod    `json:"fitMethod"`
}

// QuantizeOptions configures the palette reduction step. Dither is a switch,
// not a strength: any value above zero applies full Floyd-Steinberg error
// diffusion and zero maps each pixel to its nearest palette entry.
type QuantizeOptions struct {
	Enabled      bool    `json:"enabled"`
	MaxNumColors int     `json:"maxNumColors"`
	Dither       float64 `json:"dither"`
}

// ProcessorSettings holds the per-side processing steps.
type ProcessorSettings struct {
	Resize   ResizeOptions   `json:"resize"`
	Quantize QuantizeOptions `json:"quantize"`
}

// DefaultProcessorSettings returns settings with every step disabled.
func DefaultProcessorSettings() *ProcessorSettings {
	return &ProcessorSettings{
		Resize: ResizeOptions{
			Method:    ResizeLanczos3,
			FitMethod: FitStretch,
		},
		Quantize: QuantizeOptions{
			MaxNumColors: 256,
			Dither:       1.0,
		},
	}
}

// Enabled reports whether the named step is enabled.
func (p *ProcessorSettings) Enabled(step StepName) bool {
	if p == nil {
		return false
	}
	switch step {
	case StepResize:
		return p.Resize.Enabled
	case StepQuantize:
		return p.Quantize.Enabled
	default:
		return false
	}
}

// WithResize returns a copy of p with the resize step replaced.
func (p *ProcessorSettings) WithResize(opts ResizeOptions) *ProcessorSettings {
	next := *p
	next.Resize = opts
	return &next
}

// WithQuantize returns a copy of p with the quantize step replaced.
func (p *ProcessorSettings) WithQuantize(opts QuantizeOptions) *ProcessorSettings {
	next := *p
	next.Quantize = opts
	return &next
}

// Equal compares two settings by value.
func (p *ProcessorSettings) Equal(o *ProcessorSettings) bool {
	if p == nil || o == nil {
		return p == o
	}
	return *p == *o
}

// EncoderKind is one of the registered output encoders.
type EncoderKind string

const (
	EncoderJPEG EncoderKind = "jpeg"
	EncoderPNG  EncoderKind = "png"
	EncoderGIF  EncoderKind = "gif"
	EncoderTIFF EncoderKind = "tiff"
	EncoderBMP  EncoderKind = "bmp"
)

// EncoderOptions carries the kind-specific encoder parameters.
// Each encoder reads only the fields it understands.
type EncoderOptions struct {
	Quality          int `json:"quality,omitempty"`          // jpeg: 1-100
	CompressionLevel int `json:"compressionLevel,omitempty"` // png: 0 default, 1 none, 2 speed, 3 best
	NumColors        int `json:"numColors,omitempty"`        // gif: 1-256
}

// EncoderSettings selects an encoder and its options. A nil *EncoderSettings
// means the side emits the preprocessed image unchanged.
type EncoderSettings struct {
	Kind    EncoderKind    `json:"type"`
	Options EncoderOptions `json:"options"`
}

// Equal compares two encoder settings by value.
func (e *EncoderSettings) Equal(o *EncoderSettings) bool {
	if e == nil || o == nil {
		return e == o
	}
	return *e == *o
}

// WithOptions returns a copy of e with new options.
func (e *EncoderSettings) WithOptions(opts EncoderOptions) *EncoderSettings {
	next := *e
	next.Options = opts
	return &next
}
