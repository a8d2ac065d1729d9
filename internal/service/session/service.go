// Package session is the consumer layer of the pipeline: it applies setting
// changes to the controller, schedules reconciles and archives results.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/debounce"
	"github.com/aliskhannn/image-compressor/internal/model"
	"github.com/aliskhannn/image-compressor/internal/repository/artifact"
	"github.com/aliskhannn/image-compressor/internal/storage/file"
)

var (
	ErrNoSource    = errors.New("no source image")
	ErrNoArtifact  = errors.New("side has no encoded artifact")
	ErrInvalidSide = model.ErrInvalidSide
)

const artifactPrefix = "artifacts"

// controller is the pipeline the session drives.
type controller interface {
	State() model.State
	SetFile(f *model.File) error
	SetPreprocessorSettings(p *model.PreprocessorSettings) error
	SetProcessorSettings(i model.Side, p *model.ProcessorSettings) error
	SetEncoderSettings(i model.Side, e *model.EncoderSettings) error
	Reconcile() error
}

// encoders fills in default encoder options.
type encoders interface {
	Defaults(kind model.EncoderKind) (*model.EncoderSettings, error)
}

// fileStorage archives published artifacts.
type fileStorage interface {
	Save(ctx context.Context, objectName, contentType string, src io.Reader, size int64) (string, error)
	Load(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
}

// repository records artifact metadata.
type repository interface {
	SaveArtifact(ctx context.Context, a model.Artifact) (model.Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (model.Artifact, error)
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
}

// SideView is the externally visible state of one side.
type SideView struct {
	Side     model.Side         `json:"side"`
	Loading  bool               `json:"loading"`
	Settings model.SideSettings `json:"settings"`
	Identity bool               `json:"identity"`
	FileName string             `json:"file_name,omitempty"`
	MimeType string             `json:"mime_type,omitempty"`
	Size     int                `json:"size"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
}

// Service owns one editing session.
type Service struct {
	ctrl      controller
	encoders  encoders
	storage   fileStorage
	repo      repository
	scheduler *debounce.Debouncer
}

// NewService creates a Service. Setting changes are reconciled once no
// further change arrived for quiet; a new source is reconciled immediately.
func NewService(ctrl controller, enc encoders, fs fileStorage, repo repository, quiet time.Duration) *Service {
	s := &Service{
		ctrl:     ctrl,
		encoders: enc,
		storage:  fs,
		repo:     repo,
	}
	s.scheduler = debounce.New(quiet, s.reconcile)
	return s
}

func (s *Service) reconcile() {
	if err := s.ctrl.Reconcile(); err != nil {
		zlog.Logger.Err(err).Msg("reconcile failed")
	}
}

// Close stops scheduling reconciles.
func (s *Service) Close() {
	s.scheduler.Stop()
}

// SetSource replaces the source image. The MIME type is sniffed from data;
// mimeHint is used only when the content is not recognised.
func (s *Service) SetSource(name, mimeHint string, data []byte) (*model.File, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("set source: %w", ErrNoSource)
	}

	f := model.NewFile(name, codec.Sniff(data, mimeHint), data)
	if err := s.ctrl.SetFile(f); err != nil {
		return nil, fmt.Errorf("set source: %w", err)
	}

	zlog.Logger.Info().Str("file", f.Name).Str("mime", f.MimeType).Int("size", f.Size()).Msg("source replaced")
	s.scheduler.Request(true)

	return f, nil
}

// SetPreprocessor replaces the shared preprocessing settings.
func (s *Service) SetPreprocessor(p model.PreprocessorSettings) error {
	switch p.Rotate.Rotate {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("set preprocessor: unsupported rotation %d", p.Rotate.Rotate)
	}

	if err := s.ctrl.SetPreprocessorSettings(&p); err != nil {
		return fmt.Errorf("set preprocessor: %w", err)
	}
	s.scheduler.Request(false)
	return nil
}

// Processor returns a copy of the latest processing settings of a side.
func (s *Service) Processor(side model.Side) (model.ProcessorSettings, error) {
	if !side.Valid() {
		return model.ProcessorSettings{}, ErrInvalidSide
	}

	p := s.ctrl.State().Sides[side].Latest.Processor
	if p == nil {
		return *model.DefaultProcessorSettings(), nil
	}
	return *p, nil
}

// SetProcessor replaces the processing settings of a side.
func (s *Service) SetProcessor(side model.Side, p model.ProcessorSettings) error {
	if p.Quantize.Enabled && (p.Quantize.MaxNumColors < 2 || p.Quantize.MaxNumColors > 256) {
		return fmt.Errorf("set processor: max colors %d out of range", p.Quantize.MaxNumColors)
	}
	if p.Resize.Enabled && (p.Resize.Width <= 0 || p.Resize.Height <= 0) {
		return fmt.Errorf("set processor: invalid resize %dx%d", p.Resize.Width, p.Resize.Height)
	}

	if err := s.ctrl.SetProcessorSettings(side, &p); err != nil {
		return fmt.Errorf("set processor: %w", err)
	}
	s.scheduler.Request(false)
	return nil
}

// SetEncoder replaces the encoder of a side; nil selects identity output.
// Each option left at zero takes the encoder's default for that field.
func (s *Service) SetEncoder(side model.Side, e *model.EncoderSettings) error {
	if e != nil {
		if err := validateEncoderOptions(e.Options); err != nil {
			return fmt.Errorf("set encoder: %w", err)
		}

		defaults, err := s.encoders.Defaults(e.Kind)
		if err != nil {
			return fmt.Errorf("set encoder: %w", err)
		}
		e = defaults.WithOptions(mergeOptions(e.Options, defaults.Options))
	}

	if err := s.ctrl.SetEncoderSettings(side, e); err != nil {
		return fmt.Errorf("set encoder: %w", err)
	}
	s.scheduler.Request(false)
	return nil
}

var ErrInvalidOptions = errors.New("invalid encoder options")

func validateEncoderOptions(o model.EncoderOptions) error {
	switch {
	case o.Quality < 0 || o.Quality > 100:
		return fmt.Errorf("%w: quality %d out of range 1..100", ErrInvalidOptions, o.Quality)
	case o.CompressionLevel < 0 || o.CompressionLevel > 3:
		return fmt.Errorf("%w: compression level %d out of range 0..3", ErrInvalidOptions, o.CompressionLevel)
	case o.NumColors < 0 || o.NumColors > 256:
		return fmt.Errorf("%w: colors %d out of range 1..256", ErrInvalidOptions, o.NumColors)
	}
	return nil
}

// mergeOptions fills the zero fields of o from defaults.
func mergeOptions(o, defaults model.EncoderOptions) model.EncoderOptions {
	if o.Quality == 0 {
		o.Quality = defaults.Quality
	}
	if o.CompressionLevel == 0 {
		o.CompressionLevel = defaults.CompressionLevel
	}
	if o.NumColors == 0 {
		o.NumColors = defaults.NumColors
	}
	return o
}

// Side returns the current view of a side.
func (s *Service) Side(side model.Side) (SideView, error) {
	if !side.Valid() {
		return SideView{}, ErrInvalidSide
	}

	st := s.ctrl.State()
	if st.Source == nil {
		return SideView{}, ErrNoSource
	}

	ss := st.Sides[side]
	v := SideView{
		Side:     side,
		Loading:  ss.Loading || st.Loading,
		Settings: ss.Latest,
		Identity: ss.Latest.Encoder == nil,
	}
	v.Width, v.Height = ss.Preview.Size()
	if ss.File != nil {
		v.FileName, v.MimeType, v.Size = ss.File.Name, ss.File.MimeType, ss.File.Size()
	}

	return v, nil
}

// Artifact returns the encoded file currently shown on a side.
func (s *Service) Artifact(side model.Side) (*model.File, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	ss := s.ctrl.State().Sides[side]
	if ss.File == nil {
		return nil, ErrNoArtifact
	}
	return ss.File, nil
}

// Publish archives the artifact currently shown on a side.
func (s *Service) Publish(ctx context.Context, side model.Side) (model.Artifact, error) {
	if !side.Valid() {
		return model.Artifact{}, ErrInvalidSide
	}

	ss := s.ctrl.State().Sides[side]
	if ss.File == nil || ss.Encoded == nil {
		return model.Artifact{}, ErrNoArtifact
	}

	id := uuid.New()
	objectName := file.ObjectName(artifactPrefix, id.String(), ss.File.Name)

	dst, err := s.storage.Save(ctx, objectName, ss.File.MimeType, bytes.NewReader(ss.File.Data), int64(ss.File.Size()))
	if err != nil {
		return model.Artifact{}, fmt.Errorf("publish: failed to save file: %w", err)
	}

	a, err := s.repo.SaveArtifact(ctx, model.Artifact{
		ID:        id,
		Side:      side,
		FileName:  ss.File.Name,
		MimeType:  ss.File.MimeType,
		Size:      ss.File.Size(),
		Path:      dst,
		Encoder:   ss.Encoded.Encoder,
		Processor: ss.Encoded.Processor,
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, dst); delErr != nil {
			zlog.Logger.Err(delErr).Str("path", dst).Msg("failed to remove orphaned artifact")
		}
		return model.Artifact{}, fmt.Errorf("publish: failed to save metadata: %w", err)
	}

	zlog.Logger.Info().Str("id", a.ID.String()).Str("path", a.Path).Msg("artifact published")
	return a, nil
}

// GetArtifact returns a published artifact and a reader of its contents.
func (s *Service) GetArtifact(ctx context.Context, id uuid.UUID) (model.Artifact, io.ReadCloser, error) {
	a, err := s.repo.GetArtifact(ctx, id)
	if err != nil {
		return model.Artifact{}, nil, fmt.Errorf("get artifact: %w", err)
	}

	r, err := s.storage.Load(ctx, a.Path)
	if err != nil {
		return model.Artifact{}, nil, fmt.Errorf("get artifact: %w", err)
	}

	return a, r, nil
}

// DeleteArtifact removes a published artifact.
func (s *Service) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetArtifact(ctx, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	if err := s.storage.Delete(ctx, a.Path); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if err := s.repo.DeleteArtifact(ctx, id); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	return nil
}

// IsNotFound reports whether err means a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, artifact.ErrArtifactNotFound) || errors.Is(err, file.ErrObjectNotFound)
}
