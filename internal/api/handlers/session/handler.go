package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/api/respond"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/model"
	sessionsvc "github.com/aliskhannn/image-compressor/internal/service/session"
)

// maxUploadSize bounds the multipart form kept in memory.
const maxUploadSize = 32 << 20

// service defines the session operations exposed over HTTP.
type service interface {
	SetSource(name, mimeHint string, data []byte) (*model.File, error)
	SetPreprocessor(p model.PreprocessorSettings) error
	SetProcessor(side model.Side, p model.ProcessorSettings) error
	SetEncoder(side model.Side, e *model.EncoderSettings) error
	Side(side model.Side) (sessionsvc.SideView, error)
	Artifact(side model.Side) (*model.File, error)
	Publish(ctx context.Context, side model.Side) (model.Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (model.Artifact, io.ReadCloser, error)
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
}

// Handler provides HTTP handlers for the compression session.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// UploadSource replaces the source image with the multipart "image" field
// and responds once the new source has been processed.
func (h *Handler) UploadSource(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadSize); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to upload the file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read the file"))
		return
	}

	f, err := h.service.SetSource(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to set source")
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	respond.Created(c, f)
}

// SetPreprocessor replaces the shared preprocessing settings.
func (h *Handler) SetPreprocessor(c *ginext.Context) {
	var p model.PreprocessorSettings
	if err := json.NewDecoder(c.Request.Body).Decode(&p); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid preprocessor settings: %v", err))
		return
	}

	if err := h.service.SetPreprocessor(p); err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	respond.Accepted(c, p)
}

// SetProcessor replaces the processing settings of a side. Fields missing
// from the body keep their default values.
func (h *Handler) SetProcessor(c *ginext.Context) {
	side, ok := parseSide(c)
	if !ok {
		return
	}

	p := *model.DefaultProcessorSettings()
	if err := json.NewDecoder(c.Request.Body).Decode(&p); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid processor settings: %v", err))
		return
	}

	if err := h.service.SetProcessor(side, p); err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	respond.Accepted(c, p)
}

// SetEncoder replaces the encoder of a side. A JSON null selects identity output.
func (h *Handler) SetEncoder(c *ginext.Context) {
	side, ok := parseSide(c)
	if !ok {
		return
	}

	var e *model.EncoderSettings
	if err := json.NewDecoder(c.Request.Body).Decode(&e); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid encoder settings: %v", err))
		return
	}

	if err := h.service.SetEncoder(side, e); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, codec.ErrUnknownEncoder) || errors.Is(err, sessionsvc.ErrInvalidOptions) {
			status = http.StatusBadRequest
		}
		respond.Fail(c, status, err)
		return
	}

	respond.Accepted(c, e)
}

// GetSide returns the current state of a side.
func (h *Handler) GetSide(c *ginext.Context) {
	side, ok := parseSide(c)
	if !ok {
		return
	}

	v, err := h.service.Side(side)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrNoSource) {
			respond.Fail(c, http.StatusNotFound, err)
			return
		}
		respond.Fail(c, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c, v)
}

// GetSideArtifact serves the encoded bytes currently shown on a side.
func (h *Handler) GetSideArtifact(c *ginext.Context) {
	side, ok := parseSide(c)
	if !ok {
		return
	}

	f, err := h.service.Artifact(side)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrNoArtifact) {
			respond.Fail(c, http.StatusNotFound, err)
			return
		}
		respond.Fail(c, http.StatusInternalServerError, err)
		return
	}

	// The artifact changes with every settings edit.
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	respond.File(c, http.StatusOK, int64(f.Size()), f.MimeType, f.Name, bytes.NewReader(f.Data))
}

// Publish archives the artifact currently shown on a side.
func (h *Handler) Publish(c *ginext.Context) {
	side, ok := parseSide(c)
	if !ok {
		return
	}

	a, err := h.service.Publish(c.Request.Context(), side)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrNoArtifact) {
			respond.Fail(c, http.StatusConflict, err)
			return
		}

		zlog.Logger.Err(err).Msg("failed to publish artifact")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to publish artifact"))
		return
	}

	respond.Created(c, a)
}

// GetArtifact serves a published artifact.
func (h *Handler) GetArtifact(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	a, reader, err := h.service.GetArtifact(c.Request.Context(), id)
	if err != nil {
		if sessionsvc.IsNotFound(err) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("artifact not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get artifact")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get artifact"))
		return
	}
	defer reader.Close()

	respond.File(c, http.StatusOK, int64(a.Size), a.MimeType, a.FileName, reader)
}

// DeleteArtifact removes a published artifact.
func (h *Handler) DeleteArtifact(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteArtifact(c.Request.Context(), id); err != nil {
		if sessionsvc.IsNotFound(err) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("artifact not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to delete artifact")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete artifact"))
		return
	}

	c.Status(http.StatusNoContent)
}

func parseSide(c *ginext.Context) (model.Side, bool) {
	side, err := model.ParseSide(c.Param("side"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid side %q", c.Param("side")))
		return 0, false
	}
	return side, true
}

func parseID(c *ginext.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}
