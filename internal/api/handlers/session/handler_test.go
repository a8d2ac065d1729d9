package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-compressor/internal/api/handlers/session"
	"github.com/aliskhannn/image-compressor/internal/api/router"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/model"
	"github.com/aliskhannn/image-compressor/internal/repository/artifact"
	sessionsvc "github.com/aliskhannn/image-compressor/internal/service/session"
)

type fakeService struct {
	source    *model.File
	pre       model.PreprocessorSettings
	processor map[model.Side]model.ProcessorSettings
	encoder   map[model.Side]*model.EncoderSettings
	artifact  *model.File
	published []model.Artifact
}

func newFakeService() *fakeService {
	return &fakeService{
		processor: make(map[model.Side]model.ProcessorSettings),
		encoder:   make(map[model.Side]*model.EncoderSettings),
	}
}

func (s *fakeService) SetSource(name, mimeHint string, data []byte) (*model.File, error) {
	s.source = model.NewFile(name, mimeHint, data)
	return s.source, nil
}

func (s *fakeService) SetPreprocessor(p model.PreprocessorSettings) error {
	s.pre = p
	return nil
}

func (s *fakeService) SetProcessor(side model.Side, p model.ProcessorSettings) error {
	s.processor[side] = p
	return nil
}

func (s *fakeService) SetEncoder(side model.Side, e *model.EncoderSettings) error {
	if e != nil && e.Kind == "avif" {
		return codec.ErrUnknownEncoder
	}
	s.encoder[side] = e
	return nil
}

func (s *fakeService) Side(side model.Side) (sessionsvc.SideView, error) {
	if s.source == nil {
		return sessionsvc.SideView{}, sessionsvc.ErrNoSource
	}
	return sessionsvc.SideView{Side: side, Identity: true}, nil
}

func (s *fakeService) Artifact(model.Side) (*model.File, error) {
	if s.artifact == nil {
		return nil, sessionsvc.ErrNoArtifact
	}
	return s.artifact, nil
}

func (s *fakeService) Publish(_ context.Context, side model.Side) (model.Artifact, error) {
	if s.artifact == nil {
		return model.Artifact{}, sessionsvc.ErrNoArtifact
	}
	a := model.Artifact{ID: uuid.New(), Side: side, FileName: s.artifact.Name, MimeType: s.artifact.MimeType, Size: s.artifact.Size()}
	s.published = append(s.published, a)
	return a, nil
}

func (s *fakeService) GetArtifact(_ context.Context, id uuid.UUID) (model.Artifact, io.ReadCloser, error) {
	for _, a := range s.published {
		if a.ID == id {
			return a, io.NopCloser(bytes.NewReader(s.artifact.Data)), nil
		}
	}
	return model.Artifact{}, nil, artifact.ErrArtifactNotFound
}

func (s *fakeService) DeleteArtifact(_ context.Context, id uuid.UUID) error {
	for i, a := range s.published {
		if a.ID == id {
			s.published = append(s.published[:i], s.published[i+1:]...)
			return nil
		}
	}
	return artifact.ErrArtifactNotFound
}

func serve(t *testing.T, svc *fakeService, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	r := router.Setup(session.NewHandler(svc))
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestHandler_UploadSource tests the multipart upload.
func TestHandler_UploadSource(t *testing.T) {
	svc := newFakeService()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "cat.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("pixels"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := serve(t, svc, http.MethodPost, "/api/source", &buf, mw.FormDataContentType())

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.source)
	assert.Equal(t, "cat.png", svc.source.Name)
	assert.Equal(t, "pixels", string(svc.source.Data))
}

// TestHandler_UploadSourceMissingField tests a form without the image field.
func TestHandler_UploadSourceMissingField(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	w := serve(t, newFakeService(), http.MethodPost, "/api/source", &buf, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandler_SetProcessor tests that omitted fields keep their defaults.
func TestHandler_SetProcessor(t *testing.T) {
	svc := newFakeService()

	body := `{"resize":{"enabled":true,"width":100,"height":50}}`
	w := serve(t, svc, http.MethodPut, "/api/sides/b/processor", strings.NewReader(body), "application/json")

	assert.Equal(t, http.StatusAccepted, w.Code)
	p := svc.processor[model.SideB]
	assert.True(t, p.Resize.Enabled)
	assert.Equal(t, 100, p.Resize.Width)
	assert.Equal(t, 256, p.Quantize.MaxNumColors)
}

// TestHandler_SetEncoder tests explicit, null and unknown encoders.
func TestHandler_SetEncoder(t *testing.T) {
	svc := newFakeService()

	w := serve(t, svc, http.MethodPut, "/api/sides/a/encoder", strings.NewReader(`{"type":"jpeg","options":{"quality":40}}`), "application/json")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, svc.encoder[model.SideA])
	assert.Equal(t, 40, svc.encoder[model.SideA].Options.Quality)

	w = serve(t, svc, http.MethodPut, "/api/sides/a/encoder", strings.NewReader(`null`), "application/json")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Nil(t, svc.encoder[model.SideA])

	w = serve(t, svc, http.MethodPut, "/api/sides/a/encoder", strings.NewReader(`{"type":"avif"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandler_InvalidSide tests the side path parameter.
func TestHandler_InvalidSide(t *testing.T) {
	w := serve(t, newFakeService(), http.MethodGet, "/api/sides/c", nil, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandler_GetSide tests the side view before and after a source exists.
func TestHandler_GetSide(t *testing.T) {
	svc := newFakeService()

	w := serve(t, svc, http.MethodGet, "/api/sides/a", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.source = model.NewFile("a.png", "image/png", []byte("x"))
	w = serve(t, svc, http.MethodGet, "/api/sides/a", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result sessionsvc.SideView `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Identity)
}

// TestHandler_SideArtifact tests streaming of the current artifact.
func TestHandler_SideArtifact(t *testing.T) {
	svc := newFakeService()

	w := serve(t, svc, http.MethodGet, "/api/sides/b/artifact", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.artifact = model.NewFile("a.jpg", "image/jpeg", []byte("jpeg"))
	w = serve(t, svc, http.MethodGet, "/api/sides/b/artifact", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "a.jpg")
	assert.Equal(t, "jpeg", w.Body.String())
}

// TestHandler_PublishLifecycle tests publish, download and delete.
func TestHandler_PublishLifecycle(t *testing.T) {
	svc := newFakeService()

	w := serve(t, svc, http.MethodPost, "/api/sides/b/publish", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.artifact = model.NewFile("a.jpg", "image/jpeg", []byte("jpeg"))
	w = serve(t, svc, http.MethodPost, "/api/sides/b/publish", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := svc.published[0].ID

	w = serve(t, svc, http.MethodGet, "/api/artifacts/"+id.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())

	w = serve(t, svc, http.MethodDelete, "/api/artifacts/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, svc, http.MethodGet, "/api/artifacts/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, svc, http.MethodGet, "/api/artifacts/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
