package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Kind names the setting an event changes.
type Kind string

const (
	KindPreprocess Kind = "preprocess"
	KindProcessor  Kind = "processor"
	KindEncoder    Kind = "encoder"
)

var ErrUnknownKind = errors.New("unknown settings kind")

// Event is a settings change received from Kafka. Side is ignored for
// preprocess events; a null encoder payload selects identity output.
// A processor payload is merged into the side's current settings.
type Event struct {
	Kind    Kind            `json:"kind"`
	Side    string          `json:"side,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// service defines the session operations driven by settings events.
type service interface {
	SetPreprocessor(p model.PreprocessorSettings) error
	Processor(side model.Side) (model.ProcessorSettings, error)
	SetProcessor(side model.Side, p model.ProcessorSettings) error
	SetEncoder(side model.Side, e *model.EncoderSettings) error
}

// Handler applies settings events to the session.
type Handler struct {
	service service
}

// NewHandler creates a new handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Handle decodes a settings event and applies it.
func (h *Handler) Handle(_ context.Context, msg kafka.Message) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("unmarshal settings event: %w", err)
	}

	if err := h.apply(ev); err != nil {
		return fmt.Errorf("apply %s settings: %w", ev.Kind, err)
	}

	zlog.Logger.Debug().Str("kind", string(ev.Kind)).Str("side", ev.Side).Msg("settings applied")
	return nil
}

func (h *Handler) apply(ev Event) error {
	if ev.Kind == KindPreprocess {
		var p model.PreprocessorSettings
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return h.service.SetPreprocessor(p)
	}

	side, err := model.ParseSide(ev.Side)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case KindProcessor:
		p, err := h.service.Processor(side)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return h.service.SetProcessor(side, p)
	case KindEncoder:
		var e *model.EncoderSettings
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &e); err != nil {
				return err
			}
		}
		return h.service.SetEncoder(side, e)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
}
