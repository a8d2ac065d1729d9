package model

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is a published side result.
type Artifact struct {
	ID        uuid.UUID          `json:"id"`
	Side      Side               `json:"side"`
	FileName  string             `json:"file_name"`
	MimeType  string             `json:"mime_type"`
	Size      int                `json:"size"`
	Path      string             `json:"path"`
	Encoder   *EncoderSettings   `json:"encoder"`
	Processor *ProcessorSettings `json:"processor"`
	CreatedAt time.Time          `json:"created_at"`
}
