package model

import (
	"errors"
	"strings"
)

// ErrInvalidSide is returned for a side index other than SideA or SideB.
var ErrInvalidSide = errors.New("invalid side")

// Side identifies one of the two output branches.
type Side int

const (
	SideA Side = 0
	SideB Side = 1
)

// Sides lists both sides in index order.
var Sides = [2]Side{SideA, SideB}

// Valid reports whether s is SideA or SideB.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

func (s Side) String() string {
	if s == SideB {
		return "b"
	}
	return "a"
}

// ParseSide accepts "a", "b", "0" or "1".
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(v) {
	case "a", "0":
		return SideA, nil
	case "b", "1":
		return SideB, nil
	}
	return 0, ErrInvalidSide
}

// SideSettings are the user-editable settings of one side.
type SideSettings struct {
	Processor *ProcessorSettings `json:"processor"`
	Encoder   *EncoderSettings   `json:"encoder"`
}

// SideState is the snapshot of one side.
type SideState struct {
	Latest    SideSettings
	Encoded   *SideSettings // settings that produced the shown result
	Processed *Bitmap
	File      *File // nil for identity output
	Preview   *Bitmap
	Loading   bool
}

// State is an immutable snapshot of the whole session. Updates copy the
// struct and replace only the affected branch.
type State struct {
	File                *File // latest source requested by the user
	Preprocessor        *PreprocessorSettings
	Source              *SourceImage // last completed main stage
	EncodedPreprocessor *PreprocessorSettings
	Loading             bool
	Sides               [2]SideState
}

// WithSide returns a copy of s with side i replaced.
func (s State) WithSide(i Side, side SideState) State {
	s.Sides[i] = side
	return s
}

// SideEvent describes a completed side job.
type SideEvent struct {
	Side     Side   `json:"side"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int    `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Cached   bool   `json:"cached"`
	Identity bool   `json:"identity"`
}
