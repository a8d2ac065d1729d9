// Package job describes the settings that drove the last completed or
// in-flight pipeline jobs and decides which stages must rerun.
package job

import (
	"github.com/google/uuid"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Main describes what produced the current or in-flight preprocessed image.
type Main struct {
	File         *model.File
	Preprocessor *model.PreprocessorSettings
}

// Side describes what produced the current or in-flight side result.
type Side struct {
	Processor *model.ProcessorSettings
	Encoder   *model.EncoderSettings
}

// Settings converts d into the settings recorded on a completed side.
func (d Side) Settings() *model.SideSettings {
	return &model.SideSettings{Processor: d.Processor, Encoder: d.Encoder}
}

// DesiredMain derives the main job the state asks for.
func DesiredMain(s model.State) Main {
	return Main{File: s.File, Preprocessor: s.Preprocessor}
}

// DesiredSide derives the side job the latest settings ask for. Without an
// encoder, processing is forced to the all-disabled settings.
func DesiredSide(latest model.SideSettings, disabled *model.ProcessorSettings) Side {
	if latest.Encoder == nil {
		return Side{Processor: disabled}
	}
	return Side{Processor: latest.Processor, Encoder: latest.Encoder}
}

// LastMain returns the in-flight main job if any, else the completed one.
func LastMain(active *Main, s model.State) Main {
	if active != nil {
		return *active
	}
	var f *model.File
	if s.Source != nil {
		f = s.Source.File
	}
	return Main{File: f, Preprocessor: s.EncodedPreprocessor}
}

// LastSide returns the in-flight side job if any, else the completed one.
func LastSide(active *Side, s model.SideState) Side {
	if active != nil {
		return *active
	}
	if s.Encoded == nil {
		return Side{}
	}
	return Side{Processor: s.Encoded.Processor, Encoder: s.Encoded.Encoder}
}

func fileID(f *model.File) uuid.UUID {
	if f == nil {
		return uuid.Nil
	}
	return f.ID
}
