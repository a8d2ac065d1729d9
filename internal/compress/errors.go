package compress

import (
	"context"
	"fmt"

	"github.com/aliskhannn/image-compressor/internal/cancel"
)

// Stage names a pipeline phase.
type Stage string

const (
	StageDecode     Stage = "decode"
	StagePreprocess Stage = "preprocess"
	StageProcess    Stage = "process"
	StageEncode     Stage = "encode"
)

// StageError tags a collaborator failure with its scope and stage.
type StageError struct {
	Scope cancel.Scope
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Scope, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr wraps err unless tok was signalled, in which case the outcome is
// the cancellation itself. An error that merely wraps context.Canceled while
// tok is live is a failure.
func stageErr(tok context.Context, scope cancel.Scope, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	if cerr := cancel.Err(tok); cerr != nil {
		return cerr
	}
	return &StageError{Scope: scope, Stage: stage, Err: err}
}
