package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrNoText means the document produced no extractable text.
	ErrNoText = errors.New("document contains no extractable text")
	// ErrEmptyReply means the model answered without any assistant text.
	ErrEmptyReply = errors.New("model returned an empty reply")
)

type Stage string

const (
	StageFingerprint   Stage = "fingerprint"
	StageCheckCache    Stage = "check_cache"
	StageExtract       Stage = "extract"
	StageEmbedAndStore Stage = "embed_and_store"
	StageInvokeModel   Stage = "invoke_model"
	StagePersist       Stage = "persist"
)

// StageError records the pipeline stage a failure happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
