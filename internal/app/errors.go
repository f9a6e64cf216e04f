package app

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("no question provided")

// Pipeline stages, in the order AskService runs them.
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageResolve  = "resolve"
	StageGenerate = "generate"
)

// StageError records which collaborator call failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
