// Package feature derives the per-pixel change features fed to the risk model.
package feature

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch means inputs disagree on dimensions after reconciliation.
var ErrShapeMismatch = errors.New("feature input shape mismatch")

// ErrMissingChannel means a polarization needed by a feature is absent.
var ErrMissingChannel = errors.New("missing polarization channel")

// InputError names the upstream raster that could not be used.
type InputError struct {
	Name string
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("feature input %s: %v", e.Name, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }
