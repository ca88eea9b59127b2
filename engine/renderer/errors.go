package renderer

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is returned by a LoadPreset that was cancelled by a newer LoadPreset.
	ErrSuperseded = errors.New("renderer: preset load superseded by a newer load")

	// ErrSessionDisposed is returned by operations on a disposed session.
	ErrSessionDisposed = errors.New("renderer: session disposed")

	// ErrRenderInProgress is returned by Render when another Render on the same session has not returned.
	ErrRenderInProgress = errors.New("renderer: render already in progress")

	// ErrResizeInProgress is returned by Render during a resize under ResizeReject.
	ErrResizeInProgress = errors.New("renderer: resize in progress")

	// ErrNoInput is returned by Render when given an empty input image.
	ErrNoInput = errors.New("renderer: empty input image")

	// ErrForeignSession is returned when a session is handed to a renderer that did not create it.
	ErrForeignSession = errors.New("renderer: session belongs to another renderer")
)

// LoadStage names the step of a preset load that failed.
type LoadStage string

const (
	LoadStageParse   LoadStage = "parse"
	LoadStageFetch   LoadStage = "fetch"
	LoadStageCompile LoadStage = "compile"
	LoadStageGraph   LoadStage = "graph"
	LoadStageInstall LoadStage = "install"
)

// LoadError wraps any failure of LoadPreset with the stage it happened in.
type LoadError struct {
	Stage LoadStage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("renderer: load failed at %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RenderError reports a pass whose draw failed. The frame is abandoned and nothing is presented.
// Pass is -1 when the failure was outside any pass (acquiring or presenting the surface).
type RenderError struct {
	Pass int
	Err  error
}

func (e *RenderError) Error() string {
	if e.Pass < 0 {
		return fmt.Sprintf("renderer: frame failed: %v", e.Err)
	}
	return fmt.Sprintf("renderer: pass %d failed: %v", e.Pass, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// UnknownParameterError is returned by SetParameter for a name no module of the session declares.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("renderer: unknown parameter %q", e.Name)
}
