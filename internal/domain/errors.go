package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrDuplicateImage  = errors.New("image reference already exists")
	ErrDuplicateAsset  = errors.New("asset already exists for pose record")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoPose          = errors.New("no pose detected in image")
	ErrUnreadableImage = errors.New("image could not be decoded")
	ErrRateLimited     = errors.New("too many requests")
)

// DependencyError reports that the pose engine's runtime is missing one or
// more required packages. It is raised from the self-check result, before
// the extraction process is ever started.
type DependencyError struct {
	Missing []string
}

func (e *DependencyError) Error() string {
	return "pose engine missing dependencies: " + strings.Join(e.Missing, ", ")
}

// ProcessError reports an extraction process that exited non-zero for a
// reason other than a known dependency gap. Diagnostic carries the captured
// stderr text for debugging; callers must branch on the type, not the text.
type ProcessError struct {
	ExitCode   int
	Diagnostic string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("pose engine exited with code %d: %s", e.ExitCode, e.Diagnostic)
}

// TimeoutError reports an extraction that exceeded its wall-clock limit and
// was force-terminated.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pose extraction exceeded %s limit", e.Limit)
}

// ParseError reports engine output that contained no decodable result line.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparseable engine output: " + e.Reason
}

// StoreError wraps a failure from one of the stores with the store's name
// and the failing operation, so callers see which side of the dual write
// misbehaved without parsing message text.
type StoreError struct {
	Store string // "pose", "log", or "asset"
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return e.Store + " store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }
