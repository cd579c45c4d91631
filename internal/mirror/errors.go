package mirror

import (
	"errors"
	"fmt"

	"github.com/klauern/repomirror/internal/model"
)

// Stage names the step of a sync at which an error occurred.
type Stage string

// Sync stages.
const (
	StageClone     Stage = "clone"
	StageRemoteAdd Stage = "remote-add"
	StagePush      Stage = "push"
	StageCleanup   Stage = "cleanup"
)

// Stage sentinels, matched with errors.Is.
var (
	ErrCloneFailed     = errors.New("clone failed")
	ErrRemoteAddFailed = errors.New("remote add failed")
	ErrPushFailed      = errors.New("push failed")
	ErrCleanupFailed   = errors.New("cleanup failed")
)

// SyncError reports the stage at which a sync attempt failed.
type SyncError struct {
	Stage Stage
	Pair  model.RepoPair
	Err   error
}

// Error returns a formatted error message.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause.
func (e *SyncError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *SyncError) sentinel() error {
	switch e.Stage {
	case StageClone:
		return ErrCloneFailed
	case StageRemoteAdd:
		return ErrRemoteAddFailed
	case StagePush:
		return ErrPushFailed
	case StageCleanup:
		return ErrCleanupFailed
	default:
		return fmt.Errorf("%s failed", e.Stage)
	}
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func stageError(stage Stage, pair model.RepoPair, err error) *SyncError {
	return &SyncError{Stage: stage, Pair: pair, Err: err}
}
