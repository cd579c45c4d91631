// Package mirror copies repositories from a source host to a destination
// host. An Operator performs a single attempt for one pair, a Retrier
// repeats attempts with a fixed delay, and a Scheduler runs many pairs on a
// bounded worker pool.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauern/repomirror/internal/credentials"
	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
	"github.com/klauern/repomirror/internal/workspace"
)

// DefaultRemoteName is the remote the destination is registered under.
const DefaultRemoteName = "mirror"

// Syncer performs one sync attempt for a pair.
type Syncer interface {
	Sync(ctx context.Context, pair model.RepoPair) error
}

// Operator mirrors one pair per call: clone the source into a fresh scratch
// directory, register the destination, fetch, push, and remove the
// directory again. It holds no per-call state and is safe for concurrent use.
type Operator struct {
	// Backend runs the git operations.
	Backend git.Backend
	// Credentials supplies the source and destination tokens.
	Credentials credentials.Provider
	// ScratchRoot is the directory working trees are allocated under.
	ScratchRoot string
	// Mode selects mirror or single-branch push.
	Mode model.PushMode
	// Branch is the branch pushed in branch mode.
	Branch string
	// RemoteName is the name given to the destination remote.
	RemoteName string
	// SourceUsername and DestUsername are paired with the tokens in URLs.
	SourceUsername string
	DestUsername   string
}

// Validate checks that the operator is fully configured.
func (o *Operator) Validate() error {
	var errs []error
	if o.Backend == nil {
		errs = append(errs, errors.New("no git backend configured"))
	}
	if o.ScratchRoot == "" {
		errs = append(errs, errors.New("no scratch root configured"))
	}
	if !o.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("invalid push mode %q", o.Mode))
	}
	if o.Mode == model.PushBranch && o.Branch == "" {
		errs = append(errs, errors.New("branch push mode requires a branch"))
	}
	if o.remoteName() == git.OriginRemote {
		errs = append(errs, fmt.Errorf("remote name %q is reserved for the source", git.OriginRemote))
	}
	return errors.Join(errs...)
}

// Sync implements Syncer. The scratch directory is removed before Sync
// returns whatever the outcome; a removal failure is logged and does not
// change the result.
func (o *Operator) Sync(ctx context.Context, pair model.RepoPair) error {
	if err := o.Validate(); err != nil {
		return err
	}
	log := logging.FromContext(ctx)
	if log == nil {
		log = logging.With(logging.Source(git.Redact(pair.Source)), logging.Dest(git.Redact(pair.Dest)))
	}

	dir, err := workspace.Allocate(o.ScratchRoot, pair)
	if err != nil {
		return stageError(StageClone, pair, err)
	}
	defer func() {
		if rmErr := dir.Remove(); rmErr != nil {
			log.Warn("failed to remove working directory",
				logging.Stage(string(StageCleanup)),
				logging.Path(dir.Path),
				logging.Err(stageError(StageCleanup, pair, rmErr)),
			)
		}
	}()

	creds := o.Credentials
	if creds == nil {
		creds = credentials.Static{}
	}

	sourceURL, err := git.AuthURL(pair.Source, o.SourceUsername, creds.SourceToken())
	if err != nil {
		return stageError(StageClone, pair, err)
	}
	log.Debug("cloning source", logging.Path(dir.Path))
	if err := o.Backend.Clone(ctx, sourceURL, dir.Path, git.CloneOptions{Mode: o.Mode, Branch: o.Branch}); err != nil {
		return stageError(StageClone, pair, err)
	}

	remote := o.remoteName()
	destURL, err := git.AuthURL(pair.Dest, o.DestUsername, creds.DestToken())
	if err != nil {
		return stageError(StageRemoteAdd, pair, err)
	}
	if err := o.Backend.AddRemote(ctx, dir.Path, remote, destURL); err != nil {
		return stageError(StageRemoteAdd, pair, err)
	}

	if err := o.Backend.Fetch(ctx, dir.Path, git.OriginRemote); err != nil {
		return stageError(StagePush, pair, err)
	}
	log.Debug("pushing to destination", logging.Operation(string(o.Mode)))
	if err := o.Backend.Push(ctx, dir.Path, git.PushOptions{Mode: o.Mode, Remote: remote, Branch: o.Branch}); err != nil {
		return stageError(StagePush, pair, err)
	}
	return nil
}

func (o *Operator) remoteName() string {
	if o.RemoteName == "" {
		return DefaultRemoteName
	}
	return o.RemoteName
}
