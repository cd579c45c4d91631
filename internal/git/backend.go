// Package git is the boundary to the version-control tool. Every operation
// takes the working path explicitly; nothing here changes the process
// working directory, so backends are safe to call from concurrent workers.
package git

import (
	"context"

	"github.com/klauern/repomirror/internal/model"
)

// OriginRemote is the remote name a clone gives its source.
const OriginRemote = "origin"

// CloneOptions configures how the source is materialized.
type CloneOptions struct {
	// Mode selects a full mirror clone or a single-branch clone.
	Mode model.PushMode
	// Branch is the branch to clone in branch mode.
	Branch string
}

// PushOptions configures how refs are published.
type PushOptions struct {
	// Mode selects mirror (all refs, pruned) or branch (one branch, forced).
	Mode model.PushMode
	// Remote is the destination remote name.
	Remote string
	// Branch is the branch pushed in branch mode.
	Branch string
}

// Backend runs the primitive version-control operations against a working
// directory. URLs may carry embedded credentials; implementations must not
// return them in errors.
type Backend interface {
	// Clone materializes url into dir. dir must not exist yet.
	Clone(ctx context.Context, url, dir string, opts CloneOptions) error
	// AddRemote registers url as remote name inside dir.
	AddRemote(ctx context.Context, dir, name, url string) error
	// Fetch updates dir from remote, pruning refs the remote no longer has.
	Fetch(ctx context.Context, dir, remote string) error
	// Push publishes refs from dir according to opts.
	Push(ctx context.Context, dir string, opts PushOptions) error
}

// BranchRef returns the full ref name for a branch.
func BranchRef(branch string) string {
	return "refs/heads/" + branch
}
