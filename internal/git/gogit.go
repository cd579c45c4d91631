package git

import (
	"context"
	"errors"
	"fmt"
	"io"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/klauern/repomirror/internal/model"
)

// mirrorRefSpec maps every ref one-to-one.
const mirrorRefSpec = config.RefSpec("+refs/*:refs/*")

// GoGit implements Backend in-process with go-git. Working trees are bare
// repositories; URLs with embedded credentials are kept in the scratch
// repository's config and turned into basic auth per operation.
type GoGit struct {
	// Progress receives sideband output. Nil discards it.
	Progress io.Writer
}

// NewGoGit creates a go-git backend.
func NewGoGit() *GoGit {
	return &GoGit{}
}

// Clone implements Backend.
func (g *GoGit) Clone(ctx context.Context, url, dir string, opts CloneOptions) error {
	co := &gogit.CloneOptions{
		URL:      url,
		Auth:     authFor(url),
		Progress: g.Progress,
	}
	switch opts.Mode {
	case model.PushBranch:
		co.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		co.SingleBranch = true
	default:
		co.Mirror = true
	}

	if _, err := gogit.PlainCloneContext(ctx, dir, true, co); err != nil {
		return redactErr("clone", err, url)
	}
	return nil
}

// AddRemote implements Backend.
func (g *GoGit) AddRemote(_ context.Context, dir, name, url string) error {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return redactErr("remote add", err, url)
	}
	return nil
}

// Fetch implements Backend.
func (g *GoGit) Fetch(ctx context.Context, dir, remote string) error {
	repo, url, err := openRemote(dir, remote)
	if err != nil {
		return err
	}

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remote,
		Auth:       authFor(url),
		Progress:   g.Progress,
		Prune:      true,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return redactErr("fetch", err, url)
	}
	return nil
}

// Push implements Backend.
func (g *GoGit) Push(ctx context.Context, dir string, opts PushOptions) error {
	repo, url, err := openRemote(dir, opts.Remote)
	if err != nil {
		return err
	}

	po := &gogit.PushOptions{
		RemoteName: opts.Remote,
		Auth:       authFor(url),
		Progress:   g.Progress,
		Force:      true,
	}
	switch opts.Mode {
	case model.PushBranch:
		ref := BranchRef(opts.Branch)
		po.RefSpecs = []config.RefSpec{config.RefSpec("+" + ref + ":" + ref)}
	default:
		po.RefSpecs = []config.RefSpec{mirrorRefSpec}
		po.Prune = true
	}

	err = repo.PushContext(ctx, po)
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return redactErr("push", err, url)
	}
	return nil
}

func openRemote(dir, name string) (*gogit.Repository, string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dir, err)
	}
	remote, err := repo.Remote(name)
	if err != nil {
		return nil, "", fmt.Errorf("remote %q: %w", name, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, "", fmt.Errorf("remote %q has no URL", name)
	}
	return repo, urls[0], nil
}

// authFor turns URL credentials into basic auth, or nil when there are none.
func authFor(url string) transport.AuthMethod {
	_, username, password, ok := StripAuth(url)
	if !ok {
		return nil
	}
	return &http.BasicAuth{Username: username, Password: password}
}

// redactErr flattens err into a message without credentials. The original
// error is dropped because go-git errors may embed the URL.
func redactErr(op string, err error, url string) error {
	return fmt.Errorf("git %s: %s", op, Redact(err.Error(), secretsIn([]string{url})...))
}
