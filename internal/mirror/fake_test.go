package mirror

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/klauern/repomirror/internal/git"
)

// fakeBackend scripts git.Backend. Clone creates the target directory so
// cleanup has something to remove.
type fakeBackend struct {
	mu sync.Mutex

	cloneErr  error
	remoteErr error
	fetchErr  error
	pushErr   error

	calls    []string
	urls     []string
	dirs     []string
	pushOpts []git.PushOptions
}

func (f *fakeBackend) record(call, url, dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if url != "" {
		f.urls = append(f.urls, url)
	}
	f.dirs = append(f.dirs, dir)
}

func (f *fakeBackend) Clone(_ context.Context, url, dir string, _ git.CloneOptions) error {
	f.record("clone", url, dir)
	if f.cloneErr != nil {
		return f.cloneErr
	}
	return os.MkdirAll(dir, 0o750)
}

func (f *fakeBackend) AddRemote(_ context.Context, dir, name, url string) error {
	f.record("remote-add:"+name, url, dir)
	return f.remoteErr
}

func (f *fakeBackend) Fetch(_ context.Context, dir, remote string) error {
	f.record("fetch:"+remote, "", dir)
	return f.fetchErr
}

func (f *fakeBackend) Push(_ context.Context, dir string, opts git.PushOptions) error {
	f.record("push:"+opts.Remote, "", dir)
	f.mu.Lock()
	f.pushOpts = append(f.pushOpts, opts)
	f.mu.Unlock()
	return f.pushErr
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errRemote = errors.New("remote rejected")
