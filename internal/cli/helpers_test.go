package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauern/repomirror/internal/config"
	"github.com/klauern/repomirror/internal/git"
)

// capture runs fn with stdout and stderr redirected to pipes.
func capture(t *testing.T, fn func() error) (stdout, stderr string, err error) {
	t.Helper()

	oldOut, oldErr := os.Stdout, os.Stderr
	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	os.Stdout, os.Stderr = outW, errW

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = io.Copy(&outBuf, outR) }()
	go func() { defer wg.Done(); _, _ = io.Copy(&errBuf, errR) }()

	err = fn()

	_ = outW.Close()
	_ = errW.Close()
	os.Stdout, os.Stderr = oldOut, oldErr
	wg.Wait()

	return outBuf.String(), errBuf.String(), err
}

// runCLI invokes the app with args after the program name.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return capture(t, func() error {
		return Run(context.Background(), append([]string{"repomirror", "--no-color"}, args...))
	})
}

// testEnv is an isolated config, pairs file and scratch root.
type testEnv struct {
	dir        string
	configPath string
	pairsPath  string
	failureLog string
	scratch    string
}

func newTestEnv(t *testing.T, pairsContent string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		pairsPath:  filepath.Join(dir, "repos.txt"),
		failureLog: filepath.Join(dir, "failed_repos.txt"),
		scratch:    filepath.Join(dir, "scratch"),
	}

	cfg := "mirror:\n" +
		"  pairs_file: " + env.pairsPath + "\n" +
		"  retry_delay: 0s\n" +
		"workspace:\n" +
		"  scratch_dir: " + env.scratch + "\n" +
		"credentials:\n" +
		"  validate: false\n" +
		"output:\n" +
		"  failure_log: " + env.failureLog + "\n" +
		"  progress: false\n"

	if err := os.WriteFile(env.configPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.pairsPath, []byte(pairsContent), 0o600); err != nil {
		t.Fatal(err)
	}
	return env
}

// recordingBackend fails push for sources whose short name contains "fail".
type recordingBackend struct {
	mu     sync.Mutex
	clones []string
	pushes int
}

func (b *recordingBackend) Clone(_ context.Context, url, dir string, _ git.CloneOptions) error {
	b.mu.Lock()
	b.clones = append(b.clones, url)
	b.mu.Unlock()
	return os.MkdirAll(dir, 0o750)
}

func (b *recordingBackend) AddRemote(context.Context, string, string, string) error { return nil }

func (b *recordingBackend) Fetch(context.Context, string, string) error { return nil }

func (b *recordingBackend) Push(_ context.Context, dir string, _ git.PushOptions) error {
	b.mu.Lock()
	b.pushes++
	b.mu.Unlock()
	if strings.Contains(filepath.Base(dir), "fail") {
		return &git.CommandError{Args: []string{"push"}, ExitCode: 1, Output: "remote rejected"}
	}
	return nil
}

func (b *recordingBackend) cloneCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clones)
}

// useBackend swaps the backend factory for the duration of the test.
func useBackend(t *testing.T, b git.Backend) {
	t.Helper()
	old := newBackend
	newBackend = func(*config.Config) git.Backend { return b }
	t.Cleanup(func() { newBackend = old })
}
