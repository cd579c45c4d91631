package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when the git executable is unavailable.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
}

// Fixture creates repositories and pair files under a base directory.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// TempFixture creates a fixture helper for a new temporary directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := f.Path(relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		f.t.Fatalf("failed to create directory for %s: %v", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}
	return fullPath
}

// WritePairs writes a pairs file with one "source,dest" line per entry.
func (f *Fixture) WritePairs(relPath string, pairs ...[2]string) string {
	f.t.Helper()
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(p[0] + "," + p[1] + "\n")
	}
	return f.WriteFile(relPath, sb.String())
}

// Git runs git in dir and returns trimmed output.
func (f *Fixture) Git(dir string, args ...string) string {
	f.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=e2e", "GIT_AUTHOR_EMAIL=e2e@example.com",
		"GIT_COMMITTER_NAME=e2e", "GIT_COMMITTER_EMAIL=e2e@example.com",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		f.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// SourceRepo creates a repository with a main branch, a feature branch and
// a tag, and returns its path.
func (f *Fixture) SourceRepo(relPath string) string {
	f.t.Helper()
	dir := f.Path(relPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create %s: %v", dir, err)
	}
	f.Git(dir, "-c", "init.defaultBranch=main", "init", "--quiet")
	f.Git(dir, "commit", "--quiet", "--allow-empty", "-m", "initial")
	f.Git(dir, "tag", "v1.0.0")
	f.Git(dir, "branch", "feature")
	f.Git(dir, "commit", "--quiet", "--allow-empty", "-m", "second")
	return dir
}

// BareRepo creates an empty bare repository and returns its path.
func (f *Fixture) BareRepo(relPath string) string {
	f.t.Helper()
	dir := f.Path(relPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create %s: %v", dir, err)
	}
	f.Git(dir, "init", "--quiet", "--bare")
	return dir
}

// Refs lists branch and tag refs with their object IDs.
func (f *Fixture) Refs(dir string) string {
	f.t.Helper()
	return f.Git(dir, "for-each-ref", "--format=%(refname) %(objectname)", "refs/heads", "refs/tags")
}
