// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It runs the real command tree against local git repositories inside an
// isolated home, config and scratch directory.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"

	"github.com/klauern/repomirror/internal/cli"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Stderr contains the captured standard error.
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, temp directories, and output capture.
type Harness struct {
	t          *testing.T
	homeDir    string
	scratchDir string
	failureLog string
}

// NewHarness creates a new E2E test harness. HOME and XDG_CONFIG_HOME point
// into a temp directory, token variables are cleared, and the scratch root
// and failure log are redirected through REPOMIRROR_* variables.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	homeDir := t.TempDir()
	h := &Harness{
		t:          t,
		homeDir:    homeDir,
		scratchDir: filepath.Join(homeDir, "scratch"),
		failureLog: filepath.Join(homeDir, "failed_repos.txt"),
	}

	// Registered first so it runs after the environment is restored.
	t.Cleanup(xdg.Reload)
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	xdg.Reload()

	for _, name := range []string{"REPOMIRROR_SOURCE_TOKEN", "REPOMIRROR_DEST_TOKEN", "GITLAB_TOKEN", "GH_TOKEN", "GITHUB_TOKEN"} {
		t.Setenv(name, "")
	}
	t.Setenv("REPOMIRROR_WORKSPACE_SCRATCH_DIR", h.scratchDir)
	t.Setenv("REPOMIRROR_OUTPUT_FAILURE_LOG", h.failureLog)
	t.Setenv("REPOMIRROR_CREDENTIALS_VALIDATE", "false")
	t.Setenv("REPOMIRROR_MIRROR_RETRY_DELAY", "0s")

	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// ScratchDir returns the scratch root used for working trees.
func (h *Harness) ScratchDir() string {
	return h.scratchDir
}

// FailureLog returns the path failed pairs are written to.
func (h *Harness) FailureLog() string {
	return h.failureLog
}

// Run executes a CLI command with the given arguments and captures stdout
// and stderr.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	if len(args) == 0 || args[0] != "repomirror" {
		args = append([]string{"repomirror", "--no-color"}, args...)
	}

	oldStdout, oldStderr := os.Stdout, os.Stderr
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdout pipe: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stderr pipe: %v", err)
	}
	os.Stdout, os.Stderr = stdoutW, stderrW

	// Read both pipes concurrently so large output cannot block the command.
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutDone := drain(&stdoutBuf, stdoutR)
	stderrDone := drain(&stderrBuf, stderrR)

	cmdErr := cli.Run(context.Background(), args)

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout, os.Stderr = oldStdout, oldStderr
	<-stdoutDone
	<-stderrDone

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}

func drain(dst *bytes.Buffer, r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(dst, r)
	}()
	return done
}
