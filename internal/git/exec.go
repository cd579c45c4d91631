package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
)

// CommandError reports a git invocation that exited non-zero. Args and
// Output are already redacted.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	if out := lastLines(e.Output, 5); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// CLI runs the git executable.
type CLI struct {
	// Binary is the git executable. Defaults to "git".
	Binary string
	// Env is appended to the inherited environment.
	Env []string
}

// NewCLI creates a CLI backend for binary.
func NewCLI(binary string) *CLI {
	return &CLI{Binary: binary}
}

// Clone implements Backend.
func (c *CLI) Clone(ctx context.Context, url, dir string, opts CloneOptions) error {
	args := []string{"clone", "--quiet"}
	switch opts.Mode {
	case model.PushBranch:
		args = append(args, "--branch", opts.Branch, "--single-branch")
	default:
		args = append(args, "--mirror")
	}
	args = append(args, "--", url, dir)
	_, err := c.run(ctx, "", args...)
	return err
}

// AddRemote implements Backend.
func (c *CLI) AddRemote(ctx context.Context, dir, name, url string) error {
	_, err := c.run(ctx, dir, "remote", "add", name, url)
	return err
}

// Fetch implements Backend.
func (c *CLI) Fetch(ctx context.Context, dir, remote string) error {
	_, err := c.run(ctx, dir, "fetch", "--quiet", "--prune", remote)
	return err
}

// Push implements Backend.
func (c *CLI) Push(ctx context.Context, dir string, opts PushOptions) error {
	var args []string
	switch opts.Mode {
	case model.PushBranch:
		ref := BranchRef(opts.Branch)
		args = []string{"push", "--quiet", "--force", opts.Remote, ref + ":" + ref}
	default:
		args = []string{"push", "--quiet", "--mirror", opts.Remote}
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// run executes git in dir and returns its combined output.
func (c *CLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = "git"
	}

	secrets := secretsIn(args)
	redactedArgs := make([]string, len(args))
	for i, a := range args {
		redactedArgs[i] = Redact(a, secrets...)
	}

	// #nosec G204 - binary is configured by the operator, args are built here
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, c.Env...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := Redact(strings.TrimSpace(out.String()), secrets...)

	logging.Debug("git command finished",
		logging.Operation(redactedArgs[0]),
		logging.Path(dir),
		logging.Err(err),
		"duration", time.Since(start),
	)

	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return output, &CommandError{
			Args:     redactedArgs,
			ExitCode: code,
			Output:   output,
			Err:      errors.New(Redact(err.Error(), secrets...)),
		}
	}
	return output, nil
}

// lastLines returns the final n non-empty lines of s joined by "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
