package updater

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s", strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	return msg + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// gitCommand is one git invocation in a working directory.
type gitCommand struct {
	bin  string
	dir  string
	args []string
}

func newGitCommand(bin, dir string, args ...string) *gitCommand {
	return &gitCommand{bin: bin, dir: dir, args: args}
}

// run executes the command and returns its stdout. Credential prompts are
// disabled so an unattended fetch fails instead of waiting for input.
func (c *gitCommand) run(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, c.args...)
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{
			Args:   c.args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}
