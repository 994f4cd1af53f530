package updater

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{
		"-c", "user.name=Test User",
		"-c", "user.email=test@example.com",
		"-c", "commit.gpgsign=false",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	gitCmd(t, dir, "add", name)
	gitCmd(t, dir, "commit", "-m", "update "+name)
}

// testRepo creates a bare origin, a seed clone that pushes to it, and a
// working clone tracking origin/main.
func testRepo(t *testing.T) (seed, work string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	seed = filepath.Join(root, "seed")
	work = filepath.Join(root, "work")

	require.NoError(t, os.MkdirAll(origin, 0o755))
	gitCmd(t, origin, "init", "--bare")
	gitCmd(t, origin, "symbolic-ref", "HEAD", "refs/heads/main")

	require.NoError(t, os.MkdirAll(seed, 0o755))
	gitCmd(t, seed, "init")
	gitCmd(t, seed, "checkout", "-b", "main")
	commitFile(t, seed, "main.py", "print('v1')\n")
	gitCmd(t, seed, "remote", "add", "origin", origin)
	gitCmd(t, seed, "push", "origin", "main")

	gitCmd(t, root, "clone", origin, work)
	return seed, work
}

func collect() (*[]string, ProgressFunc) {
	var lines []string
	return &lines, func(msg string) { lines = append(lines, msg) }
}

func TestUpdate_NotRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	lines, progress := collect()

	res := New().Update(context.Background(), t.TempDir(), progress)

	assert.Equal(t, OutcomeNotRepository, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Empty(t, *lines)
	assert.Contains(t, res.Message(), "skipping update")
}

func TestUpdate_UpToDate(t *testing.T) {
	_, work := testRepo(t)
	lines, progress := collect()

	res := New().Update(context.Background(), work, progress)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpToDate, res.Outcome)
	assert.True(t, res.HasUpstream)
	assert.Equal(t, res.Local, res.Remote)
	assert.Equal(t, []string{"[INFO] checking for updates"}, *lines)
}

func TestUpdate_NoUpstream(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	gitCmd(t, dir, "init")
	commitFile(t, dir, "main.py", "print('local')\n")
	lines, progress := collect()

	res := New().Update(context.Background(), dir, progress)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpToDate, res.Outcome)
	assert.False(t, res.HasUpstream)
	assert.Equal(t, res.Local, res.Remote)
	assert.NotContains(t, strings.Join(*lines, "\n"), "pulling")
}

func TestUpdate_PullsWhenBehind(t *testing.T) {
	seed, work := testRepo(t)
	commitFile(t, seed, "main.py", "print('v2')\n")
	gitCmd(t, seed, "push", "origin", "main")
	want := gitCmd(t, seed, "rev-parse", "HEAD")

	lines, progress := collect()
	res := New().Update(context.Background(), work, progress)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, want, res.Remote)
	assert.NotEqual(t, res.Local, res.Remote)
	assert.Equal(t, want, gitCmd(t, work, "rev-parse", "HEAD"))
	assert.Contains(t, *lines, "[INFO] update found, pulling")

	content, err := os.ReadFile(filepath.Join(work, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('v2')\n", string(content))
}

func TestUpdate_FetchFailure(t *testing.T) {
	_, work := testRepo(t)
	gitCmd(t, work, "remote", "set-url", "origin", filepath.Join(t.TempDir(), "missing.git"))

	res := New().Update(context.Background(), work, nil)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUpdateCheckFailed)
	var cmdErr *CommandError
	require.ErrorAs(t, res.Err, &cmdErr)
	assert.Equal(t, []string{"fetch"}, cmdErr.Args)
	assert.True(t, strings.HasPrefix(res.Message(), "[WARN]"))
}

func TestUpdate_GitMissing(t *testing.T) {
	u := New(WithGitBinary(filepath.Join(t.TempDir(), "no-such-git")))

	res := u.Update(context.Background(), t.TempDir(), nil)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUpdateCheckFailed)
	assert.ErrorIs(t, res.Err, ErrGitNotFound)
}

func TestUpdate_CancelledContext(t *testing.T) {
	_, work := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New().Update(ctx, work, nil)

	assert.NotEqual(t, OutcomeUpdated, res.Outcome)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "not-repository", OutcomeNotRepository.String())
	assert.Equal(t, "up-to-date", OutcomeUpToDate.String())
	assert.Equal(t, "updated", OutcomeUpdated.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Args: []string{"fetch"}, Stderr: "fatal: nope", Err: exec.ErrNotFound}
	assert.Equal(t, "git fetch: fatal: nope", err.Error())
	assert.ErrorIs(t, err, exec.ErrNotFound)

	err.Stderr = ""
	assert.Equal(t, "git fetch: "+exec.ErrNotFound.Error(), err.Error())
}
