// Package testutil provides testing utilities for zerepyctl tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zerepy/zerepyctl/internal/runner"
)

// SetupTestRepo creates a temporary git repository with one commit on main.
// The repository is cleaned up when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	mustGit(t, dir, "init")
	mustGit(t, dir, "config", "user.email", "test@zerepyctl.dev")
	mustGit(t, dir, "config", "user.name", "Zerepyctl Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "Initial commit")
	mustGit(t, dir, "branch", "-M", "main")

	return dir
}

// SetupBareRemote creates a bare repository seeded from a work repository
// containing files. It returns the bare remote (usable as a clone URL) and
// the work repository, which tests can commit to and push with PushFile.
func SetupBareRemote(t *testing.T, files map[string]string) (remoteDir, workDir string) {
	t.Helper()

	remoteDir = t.TempDir()
	mustGit(t, remoteDir, "init", "--bare")
	mustGit(t, remoteDir, "symbolic-ref", "HEAD", "refs/heads/main")

	workDir = SetupTestRepo(t)
	for path, content := range files {
		writeFile(t, workDir, path, content)
	}
	if len(files) > 0 {
		mustGit(t, workDir, "add", ".")
		mustGit(t, workDir, "commit", "-m", "Add application files")
	}
	mustGit(t, workDir, "remote", "add", "origin", remoteDir)
	mustGit(t, workDir, "push", "-u", "origin", "main")

	return remoteDir, workDir
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	writeFile(t, repoDir, path, content)
	mustGit(t, repoDir, "add", path)
	mustGit(t, repoDir, "commit", "-m", message)
}

// PushFile commits a file in workDir and pushes it to origin.
func PushFile(t *testing.T, workDir, path, content, message string) {
	t.Helper()

	CommitFile(t, workDir, path, content, message)
	mustGit(t, workDir, "push", "origin", "main")
}

// HeadCommit returns the commit hash checked out in repoDir.
func HeadCommit(t *testing.T, repoDir string) string {
	t.Helper()

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to read HEAD: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// SkipIfNoShell skips the test if /bin/sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available, skipping test")
	}
}

// WriteExecutable writes a /bin/sh script named name into dir and returns
// its path. body is the script without the shebang line.
func WriteExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write executable %s: %v", name, err)
	}
	return path
}

// PrependPath puts dir first on PATH for the duration of the test.
func PrependPath(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// FakeRunner is a scripted runner.Runner. Responses are matched by command
// line prefix; every call is recorded. Unmatched commands succeed with no
// output.
type FakeRunner struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []runner.Command
}

type fakeResponse struct {
	prefix string
	result runner.Result
	err    error
	hook   func(runner.Command)
}

// On registers the result for commands whose String() starts with prefix.
// Later registrations take precedence.
func (f *FakeRunner) On(prefix string, result runner.Result, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, result: result, err: err})
	return f
}

// OnRun registers a hook run for matching commands, e.g. to create files a
// real tool would produce. The command succeeds.
func (f *FakeRunner) OnRun(prefix string, hook func(runner.Command)) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, hook: hook})
	return f
}

// Fail registers a failing exit code for commands starting with prefix.
func (f *FakeRunner) Fail(prefix string, exitCode int, output string) *FakeRunner {
	return f.On(prefix, runner.Result{Output: output, ExitCode: exitCode},
		fmt.Errorf("%s failed: exit status %d", prefix, exitCode))
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var match fakeResponse
	found := false
	line := cmd.String()
	for i := len(f.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.responses[i].prefix) {
			match, found = f.responses[i], true
			break
		}
	}
	f.mu.Unlock()

	if !found {
		return runner.Result{}, nil
	}
	if match.hook != nil {
		match.hook(cmd)
	}
	return match.result, match.err
}

// Calls returns the recorded command lines in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, len(f.calls))
	for i, c := range f.calls {
		lines[i] = c.String()
	}
	return lines
}

// Commands returns the recorded commands in order.
func (f *FakeRunner) Commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// Called reports whether any recorded command line starts with prefix.
func (f *FakeRunner) Called(prefix string) bool {
	for _, line := range f.Calls() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, repoDir, path, content string) {
	t.Helper()

	fullPath := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	if err := runGit(dir, args...); err != nil {
		t.Fatalf("%v", err)
	}
}

// runGit runs a git command in the specified directory.
func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Zerepyctl Test",
		"GIT_AUTHOR_EMAIL=test@zerepyctl.dev",
		"GIT_COMMITTER_NAME=Zerepyctl Test",
		"GIT_COMMITTER_EMAIL=test@zerepyctl.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
