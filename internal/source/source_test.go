package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/runner"
	"github.com/zerepy/zerepyctl/internal/testutil"
)

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "cloned", Cloned.String())
	require.Equal(t, "updated", Updated.String())
	require.Equal(t, "update failed", UpdateFailed.String())
	require.Equal(t, "unknown", Outcome(42).String())
}

func TestEnsure_ClonesMissingDir(t *testing.T) {
	fake := new(testutil.FakeRunner)
	dir := filepath.Join(t.TempDir(), "ZerePy")

	res, err := New(fake, "git", nil).Ensure(context.Background(), "https://example.com/ZerePy.git", dir)
	require.NoError(t, err)
	require.Equal(t, Cloned, res.Outcome)
	require.Equal(t, dir, res.Dir)
	require.Nil(t, res.Warning)
	require.Equal(t, []string{"git clone https://example.com/ZerePy.git " + dir}, fake.Calls())
	require.Equal(t, filepath.Dir(dir), fake.Commands()[0].Dir)
}

func TestEnsure_CloneFailureIsFatal(t *testing.T) {
	fake := new(testutil.FakeRunner).Fail("git clone", 128, "fatal: repository not found\n")
	dir := filepath.Join(t.TempDir(), "ZerePy")

	_, err := New(fake, "git", nil).Ensure(context.Background(), "https://example.com/missing.git", dir)
	require.Error(t, err)
	require.True(t, errors.IsFatal(err))
	require.ErrorIs(t, err, errors.ErrCloneFailed)

	var fetchErr *errors.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "https://example.com/missing.git", fetchErr.Remote)
	require.Contains(t, fetchErr.Output, "repository not found")
}

func TestEnsure_PullsExistingDir(t *testing.T) {
	fake := new(testutil.FakeRunner)
	dir := t.TempDir()

	res, err := New(fake, "git", nil).Ensure(context.Background(), "https://example.com/ZerePy.git", dir)
	require.NoError(t, err)
	require.Equal(t, Updated, res.Outcome)
	require.Equal(t, []string{"git pull"}, fake.Calls())
	require.Equal(t, dir, fake.Commands()[0].Dir)
}

func TestEnsure_PullFailureIsWarning(t *testing.T) {
	fake := new(testutil.FakeRunner).Fail("git pull", 1, "fatal: not a git repository\n")
	dir := t.TempDir()

	res, err := New(fake, "git", nil).Ensure(context.Background(), "https://example.com/ZerePy.git", dir)
	require.NoError(t, err)
	require.Equal(t, UpdateFailed, res.Outcome)
	require.NotNil(t, res.Warning)
	require.False(t, errors.IsFatal(res.Warning))
	require.ErrorIs(t, res.Warning, errors.ErrPullFailed)
	require.Equal(t, dir, res.Dir)
}

func TestEnsure_FileInTheWay(t *testing.T) {
	fake := new(testutil.FakeRunner)
	path := filepath.Join(t.TempDir(), "ZerePy")
	require.NoError(t, os.WriteFile(path, []byte("not a checkout"), 0644))

	_, err := New(fake, "git", nil).Ensure(context.Background(), "https://example.com/ZerePy.git", path)
	require.ErrorIs(t, err, errors.ErrNotDirectory)
	require.True(t, errors.IsFatal(err))
	require.Empty(t, fake.Calls())
}

func TestEnsure_RealGit_CloneThenPull(t *testing.T) {
	testutil.SkipIfNoGit(t)

	remote, work := testutil.SetupBareRemote(t, map[string]string{
		"main.py":          "print('zerepy')\n",
		"requirements.txt": "fastapi\n",
	})
	dir := filepath.Join(t.TempDir(), "ZerePy")
	p := New(runner.New(), "git", nil)

	first, err := p.Ensure(context.Background(), remote, dir)
	require.NoError(t, err)
	require.Equal(t, Cloned, first.Outcome)
	require.FileExists(t, filepath.Join(dir, "main.py"))
	require.True(t, Present(dir))

	testutil.PushFile(t, work, "agents/example.json", "{}\n", "Add agent")

	second, err := p.Ensure(context.Background(), remote, dir)
	require.NoError(t, err)
	require.Equal(t, Updated, second.Outcome)
	require.FileExists(t, filepath.Join(dir, "agents", "example.json"))
	require.Equal(t, testutil.HeadCommit(t, work), testutil.HeadCommit(t, dir))
}

func TestEnsure_RealGit_PullOutsideRepoWarns(t *testing.T) {
	testutil.SkipIfNoGit(t)

	// A plain directory is not a git checkout, so pull fails.
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	res, err := New(runner.New(), "git", nil).Ensure(context.Background(), "unused", dir)
	require.NoError(t, err)
	require.Equal(t, UpdateFailed, res.Outcome)
	require.NotEmpty(t, res.Warning.Output)
}

func TestPresent(t *testing.T) {
	dir := t.TempDir()
	require.True(t, Present(dir))
	require.False(t, Present(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	require.False(t, Present(file))
}
