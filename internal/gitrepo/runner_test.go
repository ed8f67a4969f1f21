package gitrepo

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary directory with an initialized git
// repository containing a single commit. It configures a local user.name
// and user.email so that `git commit` works in CI environments where
// global git config may not be set.
//
// Returns the absolute path to the temporary repository.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	runTestGit(t, dir, "init", "-b", "main")
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	initialFile := filepath.Join(dir, "README.md")
	err := os.WriteFile(initialFile, []byte("# Test Repo\n"), 0644)
	require.NoError(t, err, "failed to create initial file")

	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// setupBareRemote creates a bare repository and registers it as "origin"
// in the given repo. Pushing in tests goes to this local remote so no
// network is involved.
func setupBareRemote(t *testing.T, repoPath string) string {
	t.Helper()

	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	cmd := exec.Command("git", "init", "--bare", remoteDir)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git init --bare failed: %s", string(output))

	runTestGit(t, repoPath, "remote", "add", "origin", remoteDir)
	return remoteDir
}

// runTestGit runs a git command in the specified directory and fails the
// test immediately on a non-zero exit status.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// writeFile writes content to a path inside the repo, creating parents.
func writeFile(t *testing.T, repoPath, name, content string) {
	t.Helper()

	path := filepath.Join(repoPath, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// TestRepoRoot verifies root resolution from the repository root and from
// a nested subdirectory, and failure outside a repository.
func TestRepoRoot(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	root, err := r.RepoRoot(repoPath)
	require.NoError(t, err)
	// Resolve symlinks on both sides — macOS TempDir lives under /var
	// which is a symlink to /private/var.
	wantRoot, _ := filepath.EvalSymlinks(repoPath)
	gotRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, wantRoot, gotRoot)

	sub := filepath.Join(repoPath, "sub", "dir")
	require.NoError(t, os.MkdirAll(sub, 0755))
	root, err = r.RepoRoot(sub)
	require.NoError(t, err)
	gotRoot, _ = filepath.EvalSymlinks(root)
	assert.Equal(t, wantRoot, gotRoot)

	_, err = r.RepoRoot(t.TempDir())
	assert.Error(t, err, "RepoRoot should fail outside a git repository")
}

// TestCurrentBranch verifies branch name resolution.
func TestCurrentBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	branch, err := r.CurrentBranch(repoPath)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	runTestGit(t, repoPath, "checkout", "-b", "feature/risk-caps")
	branch, err = r.CurrentBranch(repoPath)
	require.NoError(t, err)
	assert.Equal(t, "feature/risk-caps", branch)
}

// TestHasChanges verifies clean/dirty detection for untracked, modified,
// and staged states.
func TestHasChanges(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	dirty, err := r.HasChanges(repoPath)
	require.NoError(t, err)
	assert.False(t, dirty, "fresh repo should be clean")

	writeFile(t, repoPath, "strategy.cfg", "dip_threshold=0.95\n")
	dirty, err = r.HasChanges(repoPath)
	require.NoError(t, err)
	assert.True(t, dirty, "untracked file should count as changes")

	require.NoError(t, r.StageAll(repoPath))
	dirty, err = r.HasChanges(repoPath)
	require.NoError(t, err)
	assert.True(t, dirty, "staged file should count as changes")
}

// TestStageAllAndCommit verifies the ship building blocks: stage
// everything (including deletions), commit with a verbatim message.
func TestStageAllAndCommit(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	writeFile(t, repoPath, "bot.cfg", "poll_interval=60\n")
	require.NoError(t, os.Remove(filepath.Join(repoPath, "README.md")))

	require.NoError(t, r.StageAll(repoPath))
	require.NoError(t, r.Commit(repoPath, "fix bug"))

	msg, err := r.LastCommitMessage(repoPath)
	require.NoError(t, err)
	assert.Equal(t, "fix bug", msg, "commit message must be verbatim")

	// The deletion must be part of the commit (add -A, not add .).
	show := runTestGit(t, repoPath, "show", "--stat", "HEAD")
	assert.Contains(t, show, "README.md")
}

// TestCommitEmptyFails verifies the fail-fast behavior when there is
// nothing to commit.
func TestCommitEmptyFails(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	err := r.Commit(repoPath, "update")
	assert.Error(t, err, "commit with a clean tree should fail")
}

// TestPush verifies pushing to a local bare remote, including upstream
// setup on the first push.
func TestPush(t *testing.T) {
	repoPath := setupTestRepo(t)
	remoteDir := setupBareRemote(t, repoPath)
	r := NewRunner()

	branch, err := r.CurrentBranch(repoPath)
	require.NoError(t, err)

	assert.False(t, r.HasUpstream(repoPath, branch), "no upstream before first push")
	require.NoError(t, r.Push(repoPath, "origin", branch, true))
	assert.True(t, r.HasUpstream(repoPath, branch), "upstream set after push -u")

	// The remote must now have the same HEAD commit.
	localHead := strings.TrimSpace(runTestGit(t, repoPath, "rev-parse", "HEAD"))
	remoteHead := strings.TrimSpace(runTestGit(t, remoteDir, "rev-parse", branch))
	assert.Equal(t, localHead, remoteHead)

	// Subsequent push without -u also succeeds.
	writeFile(t, repoPath, "notes.txt", "ok\n")
	require.NoError(t, r.StageAll(repoPath))
	require.NoError(t, r.Commit(repoPath, "update"))
	require.NoError(t, r.Push(repoPath, "origin", branch, false))
}

// TestHasRemote verifies remote detection.
func TestHasRemote(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	assert.False(t, r.HasRemote(repoPath, "origin"))
	setupBareRemote(t, repoPath)
	assert.True(t, r.HasRemote(repoPath, "origin"))
}

// TestCreateBranchAndExists verifies safety-branch creation.
func TestCreateBranchAndExists(t *testing.T) {
	repoPath := setupTestRepo(t)
	r := NewRunner()

	assert.False(t, r.BranchExists(repoPath, "pre-scrub-backup"))
	require.NoError(t, r.CreateBranch(repoPath, "pre-scrub-backup"))
	assert.True(t, r.BranchExists(repoPath, "pre-scrub-backup"))

	// Creating the same branch again fails — the scrub command relies on
	// this to avoid silently reusing a stale backup.
	assert.Error(t, r.CreateBranch(repoPath, "pre-scrub-backup"))
}
