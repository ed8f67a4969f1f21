package gitrepo

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rhelpa/krakenops/internal/model"
)

// Runner executes git operations by invoking the git CLI.
//
// It is stateless — all methods receive the repository path as a parameter.
// The struct exists as a receiver to support future extensions such as a
// configurable git binary path.
type Runner struct{}

// NewRunner creates a new git Runner instance.
func NewRunner() *Runner {
	return &Runner{}
}

// RepoRoot returns the absolute path to the top-level directory of the
// git repository containing the given path.
//
// Uses `git rev-parse --show-toplevel`, which works from any subdirectory
// of a working tree. Returns an error when the path is not inside a git
// repository, which the CLI surfaces as ExitGitError.
func (r *Runner) RepoRoot(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the name of the currently checked-out branch.
//
// Uses `git rev-parse --abbrev-ref HEAD` which returns the short branch
// name (e.g. "main"). Returns "HEAD" in a detached HEAD state.
func (r *Runner) CurrentBranch(repoPath string) (string, error) {
	output, err := runGit(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Head returns the abbreviated commit SHA that HEAD currently points to.
func (r *Runner) Head(repoPath string) (string, error) {
	output, err := runGit(repoPath, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// BranchExists checks whether a local branch with the given name exists.
//
// Uses `git rev-parse --verify refs/heads/<branch>` and inspects only the
// exit status. The refs/heads/ prefix avoids accidentally matching tags
// or remote-tracking refs with the same name.
func (r *Runner) BranchExists(repoPath, branch string) bool {
	_, err := runGit(repoPath, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// CreateBranch creates a new branch pointing at HEAD without checking it out.
// This is how the scrub command records its safety branch before rewriting.
func (r *Runner) CreateBranch(repoPath, branch string) error {
	_, err := runGit(repoPath, "branch", branch)
	return err
}

// HasUpstream reports whether the given branch has an upstream tracking
// branch configured. The ship command uses this to decide whether to push
// with -u (set upstream on first push) or plain.
func (r *Runner) HasUpstream(repoPath, branch string) bool {
	_, err := runGit(repoPath, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	return err == nil
}

// HasRemote reports whether a remote with the given name is configured.
func (r *Runner) HasRemote(repoPath, remote string) bool {
	_, err := runGit(repoPath, "remote", "get-url", remote)
	return err == nil
}

// HasChanges reports whether the working tree or index contains any
// changes (staged, unstaged, or untracked files).
//
// Uses `git status --porcelain`, whose output is empty exactly when the
// tree is clean. The ship command checks this after staging so it can fail
// with a clear message instead of letting `git commit` fail with its own.
func (r *Runner) HasChanges(repoPath string) (bool, error) {
	output, err := runGit(repoPath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// StageAll stages every change in the working tree, including deletions
// and untracked files (`git add -A`).
func (r *Runner) StageAll(repoPath string) error {
	_, err := runGit(repoPath, "add", "-A")
	return err
}

// Commit records the staged changes with the given message.
// The message is passed through verbatim — callers own defaulting.
func (r *Runner) Commit(repoPath, message string) error {
	_, err := runGit(repoPath, "commit", "-m", message)
	return err
}

// LastCommitMessage returns the full message of the most recent commit.
func (r *Runner) LastCommitMessage(repoPath string) (string, error) {
	output, err := runGit(repoPath, "log", "-1", "--format=%B")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Push pushes the given branch to the remote. When setUpstream is true,
// -u is added so subsequent pushes need no explicit refspec (the first
// push of a new branch).
func (r *Runner) Push(repoPath, remote, branch string, setUpstream bool) error {
	args := []string{"push", remote, branch}
	if setUpstream {
		args = []string{"push", "-u", remote, branch}
	}

	_, err := runGit(repoPath, args...)
	return err
}

// runGit executes a git command with the given arguments in the specified
// directory.
//
// It captures stdout and stderr separately. On success it returns stdout.
// On failure it returns a model.CLIError with ExitGitError, including the
// stderr output in the message so the operator sees git's own diagnostics.
//
// The repoPath is passed via git's -C flag, which makes git change to that
// directory before doing anything else — the process working directory is
// never touched.
func runGit(repoPath string, args ...string) (string, error) {
	return runGitEnv(repoPath, nil, args...)
}

// runGitEnv is runGit with extra environment variables appended to the
// inherited environment. filter-branch uses this to suppress its
// interactive warning pause.
func runGitEnv(repoPath string, extraEnv []string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}
