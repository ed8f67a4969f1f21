// scrub.go implements the history-rewrite sequence used by the scrub
// command to permanently remove a file from every commit.
//
// The sequence is the classic filter-branch recipe:
//  1. `git filter-branch --force --index-filter 'git rm --cached
//     --ignore-unmatch <file>' --prune-empty --tag-name-filter cat -- --all`
//  2. restore the safety branch from its refs/original backup (filter-branch
//     rewrites all refs, the safety branch included)
//  3. delete the remaining refs/original/* backup refs, expire reflogs and
//     garbage-collect
//  4. force-push all branches except the safety branch, then all tags
//
// After the sequence the safety branch is the only local ref still holding
// the pre-rewrite history — it is the operator's manual recovery path and
// is never pushed. The whole operation is non-idempotent and unsafe to
// re-run blindly once collaborators have pulled the old history; the CLI
// layer gates it behind a confirmation prompt and a dry-run mode.
package gitrepo

import (
	"fmt"
	"strings"
)

// TrackedInHistory reports whether the given file appears in any commit
// reachable from any ref. The scrub command refuses to rewrite history
// for a file that was never committed.
//
// Uses `git log --all --oneline -- <file>`, which is empty exactly when
// no commit touches the path. The "--" separator keeps filenames that
// look like revisions (e.g. "HEAD") from being misparsed.
func (r *Runner) TrackedInHistory(repoPath, file string) (bool, error) {
	output, err := runGit(repoPath, "log", "--all", "--oneline", "--", file)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// RemoveFileFromHistory rewrites every commit on every branch and tag to
// drop the given file from the index.
//
// The index filter runs `git rm --cached --ignore-unmatch`, so commits
// that never contained the file pass through unchanged instead of failing.
// --prune-empty drops commits that become empty once the file is removed,
// and --tag-name-filter cat rewrites tags to point at the rewritten
// commits while keeping their names.
//
// The filter string is interpreted by a shell inside filter-branch, so the
// filename is single-quote escaped rather than interpolated raw.
func (r *Runner) RemoveFileFromHistory(repoPath, file string) error {
	indexFilter := fmt.Sprintf("git rm --cached --ignore-unmatch %s", shellQuote(file))

	// FILTER_BRANCH_SQUELCH_WARNING suppresses the interactive 10-second
	// warning pause filter-branch prints on modern git versions; the CLI
	// has already prompted for confirmation at this point.
	_, err := runGitEnv(repoPath,
		[]string{"FILTER_BRANCH_SQUELCH_WARNING=1"},
		"filter-branch", "--force",
		"--index-filter", indexFilter,
		"--prune-empty",
		"--tag-name-filter", "cat",
		"--", "--all",
	)
	return err
}

// RestoreBackupBranch resets the safety branch back to its pre-rewrite
// tip using the refs/original/* backup that filter-branch recorded.
//
// filter-branch's --all rewrites every ref, including the safety branch
// created moments earlier — left alone, the "backup" would point at the
// scrubbed history and be useless for recovery. Restoring it from
// refs/original before the purge step makes it a real backup again, and
// keeps the pre-rewrite objects reachable so gc does not prune them.
func (r *Runner) RestoreBackupBranch(repoPath, branch string) error {
	originalRef := "refs/original/refs/heads/" + branch

	// The backup ref only exists if filter-branch actually rewrote the
	// branch. If it did not (nothing to rewrite), the safety branch still
	// points at the original history and there is nothing to restore.
	if _, err := runGit(repoPath, "rev-parse", "--verify", originalRef); err != nil {
		return nil
	}

	_, err := runGit(repoPath, "update-ref", "refs/heads/"+branch, originalRef)
	return err
}

// PurgeRewriteBackups removes the local traces of the pre-rewrite history:
// the refs/original/* backup refs, all reflog entries, and unreachable
// objects. Without this step the scrubbed content remains recoverable from
// the local repository even though no branch references it.
func (r *Runner) PurgeRewriteBackups(repoPath string) error {
	// filter-branch stores one backup ref per rewritten ref under
	// refs/original/. Enumerate and delete them individually —
	// `update-ref -d` is the supported way to drop arbitrary refs.
	output, err := runGit(repoPath, "for-each-ref", "--format=%(refname)", "refs/original/")
	if err != nil {
		return err
	}

	for _, ref := range strings.Fields(output) {
		if _, err := runGit(repoPath, "update-ref", "-d", ref); err != nil {
			return err
		}
	}

	if _, err := runGit(repoPath, "reflog", "expire", "--expire=now", "--all"); err != nil {
		return err
	}

	_, err = runGit(repoPath, "gc", "--prune=now")
	return err
}

// LocalBranches returns the short names of all local branches.
func (r *Runner) LocalBranches(repoPath string) ([]string, error) {
	output, err := runGit(repoPath, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// ForcePushAll force-pushes every local branch except excludeBranch, then
// every tag, overwriting whatever history the remote currently holds. Any
// remote commits not present locally are discarded.
//
// The exclusion exists for the safety branch: it still carries the
// pre-rewrite history containing the secret, so pushing it would publish
// exactly what the scrub is trying to remove. A plain `push --force --all`
// would do that.
func (r *Runner) ForcePushAll(repoPath, remote, excludeBranch string) error {
	branches, err := r.LocalBranches(repoPath)
	if err != nil {
		return err
	}

	for _, branch := range branches {
		if branch == excludeBranch {
			continue
		}
		if _, err := runGit(repoPath, "push", remote, "--force", branch); err != nil {
			return err
		}
	}

	_, err = runGit(repoPath, "push", remote, "--force", "--tags")
	return err
}

// shellQuote wraps s in single quotes for safe interpolation into the
// shell command filter-branch executes. Embedded single quotes use the
// standard '\'' escape.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
