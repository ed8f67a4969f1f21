// Package gitrepo provides the git operations behind the ship and scrub
// commands.
//
// This package wraps the git CLI (via os/exec) rather than using a Go git
// library, because history rewriting (filter-branch) and force-pushing need
// full git CLI compatibility — a pure-Go implementation of filter-branch
// does not exist, and partial reimplementations of push semantics are a
// reliability risk for an operation that overwrites remote history.
//
// Design decisions:
//   - Every command runs as `git -C <repoPath> ...` so the process working
//     directory never changes.
//   - All git failures are wrapped in model.CLIError with ExitGitError,
//     with the command's stderr included in the message. The CLI is
//     fail-fast: the first failing step aborts the whole sequence.
//   - The Runner struct is stateless; it exists as a receiver to allow
//     future extension (custom git binary path, command logging).
package gitrepo
