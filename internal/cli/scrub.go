// Package cli — scrub.go implements the "krakenops scrub" command.
//
// The scrub command removes a file that was accidentally committed —
// typically an env file holding API credentials — from the entire Git
// history of the current repository, then force-pushes the rewritten
// history to the remote.
//
// History rewriting is destructive and collaborative suicide when done
// casually, so the command:
//  1. Creates a local safety branch pointing at the pre-scrub history
//  2. Shows a plan and prompts for confirmation (skippable with --yes)
//  3. Supports --dry-run to print the plan without touching anything
//  4. Never force-pushes the safety branch — that would republish the
//     secret it exists to preserve
//
// The rewrite itself is `git filter-branch --index-filter 'git rm
// --cached'` across all refs, followed by purging the refs/original
// backups and expired reflogs so the secret blobs become unreachable
// locally as well.
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhelpa/krakenops/internal/gitrepo"
	"github.com/rhelpa/krakenops/internal/model"
)

// scrubFlags holds the flag values for the scrub command.
type scrubFlags struct {
	// yes skips the interactive confirmation prompt when true.
	yes bool

	// dryRun prints the plan without rewriting anything.
	dryRun bool

	// noPush skips the force-push step, leaving the rewritten history
	// local only.
	noPush bool

	// remote is the remote to force-push to.
	remote string

	// backupBranch names the local safety branch. Empty means a
	// timestamped default.
	backupBranch string
}

// NewScrubCommand creates the "scrub" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewScrubCommand() *cobra.Command {
	flags := &scrubFlags{}

	cmd := &cobra.Command{
		Use:   "scrub <file>",
		Short: "Remove a committed secret file from all Git history",
		Long: `Remove a file from every commit in the current repository's history and
force-push the rewritten history to the remote.

A local safety branch pointing at the original history is created first,
and is never pushed. After verifying the rewrite, delete it with
"git branch -D <backup>".

All collaborators must re-clone or hard-reset after a scrub — their
local history no longer exists on the remote.

IMPORTANT: scrubbing removes the file from history, it does not revoke
the secret. Rotate the leaked credential with the exchange regardless.

Examples:
  krakenops scrub .env
  krakenops scrub --dry-run .env
  krakenops scrub --yes --remote origin config/secrets.yml`,

		// Exactly one positional argument (the file to scrub) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrub(".", args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the plan without rewriting anything")
	cmd.Flags().BoolVar(&flags.noPush, "no-push", false, "Rewrite locally but do not push")
	cmd.Flags().StringVar(&flags.remote, "remote", "origin", "Remote to force-push the rewritten history to")
	cmd.Flags().StringVar(&flags.backupBranch, "backup-branch", "", "Name of the local safety branch (default: pre-scrub-backup-<timestamp>)")

	return cmd
}

// runScrub is the main logic function for the scrub command.
// The dir parameter is the directory to resolve the repository from;
// the command always passes ".".
func runScrub(dir, file string, flags *scrubFlags) error {
	runner := gitrepo.NewRunner()

	// Step 1: Resolve the repository root from the working directory.
	repoPath, err := runner.RepoRoot(dir)
	if err != nil {
		return err
	}
	VerboseLog("Repository root: %s", repoPath)

	// Step 2: Check the file actually appears in history. Scrubbing a
	// file that was never committed is a no-op, not an error.
	tracked, err := runner.TrackedInHistory(repoPath, file)
	if err != nil {
		return err
	}
	if !tracked {
		printScrubNothingToDo(file)
		return nil
	}

	branch, err := runner.CurrentBranch(repoPath)
	if err != nil {
		return err
	}
	head, err := runner.Head(repoPath)
	if err != nil {
		return err
	}

	// Step 3: Decide the safety branch name and whether a push will
	// happen, so the plan shown to the operator is exact.
	backup := flags.backupBranch
	if backup == "" {
		backup = "pre-scrub-backup-" + time.Now().Format("20060102-150405")
	}
	if runner.BranchExists(repoPath, backup) {
		return model.NewCLIError(model.ExitGitError,
			fmt.Sprintf("backup branch %q already exists — delete it or pass --backup-branch", backup))
	}

	willPush := !flags.noPush && runner.HasRemote(repoPath, flags.remote)

	// Step 4: Dry run stops after printing the plan.
	if flags.dryRun {
		printScrubPlan(file, branch, head, backup, flags.remote, willPush)
		return nil
	}

	// Step 5: Confirm. History rewriting is not undoable once the
	// backups are purged and the remote is overwritten.
	if !flags.yes {
		printScrubPlan(file, branch, head, backup, flags.remote, willPush)
		confirmed, err := promptConfirmation()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	// Step 6: Safety branch first, before anything rewrites refs.
	VerboseLog("Creating safety branch %q", backup)
	if err := runner.CreateBranch(repoPath, backup); err != nil {
		return err
	}

	// Step 7: Rewrite history across all refs. filter-branch rewrites
	// the safety branch too (it walks --all), so restore it from the
	// refs/original backup before purging.
	VerboseLog("Rewriting history to drop %q...", file)
	if err := runner.RemoveFileFromHistory(repoPath, file); err != nil {
		return err
	}
	if err := runner.RestoreBackupBranch(repoPath, backup); err != nil {
		return err
	}
	VerboseLog("Purging refs/original and expired reflogs")
	if err := runner.PurgeRewriteBackups(repoPath); err != nil {
		return err
	}

	// Step 8: Force-push everything except the safety branch.
	pushed := false
	if flags.noPush {
		VerboseLog("Skipping push (--no-push)")
	} else if !willPush {
		VerboseLog("Remote %q not configured, skipping push", flags.remote)
	} else {
		VerboseLog("Force-pushing rewritten history to %q", flags.remote)
		if err := runner.ForcePushAll(repoPath, flags.remote, backup); err != nil {
			return err
		}
		pushed = true
	}

	printScrubResult(file, backup, flags.remote, pushed)
	return nil
}

// promptConfirmation asks the user to confirm the scrub. It reads a
// single line from stdin and checks for "y" or "yes". Returns true if
// the user confirmed, false otherwise.
func promptConfirmation() (bool, error) {
	fmt.Print("\nContinue? [y/N] ")

	// bufio.Scanner handles different line endings across platforms.
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// printScrubPlan shows exactly what the scrub will do before it does it.
func printScrubPlan(file, branch, head, backup, remote string, willPush bool) {
	fmt.Printf("About to rewrite the history of branch %q (at %s) and all other refs:\n", branch, head)
	fmt.Printf("  - %q will be removed from every commit\n", file)
	fmt.Printf("  - safety branch %q will keep the original history (local only)\n", backup)
	if willPush {
		fmt.Printf("  - rewritten history will be force-pushed to %q\n", remote)
		fmt.Println("  - collaborators must re-clone or hard-reset afterwards")
	} else {
		fmt.Println("  - nothing will be pushed")
	}
	fmt.Println("  - rotate the leaked credential regardless: scrubbing does not revoke it")
}

// printScrubNothingToDo reports a file that never appears in history.
func printScrubNothingToDo(file string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"file":   file,
			"action": "none",
			"reason": "file does not appear in history",
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%q does not appear anywhere in history — nothing to scrub.\n", file)
}

// printScrubResult outputs the scrub result in text or JSON format.
func printScrubResult(file, backup, remote string, pushed bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"file":         file,
			"action":       "scrubbed",
			"backupBranch": backup,
			"pushed":       pushed,
		}
		if pushed {
			result["remote"] = remote
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Scrubbed %q from all history\n", file)
	fmt.Printf("  Original history kept on local branch %q\n", backup)
	if pushed {
		fmt.Printf("  Force-pushed rewritten history to %q\n", remote)
		fmt.Println("  Collaborators must re-clone or hard-reset")
	} else {
		fmt.Println("  Not pushed — run git push --force manually when ready")
	}
	fmt.Println("  Rotate the leaked credential with the exchange now")
}
