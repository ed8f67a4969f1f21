// Package cli — ship.go implements the "krakenops ship" command.
//
// The ship command is the one-liner for getting strategy tweaks off the
// operator's machine: stage everything, commit, push. The commit message
// is the optional positional argument and defaults to "update"; whatever
// message is given is used verbatim, with no prefixes or decoration.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhelpa/krakenops/internal/gitrepo"
)

// DefaultCommitMessage is used when no message argument is given.
const DefaultCommitMessage = "update"

// shipFlags holds the flag values for the ship command.
type shipFlags struct {
	// remote is the remote to push to.
	remote string

	// noPush commits without pushing.
	noPush bool
}

// NewShipCommand creates the "ship" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewShipCommand() *cobra.Command {
	flags := &shipFlags{}

	cmd := &cobra.Command{
		Use:   "ship [message]",
		Short: "Stage all changes, commit, and push",
		Long: `Stage every change in the current repository, commit, and push to the
remote. The optional message argument is used verbatim as the commit
message and defaults to "update".

When the working tree is clean, nothing is committed or pushed.

Examples:
  krakenops ship
  krakenops ship "tune stop-loss to 2%"
  krakenops ship --no-push "wip grid sizing"`,

		// Zero or one positional arguments: the optional commit message.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			message := DefaultCommitMessage
			if len(args) == 1 {
				message = args[0]
			}
			return runShip(".", message, flags)
		},
	}

	cmd.Flags().StringVar(&flags.remote, "remote", "origin", "Remote to push to")
	cmd.Flags().BoolVar(&flags.noPush, "no-push", false, "Commit without pushing")

	return cmd
}

// runShip is the main logic function for the ship command.
// The dir parameter is the directory to resolve the repository from;
// the command always passes ".".
func runShip(dir, message string, flags *shipFlags) error {
	runner := gitrepo.NewRunner()

	// Step 1: Resolve the repository root from the working directory.
	repoPath, err := runner.RepoRoot(dir)
	if err != nil {
		return err
	}
	VerboseLog("Repository root: %s", repoPath)

	// Step 2: Stage everything, including deletions and untracked files.
	if err := runner.StageAll(repoPath); err != nil {
		return err
	}

	// Step 3: A clean tree is a normal outcome, not an error — committing
	// would fail with git's "nothing to commit", so stop here instead.
	changed, err := runner.HasChanges(repoPath)
	if err != nil {
		return err
	}
	if !changed {
		printShipResult(message, false, false, flags.remote)
		return nil
	}

	// Step 4: Commit with the message verbatim.
	VerboseLog("Committing with message %q", message)
	if err := runner.Commit(repoPath, message); err != nil {
		return err
	}

	// Step 5: Push, setting the upstream on the branch's first push.
	pushed := false
	if flags.noPush {
		VerboseLog("Skipping push (--no-push)")
	} else if !runner.HasRemote(repoPath, flags.remote) {
		VerboseLog("Remote %q not configured, skipping push", flags.remote)
	} else {
		branch, err := runner.CurrentBranch(repoPath)
		if err != nil {
			return err
		}
		setUpstream := !runner.HasUpstream(repoPath, branch)

		VerboseLog("Pushing %q to %q (set upstream: %t)", branch, flags.remote, setUpstream)
		if err := runner.Push(repoPath, flags.remote, branch, setUpstream); err != nil {
			return err
		}
		pushed = true
	}

	printShipResult(message, true, pushed, flags.remote)
	return nil
}

// printShipResult outputs the ship result in text or JSON format.
func printShipResult(message string, committed, pushed bool, remote string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"committed": committed,
			"pushed":    pushed,
		}
		if committed {
			result["message"] = message
		}
		if pushed {
			result["remote"] = remote
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if !committed {
		fmt.Println("Nothing to commit — working tree clean.")
		return
	}
	fmt.Printf("Committed %q\n", message)
	if pushed {
		fmt.Printf("  Pushed to %q\n", remote)
	} else {
		fmt.Println("  Not pushed")
	}
}
