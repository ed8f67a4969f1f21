// Package launcher starts the trading bot with the resolved environment.
//
// Process launches run the bot as a child with stdout/stderr passed
// through, SIGINT/SIGTERM forwarded, and the bot's exit status
// propagated. The Python virtualenv "activation" step is reproduced the
// way activate itself does it: VIRTUAL_ENV set, the venv bin directory
// prepended to PATH, PYTHONHOME dropped.
//
// Every launch is recorded twice: structured JSON events appended to the
// launch journal (zerolog), and a YAML manifest snapshot of the launch
// parameters with secret values redacted. Both live in the profile's log
// directory.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rhelpa/krakenops/internal/model"
)

// Options describes a process launch.
type Options struct {
	// Command is the program to run, resolved against the venv bin
	// directory first (when VenvDir is set), then PATH.
	Command string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory for the bot.
	Dir string

	// Env is the fully resolved environment in "KEY=VALUE" form.
	Env []string

	// VenvDir is the absolute path of the Python virtualenv to activate.
	// Empty means no virtualenv.
	VenvDir string
}

// Run starts the bot process and blocks until it exits, forwarding
// SIGINT and SIGTERM to the child so Ctrl-C reaches the bot rather than
// only the launcher.
//
// Returns the bot's exit code. A non-zero exit is not an error — the
// caller decides how to propagate it. An error is returned only when the
// launch itself fails (missing command, missing venv, start failure).
func Run(ctx context.Context, opts Options, journal *Journal) (int, error) {
	env := opts.Env
	if opts.VenvDir != "" {
		// A configured-but-missing venv aborts the launch, matching the
		// strict-mode behavior of a failing activation step.
		if _, err := os.Stat(filepath.Join(opts.VenvDir, "bin")); err != nil {
			return 0, model.WrapCLIError(model.ExitBotNotFound,
				fmt.Sprintf("virtualenv %q not found", opts.VenvDir), err)
		}
		env = ApplyVenv(env, opts.VenvDir)
	}

	command, err := resolveCommand(opts.VenvDir, opts.Command)
	if err != nil {
		return 0, err
	}

	// #nosec G204 — the command comes from the operator's launch profile
	cmd := exec.Command(command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return 0, model.WrapCLIError(model.ExitBotNotFound,
			fmt.Sprintf("failed to start %q", command), err)
	}
	journal.ProcessStarted(command, cmd.Process.Pid)

	// Forward interrupt signals to the child. Without this, a Ctrl-C in
	// the terminal kills the launcher and leaves the bot's teardown
	// (open orders, trade log flush) to chance.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				_ = cmd.Process.Signal(sig)
			case <-ctx.Done():
				_ = cmd.Process.Signal(syscall.SIGTERM)
				return
			case <-done:
				return
			}
		}
	}()

	err = cmd.Wait()
	close(done)

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return 0, model.WrapCLIError(model.ExitGeneralError,
				"failed waiting for the bot process", err)
		}
		code = exitErr.ExitCode()
	}

	journal.ProcessExited(code, time.Since(started))
	return code, nil
}

// ApplyVenv rewrites an environment slice the way bin/activate would:
// VIRTUAL_ENV points at the venv, the venv's bin directory is prepended
// to PATH, and PYTHONHOME is removed (it overrides the venv's
// interpreter paths when set).
func ApplyVenv(env []string, venvDir string) []string {
	binDir := filepath.Join(venvDir, "bin")

	out := make([]string, 0, len(env)+2)
	pathSeen := false
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "VIRTUAL_ENV", "PYTHONHOME":
			// Dropped; VIRTUAL_ENV is re-added below.
		case "PATH":
			out = append(out, "PATH="+binDir+string(os.PathListSeparator)+value)
			pathSeen = true
		default:
			out = append(out, kv)
		}
	}

	if !pathSeen {
		out = append(out, "PATH="+binDir)
	}
	out = append(out, "VIRTUAL_ENV="+venvDir)

	return out
}

// resolveCommand locates the program to run. When a venv is configured,
// its bin directory is checked first — exec.LookPath consults the
// launcher's own PATH, not the child's, so the venv interpreter would
// otherwise be missed.
func resolveCommand(venvDir, command string) (string, error) {
	if venvDir != "" && !strings.ContainsRune(command, os.PathSeparator) {
		candidate := filepath.Join(venvDir, "bin", command)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return "", model.WrapCLIError(model.ExitBotNotFound,
			fmt.Sprintf("bot command %q not found", command), err)
	}
	return path, nil
}
