package launcher

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhelpa/krakenops/internal/envfile"
	"github.com/rhelpa/krakenops/internal/model"
)

// Journal is the structured launch journal: one JSON line per event,
// appended to krakenops.log in the profile's log directory. It records
// what was launched, with what configuration, and how it ended — the
// audit trail for "which mode was that bot actually running in".
type Journal struct {
	logger zerolog.Logger
	closer io.Closer
}

// JournalFileName is the journal file inside the log directory.
const JournalFileName = "krakenops.log"

// OpenJournal opens (creating if needed) the launch journal for the
// given log directory. Credentials never reach the journal — callers log
// redacted environments only.
func OpenJournal(logDir, botName string) (*Journal, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			"failed to create log directory", err)
	}

	path := filepath.Join(logDir, JournalFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			"failed to open launch journal", err)
	}

	logger := zerolog.New(file).With().
		Timestamp().
		Str("bot", botName).
		Logger()

	return &Journal{logger: logger, closer: file}, nil
}

// NopJournal returns a journal that discards all events, for dry runs
// and tests.
func NopJournal() *Journal {
	return &Journal{logger: zerolog.Nop()}
}

// Close flushes and closes the underlying journal file.
func (j *Journal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// LaunchResolved records the resolved launch configuration: effective
// mode, env file used, and any env-file values that lost to an override.
func (j *Journal) LaunchResolved(mode, envFile string, discarded []envfile.Discard) {
	event := j.logger.Info().
		Str("event", "launch-resolved").
		Str("mode", mode)
	if envFile != "" {
		event = event.Str("env_file", envFile)
	}

	keys := make([]string, 0, len(discarded))
	for _, d := range discarded {
		keys = append(keys, d.Key)
	}
	if len(keys) > 0 {
		event = event.Strs("overridden_keys", keys)
	}

	event.Msg("launch configuration resolved")
}

// ProcessStarted records a successful process start.
func (j *Journal) ProcessStarted(command string, pid int) {
	j.logger.Info().
		Str("event", "process-started").
		Str("command", command).
		Int("pid", pid).
		Msg("bot process started")
}

// ProcessExited records the bot's exit.
func (j *Journal) ProcessExited(code int, uptime time.Duration) {
	event := j.logger.Info()
	if code != 0 {
		event = j.logger.Warn()
	}
	event.
		Str("event", "process-exited").
		Int("exit_code", code).
		Dur("uptime", uptime).
		Msg("bot process exited")
}

// ContainerStarted records a successful container launch.
func (j *Journal) ContainerStarted(image, containerID string) {
	j.logger.Info().
		Str("event", "container-started").
		Str("image", image).
		Str("container_id", containerID).
		Msg("bot container started")
}
