// Package envfile loads the bot's key=value env file and resolves the
// child process environment from layered sources with a fixed precedence:
//
//	override > env file > inherited environment
//
// Overrides always win. The launcher uses this to force MODE=SIM and to
// inject credentials from its own runtime environment, so an env file can
// never flip a simulation into live trading and committed credential
// values are never used. Unlike the original tooling, a file value that
// loses to an override is reported rather than silently discarded.
package envfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rhelpa/krakenops/internal/model"
)

// Source identifies where a resolved value came from.
type Source string

const (
	// SourceInherited marks values taken from the launcher's own
	// environment without modification.
	SourceInherited Source = "inherited"

	// SourceFile marks values read from the env file.
	SourceFile Source = "file"

	// SourceOverride marks values forced by the launcher (the mode flag
	// and injected credentials).
	SourceOverride Source = "override"
)

// Discard records a file-supplied value that lost to an override.
// The launch command surfaces these as warnings.
type Discard struct {
	// Key is the environment variable name.
	Key string

	// FileValue is the value the env file supplied.
	FileValue string
}

// Resolved is the fully resolved child environment plus provenance
// metadata for every key.
type Resolved struct {
	values  map[string]string
	sources map[string]Source

	// discarded lists file values that were overridden, in key order.
	discarded []Discard
}

// LoadFile reads a key=value env file. Lines whose first non-whitespace
// character is '#' are comments and are skipped; blank lines are ignored.
// Parsing is delegated to godotenv, which implements the common dotenv
// dialect (quoting, export prefixes).
//
// A missing file is not an error: the file is optional by contract, and
// (nil, nil) is returned so the launch proceeds on the remaining layers.
func LoadFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse env file %q", path), err)
	}
	return vals, nil
}

// Resolve builds the child environment from the three layers.
//
// base is the inherited environment in "KEY=VALUE" form (os.Environ).
// fileVals are the env file's assignments (may be nil). overrides are the
// launcher-forced assignments and always win; any file value they displace
// is recorded for warning output.
func Resolve(base []string, fileVals map[string]string, overrides map[string]string) *Resolved {
	r := &Resolved{
		values:  make(map[string]string),
		sources: make(map[string]Source),
	}

	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		r.values[key] = value
		r.sources[key] = SourceInherited
	}

	for key, value := range fileVals {
		r.values[key] = value
		r.sources[key] = SourceFile
	}

	// Overrides are applied last. A displaced file value is a sign the
	// operator wrote configuration that will not take effect, so it is
	// recorded; displacing an inherited value is routine and is not.
	var overrideKeys []string
	for key := range overrides {
		overrideKeys = append(overrideKeys, key)
	}
	sort.Strings(overrideKeys)

	for _, key := range overrideKeys {
		if prev, fromFile := fileVals[key]; fromFile && prev != overrides[key] {
			r.discarded = append(r.discarded, Discard{Key: key, FileValue: prev})
		}
		r.values[key] = overrides[key]
		r.sources[key] = SourceOverride
	}

	return r
}

// Get returns the resolved value for a key and whether it is set.
func (r *Resolved) Get(key string) (string, bool) {
	value, ok := r.values[key]
	return value, ok
}

// Source returns where the value for a key came from.
// The zero Source is returned for unset keys.
func (r *Resolved) Source(key string) Source {
	return r.sources[key]
}

// Discarded returns the file values that lost to overrides, sorted by key.
func (r *Resolved) Discarded() []Discard {
	return r.discarded
}

// Environ renders the resolved environment as a sorted "KEY=VALUE" slice
// suitable for exec.Cmd.Env or the Docker container Env field. Sorting
// makes launches reproducible and diffs between manifests meaningful.
func (r *Resolved) Environ() []string {
	env := make([]string, 0, len(r.values))
	for key, value := range r.values {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return env
}

// Redacted returns a copy of the resolved values with the given secret
// keys masked. Used for dry-run output and the launch manifest — secret
// values never appear in anything krakenops prints or writes.
func (r *Resolved) Redacted(secretKeys []string) map[string]string {
	secret := make(map[string]bool, len(secretKeys))
	for _, key := range secretKeys {
		secret[key] = true
	}

	out := make(map[string]string, len(r.values))
	for key, value := range r.values {
		if secret[key] {
			out[key] = "[redacted]"
		} else {
			out[key] = value
		}
	}
	return out
}
