// validate.go checks a launch profile for configuration mistakes before
// anything is launched. Validation runs after ApplyDefaults, so required
// fields can only be missing if the operator explicitly blanked them.
package profile

import (
	"fmt"
	"path/filepath"

	"github.com/rhelpa/krakenops/internal/model"
)

// ValidationError describes a single problem with a profile field.
type ValidationError struct {
	// Field is the profile field that failed validation (e.g. "container.image").
	Field string

	// Message describes what is wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("launch profile validation error: %s: %s", e.Field, e.Message)
}

// Validate checks the profile and returns all problems found
// (empty slice = valid profile).
//
// Checks performed:
//   - name must be a valid instance name (container name, label value)
//   - process launches need a command; container launches need an image
//   - venv and workdir must be relative paths (resolved against the
//     profile directory, so absolute paths are a portability smell)
//   - port entries must be in range and host ports unique
//   - volume entries must be "host:container" pairs
func Validate(p *Profile) []ValidationError {
	var errs []ValidationError

	if err := model.ValidateName(p.Name); err != nil {
		errs = append(errs, ValidationError{Field: "name", Message: err.Error()})
	}

	if p.Container == nil && p.Command == "" {
		errs = append(errs, ValidationError{
			Field:   "command",
			Message: "command is required for process launches",
		})
	}

	if p.Mode == "" {
		errs = append(errs, ValidationError{
			Field:   "mode",
			Message: "mode must not be empty",
		})
	}

	if p.Venv != "" && filepath.IsAbs(p.Venv) {
		errs = append(errs, ValidationError{
			Field:   "venv",
			Message: "venv should be a relative path",
		})
	}
	if p.Workdir != "" && filepath.IsAbs(p.Workdir) {
		errs = append(errs, ValidationError{
			Field:   "workdir",
			Message: "workdir should be a relative path",
		})
	}

	if p.Container != nil {
		errs = append(errs, validateContainer(p.Container)...)
	}

	return errs
}

// validateContainer checks the container section.
func validateContainer(c *ContainerConfig) []ValidationError {
	var errs []ValidationError

	if c.Image == "" {
		errs = append(errs, ValidationError{
			Field:   "container.image",
			Message: "image is required for container launches",
		})
	}

	if err := model.ValidatePortBindings(c.Bindings()); err != nil {
		errs = append(errs, ValidationError{
			Field:   "container.ports",
			Message: err.Error(),
		})
	}

	for i, vol := range c.Volumes {
		if !isHostContainerPair(vol) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("container.volumes[%d]", i),
				Message: fmt.Sprintf("invalid volume %q: want \"host:container\"", vol),
			})
		}
	}

	return errs
}

// isHostContainerPair reports whether s has the "host:container" shape
// with both sides non-empty.
func isHostContainerPair(s string) bool {
	for i := 1; i < len(s)-1; i++ {
		if s[i] == ':' {
			return true
		}
	}
	return false
}
