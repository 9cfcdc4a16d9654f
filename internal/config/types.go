// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// DefaultDebounce is the cooldown between the first change and a merge pass.
	DefaultDebounce Duration = "2s"
	// DefaultMaxResubscribe bounds consecutive watcher resubscription attempts.
	DefaultMaxResubscribe = 5
)

var (
	// ErrInvalidDuration is returned when a Duration value does not parse.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidSitePackagesPath is returned when a site-packages entry is blank.
	ErrInvalidSitePackagesPath = errors.New("invalid site-packages path")
	// ErrInvalidIgnorePattern is returned when a watch ignore pattern is malformed.
	ErrInvalidIgnorePattern = errors.New("invalid ignore pattern")
	// ErrInvalidWatchConfig is the sentinel error wrapped by InvalidWatchConfigError.
	ErrInvalidWatchConfig = errors.New("invalid watch config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// Duration is a Go duration string such as "2s" or "750ms".
	Duration string

	// InvalidDurationError is returned when a Duration value does not parse
	// or is negative.
	InvalidDurationError struct {
		Value Duration
		Cause error
	}

	// SitePackagesPath is a directory scanned for installed package metadata.
	SitePackagesPath string

	// InvalidSitePackagesPathError is returned when a SitePackagesPath is
	// empty or whitespace-only.
	InvalidSitePackagesPathError struct {
		Value SitePackagesPath
	}

	// IgnorePattern is a doublestar pattern excluded from watching.
	IgnorePattern string

	// InvalidIgnorePatternError is returned when an IgnorePattern is not a
	// valid doublestar pattern.
	InvalidIgnorePatternError struct {
		Value IgnorePattern
	}

	// InvalidWatchConfigError collects field-level errors of a WatchConfig.
	InvalidWatchConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects field-level errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// SitePackages lists directories scanned for installed packages, in priority order.
		SitePackages []SitePackagesPath `json:"site_packages" mapstructure:"site_packages"`
		// Watch configures the dev-mode watcher.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`
		// Merge configures the file merge engine.
		Merge MergeConfig `json:"merge" mapstructure:"merge"`
		// Resolve configures dependency resolution.
		Resolve ResolveConfig `json:"resolve" mapstructure:"resolve"`
		// UI configures terminal output.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// WatchConfig configures the dev-mode watcher.
	WatchConfig struct {
		// Debounce is the cooldown after the first change of a batch.
		Debounce Duration `json:"debounce" mapstructure:"debounce"`
		// Ignore adds patterns to the built-in ignore list.
		Ignore []IgnorePattern `json:"ignore" mapstructure:"ignore"`
		// MaxResubscribe bounds consecutive resubscription attempts before giving up.
		MaxResubscribe int `json:"max_resubscribe" mapstructure:"max_resubscribe"`
	}

	// MergeConfig configures the file merge engine.
	MergeConfig struct {
		// ForceMerge reports overwritten binary and unknown files as warnings.
		ForceMerge bool `json:"force_merge" mapstructure:"force_merge"`
		// Clean prunes stale files from managed target subtrees on a full build.
		Clean bool `json:"clean" mapstructure:"clean"`
	}

	// ResolveConfig configures dependency resolution.
	ResolveConfig struct {
		// Strict turns unresolved dependencies into a fatal error.
		Strict bool `json:"strict" mapstructure:"strict"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables debug logging.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// String returns the string representation of the Duration.
func (d Duration) String() string { return string(d) }

// Duration parses the value.
func (d Duration) Duration() (time.Duration, error) {
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return 0, &InvalidDurationError{Value: d, Cause: err}
	}
	if v < 0 {
		return 0, &InvalidDurationError{Value: d, Cause: errors.New("must not be negative")}
	}
	return v, nil
}

// IsValid returns whether the Duration parses to a non-negative value.
func (d Duration) IsValid() (bool, []error) {
	if _, err := d.Duration(); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// Error implements the error interface for InvalidDurationError.
func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration %q: %v", e.Value, e.Cause)
}

// Unwrap returns ErrInvalidDuration for errors.Is() compatibility.
func (e *InvalidDurationError) Unwrap() error { return ErrInvalidDuration }

// String returns the string representation of the SitePackagesPath.
func (p SitePackagesPath) String() string { return string(p) }

// IsValid returns whether the path is non-blank.
func (p SitePackagesPath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidSitePackagesPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSitePackagesPathError.
func (e *InvalidSitePackagesPathError) Error() string {
	return fmt.Sprintf("invalid site-packages path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidSitePackagesPath for errors.Is() compatibility.
func (e *InvalidSitePackagesPathError) Unwrap() error { return ErrInvalidSitePackagesPath }

// String returns the string representation of the IgnorePattern.
func (p IgnorePattern) String() string { return string(p) }

// IsValid returns whether the pattern is a non-empty, well-formed doublestar pattern.
func (p IgnorePattern) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" || !doublestar.ValidatePattern(string(p)) {
		return false, []error{&InvalidIgnorePatternError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidIgnorePatternError.
func (e *InvalidIgnorePatternError) Error() string {
	return fmt.Sprintf("invalid ignore pattern %q", e.Value)
}

// Unwrap returns ErrInvalidIgnorePattern for errors.Is() compatibility.
func (e *InvalidIgnorePatternError) Unwrap() error { return ErrInvalidIgnorePattern }

// IsValid returns whether the WatchConfig has valid fields.
func (c WatchConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Debounce.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, p := range c.Ignore {
		if valid, fieldErrs := p.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if c.MaxResubscribe < 0 {
		errs = append(errs, fmt.Errorf("max_resubscribe %d: must not be negative", c.MaxResubscribe))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidWatchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidWatchConfigError.
func (e *InvalidWatchConfigError) Error() string {
	return fmt.Sprintf("invalid watch config: %s", joinErrors(e.FieldErrors))
}

// Unwrap returns ErrInvalidWatchConfig followed by the field errors.
func (e *InvalidWatchConfigError) Unwrap() []error {
	return append([]error{ErrInvalidWatchConfig}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields.
// Merge, Resolve and UI hold only bools and need no validation.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for _, p := range c.SitePackages {
		if valid, fieldErrs := p.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.Watch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", joinErrors(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig followed by the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// SitePackageDirs returns the configured site-packages directories as strings.
func (c *Config) SitePackageDirs() []string {
	dirs := make([]string, len(c.SitePackages))
	for i, p := range c.SitePackages {
		dirs[i] = string(p)
	}
	return dirs
}

// IgnorePatterns returns the configured watch ignore patterns as strings.
func (c WatchConfig) IgnorePatterns() []string {
	out := make([]string, len(c.Ignore))
	for i, p := range c.Ignore {
		out[i] = string(p)
	}
	return out
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SitePackages: []SitePackagesPath{},
		Watch: WatchConfig{
			Debounce:       DefaultDebounce,
			Ignore:         []IgnorePattern{},
			MaxResubscribe: DefaultMaxResubscribe,
		},
		Merge: MergeConfig{
			ForceMerge: false,
			Clean:      true,
		},
		Resolve: ResolveConfig{
			Strict: false,
		},
		UI: UIConfig{
			Verbose: false,
		},
	}
}
