package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConflictMarkerMode selects the textual convention for unresolved hunks.
type ConflictMarkerMode string

const (
	// ConflictDiff3 emits current, base and patch sections.
	ConflictDiff3 ConflictMarkerMode = "diff3"
	// ConflictMerge emits current and patch sections only.
	ConflictMerge ConflictMarkerMode = "merge"
)

const (
	DefaultFuzzWindow = 10
	MaxFuzzWindow     = 200
)

// Config is the immutable set of toggles for one pipeline run. It is passed
// by value to every stage.
type Config struct {
	StrictFilenameMatch   bool               `yaml:"strict_filename_match"`
	FuzzyApply            bool               `yaml:"fuzzy_apply"`
	FuzzWindow            int                `yaml:"fuzz_window" validate:"min=1,max=200"`
	IgnoreWhitespace      bool               `yaml:"ignore_whitespace"`
	PreserveLineEndings   bool               `yaml:"preserve_line_endings"`
	SkipUnsupportedBinary bool               `yaml:"skip_unsupported_binary"`
	ConflictMarkerMode    ConflictMarkerMode `yaml:"conflict_marker_mode" validate:"oneof=diff3 merge"`

	AllowRenameDeleteModeChange bool `yaml:"allow_rename_delete_mode_change"`
	AllowPartialApply           bool `yaml:"allow_partial_apply"`
	AllowConflictedOutput       bool `yaml:"allow_conflicted_output"`
}

// DefaultConfig returns the conservative defaults: exact matching, original
// line endings kept, every gated operation refused.
func DefaultConfig() Config {
	return Config{
		FuzzWindow:          DefaultFuzzWindow,
		PreserveLineEndings: true,
		ConflictMarkerMode:  ConflictDiff3,
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration values.
func (c Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
