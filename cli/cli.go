// Package cli binds the pipeline configuration to command-line flags and
// the optional YAML config file.
package cli

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/patchstudio/model"
)

// ConfigFileName is looked up in the project root when --config is not given.
const ConfigFileName = ".patchstudio.yaml"

// Flags holds the values of the shared command-line flags.
type Flags struct {
	Root       string
	ConfigPath string
	LogLevel   string

	cfg model.Config
}

// Bind defines the shared flags on fs. Config toggles default to
// model.DefaultConfig and only override the config file when set.
func Bind(fs *pflag.FlagSet) *Flags {
	f := &Flags{cfg: model.DefaultConfig()}

	fs.StringVarP(&f.Root, "root", "C", "", "Project root all paths are resolved against (default: current directory).")
	fs.StringVar(&f.ConfigPath, "config", "", "YAML config file (default: <root>/"+ConfigFileName+" when present).")
	fs.StringVar(&f.LogLevel, "log-level", "warn", "Log level for diagnostics on stderr: debug, info, warn, error.")

	fs.BoolVar(&f.cfg.StrictFilenameMatch, "strict-filename-match", f.cfg.StrictFilenameMatch, "Use the patch paths verbatim when locating targets.")
	fs.BoolVar(&f.cfg.FuzzyApply, "fuzzy", f.cfg.FuzzyApply, "Search nearby lines when a hunk does not match at its declared position.")
	fs.IntVar(&f.cfg.FuzzWindow, "fuzz-window", f.cfg.FuzzWindow, "Maximum line offset tried by --fuzzy.")
	fs.BoolVarP(&f.cfg.IgnoreWhitespace, "ignore-whitespace", "w", f.cfg.IgnoreWhitespace, "Ignore whitespace differences when matching hunks.")
	fs.BoolVar(&f.cfg.PreserveLineEndings, "preserve-line-endings", f.cfg.PreserveLineEndings, "Keep each file's own line endings.")
	fs.BoolVar(&f.cfg.SkipUnsupportedBinary, "skip-binary", f.cfg.SkipUnsupportedBinary, "Omit binary changes instead of blocking on them.")
	fs.StringVar((*string)(&f.cfg.ConflictMarkerMode), "conflict-markers", string(f.cfg.ConflictMarkerMode), "Conflict marker style: diff3 or merge.")
	fs.BoolVar(&f.cfg.AllowRenameDeleteModeChange, "allow-gated", f.cfg.AllowRenameDeleteModeChange, "Allow renames, deletions and mode changes.")
	fs.BoolVar(&f.cfg.AllowPartialApply, "allow-partial", f.cfg.AllowPartialApply, "Apply the files that passed and keep completed files on failure.")
	fs.BoolVar(&f.cfg.AllowConflictedOutput, "allow-conflicts", f.cfg.AllowConflictedOutput, "Write conflict markers instead of failing unmatched files.")

	return f
}

// flagFields maps flag names to the Config field they set.
var flagFields = map[string]func(dst *model.Config, src model.Config){
	"strict-filename-match": func(d *model.Config, s model.Config) { d.StrictFilenameMatch = s.StrictFilenameMatch },
	"fuzzy":                 func(d *model.Config, s model.Config) { d.FuzzyApply = s.FuzzyApply },
	"fuzz-window":           func(d *model.Config, s model.Config) { d.FuzzWindow = s.FuzzWindow },
	"ignore-whitespace":     func(d *model.Config, s model.Config) { d.IgnoreWhitespace = s.IgnoreWhitespace },
	"preserve-line-endings": func(d *model.Config, s model.Config) { d.PreserveLineEndings = s.PreserveLineEndings },
	"skip-binary":           func(d *model.Config, s model.Config) { d.SkipUnsupportedBinary = s.SkipUnsupportedBinary },
	"conflict-markers":      func(d *model.Config, s model.Config) { d.ConflictMarkerMode = s.ConflictMarkerMode },
	"allow-gated":           func(d *model.Config, s model.Config) { d.AllowRenameDeleteModeChange = s.AllowRenameDeleteModeChange },
	"allow-partial":         func(d *model.Config, s model.Config) { d.AllowPartialApply = s.AllowPartialApply },
	"allow-conflicts":       func(d *model.Config, s model.Config) { d.AllowConflictedOutput = s.AllowConflictedOutput },
}

// Config resolves the effective configuration: defaults, then the config
// file, then every flag the user set explicitly. rootDir is the canonical
// project root.
func (f *Flags) Config(fs *pflag.FlagSet, rootDir string) (model.Config, error) {
	path, required := f.ConfigPath, true
	if path == "" {
		path, required = filepath.Join(rootDir, ConfigFileName), false
	}
	cfg, err := LoadFile(path, model.DefaultConfig())
	if err != nil && (required || !errors.Is(err, iofs.ErrNotExist)) {
		return model.Config{}, err
	}

	fs.Visit(func(fl *pflag.Flag) {
		if set, ok := flagFields[fl.Name]; ok {
			set(&cfg, f.cfg)
		}
	})
	cfg.ConflictMarkerMode = model.ConflictMarkerMode(strings.ToLower(string(cfg.ConflictMarkerMode)))
	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML config over base. Keys missing from the file keep
// their base values.
func LoadFile(path string, base model.Config) (model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Logger returns a text logger on stderr at the requested level.
func (f *Flags) Logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", f.LogLevel, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
