// Package patchstudio is the library entry point: load a patch, preview it
// against a project root and apply it transactionally.
package patchstudio

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/sokinpui/patchstudio/internal/apply"
	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/session"
	"github.com/sokinpui/patchstudio/internal/source"
	"github.com/sokinpui/patchstudio/model"
)

// Options configures an App.
type Options struct {
	// Root is the project root; empty means the working directory.
	Root   string
	Config model.Config
	Logger *slog.Logger
}

// App drives one project root.
type App struct {
	root *fs.Root
	sess *session.Session
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// recoverPanic turns a panic into a DetailedError on *err.
func recoverPanic(err *error) {
	if r := recover(); r != nil {
		*err = &DetailedError{
			Err:   fmt.Errorf("internal panic: %v", r),
			Stack: debug.Stack(),
		}
	}
}

// New creates an App. A zero Options.Config is replaced by the defaults.
func New(opts Options) (*App, error) {
	root, err := fs.NewRoot(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root: %w", err)
	}
	cfg := opts.Config
	if cfg == (model.Config{}) {
		cfg = model.DefaultConfig()
	}
	var sessOpts []session.Option
	if opts.Logger != nil {
		sessOpts = append(sessOpts, session.WithLogger(opts.Logger))
	}
	sess, err := session.New(root, cfg, sessOpts...)
	if err != nil {
		return nil, err
	}
	return &App{root: root, sess: sess}, nil
}

// Root returns the canonical project root directory.
func (a *App) Root() string { return a.root.Dir() }

// Session exposes the underlying pipeline session.
func (a *App) Session() *session.Session { return a.sess }

// Load parses patch text, unwrapping markdown fences first.
func (a *App) Load(content []byte) (doc *model.PatchDocument, err error) {
	defer recoverPanic(&err)
	return a.sess.Load(source.Unwrap(content))
}

// Preview simulates the loaded patch. Nothing is written.
func (a *App) Preview(ctx context.Context) (res *patcher.Result, err error) {
	defer recoverPanic(&err)
	return a.sess.Preview(ctx)
}

// Apply writes the last preview. skipBlocked acknowledges that blocked files
// are left out; it only has an effect with AllowPartialApply.
func (a *App) Apply(ctx context.Context, skipBlocked bool) (model.Summary, error) {
	return a.ApplyWithProgress(ctx, skipBlocked, nil)
}

// ApplyWithProgress is Apply with a callback invoked after each file.
func (a *App) ApplyWithProgress(ctx context.Context, skipBlocked bool, progress func(done, total int)) (summary model.Summary, err error) {
	defer recoverPanic(&err)
	var opts []apply.Option
	if skipBlocked {
		opts = append(opts, apply.WithSkipBlocked())
	}
	if progress != nil {
		opts = append(opts, apply.WithProgress(progress))
	}
	tx, err := a.sess.Apply(ctx, opts...)
	if tx == nil {
		return model.Summary{}, err
	}
	return tx.Summary(), err
}

// Apply loads, previews and applies content under root in one call. Blocked
// previews are refused unless cfg.AllowPartialApply is set.
func Apply(ctx context.Context, root string, content string, cfg model.Config) (model.Summary, error) {
	app, err := New(Options{Root: root, Config: cfg})
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize patchstudio: %w", err)
	}
	if _, err := app.Load([]byte(content)); err != nil {
		return model.Summary{}, err
	}
	if _, err := app.Preview(ctx); err != nil {
		return model.Summary{}, err
	}
	return app.Apply(ctx, cfg.AllowPartialApply)
}
