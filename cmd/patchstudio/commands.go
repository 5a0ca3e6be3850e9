package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sokinpui/patchstudio/cli"
	"github.com/sokinpui/patchstudio/internal/diffgen"
	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/selfcheck"
	"github.com/sokinpui/patchstudio/internal/source"
	"github.com/sokinpui/patchstudio/internal/state"
	"github.com/sokinpui/patchstudio/internal/tui"
	"github.com/sokinpui/patchstudio/internal/ui"
	"github.com/sokinpui/patchstudio/model"
	"github.com/sokinpui/patchstudio/patchstudio"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "patchstudio",
		Short: "Preview and apply unified diffs safely",
		Long: "patchstudio previews a unified diff (git, Index: or classic) against a project root\n" +
			"and applies it as one transaction with backups and rollback.\n\n" +
			"The patch is read from the given file, from piped stdin, or from the clipboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cli.Bind(root.PersistentFlags())

	root.AddCommand(
		newPreviewCmd(flags),
		newApplyCmd(flags),
		newSelfCheckCmd(),
		newDiffCmd(),
		newBackupsCmd(flags),
	)
	return root
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openApp resolves the root and config and loads the patch named by args.
func openApp(cmd *cobra.Command, flags *cli.Flags, args []string) (*patchstudio.App, error) {
	logger, err := flags.Logger()
	if err != nil {
		return nil, err
	}
	root, err := fs.NewRoot(flags.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root: %w", err)
	}
	cfg, err := flags.Config(cmd.Flags(), root.Dir())
	if err != nil {
		return nil, err
	}
	app, err := patchstudio.New(patchstudio.Options{Root: root.Dir(), Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}

	var patchPath string
	if len(args) > 0 {
		patchPath = args[0]
	}
	raw, kind, err := source.New().Read(patchPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("patch read", "source", string(kind), "bytes", len(raw))
	ui.Info("Read %d bytes of patch from %s", len(raw), kind)
	if _, err := app.Load(raw); err != nil {
		return nil, err
	}
	return app, nil
}

// applicable reports whether res may be applied, possibly by skipping files.
func applicable(res *patcher.Result) bool {
	if res.Report.Verdict == preflight.VerdictBlocked {
		return false
	}
	return !res.AnyBlocked || res.Config.AllowPartialApply
}

func newPreviewCmd(flags *cli.Flags) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "preview [PATCH]",
		Short: "Validate and simulate a patch without writing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, err := openApp(cmd, flags, args)
			if err != nil {
				return err
			}
			res, err := app.Preview(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ui.PrintReport(out, res.Report)
			ui.PrintPreview(out, res, showDiff)
			ui.OmittedBinaries(res)
			if res.Status == patcher.StatusHasBlocked {
				return &exitError{code: exitBlocked, err: model.ErrBlocked}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print the effective change of each file as a unified diff.")
	return cmd
}

func newApplyCmd(flags *cli.Flags) *cobra.Command {
	var yes, noTUI, showDiff bool
	cmd := &cobra.Command{
		Use:   "apply [PATCH]",
		Short: "Preview a patch, confirm, and apply it transactionally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, err := openApp(cmd, flags, args)
			if err != nil {
				return err
			}

			interactive := !yes && !noTUI && isTerminal(os.Stdin) && isTerminal(os.Stdout)
			if interactive {
				return runTUI(ctx, app, showDiff)
			}
			return runHeadless(ctx, cmd, app, yes, showDiff)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking for confirmation.")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print the preview instead of starting the interactive review.")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Include the effective diff of each file in the preview.")
	return cmd
}

func runTUI(ctx context.Context, app *patchstudio.App, showDiff bool) error {
	m := tui.New(ctx, app.Session(), showDiff)
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return m.Err()
}

func runHeadless(ctx context.Context, cmd *cobra.Command, app *patchstudio.App, yes, showDiff bool) error {
	res, err := app.Preview(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ui.PrintReport(out, res.Report)
	ui.PrintPreview(out, res, showDiff)
	ui.OmittedBinaries(res)
	if !applicable(res) {
		return fmt.Errorf("%w: nothing was written", model.ErrBlocked)
	}
	if !yes {
		return fmt.Errorf("%w: rerun with --yes to write these changes", model.ErrConfirmationRequired)
	}

	tx, err := applyWithProgress(ctx, app, res.AnyBlocked)
	if tx != nil {
		ui.PrintSummary(out, *tx)
	}
	if err == nil && tx != nil && tx.BackupDir != "" {
		ui.Success("Patch applied. Undo with: patchstudio backups restore %s", path.Base(tx.BackupDir))
	}
	return err
}

func applyWithProgress(ctx context.Context, app *patchstudio.App, skipBlocked bool) (*model.Summary, error) {
	if !isTerminal(os.Stderr) {
		s, err := app.Apply(ctx, skipBlocked)
		return &s, err
	}
	bar := ui.NewProgressBar(os.Stderr, "Applying")
	s, err := app.ApplyWithProgress(ctx, skipBlocked, bar.Update)
	bar.Finish()
	return &s, err
}

func newSelfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run the pipeline against built-in fixtures in a temp directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := selfcheck.Run(cmd.Context())
			ui.PrintSelfCheck(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			if !selfcheck.Passed(results) {
				return &exitError{code: exitSelfCheck, err: errors.New("self-check failed")}
			}
			return nil
		},
	}
}

func newDiffCmd() *cobra.Command {
	var unified int
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print a unified diff between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := diffgen.File{OldPath: headerName(args[0]), NewPath: headerName(args[1])}
			var err error
			if f.Old, err = os.ReadFile(args[0]); err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if f.New, err = os.ReadFile(args[1]); err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			out, err := diffgen.Generate(f, unified)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().IntVarP(&unified, "unified", "U", diffgen.DefaultContext, "Number of context lines.")
	return cmd
}

// headerName turns a command-line path into a relative diff header path.
// Paths outside the working directory keep only their base name.
func headerName(p string) string {
	if filepath.IsAbs(p) {
		if wd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(wd, p); err == nil {
				p = rel
			}
		}
	}
	if !filepath.IsLocal(p) {
		p = filepath.Base(p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func newBackupsCmd(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or restore backup runs",
	}

	store := func() (*state.Manager, error) {
		root, err := fs.NewRoot(flags.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to open project root: %w", err)
		}
		return state.New(root), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backup runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := store()
			if err != nil {
				return err
			}
			runs, err := m.List()
			if err != nil {
				return err
			}
			ui.PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore [RUN]",
		Short: "Undo a run's completed operations (default: the latest run)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := store()
			if err != nil {
				return err
			}
			var run *state.Run
			if len(args) == 1 {
				run, err = m.Load(args[0])
			} else {
				run, err = m.Latest()
			}
			if err != nil {
				return err
			}
			if run == nil {
				return errors.New("no backups to restore")
			}
			ui.Header("Restoring backup run %s", run.Name)
			res, err := m.Restore(run)
			if res != nil {
				ui.PrintRestoreSummary(cmd.OutOrStdout(), run.Name, res)
			}
			return err
		},
	}

	cmd.AddCommand(list, restore)
	return cmd
}
