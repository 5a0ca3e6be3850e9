package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/patchstudio/internal/diffgen"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/selfcheck"
	"github.com/sokinpui/patchstudio/internal/state"
	"github.com/sokinpui/patchstudio/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

// messages receives the output of the status helpers below.
var messages io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(messages, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(messages, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(messages, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(messages, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(messages, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(messages, "  "+format+"\n", a...)
}

// OmittedBinaries warns about binary files left out of res.
func OmittedBinaries(res *patcher.Result) {
	var paths []string
	for _, fr := range res.Files {
		if fr.Entry.Omitted {
			paths = append(paths, fr.Change.DisplayPath())
		}
	}
	if len(paths) == 0 {
		return
	}
	Warning("Binary files are not patched and will be left unchanged:")
	for _, p := range paths {
		Path("%s", p)
	}
}

func list(w io.Writer, c *color.Color, title string, items []string) {
	if len(items) == 0 {
		return
	}
	c.Fprintf(w, "%s (%d):\n", title, len(items))
	for _, f := range items {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}

// --- Preflight ---

func statusColor(s preflight.Status) *color.Color {
	switch s {
	case preflight.StatusOk:
		return SuccessColor
	case preflight.StatusUnsupportedBinary, preflight.StatusGatedOperation:
		return WarningColor
	default:
		return ErrorColor
	}
}

// PrintReport writes one line per preflight entry and the verdict.
func PrintReport(w io.Writer, r *preflight.Report) {
	HeaderColor.Fprintln(w, "--- Preflight ---")
	for _, e := range r.Entries {
		statusColor(e.Status).Fprintf(w, "%-18s", e.Status)
		fmt.Fprintf(w, " %-11s %s", e.Change.Operation, e.Change.DisplayPath())
		if e.Omitted {
			FaintColor.Fprint(w, " (omitted)")
		}
		fmt.Fprintln(w)
		if e.Err != nil {
			FaintColor.Fprintf(w, "    %v\n", e.Err)
		}
	}
	c := SuccessColor
	switch r.Verdict {
	case preflight.VerdictBlocked:
		c = ErrorColor
	case preflight.VerdictOverridable:
		c = WarningColor
	}
	c.Fprintf(w, "Verdict: %s\n", r.Verdict)
}

// --- Preview ---

// PrintPreview writes the per-hunk outcome of every file. With showDiff the
// effective change of each file is printed as a unified diff.
func PrintPreview(w io.Writer, res *patcher.Result, showDiff bool) {
	HeaderColor.Fprintln(w, "--- Preview ---")
	for _, fr := range res.Files {
		name := fr.Change.DisplayPath()
		switch {
		case fr.Skipped:
			WarningColor.Fprintf(w, "skipped  %s", name)
			if fr.Err != nil {
				FaintColor.Fprintf(w, " (%v)", fr.Err)
			}
			fmt.Fprintln(w)
			continue
		case fr.Failed:
			ErrorColor.Fprintf(w, "failed   %s\n", name)
		case fr.HasConflict:
			WarningColor.Fprintf(w, "conflict %s\n", name)
		default:
			SuccessColor.Fprintf(w, "ok       %s", name)
			FaintColor.Fprintf(w, " (%s)\n", fr.Change.Operation)
		}
		for _, h := range fr.Hunks {
			printHunk(w, h)
		}
		if !fr.Failed && fr.Err != nil {
			FaintColor.Fprintf(w, "    %v\n", fr.Err)
		}
		if showDiff && !fr.Failed {
			printEffectiveDiff(w, fr)
		}
	}
	c := SuccessColor
	switch res.Status {
	case patcher.StatusHasBlocked:
		c = ErrorColor
	case patcher.StatusHasConflicts:
		c = WarningColor
	}
	c.Fprintf(w, "Status: %s", res.Status)
	if res.AnyFuzzy {
		WarningColor.Fprint(w, " (some hunks applied at an offset)")
	}
	fmt.Fprintln(w)
}

func printHunk(w io.Writer, h patcher.HunkOutcome) {
	switch h.Status {
	case patcher.HunkApplied:
		FaintColor.Fprintf(w, "    hunk #%d applied at line %d\n", h.Index+1, h.Line)
	case patcher.HunkAppliedFuzzy:
		WarningColor.Fprintf(w, "    hunk #%d applied at line %d (offset %+d)\n", h.Index+1, h.Line, h.Offset)
	default:
		ErrorColor.Fprintf(w, "    hunk #%d %s at line %d\n", h.Index+1, h.Status, h.Line)
		if len(h.ExpectedLines) > 0 {
			FaintColor.Fprintln(w, "      expected:")
			for _, l := range h.ExpectedLines {
				fmt.Fprintf(w, "        %s\n", l)
			}
		}
		if len(h.ActualLines) > 0 {
			FaintColor.Fprintln(w, "      found:")
			for _, l := range h.ActualLines {
				fmt.Fprintf(w, "        %s\n", l)
			}
		}
	}
}

func printEffectiveDiff(w io.Writer, fr patcher.FileResult) {
	f := diffgen.File{OldPath: fr.Source, NewPath: fr.Target, Old: fr.Original, New: fr.Content, Mode: fr.Change.NewMode}
	switch fr.Change.Operation {
	case model.OpCreate:
		f.OldPath = ""
	case model.OpDelete:
		f.NewPath = ""
	}
	out, err := diffgen.Generate(f, diffgen.DefaultContext)
	if err != nil {
		ErrorColor.Fprintf(w, "    could not render diff: %v\n", err)
		return
	}
	for _, line := range strings.SplitAfter(string(out), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "diff "):
			HeaderColor.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			InfoColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			SuccessColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			ErrorColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}

// --- Summaries ---

// PrintSummary writes the outcome of an apply run.
func PrintSummary(w io.Writer, s model.Summary) {
	HeaderColor.Fprintln(w, "\n--- Apply Summary ---")
	if s.Message != "" {
		InfoColor.Fprintln(w, s.Message)
	}
	if len(s.Created)+len(s.Modified)+len(s.Deleted)+len(s.Renamed)+len(s.Failed)+len(s.RolledBack) == 0 {
		InfoColor.Fprintln(w, "No files were updated.")
	}
	list(w, SuccessColor, "Created", s.Created)
	list(w, SuccessColor, "Modified", s.Modified)
	list(w, SuccessColor, "Deleted", s.Deleted)
	list(w, SuccessColor, "Renamed", s.Renamed)
	list(w, WarningColor, "Skipped", s.Skipped)
	list(w, WarningColor, "Rolled back", s.RolledBack)
	list(w, ErrorColor, "Failed", s.Failed)
	if s.BackupDir != "" {
		FaintColor.Fprintf(w, "Backups: %s\n", s.BackupDir)
	}
	if s.Status != "" {
		fmt.Fprintf(w, "Status: %s\n", s.Status)
	}
}

// PrintRestoreSummary writes the outcome of restoring a backup run.
func PrintRestoreSummary(w io.Writer, run string, r *state.RestoreResult) {
	HeaderColor.Fprintf(w, "\n--- Restore Summary (%s) ---\n", run)
	list(w, SuccessColor, "Restored", r.Restored)
	list(w, SuccessColor, "Removed", r.Removed)
	list(w, WarningColor, "Skipped (modified since the run)", r.Skipped)
	if len(r.Restored)+len(r.Removed)+len(r.Skipped) == 0 {
		InfoColor.Fprintln(w, "Nothing to restore.")
	}
}

// PrintRuns lists backup runs, oldest first.
func PrintRuns(w io.Writer, runs []*state.Run) {
	if len(runs) == 0 {
		InfoColor.Fprintln(w, "No backups.")
		return
	}
	for _, r := range runs {
		PathColor.Fprintf(w, "%-22s", r.Name)
		fmt.Fprintf(w, " %-16s %d operation(s)", r.Manifest.Status, len(r.Manifest.Operations))
		FaintColor.Fprintf(w, "  %s\n", r.Manifest.Transaction)
	}
}

// PrintSelfCheck writes one OK:/FAIL: line per check.
func PrintSelfCheck(w io.Writer, results []selfcheck.Result) {
	for _, r := range results {
		if r.OK() {
			SuccessColor.Fprintln(w, r.String())
		} else {
			ErrorColor.Fprintln(w, r.String())
		}
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	w       io.Writer
	total   int
	prefix  string
	current int
}

func NewProgressBar(w io.Writer, prefix string) *ProgressBar {
	return &ProgressBar{w: w, prefix: prefix}
}

// Update redraws the bar; it matches the apply progress callback.
func (p *ProgressBar) Update(current, total int) {
	p.current, p.total = current, total
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(p.w, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
