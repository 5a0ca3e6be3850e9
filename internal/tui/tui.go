package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/patchstudio/internal/apply"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/session"
	"github.com/sokinpui/patchstudio/internal/ui"
	"github.com/sokinpui/patchstudio/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type previewMsg struct{ res *patcher.Result }

type summaryMsg struct {
	model.Summary
	err error
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---

// Model previews the session's document, asks for confirmation and applies.
// Pipeline stages run as commands, off the UI loop.
type Model struct {
	sess     *session.Session
	ctx      context.Context
	cancel   context.CancelFunc
	showDiff bool

	spinner spinner.Model
	state   state
	preview *patcher.Result
	summary model.Summary
	err     error
}

type state int

const (
	statePreviewing state = iota
	stateReview
	stateApplying
	stateSummary
	stateBlocked
	stateAborted
	stateError
)

// New builds the model. The session must already hold a loaded document.
func New(ctx context.Context, sess *session.Session, showDiff bool) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		sess:     sess,
		ctx:      ctx,
		cancel:   cancel,
		showDiff: showDiff,
		spinner:  s,
		state:    statePreviewing,
	}
}

// Err returns the error that ended the run, if any. Declining the prompt
// yields model.ErrConfirmationRequired and a blocked preview model.ErrBlocked.
func (m *Model) Err() error {
	switch m.state {
	case stateAborted:
		return model.ErrConfirmationRequired
	case stateBlocked:
		return model.ErrBlocked
	}
	return m.err
}

// Summary returns the apply summary once the run finished.
func (m *Model) Summary() model.Summary { return m.summary }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runPreview)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case previewMsg:
		m.preview = msg.res
		if !applicable(msg.res) {
			m.state = stateBlocked
			return m, tea.Quit
		}
		m.state = stateReview
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg.Summary
		m.err = msg.err
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == statePreviewing || m.state == stateApplying {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		// An in-flight apply sees the cancellation and rolls back.
		m.cancel()
		if m.state == stateApplying {
			return m, nil
		}
		m.state = stateAborted
		return m, tea.Quit
	}
	if m.state != stateReview {
		return m, nil
	}
	switch msg.String() {
	case "y", "Y":
		m.state = stateApplying
		return m, tea.Batch(m.spinner.Tick, m.runApply)
	case "n", "N", "q", "esc", "enter":
		m.state = stateAborted
		return m, tea.Quit
	}
	return m, nil
}

// applicable reports whether confirming res could write anything.
func applicable(res *patcher.Result) bool {
	if res.Report.Verdict == preflight.VerdictBlocked {
		return false
	}
	return !res.AnyBlocked || res.Config.AllowPartialApply
}

func (m *Model) View() string {
	switch m.state {
	case statePreviewing:
		return fmt.Sprintf("%s Previewing...", m.spinner.View())
	case stateApplying:
		return fmt.Sprintf("%s Applying...", m.spinner.View())
	case stateReview:
		return m.renderPreview() + "\n" + m.renderPrompt()
	case stateBlocked:
		return m.renderPreview() + "\n" + errorStyle.Render("Blocked: nothing was written.") + "\n"
	case stateAborted:
		return faintStyle.Render("Aborted: nothing was written.") + "\n"
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderPreview() string {
	if m.preview == nil {
		return ""
	}
	var buf bytes.Buffer
	ui.PrintReport(&buf, m.preview.Report)
	ui.PrintPreview(&buf, m.preview, m.showDiff)
	return buf.String()
}

func (m *Model) renderPrompt() string {
	if m.preview.AnyBlocked {
		return warningStyle.Render("Blocked or failed files will be skipped.") + "\n" +
			promptStyle.Render("Apply the remaining changes? [y/N] ")
	}
	if m.preview.AnyConflict {
		return warningStyle.Render("Files with conflict markers will be written.") + "\n" +
			promptStyle.Render("Apply these changes? [y/N] ")
	}
	return promptStyle.Render("Apply these changes? [y/N] ")
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		style := headerStyle
		if m.err != nil {
			style = errorStyle
		}
		b.WriteString(style.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	section := func(title string, style lipgloss.Style, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range items {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section("Created:", successStyle, m.summary.Created)
	section("Modified:", successStyle, m.summary.Modified)
	section("Deleted:", successStyle, m.summary.Deleted)
	section("Renamed:", successStyle, m.summary.Renamed)
	section("Skipped:", warningStyle, m.summary.Skipped)
	section("Rolled back:", warningStyle, m.summary.RolledBack)
	section("Failed:", errorStyle, m.summary.Failed)

	if m.summary.BackupDir != "" {
		b.WriteString(faintStyle.Render("Backups: " + m.summary.BackupDir))
		b.WriteString("\n")
	}
	b.WriteString(headerStyle.Render("Status: " + m.summary.Status))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) runPreview() tea.Msg {
	res, err := m.sess.Preview(m.ctx)
	if err != nil {
		return errorMsg{err}
	}
	return previewMsg{res}
}

func (m *Model) runApply() tea.Msg {
	var opts []apply.Option
	if m.preview.AnyBlocked {
		opts = append(opts, apply.WithSkipBlocked())
	}
	tx, err := m.sess.Apply(m.ctx, opts...)
	if tx == nil {
		if err == nil {
			err = errors.New("apply returned no transaction")
		}
		return errorMsg{err}
	}
	return summaryMsg{Summary: tx.Summary(), err: err}
}
