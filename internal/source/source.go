// Package source reads raw patch input from a file, piped stdin or the
// system clipboard, unwrapping markdown fences when needed.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
)

// Kind names where input came from.
type Kind string

const (
	KindFile      Kind = "file"
	KindStdin     Kind = "stdin"
	KindClipboard Kind = "clipboard"
)

// ErrEmpty is returned when the chosen source holds no text.
var ErrEmpty = errors.New("input is empty")

// Provider retrieves patch text.
type Provider struct {
	Stdin io.Reader
	// StdinPiped reports whether stdin is redirected rather than a terminal.
	StdinPiped func() bool
	Clipboard  func() (string, error)
}

// New returns a provider bound to the process stdin and the system clipboard.
func New() *Provider {
	return &Provider{
		Stdin: os.Stdin,
		StdinPiped: func() bool {
			fd := os.Stdin.Fd()
			return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
		},
		Clipboard: clipboard.ReadAll,
	}
}

// Read returns the patch text named by path: "-" is stdin, any other
// non-empty value is a file. With no path, piped stdin wins over the
// clipboard. Markdown input is unwrapped to its diff blocks.
func (p *Provider) Read(path string) ([]byte, Kind, error) {
	raw, kind, err := p.read(path)
	if err != nil {
		return nil, kind, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, kind, fmt.Errorf("%s: %w", kind, ErrEmpty)
	}
	return Unwrap(raw), kind, nil
}

func (p *Provider) read(path string) ([]byte, Kind, error) {
	switch {
	case path == "-":
		return p.readStdin()
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, KindFile, fmt.Errorf("failed to read patch file: %w", err)
		}
		return data, KindFile, nil
	case p.StdinPiped != nil && p.StdinPiped():
		return p.readStdin()
	}

	if p.Clipboard == nil {
		return nil, KindClipboard, fmt.Errorf("no clipboard available")
	}
	content, err := p.Clipboard()
	if err != nil {
		return nil, KindClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return []byte(content), KindClipboard, nil
}

func (p *Provider) readStdin() ([]byte, Kind, error) {
	data, err := io.ReadAll(p.Stdin)
	if err != nil {
		return nil, KindStdin, fmt.Errorf("failed to read from stdin: %w", err)
	}
	return data, KindStdin, nil
}
