package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sokinpui/patchstudio/internal/ui"
	"github.com/sokinpui/patchstudio/model"
	"github.com/sokinpui/patchstudio/patchstudio"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitSelfCheck = 2
	exitBlocked   = 3
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, model.ErrBlocked), errors.Is(err, model.ErrConfirmationRequired):
		return exitBlocked
	default:
		return exitFailure
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		ui.Error("Error: %v", err)
		var de *patchstudio.DetailedError
		if errors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", de.Stack)
		}
	}
	os.Exit(exitCode(err))
}
