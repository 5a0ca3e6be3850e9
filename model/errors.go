package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy is returned when a pipeline run is already in flight.
	ErrBusy = errors.New("another pipeline run is in progress")
	// ErrBlocked is returned when apply is asked to write a blocked preview.
	ErrBlocked = errors.New("preview has blocking issues")
	// ErrNotPreviewed is returned when apply is requested without a current preview.
	ErrNotPreviewed = errors.New("no preview for the current document and configuration")
	// ErrNoDocument is returned when a stage runs before a document was loaded.
	ErrNoDocument = errors.New("no patch document loaded")
	// ErrConfirmationRequired is returned when a headless apply lacks explicit confirmation.
	ErrConfirmationRequired = errors.New("apply requires explicit confirmation")
)

// UnrecognizedFormatError means no diff segment boundary was found.
type UnrecognizedFormatError struct{}

func (e *UnrecognizedFormatError) Error() string {
	return "unrecognized patch format: no diff --git, Index: or ---/+++ header found"
}

// ParseError locates a parse failure. Offset counts bytes of the raw input;
// Line counts lines of the input.
type ParseError struct {
	File   string
	Offset int
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s at byte %d (line %d): %v", e.File, e.Offset, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// HunkCountMismatchError means a hunk body disagrees with its header counts.
type HunkCountMismatchError struct {
	File      string
	HunkIndex int
	OldWant   int
	OldGot    int
	NewWant   int
	NewGot    int
}

func (e *HunkCountMismatchError) Error() string {
	return fmt.Sprintf("hunk #%d of %s: header declares -%d/+%d lines, body has -%d/+%d",
		e.HunkIndex+1, e.File, e.OldWant, e.NewWant, e.OldGot, e.NewGot)
}

// OutsideRootError means a path escapes the project root. It can never be
// suppressed by configuration.
type OutsideRootError struct {
	Path string
	Root string
}

func (e *OutsideRootError) Error() string {
	return fmt.Sprintf("path %q resolves outside root %s", e.Path, e.Root)
}

// MissingTargetError means a file the change requires does not exist.
type MissingTargetError struct {
	Path   string
	Reason string
}

func (e *MissingTargetError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("target %q not found: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("target %q not found", e.Path)
}

// TargetExistsError means a create or rename would overwrite an existing file.
type TargetExistsError struct {
	Path string
}

func (e *TargetExistsError) Error() string {
	return fmt.Sprintf("destination %q already exists", e.Path)
}

// UnsupportedBinaryError marks binary changes, which are never applied.
type UnsupportedBinaryError struct {
	Path   string
	Reason string
}

func (e *UnsupportedBinaryError) Error() string {
	return fmt.Sprintf("binary change to %q is unsupported: %s", e.Path, e.Reason)
}

// GatedOperationError means the operation needs AllowRenameDeleteModeChange.
type GatedOperationError struct {
	Path      string
	Operation Operation
}

func (e *GatedOperationError) Error() string {
	return fmt.Sprintf("%s of %q requires allow_rename_delete_mode_change", e.Operation, e.Path)
}

// ConflictError means a hunk could not be located within the fuzzy bound.
type ConflictError struct {
	Path      string
	HunkIndex int
	// Line is the 1-based line where the hunk was expected.
	Line int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("hunk #%d of %q does not match at line %d", e.HunkIndex+1, e.Path, e.Line)
}

// StaleContentError means a file changed on disk after it was previewed.
type StaleContentError struct {
	Path string
}

func (e *StaleContentError) Error() string {
	return fmt.Sprintf("%q changed on disk since preview", e.Path)
}

// BackupFailureError aborts a destructive step before it is attempted.
type BackupFailureError struct {
	Path string
	Err  error
}

func (e *BackupFailureError) Error() string {
	return fmt.Sprintf("backup of %q failed: %v", e.Path, e.Err)
}

func (e *BackupFailureError) Unwrap() error { return e.Err }

// AtomicWriteFailureError wraps a failed temp-write-and-rename.
type AtomicWriteFailureError struct {
	Path string
	Err  error
}

func (e *AtomicWriteFailureError) Error() string {
	return fmt.Sprintf("atomic write of %q failed: %v", e.Path, e.Err)
}

func (e *AtomicWriteFailureError) Unwrap() error { return e.Err }

// PartialApplyError reports a transaction that stopped on a file failure.
type PartialApplyError struct {
	// Completed lists files whose changes remain on disk.
	Completed []string
	// RolledBack lists files restored to their pre-transaction state.
	RolledBack []string
	// Failed lists the file whose failure stopped the transaction.
	Failed []string
	// RollbackFailed lists files whose restore itself failed.
	RollbackFailed []string
	// RollbackSuppressed is set when AllowPartialApply kept completed files.
	RollbackSuppressed bool
	Err                error
}

func (e *PartialApplyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "apply failed on %s: %v", strings.Join(e.Failed, ", "), e.Err)
	if e.RollbackSuppressed {
		fmt.Fprintf(&b, "; rollback suppressed, kept %d completed file(s)", len(e.Completed))
	} else {
		fmt.Fprintf(&b, "; rolled back %d file(s)", len(e.RolledBack))
	}
	if len(e.RollbackFailed) > 0 {
		fmt.Fprintf(&b, "; restore failed for %s", strings.Join(e.RollbackFailed, ", "))
	}
	return b.String()
}

func (e *PartialApplyError) Unwrap() error { return e.Err }
