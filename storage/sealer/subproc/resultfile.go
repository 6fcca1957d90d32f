package subproc

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// Prefixes of diagnostics written over a slot, used by the parent to tell a
// reported failure from a success payload.
const (
	DiagnosticErrorPrefix = "error: "
	DiagnosticPanicPrefix = "panic in "
)

// ResultFile is the parameter/result slot of one work item. The worker owns
// it until it exits.
type ResultFile struct {
	path     string
	reported bool
}

func NewResultFile(path string) *ResultFile {
	return &ResultFile{path: path}
}

func (f *ResultFile) Path() string { return f.path }

// Reported is true once a result or diagnostic write was attempted.
func (f *ResultFile) Reported() bool { return f.reported }

func (f *ResultFile) ReadParams() ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, ioErrorf("reading parameter file %s: %w", f.path, err)
	}
	return b, nil
}

// WriteResult replaces the slot content with a success payload.
func (f *ResultFile) WriteResult(b []byte) error {
	f.reported = true
	if err := f.replace(b); err != nil {
		return ioErrorf("writing result to %s: %w", f.path, err)
	}
	return nil
}

// WriteDiagnostic replaces the slot content with a readable description of
// err. Writing twice leaves only the last diagnostic.
func (f *ResultFile) WriteDiagnostic(err error) error {
	f.reported = true
	if werr := f.replace([]byte(Diagnostic(err))); werr != nil {
		return ioErrorf("writing diagnostic to %s: %w", f.path, werr)
	}
	return nil
}

// replace truncates the slot and writes b with a single write call.
func (f *ResultFile) replace(b []byte) error {
	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return xerrors.Errorf("open slot: %w", err)
	}

	n, err := fh.Write(b)
	if err != nil {
		_ = fh.Close()
		return xerrors.Errorf("write slot: %w", err)
	}
	if n < len(b) {
		_ = fh.Close()
		return xerrors.Errorf("short write to slot: %d of %d bytes", n, len(b))
	}

	return fh.Close()
}

// Diagnostic renders err the way it is persisted in a result slot.
func Diagnostic(err error) string {
	var cf *CrashFault
	if errors.As(err, &cf) {
		return fmt.Sprintf("%s\nbacktrace:\n%s", cf.Error(), cf.Stack)
	}

	var sb strings.Builder
	sb.WriteString(DiagnosticErrorPrefix)
	sb.WriteString(err.Error())
	sb.WriteString("\nbacktrace:\n")
	_, _ = fmt.Fprintf(&sb, "%+v\n", err)
	return sb.String()
}
