package subproc

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Process exit codes understood by the parent.
const (
	ExitOK       = 0
	ExitReported = 255
	ExitCrashed  = 254
)

type Kind int

const (
	KindArgument Kind = iota + 1
	KindConfig
	KindIO
	KindDeserialization
	KindUnrecognizedShape
	KindProving
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument error"
	case KindConfig:
		return "config error"
	case KindIO:
		return "io error"
	case KindDeserialization:
		return "deserialization error"
	case KindUnrecognizedShape:
		return "unrecognized shape"
	case KindProving:
		return "proving error"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is a typed, recoverable worker failure. It records the frame it was
// created at; %+v prints the frames of the whole chain.
type Error struct {
	Kind Kind
	Err  error

	frame xerrors.Frame
}

var (
	ErrArgument          error = &Error{Kind: KindArgument}
	ErrConfig            error = &Error{Kind: KindConfig}
	ErrIO                error = &Error{Kind: KindIO}
	ErrDeserialization   error = &Error{Kind: KindDeserialization}
	ErrUnrecognizedShape error = &Error{Kind: KindUnrecognizedShape}
	ErrProving           error = &Error{Kind: KindProving}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same kind, so errors.Is(err, ErrIO) works
// on any wrapped *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

func (e *Error) Format(s fmt.State, v rune) { xerrors.FormatError(e, s, v) }

func (e *Error) FormatError(p xerrors.Printer) error {
	p.Print(e.Kind.String())
	e.frame.Format(p)
	return e.Err
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err, frame: xerrors.Caller(1)}
}

func argumentErrorf(format string, args ...interface{}) error {
	return &Error{Kind: KindArgument, Err: xerrors.Errorf(format, args...), frame: xerrors.Caller(1)}
}

func configErrorf(format string, args ...interface{}) error {
	return &Error{Kind: KindConfig, Err: xerrors.Errorf(format, args...), frame: xerrors.Caller(1)}
}

func ioErrorf(format string, args ...interface{}) error {
	return &Error{Kind: KindIO, Err: xerrors.Errorf(format, args...), frame: xerrors.Caller(1)}
}

func deserializationErrorf(format string, args ...interface{}) error {
	return &Error{Kind: KindDeserialization, Err: xerrors.Errorf(format, args...), frame: xerrors.Caller(1)}
}

// CrashFault is an uncontrolled runtime fault recovered by the Guard.
type CrashFault struct {
	Phase string
	Value interface{}
	Stack []byte
}

func (c *CrashFault) Error() string {
	return fmt.Sprintf("panic in %s: %v", c.Phase, c.Value)
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ExitCode classifies the outcome of a worker run.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cf *CrashFault
	if errors.As(err, &cf) {
		return ExitCrashed
	}
	return ExitReported
}
