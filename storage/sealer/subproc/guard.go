package subproc

import (
	"os"
	"runtime/debug"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var log = logging.Logger("subproc")

var guardInstalled atomic.Bool

// Guard is the process wide fault boundary of a worker.
type Guard struct {
	phase string
}

// InstallGuard sets up the log sink and crash output for the worker process.
// It must run once, before the work item is located; a second call fails.
func InstallGuard(phase string) (*Guard, error) {
	if !guardInstalled.CompareAndSwap(false, true) {
		return nil, xerrors.Errorf("%s: startup guard already installed", phase)
	}

	cfg := logging.GetConfig()
	logging.SetupLogging(cfg)

	// fatal runtime errors can't be recovered, keep their traces next to the log
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, xerrors.Errorf("opening crash output %s: %w", cfg.File, err)
		}
		defer f.Close() // nolint:errcheck
		if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
			return nil, xerrors.Errorf("setting crash output: %w", err)
		}
	}

	log.Infow("startup guard installed", "phase", phase, "pid", os.Getpid())
	return &Guard{phase: phase}, nil
}

func (g *Guard) Phase() string { return g.phase }

// Supervise runs fn and turns a panic raised on the calling goroutine,
// including memory faults, into a *CrashFault. Panics on goroutines started
// by fn are not caught.
func (g *Guard) Supervise(fn func() error) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cf := &CrashFault{Phase: g.phase, Value: r, Stack: debug.Stack()}
		log.Desugar().Error("panic occurred",
			zap.String("phase", g.phase),
			zap.Any("value", r),
			zap.ByteString("backtrace", cf.Stack))
		err = cf
	}()

	return fn()
}

// Quietly runs fn, dropping any panic it raises. Used for best effort
// reporting after a crash.
func (g *Guard) Quietly(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("panic while reporting crash", "phase", g.phase, "value", r)
		}
	}()
	fn()
}
