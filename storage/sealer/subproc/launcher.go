package subproc

import (
	"context"
	"errors"
	"os"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

// Options tweak a worker binary.
type Options struct {
	// UnbindCores resets the CPU affinity before any work is done.
	UnbindCores bool
}

// Main is the entry point of a worker binary. It never returns.
func Main[P Params, R any](ph Phase[P, R], engine Engine, opts Options) {
	g, err := InstallGuard(ph.Name)
	if err != nil {
		log.Errorw("installing startup guard", "phase", ph.Name, "error", err)
		os.Exit(ExitReported)
	}

	if opts.UnbindCores {
		if err := UnbindCores(); err != nil {
			log.Errorw("cannot unbind cores", "phase", ph.Name, "error", err)
			os.Exit(ExitReported)
		}
	}

	os.Exit(Run(context.Background(), os.Args, g, ph, engine))
}

// Run executes the worker command line and returns the exit code. The guard
// must already be installed.
func Run[P Params, R any](ctx context.Context, args []string, g *Guard, ph Phase[P, R], engine Engine) int {
	app := &cli.App{
		Name:            "lotus-" + ph.Name,
		Usage:           "run the " + ph.Name + " sealing phase for one work item",
		ArgsUsage:       "<identifier> <sector-size> [extra...]",
		HideHelpCommand: true,
		// help would exit 0 without touching the slot
		HideHelp: true,
		// exit codes are chosen below, never by the cli package
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(cctx *cli.Context) error {
			return runItem(cctx.Context, cctx.Args().Slice(), g, ph, engine)
		},
	}

	err := app.RunContext(ctx, args)
	code := ExitCode(err)
	switch code {
	case ExitOK:
		log.Infow("subprocess finished", "phase", ph.Name)
	case ExitCrashed:
		log.Errorw("subprocess crashed", "phase", ph.Name, "error", err)
	default:
		log.Errorw("subprocess error", "phase", ph.Name, "error", err)
	}
	return code
}

func runItem[P Params, R any](ctx context.Context, args []string, g *Guard, ph Phase[P, R], engine Engine) error {
	item, err := Locate(args)
	if err != nil {
		// no slot to report into
		return err
	}
	log.Infow("subprocess started", "phase", ph.Name, "id", item.ID,
		"sector_size", units.BytesSize(float64(item.SectorSize)), "extra", item.Extra)

	slot := NewResultFile(item.Path)
	err = g.Supervise(func() error {
		_, err := Dispatch(item.SectorSize, func(shape Shape) (struct{}, error) {
			return struct{}{}, Execute(ctx, ph, engine, shape, slot)
		})
		return err
	})
	if err == nil {
		return nil
	}

	var cf *CrashFault
	if errors.As(err, &cf) {
		// state may be broken after a panic, reporting is best effort
		g.Quietly(func() {
			if werr := slot.WriteDiagnostic(cf); werr != nil {
				log.Warnw("cannot report crash", "phase", ph.Name, "path", slot.Path(), "error", werr)
			}
		})
		return cf
	}

	if !slot.Reported() {
		if werr := slot.WriteDiagnostic(err); werr != nil {
			return multierror.Append(err, werr)
		}
	}
	return err
}
