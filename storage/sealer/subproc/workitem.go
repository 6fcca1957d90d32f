package subproc

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
)

// ParamDir is the directory under the worker path holding work item slots.
const ParamDir = "param"

// The identifier becomes a path segment, so it is kept to a safe set.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// WorkItem is one unit of work handed over by the parent.
type WorkItem struct {
	ID         string
	SectorSize abi.SectorSize

	// BaseDir is the worker path, Path the parameter/result slot under it.
	BaseDir string
	Path    string

	// Extra holds engine specific trailing arguments, e.g. a device index.
	Extra []string
}

type workerEnv struct {
	LotusWorkerPath string `envconfig:"LOTUS_WORKER_PATH"`
	WorkerPath      string `envconfig:"WORKER_PATH"`
}

// Locate resolves the work item from the positional arguments (identifier,
// sector size, extras) and the worker path environment. It never touches
// the filesystem.
func Locate(args []string) (WorkItem, error) {
	var env workerEnv
	if err := envconfig.Process("", &env); err != nil {
		return WorkItem{}, configErrorf("reading environment: %w", err)
	}
	base := env.LotusWorkerPath
	if base == "" {
		base = env.WorkerPath
	}
	if base == "" {
		return WorkItem{}, configErrorf("worker path not set (LOTUS_WORKER_PATH or WORKER_PATH)")
	}
	dir, err := homedir.Expand(base)
	if err != nil {
		return WorkItem{}, configErrorf("expanding worker path %q: %w", base, err)
	}

	if len(args) < 1 {
		return WorkItem{}, argumentErrorf("missing identifier argument")
	}
	id := args[0]
	if err := ValidateIdentifier(id); err != nil {
		return WorkItem{}, err
	}

	if len(args) < 2 {
		return WorkItem{}, argumentErrorf("missing sector-size argument")
	}
	ssize, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return WorkItem{}, argumentErrorf("parsing sector-size %q: %w", args[1], err)
	}

	return WorkItem{
		ID:         id,
		SectorSize: abi.SectorSize(ssize),
		BaseDir:    dir,
		Path:       SlotPath(dir, id),
		Extra:      append([]string(nil), args[2:]...),
	}, nil
}

// SlotPath is the parameter/result file of an identifier.
func SlotPath(base, id string) string {
	return filepath.Join(base, ParamDir, id)
}

func ValidateIdentifier(id string) error {
	if !identifierRe.MatchString(id) {
		return argumentErrorf("invalid identifier %q", id)
	}
	return nil
}
