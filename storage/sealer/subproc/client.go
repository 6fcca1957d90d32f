package subproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

type OutcomeKind int

const (
	// OutcomeUnknown covers killed workers and slots left untouched.
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeReported
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Outcome is what the parent learns about a finished worker.
type Outcome[R any] struct {
	Kind       OutcomeKind
	ExitCode   int
	Result     R
	Diagnostic string
}

// Client is the parent side of the protocol: it prepares work item slots,
// launches worker binaries and reads their outcome back.
type Client struct {
	WorkerPath string
	// BinDir holds the lotus-<phase> binaries; empty means $PATH.
	BinDir string
}

// Prepare writes params into a fresh slot and returns its identifier.
func (c *Client) Prepare(params interface{}) (string, error) {
	id := uuid.New().String()

	if err := os.MkdirAll(filepath.Join(c.WorkerPath, ParamDir), 0755); err != nil {
		return "", xerrors.Errorf("creating param dir: %w", err)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", xerrors.Errorf("marshaling params: %w", err)
	}
	if err := os.WriteFile(SlotPath(c.WorkerPath, id), b, 0644); err != nil {
		return "", xerrors.Errorf("writing params for %s: %w", id, err)
	}
	return id, nil
}

// Command builds the worker invocation for a prepared slot.
func (c *Client) Command(ctx context.Context, phase, id string, size abi.SectorSize, extra ...string) *exec.Cmd {
	bin := "lotus-" + phase
	if c.BinDir != "" {
		bin = filepath.Join(c.BinDir, bin)
	}
	args := append([]string{id, strconv.FormatUint(uint64(size), 10)}, extra...)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = c.environ()
	cmd.Stderr = os.Stderr
	return cmd
}

// environ is the parent environment with both worker path variables pointing
// at c.WorkerPath, so an inherited LOTUS_WORKER_PATH can't redirect the slot.
func (c *Client) environ() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LOTUS_WORKER_PATH=") || strings.HasPrefix(kv, "WORKER_PATH=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "LOTUS_WORKER_PATH="+c.WorkerPath, "WORKER_PATH="+c.WorkerPath)
}

// Collect reads the slot of a finished worker and removes it. decode parses
// the success payload of the phase.
func Collect[R any](c *Client, id string, exitCode int, decode func([]byte) (R, error)) (Outcome[R], error) {
	out := Outcome[R]{ExitCode: exitCode}
	path := SlotPath(c.WorkerPath, id)

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, xerrors.Errorf("reading slot %s: %w", id, err)
	}

	switch {
	case bytes.HasPrefix(b, []byte(DiagnosticErrorPrefix)), bytes.HasPrefix(b, []byte(DiagnosticPanicPrefix)):
		out.Kind = OutcomeReported
		out.Diagnostic = string(b)
	case exitCode == ExitOK:
		r, err := decode(b)
		if err != nil {
			log.Warnw("worker exited cleanly but result does not decode", "id", id, "error", err)
			return out, nil
		}
		out.Kind = OutcomeSuccess
		out.Result = r
	default:
		// non-zero exit with the parameters still in place
		return out, nil
	}

	if err := os.Remove(path); err != nil {
		return out, xerrors.Errorf("removing slot %s: %w", id, err)
	}
	return out, nil
}

// DecodeJSON is the decode function of phases with JSON results. Unknown
// fields are rejected so a leftover parameter record is never mistaken for
// a result.
func DecodeJSON[R any](b []byte) (R, error) {
	var r R
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	err := dec.Decode(&r)
	return r, err
}

// DecodeProof is the decode function of the c2 phase.
func DecodeProof(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, xerrors.New("empty proof")
	}
	return b, nil
}

// Call prepares a slot, runs the worker to completion and collects it.
func Call[R any](ctx context.Context, c *Client, phase string, size abi.SectorSize, params interface{}, decode func([]byte) (R, error), extra ...string) (Outcome[R], error) {
	id, err := c.Prepare(params)
	if err != nil {
		return Outcome[R]{}, err
	}

	cmd := c.Command(ctx, phase, id, size, extra...)
	exitCode := ExitOK
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return Outcome[R]{}, xerrors.Errorf("running %s worker: %w", phase, err)
		}
		exitCode = ee.ExitCode()
	}

	return Collect(c, id, exitCode, decode)
}
