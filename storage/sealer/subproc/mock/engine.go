// Package mock is a deterministic stand-in for the proving engine. Outputs
// are hashes of the inputs, commitments are valid piece/replica CIDs.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"sort"

	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/proof"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filmineio/lotus-subproc/storage/sealer/subproc"
)

var log = logging.Logger("subproc-mock")

// ProofSize is the length of a single groth16 proof.
const ProofSize = 192

var (
	ErrBadTicket     = xerrors.New("ticket must be 32 bytes")
	ErrBadRandomness = xerrors.New("randomness must be 32 bytes")
)

type Engine struct{}

var _ subproc.Engine = Engine{}

func (Engine) SealPreCommitPhase1(ctx context.Context, shape subproc.Shape, p subproc.P1Params) (subproc.PreCommit1Out, error) {
	if len(p.Ticket) != 32 {
		return subproc.PreCommit1Out{}, ErrBadTicket
	}

	h := sha256.New()
	for _, pi := range p.PieceInfos {
		h.Write(pi.PieceCID.Bytes())
		_ = binary.Write(h, binary.BigEndian, uint64(pi.Size))
	}
	commD, err := commcid.DataCommitmentV1ToCID(fr32(h.Sum(nil)))
	if err != nil {
		return subproc.PreCommit1Out{}, xerrors.Errorf("comm_d: %w", err)
	}

	state := digest(commD.Bytes(), p.Ticket, u64(uint64(p.ProverID)), u64(uint64(p.SectorID)))
	log.Debugw("mock precommit1", "sector", p.SectorID, "shape", shape.String())

	return subproc.PreCommit1Out{
		Shape:     shape,
		SealProof: p.PoRepConfig.SealProof,
		CommD:     commD,
		State:     state,
	}, nil
}

func (Engine) SealPreCommitPhase2(ctx context.Context, shape subproc.Shape, p subproc.P2Params) (subproc.SectorCids, error) {
	if !p.Phase1Output.CommD.Defined() {
		return subproc.SectorCids{}, xerrors.New("phase 1 output has no comm_d")
	}

	commR, err := CommR(p.Phase1Output.State, p.ReplicaPath)
	if err != nil {
		return subproc.SectorCids{}, xerrors.Errorf("comm_r: %w", err)
	}

	return subproc.SectorCids{
		Unsealed: p.Phase1Output.CommD,
		Sealed:   commR,
	}, nil
}

func (Engine) SealCommitPhase2(ctx context.Context, shape subproc.Shape, p subproc.C2Params) ([]byte, error) {
	if len(p.Phase1Output.State) == 0 {
		return nil, xerrors.New("empty commit phase 1 output")
	}

	seed := digest(p.Phase1Output.State, u64(uint64(p.ProverID)), u64(uint64(p.SectorID)))
	return expand(seed, ProofSize), nil
}

// GenerateWindowPoSt proves every replica whose sealed file exists; the
// others are reported as faulty.
func (Engine) GenerateWindowPoSt(ctx context.Context, shape subproc.Shape, p subproc.PoStParams) (subproc.PoStOut, error) {
	if len(p.Randomness) != 32 {
		return subproc.PoStOut{}, ErrBadRandomness
	}

	nums := make([]abi.SectorNumber, 0, len(p.Replicas))
	for n := range p.Replicas {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	out := subproc.PoStOut{Faulty: []abi.SectorNumber{}}
	h := sha256.New()
	h.Write(p.Randomness)
	var proved int
	for _, n := range nums {
		r := p.Replicas[n]
		if _, err := os.Stat(r.ReplicaPath); err != nil {
			log.Warnw("replica not accessible", "sector", n, "path", r.ReplicaPath, "error", err)
			out.Faulty = append(out.Faulty, n)
			continue
		}
		h.Write(r.CommR.Bytes())
		proved++
	}

	if proved > 0 {
		out.Proofs = []proof.PoStProof{{
			PoStProof:  p.PoStProof,
			ProofBytes: expand(h.Sum(nil), ProofSize),
		}}
	}
	return out, nil
}

// CommR returns the sealed CID the engine reports for a replica path and
// phase 1 state, for building PoSt inputs in tests.
func CommR(state []byte, replicaPath string) (cid.Cid, error) {
	return commcid.ReplicaCommitmentV1ToCID(fr32(digest(state, []byte(replicaPath))))
}

func digest(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func expand(seed []byte, n int) []byte {
	out := make([]byte, 0, n+len(seed))
	for len(out) < n {
		seed = digest(seed)
		out = append(out, seed...)
	}
	return out[:n]
}

// fr32 clears the two top bits so the digest is a valid field element.
func fr32(b []byte) []byte {
	b[31] &= 0x3f
	return b
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
