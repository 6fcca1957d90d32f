package subproc

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/proof"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// Params is implemented by every phase parameter schema. CheckShape rejects
// records whose shape dependent parts were produced for another shape.
type Params interface {
	CheckShape(Shape) error
}

type PoRepConfig struct {
	SealProof  abi.RegisteredSealProof `json:"registered_proof"`
	SectorSize abi.SectorSize          `json:"sector_size"`
}

func (c PoRepConfig) CheckShape(s Shape) error {
	if c.SectorSize != s.SectorSize() {
		return xerrors.Errorf("porep config sector size %d does not match shape %s", uint64(c.SectorSize), s)
	}
	return s.checkSealProof(c.SealProof)
}

// P1Params is the input of pre-commit phase 1.
type P1Params struct {
	PoRepConfig PoRepConfig        `json:"porep_config"`
	CachePath   string             `json:"cache_path"`
	InPath      string             `json:"in_path"`
	OutPath     string             `json:"out_path,omitempty"`
	ProverID    abi.ActorID        `json:"prover_id"`
	SectorID    abi.SectorNumber   `json:"sector_id"`
	Ticket      abi.SealRandomness `json:"ticket"`
	PieceInfos  []abi.PieceInfo    `json:"piece_infos"`
}

func (p P1Params) CheckShape(s Shape) error {
	if err := p.PoRepConfig.CheckShape(s); err != nil {
		return err
	}
	if p.CachePath == "" || p.InPath == "" {
		return xerrors.Errorf("cache_path and in_path are required")
	}
	return nil
}

// PreCommit1Out is the shape bound state produced by phase 1 and consumed
// by phase 2.
type PreCommit1Out struct {
	Shape     Shape                   `json:"shape"`
	SealProof abi.RegisteredSealProof `json:"registered_proof"`
	CommD     cid.Cid                 `json:"comm_d"`
	State     []byte                  `json:"state"`
}

func (o PreCommit1Out) CheckShape(s Shape) error {
	if o.Shape != s {
		return xerrors.Errorf("phase 1 output was produced for shape %s, dispatched %s", o.Shape, s)
	}
	return s.checkSealProof(o.SealProof)
}

type P2Params struct {
	PoRepConfig  PoRepConfig   `json:"porep_config"`
	CachePath    string        `json:"cache_path"`
	ReplicaPath  string        `json:"replica_path"`
	Phase1Output PreCommit1Out `json:"phase1_output"`
}

func (p P2Params) CheckShape(s Shape) error {
	if err := p.PoRepConfig.CheckShape(s); err != nil {
		return err
	}
	if err := p.Phase1Output.CheckShape(s); err != nil {
		return xerrors.Errorf("phase1_output: %w", err)
	}
	return nil
}

// SectorCids is the commitment pair produced by pre-commit phase 2.
type SectorCids struct {
	Unsealed cid.Cid `json:"comm_d"`
	Sealed   cid.Cid `json:"comm_r"`
}

// Commit1Out is the shape bound output of commit phase 1.
type Commit1Out struct {
	Shape     Shape                   `json:"shape"`
	SealProof abi.RegisteredSealProof `json:"registered_proof"`
	State     []byte                  `json:"state"`
}

func (o Commit1Out) CheckShape(s Shape) error {
	if o.Shape != s {
		return xerrors.Errorf("commit phase 1 output was produced for shape %s, dispatched %s", o.Shape, s)
	}
	return s.checkSealProof(o.SealProof)
}

type C2Params struct {
	PoRepConfig  PoRepConfig      `json:"porep_config"`
	Phase1Output Commit1Out       `json:"phase1_output"`
	ProverID     abi.ActorID      `json:"prover_id"`
	SectorID     abi.SectorNumber `json:"sector_id"`
}

func (p C2Params) CheckShape(s Shape) error {
	if err := p.PoRepConfig.CheckShape(s); err != nil {
		return err
	}
	if err := p.Phase1Output.CheckShape(s); err != nil {
		return xerrors.Errorf("phase1_output: %w", err)
	}
	return nil
}

type PrivateReplicaInfo struct {
	Shape       Shape   `json:"shape"`
	CommR       cid.Cid `json:"comm_r"`
	CacheDir    string  `json:"cache_dir"`
	ReplicaPath string  `json:"replica_path"`
}

type PoStParams struct {
	PoStProof  abi.RegisteredPoStProof                 `json:"registered_proof"`
	Randomness abi.PoStRandomness                      `json:"randomness"`
	ProverID   abi.ActorID                             `json:"prover_id"`
	Replicas   map[abi.SectorNumber]PrivateReplicaInfo `json:"replicas"`
}

func (p PoStParams) CheckShape(s Shape) error {
	if err := s.checkPoStProof(p.PoStProof); err != nil {
		return err
	}
	if len(p.Replicas) == 0 {
		return xerrors.Errorf("no replicas")
	}
	for num, r := range p.Replicas {
		if r.Shape != s {
			return xerrors.Errorf("replica %d has shape %s, dispatched %s", num, r.Shape, s)
		}
		if !r.CommR.Defined() {
			return xerrors.Errorf("replica %d: comm_r is undefined", num)
		}
	}
	return nil
}

type PoStOut struct {
	Proofs []proof.PoStProof  `json:"proofs"`
	Faulty []abi.SectorNumber `json:"faulty"`
}
