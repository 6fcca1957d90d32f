package subproc

import (
	"context"
	"encoding/json"
)

// Engine is the proving engine. Every call is synchronous and cannot be
// cancelled once started; implementations may panic on native faults.
type Engine interface {
	SealPreCommitPhase1(ctx context.Context, shape Shape, p P1Params) (PreCommit1Out, error)
	SealPreCommitPhase2(ctx context.Context, shape Shape, p P2Params) (SectorCids, error)
	SealCommitPhase2(ctx context.Context, shape Shape, p C2Params) ([]byte, error)
	GenerateWindowPoSt(ctx context.Context, shape Shape, p PoStParams) (PoStOut, error)
}

// Phase binds a worker name to its parameter schema, engine entry point and
// result encoding.
type Phase[P Params, R any] struct {
	Name   string
	Prove  func(e Engine, ctx context.Context, shape Shape, params P) (R, error)
	Encode func(R) ([]byte, error)
}

var (
	PreCommit1 = Phase[P1Params, PreCommit1Out]{
		Name:   "p1",
		Prove:  Engine.SealPreCommitPhase1,
		Encode: encodeJSON[PreCommit1Out],
	}
	PreCommit2 = Phase[P2Params, SectorCids]{
		Name:   "p2",
		Prove:  Engine.SealPreCommitPhase2,
		Encode: encodeJSON[SectorCids],
	}
	// Commit2 results are written as raw proof bytes.
	Commit2 = Phase[C2Params, []byte]{
		Name:   "c2",
		Prove:  Engine.SealCommitPhase2,
		Encode: func(proof []byte) ([]byte, error) { return proof, nil },
	}
	WindowPoSt = Phase[PoStParams, PoStOut]{
		Name:   "post",
		Prove:  Engine.GenerateWindowPoSt,
		Encode: encodeJSON[PoStOut],
	}
)

func encodeJSON[R any](r R) ([]byte, error) {
	return json.Marshal(r)
}
