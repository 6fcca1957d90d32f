package subproc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

type engineMock struct {
	mock.Mock
}

func (m *engineMock) SealPreCommitPhase1(ctx context.Context, shape Shape, p P1Params) (PreCommit1Out, error) {
	args := m.Called(ctx, shape, p)
	return args.Get(0).(PreCommit1Out), args.Error(1)
}

func (m *engineMock) SealPreCommitPhase2(ctx context.Context, shape Shape, p P2Params) (SectorCids, error) {
	args := m.Called(ctx, shape, p)
	return args.Get(0).(SectorCids), args.Error(1)
}

func (m *engineMock) SealCommitPhase2(ctx context.Context, shape Shape, p C2Params) ([]byte, error) {
	args := m.Called(ctx, shape, p)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *engineMock) GenerateWindowPoSt(ctx context.Context, shape Shape, p PoStParams) (PoStOut, error) {
	args := m.Called(ctx, shape, p)
	return args.Get(0).(PoStOut), args.Error(1)
}

func testCid(t *testing.T, seed byte) cid.Cid {
	b := make([]byte, 32)
	b[0] = seed
	c, err := commcid.DataCommitmentV1ToCID(b)
	require.NoError(t, err)
	return c
}

func testP1Params(t *testing.T) P1Params {
	return P1Params{
		PoRepConfig: PoRepConfig{SealProof: abi.RegisteredSealProof_StackedDrg2KiBV1_1, SectorSize: 2048},
		CachePath:   "/work/cache/s-t01000-1",
		InPath:      "/work/unsealed/s-t01000-1",
		ProverID:    1000,
		SectorID:    1,
		Ticket:      make(abi.SealRandomness, 32),
		PieceInfos:  []abi.PieceInfo{{Size: 2048, PieceCID: testCid(t, 1)}},
	}
}

func writeSlot(t *testing.T, v interface{}) *ResultFile {
	path := filepath.Join(t.TempDir(), "slot")
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0644))
	return NewResultFile(path)
}

func readSlot(t *testing.T, slot *ResultFile) []byte {
	b, err := os.ReadFile(slot.Path())
	require.NoError(t, err)
	return b
}

func TestExecuteP1(t *testing.T) {
	params := testP1Params(t)
	slot := writeSlot(t, params)

	want := PreCommit1Out{
		Shape:     Shape2KiB,
		SealProof: params.PoRepConfig.SealProof,
		CommD:     testCid(t, 2),
		State:     []byte("labels"),
	}
	eng := new(engineMock)
	eng.On("SealPreCommitPhase1", mock.Anything, Shape2KiB, params).Return(want, nil).Once()

	require.NoError(t, Execute(context.Background(), PreCommit1, eng, Shape2KiB, slot))
	eng.AssertExpectations(t)

	got, err := DecodeParams[PreCommit1Out](readSlot(t, slot), Shape2KiB)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestExecuteC2WritesRawProof(t *testing.T) {
	params := C2Params{
		PoRepConfig:  PoRepConfig{SealProof: abi.RegisteredSealProof_StackedDrg32GiBV1_1, SectorSize: 32 << 30},
		Phase1Output: Commit1Out{Shape: Shape32GiB, SealProof: abi.RegisteredSealProof_StackedDrg32GiBV1_1, State: []byte("c1")},
		ProverID:     1000,
		SectorID:     7,
	}
	slot := writeSlot(t, params)

	proof := []byte{0xde, 0xad, 0xbe, 0xef}
	eng := new(engineMock)
	eng.On("SealCommitPhase2", mock.Anything, Shape32GiB, params).Return(proof, nil)

	require.NoError(t, Execute(context.Background(), Commit2, eng, Shape32GiB, slot))
	require.Equal(t, proof, readSlot(t, slot))
}

func TestExecuteShapeMismatch(t *testing.T) {
	params := P2Params{
		PoRepConfig: PoRepConfig{SealProof: abi.RegisteredSealProof_StackedDrg2KiBV1_1, SectorSize: 2048},
		CachePath:   "/cache",
		ReplicaPath: "/sealed",
		Phase1Output: PreCommit1Out{
			Shape:     Shape8MiB,
			SealProof: abi.RegisteredSealProof_StackedDrg8MiBV1_1,
			CommD:     testCid(t, 3),
		},
	}
	slot := writeSlot(t, params)
	eng := new(engineMock)

	err := Execute(context.Background(), PreCommit2, eng, Shape2KiB, slot)
	require.ErrorIs(t, err, ErrDeserialization)
	eng.AssertNotCalled(t, "SealPreCommitPhase2", mock.Anything, mock.Anything, mock.Anything)

	b := readSlot(t, slot)
	require.True(t, strings.HasPrefix(string(b), DiagnosticErrorPrefix))
	require.Contains(t, string(b), "8MiB")
}

func TestExecuteRejectsForeignSchema(t *testing.T) {
	// a p1 record handed to the p2 worker
	slot := writeSlot(t, testP1Params(t))
	eng := new(engineMock)

	err := Execute(context.Background(), PreCommit2, eng, Shape2KiB, slot)
	require.ErrorIs(t, err, ErrDeserialization)
	eng.AssertNotCalled(t, "SealPreCommitPhase2", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteProvingError(t *testing.T) {
	params := testP1Params(t)
	slot := writeSlot(t, params)

	cause := xerrors.New("not enough memory for layers")
	eng := new(engineMock)
	eng.On("SealPreCommitPhase1", mock.Anything, Shape2KiB, params).Return(PreCommit1Out{}, cause)

	err := Execute(context.Background(), PreCommit1, eng, Shape2KiB, slot)
	require.ErrorIs(t, err, ErrProving)
	require.ErrorIs(t, err, cause)

	b := readSlot(t, slot)
	require.True(t, strings.HasPrefix(string(b), DiagnosticErrorPrefix+"proving error: not enough memory"))
}

func TestExecuteMissingSlot(t *testing.T) {
	slot := NewResultFile(filepath.Join(t.TempDir(), "missing", "slot"))
	eng := new(engineMock)

	err := Execute(context.Background(), WindowPoSt, eng, Shape2KiB, slot)
	require.ErrorIs(t, err, ErrIO)
	require.True(t, slot.Reported())
	eng.AssertNotCalled(t, "GenerateWindowPoSt", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteResultEncodeFailure(t *testing.T) {
	params := testP1Params(t)
	slot := writeSlot(t, params)

	// an invalid shape can't be marshaled
	eng := new(engineMock)
	eng.On("SealPreCommitPhase1", mock.Anything, Shape2KiB, params).Return(PreCommit1Out{Shape: Shape(0)}, nil)

	err := Execute(context.Background(), PreCommit1, eng, Shape2KiB, slot)
	require.ErrorIs(t, err, ErrIO)
	require.True(t, strings.HasPrefix(string(readSlot(t, slot)), DiagnosticErrorPrefix))
}

func TestDecodePoStParams(t *testing.T) {
	replica := PrivateReplicaInfo{Shape: Shape2KiB, CommR: testCid(t, 4), CacheDir: "/cache", ReplicaPath: "/sealed"}
	params := PoStParams{
		PoStProof:  abi.RegisteredPoStProof_StackedDrgWindow2KiBV1,
		Randomness: make(abi.PoStRandomness, 32),
		ProverID:   1000,
		Replicas:   map[abi.SectorNumber]PrivateReplicaInfo{1: replica},
	}
	b, err := json.Marshal(params)
	require.NoError(t, err)

	got, err := DecodeParams[PoStParams](b, Shape2KiB)
	require.NoError(t, err)
	require.Equal(t, params, got)

	_, err = DecodeParams[PoStParams](b, Shape8MiB)
	require.ErrorIs(t, err, ErrDeserialization)

	replica.Shape = Shape4KiB
	params.Replicas[2] = replica
	b, err = json.Marshal(params)
	require.NoError(t, err)
	_, err = DecodeParams[PoStParams](b, Shape2KiB)
	require.ErrorIs(t, err, ErrDeserialization)

	_, err = DecodeParams[PoStParams]([]byte(`null`), Shape2KiB)
	require.ErrorIs(t, err, ErrDeserialization)
}
