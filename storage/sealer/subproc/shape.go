package subproc

import (
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"
)

// Shape is the merkle tree layout a sector of a given size is sealed with.
// The set is closed: every supported sector size maps to exactly one Shape.
type Shape int

const (
	Shape2KiB Shape = iota + 1
	Shape4KiB
	Shape16KiB
	Shape32KiB
	Shape8MiB
	Shape16MiB
	Shape512MiB
	Shape1GiB
	Shape32GiB
	Shape64GiB
)

const (
	kib = abi.SectorSize(1 << 10)
	mib = abi.SectorSize(1 << 20)
	gib = abi.SectorSize(1 << 30)
)

type shapeInfo struct {
	name       string
	sectorSize abi.SectorSize

	// base, sub and top tree arity; zero means the level is absent
	base, sub, top uint
}

var shapeTable = map[Shape]shapeInfo{
	Shape2KiB:   {"2KiB", 2 * kib, 8, 0, 0},
	Shape4KiB:   {"4KiB", 4 * kib, 8, 2, 0},
	Shape16KiB:  {"16KiB", 16 * kib, 8, 8, 0},
	Shape32KiB:  {"32KiB", 32 * kib, 8, 8, 2},
	Shape8MiB:   {"8MiB", 8 * mib, 8, 0, 0},
	Shape16MiB:  {"16MiB", 16 * mib, 8, 2, 0},
	Shape512MiB: {"512MiB", 512 * mib, 8, 0, 0},
	Shape1GiB:   {"1GiB", 1 * gib, 8, 2, 0},
	Shape32GiB:  {"32GiB", 32 * gib, 8, 8, 0},
	Shape64GiB:  {"64GiB", 64 * gib, 8, 8, 2},
}

// Shapes lists every supported shape in ascending sector size order.
func Shapes() []Shape {
	return []Shape{
		Shape2KiB, Shape4KiB, Shape16KiB, Shape32KiB,
		Shape8MiB, Shape16MiB, Shape512MiB, Shape1GiB,
		Shape32GiB, Shape64GiB,
	}
}

// ShapeForSize resolves the shape of a sector size. There is no nearest
// match: any size outside the table is ErrUnrecognizedShape.
func ShapeForSize(size abi.SectorSize) (Shape, error) {
	switch size {
	case 2 * kib:
		return Shape2KiB, nil
	case 4 * kib:
		return Shape4KiB, nil
	case 16 * kib:
		return Shape16KiB, nil
	case 32 * kib:
		return Shape32KiB, nil
	case 8 * mib:
		return Shape8MiB, nil
	case 16 * mib:
		return Shape16MiB, nil
	case 512 * mib:
		return Shape512MiB, nil
	case 1 * gib:
		return Shape1GiB, nil
	case 32 * gib:
		return Shape32GiB, nil
	case 64 * gib:
		return Shape64GiB, nil
	default:
		return 0, newError(KindUnrecognizedShape, xerrors.Errorf("unrecognized shape for sector size %d", uint64(size)))
	}
}

// Dispatch selects the shape for size and runs fn with it. It does no I/O;
// fn is never called for an unsupported size.
func Dispatch[T any](size abi.SectorSize, fn func(Shape) (T, error)) (T, error) {
	shape, err := ShapeForSize(size)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(shape)
}

func (s Shape) info() (shapeInfo, bool) {
	si, ok := shapeTable[s]
	return si, ok
}

func (s Shape) Valid() bool {
	_, ok := s.info()
	return ok
}

func (s Shape) SectorSize() abi.SectorSize {
	si, _ := s.info()
	return si.sectorSize
}

// Arity returns the base, sub and top tree arity of the shape.
func (s Shape) Arity() (base, sub, top uint) {
	si, _ := s.info()
	return si.base, si.sub, si.top
}

func (s Shape) String() string {
	if si, ok := s.info(); ok {
		return si.name
	}
	return "shape(invalid)"
}

func (s Shape) MarshalText() ([]byte, error) {
	si, ok := s.info()
	if !ok {
		return nil, xerrors.Errorf("invalid shape %d", int(s))
	}
	return []byte(si.name), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	for shape, si := range shapeTable {
		if si.name == string(text) {
			*s = shape
			return nil
		}
	}
	return xerrors.Errorf("unknown shape %q", string(text))
}

// checkSealProof verifies a seal proof type belongs to the shape's sector size.
func (s Shape) checkSealProof(spt abi.RegisteredSealProof) error {
	ssize, err := spt.SectorSize()
	if err != nil {
		return xerrors.Errorf("seal proof %d: %w", spt, err)
	}
	if ssize != s.SectorSize() {
		return xerrors.Errorf("seal proof %d is for sector size %d, shape %s is %d", spt, uint64(ssize), s, uint64(s.SectorSize()))
	}
	return nil
}

func (s Shape) checkPoStProof(ppt abi.RegisteredPoStProof) error {
	ssize, err := ppt.SectorSize()
	if err != nil {
		return xerrors.Errorf("post proof %d: %w", ppt, err)
	}
	if ssize != s.SectorSize() {
		return xerrors.Errorf("post proof %d is for sector size %d, shape %s is %d", ppt, uint64(ssize), s, uint64(s.SectorSize()))
	}
	return nil
}
