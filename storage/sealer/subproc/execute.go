package subproc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/docker/go-units"
)

// Execute runs one phase against the slot with the dispatched shape: read
// the parameters, prove, and replace the slot with the result. On failure
// the slot is replaced with a diagnostic. Success is returned only once the
// result is persisted.
func Execute[P Params, R any](ctx context.Context, ph Phase[P, R], engine Engine, shape Shape, slot *ResultFile) error {
	err := execute(ctx, ph, engine, shape, slot)
	if err != nil && !slot.Reported() {
		if werr := slot.WriteDiagnostic(err); werr != nil {
			log.Errorw("cannot report error", "phase", ph.Name, "path", slot.Path(), "error", werr)
		}
	}
	return err
}

func execute[P Params, R any](ctx context.Context, ph Phase[P, R], engine Engine, shape Shape, slot *ResultFile) error {
	log.Infow("ready to read parameter", "phase", ph.Name, "path", slot.Path())
	raw, err := slot.ReadParams()
	if err != nil {
		return err
	}

	params, err := DecodeParams[P](raw, shape)
	if err != nil {
		return err
	}
	log.Infow("parameter deserialized", "phase", ph.Name, "shape", shape.String(),
		"sector_size", units.BytesSize(float64(shape.SectorSize())))

	out, err := ph.Prove(engine, ctx, shape, params)
	if err != nil {
		return newError(KindProving, err)
	}

	b, err := ph.Encode(out)
	if err != nil {
		return ioErrorf("encoding %s result: %w", ph.Name, err)
	}
	if err := slot.WriteResult(b); err != nil {
		return err
	}

	log.Infow("result written", "phase", ph.Name, "path", slot.Path(), "bytes", len(b))
	return nil
}

// DecodeParams decodes a parameter record and checks it against shape.
// Unknown fields are rejected.
func DecodeParams[P Params](raw []byte, shape Shape) (P, error) {
	var params P

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		return params, deserializationErrorf("decoding parameters: %w", err)
	}
	if err := params.CheckShape(shape); err != nil {
		return params, deserializationErrorf("parameters don't match shape %s: %w", shape, err)
	}
	return params, nil
}
