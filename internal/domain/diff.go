package domain

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a frame cannot be differenced against
// the previous one because their grids differ in size.
var ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrExtract)

// FrameKind tells consumers whether a frame holds absolute values or increments.
type FrameKind int

const (
	KindRaw FrameKind = iota
	KindDelta
)

func (k FrameKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindDelta:
		return "delta"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// DiffPolicy controls the result for a present current cell whose previous
// cell is missing.
type DiffPolicy string

const (
	// DiffLegacy subtracts the sentinel value, matching historical outputs.
	DiffLegacy DiffPolicy = "legacy"
	// DiffStrict marks the cell missing.
	DiffStrict DiffPolicy = "strict"
)

// DeltaFrame is a frame ready for serialization.
type DeltaFrame struct {
	GridFrame
	Kind FrameKind
}

// Diff returns cur − prev cell by cell. A missing current cell stays missing
// regardless of prev.
func Diff(cur, prev GridFrame, policy DiffPolicy) (GridFrame, error) {
	if cur.LatCount != prev.LatCount || cur.LonCount != prev.LonCount ||
		len(cur.Cells) != cur.Len() || len(prev.Cells) != prev.Len() {
		return GridFrame{}, fmt.Errorf("%w: %s is %dx%d, previous %s is %dx%d", ErrDimensionMismatch,
			cur.Name, cur.LatCount, cur.LonCount, prev.Name, prev.LatCount, prev.LonCount)
	}

	out := cur
	out.Cells = make([]Cell, len(cur.Cells))
	for i, c := range cur.Cells {
		v, ok := c.Value()
		if !ok {
			continue
		}
		p, pok := prev.Cells[i].Value()
		switch {
		case pok:
			out.Cells[i] = Valid(v - p)
		case policy == DiffStrict:
			// left missing
		default:
			out.Cells[i] = Valid(v - float64(prev.Header.Sentinel))
		}
	}
	return out, nil
}

// Differencer turns an ordered stream of successfully extracted frames into
// delta frames. It keeps only the last accepted frame.
type Differencer struct {
	policy DiffPolicy
	prev   *GridFrame
}

// NewDifferencer creates a Differencer. An empty policy means DiffLegacy.
func NewDifferencer(policy DiffPolicy) *Differencer {
	if policy == "" {
		policy = DiffLegacy
	}
	return &Differencer{policy: policy}
}

// Next consumes cur. The first frame is returned unchanged; later frames are
// differenced against the previously accepted one. A frame rejected with an
// error does not replace the previous reference.
func (d *Differencer) Next(cur GridFrame) (DeltaFrame, error) {
	if d.prev == nil {
		d.prev = &cur
		return DeltaFrame{GridFrame: cur, Kind: KindRaw}, nil
	}
	out, err := Diff(cur, *d.prev, d.policy)
	if err != nil {
		return DeltaFrame{}, err
	}
	d.prev = &cur
	return DeltaFrame{GridFrame: out, Kind: KindDelta}, nil
}

// Previous returns the name of the current reference frame, if any.
func (d *Differencer) Previous() (CanonicalName, bool) {
	if d.prev == nil {
		return "", false
	}
	return d.prev.Name, true
}

// IsDimensionMismatch reports whether err came from incompatible grids.
func IsDimensionMismatch(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}
