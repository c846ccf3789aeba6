package fuse

import (
	"fmt"

	"github.com/gonum/matrix/mat64"

	"github.com/HagaiHargil/caflow/internal/analog"
)

// Attrs carry the acquisition context a fused recording needs downstream.
// The frame counts refer to the occlusion phases of the recording the
// record was built from.
type Attrs struct {
	FPS          float64 `json:"fps"`
	FramesBefore int     `json:"frames_before_occ"`
	FramesDuring int     `json:"frames_during_occ"`
	FramesAfter  int     `json:"frames_after_occ"`
	Colabeled    []int   `json:"colabeled,omitempty"`
	RunID        string  `json:"run_id,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// FusedRecord is one field of view fused with its behavioral context: one
// cells-by-frames plane per epoch tag, NaN outside the tagged frames. The
// all plane always holds the full trace.
type FusedRecord struct {
	Epochs []analog.Epoch
	Planes []*mat64.Dense
	Cells  []int
	Time   []float64
	Attrs  Attrs
}

// NewFusedRecord validates the record geometry: one plane per epoch tag,
// all planes of identical shape, matching the cell and time coordinates.
func NewFusedRecord(epochs []analog.Epoch, planes []*mat64.Dense, cells []int, time []float64, attrs Attrs) (*FusedRecord, error) {
	if len(epochs) == 0 {
		return nil, &DimensionMismatchError{Op: "record", Want: "at least one epoch plane", Got: "none"}
	}
	if len(planes) != len(epochs) {
		return nil, &DimensionMismatchError{
			Op:   "record",
			Want: fmt.Sprintf("%d planes", len(epochs)),
			Got:  fmt.Sprintf("%d", len(planes)),
		}
	}

	for i, plane := range planes {
		rows, cols := plane.Dims()
		if rows != len(cells) || cols != len(time) {
			return nil, &DimensionMismatchError{
				Op:   "record",
				Want: fmt.Sprintf("%d by %d planes", len(cells), len(time)),
				Got:  fmt.Sprintf("%d by %d for epoch %s", rows, cols, epochs[i]),
			}
		}
	}

	return &FusedRecord{Epochs: epochs, Planes: planes, Cells: cells, Time: time, Attrs: attrs}, nil
}

// NumCells is the cell count of the record.
func (r *FusedRecord) NumCells() int {
	return len(r.Cells)
}

// NumFrames is the time axis length of the record.
func (r *FusedRecord) NumFrames() int {
	return len(r.Time)
}

// Plane returns the plane of one epoch tag, or nil when the record does not
// carry it.
func (r *FusedRecord) Plane(epoch analog.Epoch) *mat64.Dense {
	for i, e := range r.Epochs {
		if e == epoch {
			return r.Planes[i]
		}
	}

	return nil
}
