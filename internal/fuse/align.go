package fuse

import (
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/HagaiHargil/caflow/internal/analog"
	"github.com/HagaiHargil/caflow/internal/spikes"
)

// Align fuses a fluorescence matrix with its analog trace into a fused
// record. The trace is reconciled onto the frame grid first; when it is the
// shorter source the recording is truncated to it and the occlusion
// boundaries are revalidated against the shorter span. Align never writes
// into its inputs, every plane is built from fresh storage.
func Align(dff *mat64.Dense, trace *analog.Trace, bounds spikes.EpochBoundaries, fps float64, th analog.Thresholds, attrs Attrs) (*FusedRecord, error) {
	rows, cols := dff.Dims()

	fitted := trace.Fit(cols)
	frames := fitted.Len()
	if frames > cols {
		frames = cols
	}

	if frames != bounds.Total() {
		var err error
		bounds, err = spikes.NewEpochBoundaries(bounds.Before, bounds.During, frames)
		if err != nil {
			return nil, err
		}
	}

	masks := fitted.Masks(fps, th)

	epochs := analog.EpochOrder()
	planes := make([]*mat64.Dense, len(epochs))
	for p, epoch := range epochs {
		mask := masks[epoch]
		plane := mat64.NewDense(rows, frames, nil)
		for i := 0; i < rows; i++ {
			for t := 0; t < frames; t++ {
				if mask[t] {
					plane.Set(i, t, dff.At(i, t))
				} else {
					plane.Set(i, t, math.NaN())
				}
			}
		}
		planes[p] = plane
	}

	attrs.FPS = fps
	attrs.FramesBefore = bounds.Before
	attrs.FramesDuring = bounds.During
	attrs.FramesAfter = bounds.After

	return NewFusedRecord(epochs, planes, cellRange(rows), timeAxis(frames, fps), attrs)
}

// Unmasked builds a fused record for recordings acquired without an analog
// channel. Only the all plane is carried, so these records merge with each
// other but not with behavior-tagged ones.
func Unmasked(dff *mat64.Dense, bounds spikes.EpochBoundaries, fps float64, attrs Attrs) (*FusedRecord, error) {
	rows, cols := dff.Dims()

	if cols != bounds.Total() {
		var err error
		bounds, err = spikes.NewEpochBoundaries(bounds.Before, bounds.During, cols)
		if err != nil {
			return nil, err
		}
	}

	plane := mat64.NewDense(rows, cols, nil)
	plane.Copy(dff)

	attrs.FPS = fps
	attrs.FramesBefore = bounds.Before
	attrs.FramesDuring = bounds.During
	attrs.FramesAfter = bounds.After

	return NewFusedRecord([]analog.Epoch{analog.EpochAll}, []*mat64.Dense{plane}, cellRange(rows), timeAxis(cols, fps), attrs)
}

func cellRange(n int) []int {
	cells := make([]int, n)
	for i := range cells {
		cells[i] = i
	}

	return cells
}

func timeAxis(frames int, fps float64) []float64 {
	time := make([]float64, frames)
	if fps <= 0 {
		fps = 1
	}
	for i := range time {
		time[i] = float64(i) / fps
	}

	return time
}
