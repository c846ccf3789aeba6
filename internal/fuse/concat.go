package fuse

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/HagaiHargil/caflow/internal/analog"
)

// TimePolicy resolves time-axis length clashes between records being
// concatenated.
type TimePolicy int

const (
	// TimeAdoptLatest takes the most recent mismatching record's time
	// coordinate and conforms every plane to it, truncating or NaN-padding.
	// Lossy, and logged when it fires.
	TimeAdoptLatest TimePolicy = iota
	// TimeStrict refuses to merge records of differing lengths.
	TimeStrict
)

// ConcatOpts steer Concat.
type ConcatOpts struct {
	Policy TimePolicy
	Log    *slog.Logger
}

// Concat pools fused records into one dataset. Cells are renumbered
// contiguously in input order, colabeled indices move with their record,
// and every record must carry the same epoch tags in the same order.
// Scalar attrs are taken from the first record.
func Concat(records []*FusedRecord, opts ConcatOpts) (*FusedRecord, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("concat: nothing to concatenate")
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	base := records[0]

	for _, r := range records[1:] {
		if !sameEpochs(base.Epochs, r.Epochs) {
			return nil, &DimensionMismatchError{
				Op:   "concat",
				Want: fmt.Sprintf("epochs %v", base.Epochs),
				Got:  fmt.Sprintf("%v from %s", r.Epochs, r.Attrs.Source),
			}
		}
	}

	time := base.Time
	for _, r := range records[1:] {
		if len(r.Time) == len(time) {
			continue
		}

		if opts.Policy == TimeStrict {
			return nil, &DimensionMismatchError{
				Op:   "concat",
				Want: fmt.Sprintf("%d frames", len(time)),
				Got:  fmt.Sprintf("%d from %s", len(r.Time), r.Attrs.Source),
			}
		}

		log.Warn("time axis mismatch, adopting the later coordinate",
			"have", len(time), "got", len(r.Time), "source", r.Attrs.Source)
		time = r.Time
	}
	frames := len(time)

	totalCells := 0
	for _, r := range records {
		totalCells += r.NumCells()
	}

	planes := make([]*mat64.Dense, len(base.Epochs))
	for p := range base.Epochs {
		plane := mat64.NewDense(totalCells, frames, nil)

		rowBase := 0
		for _, r := range records {
			rRows, rFrames := r.Planes[p].Dims()
			for i := 0; i < rRows; i++ {
				for t := 0; t < frames; t++ {
					if t < rFrames {
						plane.Set(rowBase+i, t, r.Planes[p].At(i, t))
					} else {
						plane.Set(rowBase+i, t, math.NaN())
					}
				}
			}
			rowBase += rRows
		}

		planes[p] = plane
	}

	attrs := base.Attrs
	attrs.Colabeled = nil
	cellBase := 0
	for _, r := range records {
		for _, c := range r.Attrs.Colabeled {
			attrs.Colabeled = append(attrs.Colabeled, c+cellBase)
		}
		cellBase += r.NumCells()
	}

	epochs := append([]analog.Epoch(nil), base.Epochs...)

	return NewFusedRecord(epochs, planes, cellRange(totalCells), append([]float64(nil), time...), attrs)
}

func sameEpochs(a, b []analog.Epoch) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
