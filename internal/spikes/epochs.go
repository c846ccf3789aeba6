package spikes

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// EpochLengthError reports occlusion frame counts that cannot fit the
// recording they describe.
type EpochLengthError struct {
	Before int
	During int
	Total  int
}

func (e *EpochLengthError) Error() string {
	return fmt.Sprintf("epoch lengths: before %d + during %d do not fit %d frames", e.Before, e.During, e.Total)
}

// EpochBoundaries split a recording into the frames before, during and
// after the occlusion.
type EpochBoundaries struct {
	Before int
	During int
	After  int
}

// NewEpochBoundaries derives the after-occlusion span from the total frame
// count. Negative spans are rejected rather than silently clamped.
func NewEpochBoundaries(before, during, total int) (EpochBoundaries, error) {
	if before < 0 || during < 0 || before+during > total {
		return EpochBoundaries{}, &EpochLengthError{Before: before, During: during, Total: total}
	}

	return EpochBoundaries{Before: before, During: during, After: total - before - during}, nil
}

// Total is the frame count the boundaries were derived for.
func (b EpochBoundaries) Total() int {
	return b.Before + b.During + b.After
}

// EpochCount tallies one cell's spikes per occlusion phase. During and
// after are scaled onto the before-phase span so the three numbers compare
// directly.
type EpochCount struct {
	Before float64
	During float64
	After  float64
}

// CountOpts steer the tally normalization.
type CountOpts struct {
	// NaNTolerant turns zero-length phase divisions into NaN tallies
	// instead of an error, for callers feeding NaN-aware statistics.
	NaNTolerant bool
}

// CountByEpoch tallies each cell's spikes per occlusion phase. The during
// and after tallies are multiplied by the before/during and before/after
// frame ratios. A zero-length during or after phase cannot be normalized
// and is an error unless opted out.
func CountByEpoch(spikes *mat64.Dense, bounds EpochBoundaries, opts CountOpts) ([]EpochCount, error) {
	rows, cols := spikes.Dims()
	if bounds.Total() != cols {
		return nil, &EpochLengthError{Before: bounds.Before, During: bounds.During, Total: cols}
	}

	normDuring := math.NaN()
	normAfter := math.NaN()
	if bounds.During > 0 {
		normDuring = float64(bounds.Before) / float64(bounds.During)
	} else if !opts.NaNTolerant {
		return nil, &EpochLengthError{Before: bounds.Before, During: bounds.During, Total: cols}
	}
	if bounds.After > 0 {
		normAfter = float64(bounds.Before) / float64(bounds.After)
	} else if !opts.NaNTolerant {
		return nil, &EpochLengthError{Before: bounds.Before, During: bounds.During, Total: cols}
	}

	counts := make([]EpochCount, rows)

	for i := 0; i < rows; i++ {
		var before, during, after float64
		for t := 0; t < cols; t++ {
			if spikes.At(i, t) == 0 {
				continue
			}
			switch {
			case t < bounds.Before:
				before++
			case t < bounds.Before+bounds.During:
				during++
			default:
				after++
			}
		}

		counts[i] = EpochCount{
			Before: before,
			During: during * normDuring,
			After:  after * normAfter,
		}
	}

	return counts, nil
}
