package anal

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/HagaiHargil/caflow/internal/spikes"
)

// PhaseStats describe a population's spike tallies in one occlusion phase.
type PhaseStats struct {
	Mean   float64
	Median float64
	StdDev float64
	N      int
}

// FiringSummary holds the population statistics of all three phases.
type FiringSummary struct {
	Before PhaseStats
	During PhaseStats
	After  PhaseStats
}

// Summarize reduces per-cell phase tallies to population statistics. NaN
// tallies, produced by NaN-tolerant slicing, are dropped per phase.
func Summarize(counts []spikes.EpochCount) (FiringSummary, error) {
	if len(counts) == 0 {
		return FiringSummary{}, fmt.Errorf("anal: no tallies to summarize")
	}

	var before, during, after []float64
	for _, c := range counts {
		if !math.IsNaN(c.Before) {
			before = append(before, c.Before)
		}
		if !math.IsNaN(c.During) {
			during = append(during, c.During)
		}
		if !math.IsNaN(c.After) {
			after = append(after, c.After)
		}
	}

	return FiringSummary{
		Before: phaseStats(before),
		During: phaseStats(during),
		After:  phaseStats(after),
	}, nil
}

// PhaseSlices splits per-cell tallies into the three phase vectors, NaN
// members included, for callers that feed them to OneWayANOVA.
func PhaseSlices(counts []spikes.EpochCount) (before, during, after []float64) {
	for _, c := range counts {
		before = append(before, c.Before)
		during = append(during, c.During)
		after = append(after, c.After)
	}
	return before, during, after
}

func phaseStats(vals []float64) PhaseStats {
	if len(vals) == 0 {
		return PhaseStats{Mean: math.NaN(), Median: math.NaN(), StdDev: math.NaN()}
	}

	mean, _ := stats.Mean(vals)
	median, _ := stats.Median(vals)
	std, _ := stats.StandardDeviation(vals)

	return PhaseStats{Mean: mean, Median: median, StdDev: std, N: len(vals)}
}

// AnovaResult is a one-way analysis of variance over phase tallies.
type AnovaResult struct {
	F         float64
	P         float64
	DFBetween int
	DFWithin  int
}

// OneWayANOVA compares tally groups, dropping NaN members. The p-value is
// taken from the F distribution at the observed statistic.
func OneWayANOVA(groups ...[]float64) (AnovaResult, error) {
	if len(groups) < 2 {
		return AnovaResult{}, fmt.Errorf("anova: want at least two groups, got %d", len(groups))
	}

	clean := make([][]float64, 0, len(groups))
	n := 0
	for _, g := range groups {
		var vals []float64
		for _, v := range g {
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			return AnovaResult{}, fmt.Errorf("anova: a group is empty after dropping NaN")
		}
		clean = append(clean, vals)
		n += len(vals)
	}

	k := len(clean)
	if n-k < 1 {
		return AnovaResult{}, fmt.Errorf("anova: %d samples cannot support %d groups", n, k)
	}

	var grand float64
	for _, g := range clean {
		for _, v := range g {
			grand += v
		}
	}
	grand /= float64(n)

	var ssb, ssw float64
	for _, g := range clean {
		var mean float64
		for _, v := range g {
			mean += v
		}
		mean /= float64(len(g))

		ssb += float64(len(g)) * (mean - grand) * (mean - grand)
		for _, v := range g {
			ssw += (v - mean) * (v - mean)
		}
	}

	dfb := k - 1
	dfw := n - k
	msb := ssb / float64(dfb)
	msw := ssw / float64(dfw)

	if msw == 0 {
		if msb == 0 {
			return AnovaResult{}, fmt.Errorf("anova: no variance in the tallies")
		}
		return AnovaResult{F: math.Inf(1), P: 0, DFBetween: dfb, DFWithin: dfw}, nil
	}

	f := msb / msw
	dist := distuv.F{D1: float64(dfb), D2: float64(dfw)}

	return AnovaResult{F: f, P: 1 - dist.CDF(f), DFBetween: dfb, DFWithin: dfw}, nil
}

// MeanSpikeRate is each cell's spike rate in Hz over the whole recording.
func MeanSpikeRate(spikeMat *mat64.Dense, fps float64) []float64 {
	rows, cols := spikeMat.Dims()
	if fps <= 0 {
		fps = 1
	}

	rates := make([]float64, rows)
	for i := 0; i < rows; i++ {
		count := 0.0
		for t := 0; t < cols; t++ {
			if spikeMat.At(i, t) != 0 {
				count++
			}
		}
		rates[i] = count * fps / float64(cols)
	}

	return rates
}

// AUC integrates each cell's trace above its own minimum, skipping NaN
// samples. Frames are spaced by the frame interval.
func AUC(traces *mat64.Dense, fps float64) []float64 {
	rows, cols := traces.Dims()
	dt := 1.0
	if fps > 0 {
		dt = 1.0 / fps
	}

	areas := make([]float64, rows)
	for i := 0; i < rows; i++ {
		var xs, ys []float64
		low := math.Inf(1)
		for t := 0; t < cols; t++ {
			v := traces.At(i, t)
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, float64(t)*dt)
			ys = append(ys, v)
			if v < low {
				low = v
			}
		}
		if len(ys) < 2 {
			continue
		}

		for j := range ys {
			ys[j] -= low
		}
		areas[i] = integrate.Trapezoidal(xs, ys)
	}

	return areas
}

// MeanDFF is each cell's mean trace height above its own minimum, skipping
// NaN samples.
func MeanDFF(traces *mat64.Dense) []float64 {
	rows, cols := traces.Dims()

	means := make([]float64, rows)
	for i := 0; i < rows; i++ {
		var vals []float64
		low := math.Inf(1)
		for t := 0; t < cols; t++ {
			v := traces.At(i, t)
			if math.IsNaN(v) {
				continue
			}
			vals = append(vals, v)
			if v < low {
				low = v
			}
		}
		if len(vals) == 0 {
			means[i] = math.NaN()
			continue
		}

		var sum float64
		for _, v := range vals {
			sum += v - low
		}
		means[i] = sum / float64(len(vals))
	}

	return means
}

// RollingMean smooths a trace with a trailing window. The first window-1
// samples stay NaN, NaN samples inside a window are skipped.
func RollingMean(vec []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}

	out := make([]float64, len(vec))
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}

		var sum float64
		n := 0
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(vec[j]) {
				continue
			}
			sum += vec[j]
			n++
		}
		if n == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(n)
		}
	}

	return out
}

// SplitColabeled partitions the cell indices of a population into the
// colabeled set and its complement, both ascending. Out-of-range indices
// are ignored.
func SplitColabeled(total int, colabeled []int) (labeled, unlabeled []int) {
	mark := make([]bool, total)
	for _, c := range colabeled {
		if c >= 0 && c < total {
			mark[c] = true
		}
	}

	for i := 0; i < total; i++ {
		if mark[i] {
			labeled = append(labeled, i)
		} else {
			unlabeled = append(unlabeled, i)
		}
	}

	return labeled, unlabeled
}

// TakeRows copies the chosen rows of a matrix into a fresh matrix. Nil is
// returned when no rows are chosen.
func TakeRows(m *mat64.Dense, rows []int) *mat64.Dense {
	if len(rows) == 0 {
		return nil
	}

	_, cols := m.Dims()
	out := mat64.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		for t := 0; t < cols; t++ {
			out.Set(i, t, m.At(r, t))
		}
	}

	return out
}
