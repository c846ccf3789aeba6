package spikes

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// DefaultThreshold is the normalized detection threshold used when the
// caller does not override it.
const DefaultThreshold = 0.65

// Indexes finds the peak positions of a single trace. The threshold is
// relative to the signal span, flat plateaus are collapsed onto their
// neighboring slopes before the derivative sign test, and of two peaks
// closer than minDist samples only the higher one survives. NaN samples,
// as found in epoch-masked traces, never peak.
func Indexes(y []float64, thres float64, minDist int) []int {
	n := len(y)
	if n == 0 {
		return nil
	}

	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range y {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min > max {
		return nil
	}
	thresAbs := thres*(max-min) + min

	dy := make([]float64, n-1)
	numZeros := 0
	for i := 0; i < n-1; i++ {
		dy[i] = y[i+1] - y[i]
		if dy[i] == 0 {
			numZeros++
		}
	}

	// a totally flat trace has no peaks
	if numZeros == n-1 {
		return nil
	}

	for numZeros > 0 {
		numZeros = fillPlateaus(dy)
	}

	var peaks []int
	for i := 1; i < n-1; i++ {
		if dy[i-1] > 0 && dy[i] < 0 && y[i] > thresAbs {
			peaks = append(peaks, i)
		}
	}

	if len(peaks) > 1 && minDist > 1 {
		peaks = thinPeaks(y, peaks, minDist)
	}

	return peaks
}

// fillPlateaus replaces every zero run of dy with the slope entering or
// leaving it, splitting interior runs at their midpoint. Returns how many
// zeros remain.
func fillPlateaus(dy []float64) int {
	n := len(dy)

	for s := 0; s < n; s++ {
		if dy[s] != 0 {
			continue
		}

		e := s
		for e+1 < n && dy[e+1] == 0 {
			e++
		}

		switch {
		case s == 0:
			for i := s; i <= e; i++ {
				dy[i] = dy[e+1]
			}
		case e == n-1:
			for i := s; i <= e; i++ {
				dy[i] = dy[s-1]
			}
		default:
			mid := float64(s+e) / 2
			for i := s; i <= e; i++ {
				if float64(i) < mid {
					dy[i] = dy[s-1]
				} else {
					dy[i] = dy[e+1]
				}
			}
		}

		s = e
	}

	numZeros := 0
	for _, v := range dy {
		if v == 0 {
			numZeros++
		}
	}

	return numZeros
}

// thinPeaks walks the candidates from the highest down and blanks a
// minDist neighborhood around every peak it keeps.
func thinPeaks(y []float64, peaks []int, minDist int) []int {
	highest := append([]int(nil), peaks...)
	sort.SliceStable(highest, func(i, j int) bool {
		if y[highest[i]] != y[highest[j]] {
			return y[highest[i]] > y[highest[j]]
		}
		return highest[i] < highest[j]
	})

	rem := make([]bool, len(y))
	for i := range rem {
		rem[i] = true
	}
	for _, p := range peaks {
		rem[p] = false
	}

	for _, peak := range highest {
		if rem[peak] {
			continue
		}

		lo := peak - minDist
		if lo < 0 {
			lo = 0
		}
		hi := peak + minDist
		if hi > len(y)-1 {
			hi = len(y) - 1
		}
		for i := lo; i <= hi; i++ {
			rem[i] = true
		}
		rem[peak] = false
	}

	var kept []int
	for i, removed := range rem {
		if !removed {
			kept = append(kept, i)
		}
	}

	return kept
}

// Detect locates the spikes of every cell trace and returns a binary matrix
// of the same shape. A non-positive minDist falls back to one second worth
// of frames, allowing at most one spike per second.
func Detect(traces *mat64.Dense, fps float64, thresh float64, minDist int) *mat64.Dense {
	rows, cols := traces.Dims()
	if minDist <= 0 {
		minDist = int(fps)
	}

	out := mat64.NewDense(rows, cols, nil)

	workers := runtime.NumCPU()
	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < workers; i++ {
		go detectRow(traces, out, thresh, minDist, order, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	return out
}

func detectRow(traces, out *mat64.Dense, thresh float64, minDist int, order <-chan int, wg *sync.WaitGroup) {
	_, cols := traces.Dims()
	row := make([]float64, cols)

	for {
		index, ok := <-order
		if ok {
			mat64.Row(row, index, traces)
			for _, p := range Indexes(row, thresh, minDist) {
				out.Set(index, p, 1)
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}
