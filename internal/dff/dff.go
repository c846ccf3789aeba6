package dff

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/montanaflynn/stats"

	caio "github.com/HagaiHargil/caflow/internal/io"
)

// DetrendQuantile is the per-cell baseline percentile used when the archive
// lacks a precomputed dF/F and the traces are rebuilt from raw components.
const DetrendQuantile = 8.0

// Load reads the dF/F matrix (cells by frames) out of a segmentation results
// archive. The precomputed F_dff member is preferred; archives without it are
// rebuilt from the raw A, b, C, f and YrA components.
func Load(path string) (*mat64.Dense, error) {
	archive, err := caio.OpenNpz(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	if archive.Has("F_dff") {
		return archive.Mat64("F_dff")
	}

	members := make(map[string]*mat64.Dense, 5)
	for _, key := range []string{"A", "b", "C", "f", "YrA"} {
		if !archive.Has(key) {
			return nil, fmt.Errorf("dff %s: archive has neither F_dff nor %s", path, key)
		}
		m, err := archive.Mat64(key)
		if err != nil {
			return nil, err
		}
		members[key] = m
	}

	dff, err := Detrend(members["A"], members["b"], members["C"], members["f"], members["YrA"], DetrendQuantile)
	if err != nil {
		return nil, fmt.Errorf("dff %s: %w", path, err)
	}

	return dff, nil
}

// Detrend rebuilds baseline-normalized traces from raw archive components:
// spatial footprints A (pixels by cells), background b (pixels by nb),
// temporal traces C and residuals YrA (cells by frames), background
// activity f (nb by frames). Fluorescence is the norm-scaled C+YrA, the
// neuropil contribution comes through the footprints, and both are reduced
// to per-cell baselines at the given percentile:
//
//	dff = (F - F0) / (F0 + B0)
func Detrend(a, b, c, f, yra *mat64.Dense, quantile float64) (*mat64.Dense, error) {
	pixels, cells := a.Dims()
	cRows, frames := c.Dims()
	bRows, nb := b.Dims()
	fRows, fCols := f.Dims()
	yRows, yCols := yra.Dims()

	{ // All five components must describe the same segmentation
		if cRows != cells {
			return nil, fmt.Errorf("detrend: A has %d components but C has %d", cells, cRows)
		}
		if bRows != pixels {
			return nil, fmt.Errorf("detrend: A has %d pixels but b has %d", pixels, bRows)
		}
		if fRows != nb || fCols != frames {
			return nil, fmt.Errorf("detrend: f is %d by %d, want %d by %d", fRows, fCols, nb, frames)
		}
		if yRows != cells || yCols != frames {
			return nil, fmt.Errorf("detrend: YrA is %d by %d, want %d by %d", yRows, yCols, cells, frames)
		}
	}

	norms := make([]float64, cells)
	for j := 0; j < cells; j++ {
		var sum float64
		for i := 0; i < pixels; i++ {
			v := a.At(i, j)
			sum += v * v
		}
		if sum == 0 {
			return nil, fmt.Errorf("detrend: component %d has an empty spatial footprint", j)
		}
		norms[j] = math.Sqrt(sum)
	}

	// F = diag(norms) * (C + YrA)
	fluo := mat64.NewDense(cells, frames, nil)
	for i := 0; i < cells; i++ {
		for t := 0; t < frames; t++ {
			fluo.Set(i, t, norms[i]*(c.At(i, t)+yra.At(i, t)))
		}
	}

	// B = (A / norms)^T * b * f
	scaledA := mat64.NewDense(pixels, cells, nil)
	for i := 0; i < pixels; i++ {
		for j := 0; j < cells; j++ {
			scaledA.Set(i, j, a.At(i, j)/norms[j])
		}
	}

	background := mat64.NewDense(pixels, frames, nil)
	background.Mul(b, f)

	neuropil := mat64.NewDense(cells, frames, nil)
	neuropil.Mul(scaledA.T(), background)

	out := mat64.NewDense(cells, frames, nil)
	row := make([]float64, frames)

	for i := 0; i < cells; i++ {
		f0, err := stats.Percentile(mat64.Row(row, i, fluo), quantile)
		if err != nil {
			return nil, fmt.Errorf("detrend: baseline of component %d: %w", i, err)
		}
		b0, err := stats.Percentile(mat64.Row(row, i, neuropil), quantile)
		if err != nil {
			return nil, fmt.Errorf("detrend: baseline of component %d: %w", i, err)
		}
		if f0+b0 == 0 {
			return nil, fmt.Errorf("detrend: component %d has a zero baseline", i)
		}

		for t := 0; t < frames; t++ {
			out.Set(i, t, (fluo.At(i, t)-f0)/(f0+b0))
		}
	}

	return out, nil
}

// LoadBatch pools the cells of several results archives into one matrix, in
// input order. All archives must agree on the number of frames.
func LoadBatch(paths []string) (*mat64.Dense, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("dff: no archives to load")
	}

	var pooled *mat64.Dense
	var frames int

	for _, path := range paths {
		m, err := Load(path)
		if err != nil {
			return nil, err
		}
		rows, cols := m.Dims()

		if pooled == nil {
			pooled = m
			frames = cols
			continue
		}
		if cols != frames {
			return nil, fmt.Errorf("dff %s: has %d frames, batch has %d", path, cols, frames)
		}

		prevRows, _ := pooled.Dims()
		grown := mat64.NewDense(prevRows+rows, frames, nil)
		grown.Copy(pooled)
		for i := 0; i < rows; i++ {
			for t := 0; t < frames; t++ {
				grown.Set(prevRows+i, t, m.At(i, t))
			}
		}
		pooled = grown
	}

	return pooled, nil
}
