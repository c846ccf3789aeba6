package anal

import (
	"math"
	"runtime"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Correlate builds the cell-by-cell Pearson correlation matrix of a dF/F
// block. Each pair is estimated over the frames where both traces are
// finite, so epoch-masked planes correlate within their epoch. Pairs that
// share fewer than two frames, and flat traces, come out NaN.
func Correlate(dff *mat64.Dense, workers int) *mat64.Dense {
	rows, _ := dff.Dims()
	out := mat64.NewDense(rows, rows, nil)

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < workers; i++ {
		go correlateRow(dff, out, order, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	return out
}

func correlateRow(dff *mat64.Dense, out *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	rows, cols := dff.Dims()

	for {
		from, ok := <-order
		if ok {
			for to := from; to < rows; to++ {
				var n, sx, sy, sxx, syy, sxy float64
				for t := 0; t < cols; t++ {
					x, y := dff.At(from, t), dff.At(to, t)
					if math.IsNaN(x) || math.IsNaN(y) {
						continue
					}

					n++
					sx += x
					sy += y
					sxx += x * x
					syy += y * y
					sxy += x * y
				}

				r := math.NaN()
				if n >= 2 {
					mx, my := sx/n, sy/n
					vx, vy := sxx/n-mx*mx, syy/n-my*my
					if vx > 0 && vy > 0 {
						r = (sxy/n - mx*my) / math.Sqrt(vx*vy)
					}
				}

				out.Set(from, to, r)
				out.Set(to, from, r)
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}
