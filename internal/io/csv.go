package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Mat64toCSV saves a mat64 matrix as a csv file.
func Mat64toCSV(path string, matrix *mat64.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	rows, cols := matrix.Dims()

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(strconv.FormatFloat(matrix.At(i, j), 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("csv %s: %w", path, err)
	}
	return nil
}

// CSVtoMat64 reads a csv file of numbers as a mat64 matrix. Rows are parsed
// in parallel since timeseries dumps run to tens of thousands of columns.
func CSVtoMat64(path string) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("csv %s: empty file", path)
	}

	rows, cols := len(records), len(records[0])
	matrix := mat64.NewDense(rows, cols, nil)
	errs := make([]error, rows)

	workers := runtime.NumCPU()
	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < workers; i++ {
		go parseLine(records, matrix, errs, order, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("csv %s row %d: %w", path, i, err)
		}
	}

	return matrix, nil
}

func parseLine(records [][]string, matrix *mat64.Dense, errs []error, order <-chan int, wg *sync.WaitGroup) {
	_, cols := matrix.Dims()

	for {
		index, ok := <-order
		if ok {
			if len(records[index]) != cols {
				errs[index] = fmt.Errorf("want %d columns, got %d", cols, len(records[index]))
				wg.Done()
				continue
			}

			for i := 0; i < cols; i++ {
				str := strings.TrimSpace(records[index][i])
				value, err := strconv.ParseFloat(str, 64)
				if err != nil {
					errs[index] = err
					break
				}

				matrix.Set(index, i, value)
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}
