package io

import (
	"fmt"
	"io"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// nopWriteCloser satisfies gonpy's writer contract on zip archive entries,
// which must not be closed one by one.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Mat64toNpy writes a mat64 matrix to a Python numpy npy binary file.
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("npy %s: %w", path, err)
	}

	return writeMat(w, matrix)
}

// Mat64toNpyStream writes a mat64 matrix as npy bytes into w.
func Mat64toNpyStream(w io.Writer, matrix *mat64.Dense) error {
	nw, err := gonpy.NewWriter(nopWriteCloser{w})
	if err != nil {
		return err
	}

	return writeMat(nw, matrix)
}

func writeMat(w *gonpy.NpyWriter, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()
	raw := matrix.RawMatrix()

	data := raw.Data
	if raw.Stride != cols {
		// matrix is a view, repack rows densely
		data = make([]float64, rows*cols)
		for i := 0; i < rows; i++ {
			copy(data[i*cols:(i+1)*cols], raw.Data[i*raw.Stride:i*raw.Stride+cols])
		}
	}

	w.Shape = []int{rows, cols}
	w.Version = 2

	return w.WriteFloat64(data)
}

// NpytoMat64 reads a Python numpy npy binary file as a mat64 matrix.
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}

	m, err := readMat(r)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}
	return m, nil
}

// NpyStreamtoMat64 reads npy bytes from rs as a mat64 matrix.
func NpyStreamtoMat64(rs io.ReadSeeker) (*mat64.Dense, error) {
	r, err := gonpy.NewReader(rs)
	if err != nil {
		return nil, err
	}

	return readMat(r)
}

func readMat(r *gonpy.NpyReader) (*mat64.Dense, error) {
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("want a 2-d array, got shape %v", r.Shape)
	}
	rows, cols := r.Shape[0], r.Shape[1]

	data, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}

	if r.ColumnMajor {
		// Fortran-ordered file, transpose into row-major
		matrix := mat64.NewDense(rows, cols, nil)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				matrix.Set(i, j, data[j*rows+i])
			}
		}
		return matrix, nil
	}

	return mat64.NewDense(rows, cols, data), nil
}

// Vec64toNpyStream writes a float64 vector as a 1-d npy into w.
func Vec64toNpyStream(w io.Writer, vec []float64) error {
	nw, err := gonpy.NewWriter(nopWriteCloser{w})
	if err != nil {
		return err
	}
	nw.Shape = []int{len(vec)}
	nw.Version = 2

	return nw.WriteFloat64(vec)
}

// NpyStreamtoVec64 reads a 1-d npy from rs as a float64 vector.
func NpyStreamtoVec64(rs io.ReadSeeker) ([]float64, error) {
	r, err := gonpy.NewReader(rs)
	if err != nil {
		return nil, err
	}
	if err := checkVecShape(r.Shape); err != nil {
		return nil, err
	}

	return r.GetFloat64()
}

// Int64toNpyStream writes an int64 vector as a 1-d npy into w.
func Int64toNpyStream(w io.Writer, vec []int64) error {
	nw, err := gonpy.NewWriter(nopWriteCloser{w})
	if err != nil {
		return err
	}
	nw.Shape = []int{len(vec)}
	nw.Version = 2

	return nw.WriteInt64(vec)
}

// NpytoInt64 reads a 1-d npy file of indices. Integer and float dtypes are
// both accepted since numpy defaults differ between save sites.
func NpytoInt64(path string) ([]int64, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}

	vec, err := readInts(r)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}
	return vec, nil
}

// NpyStreamtoInt64 reads a 1-d npy of indices from rs.
func NpyStreamtoInt64(rs io.ReadSeeker) ([]int64, error) {
	r, err := gonpy.NewReader(rs)
	if err != nil {
		return nil, err
	}

	return readInts(r)
}

func readInts(r *gonpy.NpyReader) ([]int64, error) {
	if err := checkVecShape(r.Shape); err != nil {
		return nil, err
	}

	switch r.Dtype {
	case "i8":
		return r.GetInt64()
	case "i4":
		raw, err := r.GetInt32()
		if err != nil {
			return nil, err
		}
		vec := make([]int64, len(raw))
		for i, v := range raw {
			vec[i] = int64(v)
		}
		return vec, nil
	case "f8":
		raw, err := r.GetFloat64()
		if err != nil {
			return nil, err
		}
		vec := make([]int64, len(raw))
		for i, v := range raw {
			vec[i] = int64(v)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("unsupported index dtype %q", r.Dtype)
	}
}

func checkVecShape(shape []int) error {
	switch len(shape) {
	case 1:
		return nil
	case 2:
		// tolerate column or row vectors saved as 2-d
		if shape[0] == 1 || shape[1] == 1 {
			return nil
		}
	}

	return fmt.Errorf("want a 1-d array, got shape %v", shape)
}
