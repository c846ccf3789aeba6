package io

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/require"
)

func fillMat(rows, cols int) *mat64.Dense {
	m := mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(i*cols+j)/7.0)
		}
	}

	return m
}

func TestMat64NpyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.npy")
	want := fillMat(3, 4)

	require.NoError(t, Mat64toNpy(path, want))

	got, err := NpytoMat64(path)
	require.NoError(t, err)
	require.True(t, mat64.Equal(want, got))
}

// TestMat64NpyKeepsNaN checks that NaN cells survive the binary format
// bit for bit, since masked epoch planes are mostly NaN.
func TestMat64NpyKeepsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.npy")
	want := fillMat(2, 3)
	want.Set(1, 2, math.NaN())

	require.NoError(t, Mat64toNpy(path, want))

	got, err := NpytoMat64(path)
	require.NoError(t, err)
	require.True(t, math.IsNaN(got.At(1, 2)))
	require.Equal(t, want.At(0, 0), got.At(0, 0))
	require.Equal(t, want.At(1, 1), got.At(1, 1))
}

// TestMat64NpyView checks that a submatrix view, whose stride differs from
// its width, is repacked before writing.
func TestMat64NpyView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.npy")
	base := fillMat(4, 5)
	view := base.View(1, 1, 2, 3).(*mat64.Dense)

	require.NoError(t, Mat64toNpy(path, view))

	got, err := NpytoMat64(path)
	require.NoError(t, err)
	rows, cols := got.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 3, cols)
	require.True(t, mat64.Equal(view, got))
}

func TestNpytoMat64RejectsVector(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Vec64toNpyStream(&buf, []float64{1, 2, 3}))

	path := filepath.Join(t.TempDir(), "vec.npy")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := NpytoMat64(path)
	require.ErrorContains(t, err, "2-d")
}

func TestVec64NpyStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []float64{0, 0.25, -1.5, 42}

	require.NoError(t, Vec64toNpyStream(&buf, want))

	got, err := NpyStreamtoVec64(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestInt64NpyStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []int64{0, 3, 17}

	require.NoError(t, Int64toNpyStream(&buf, want))

	got, err := NpyStreamtoInt64(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestNpyStreamtoInt64FromFloats checks the float fallback, numpy saves
// index arrays as f8 unless told otherwise.
func TestNpyStreamtoInt64FromFloats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Vec64toNpyStream(&buf, []float64{0, 2, 5}))

	got, err := NpyStreamtoInt64(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, []int64{0, 2, 5}, got)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	want := fillMat(5, 3)

	require.NoError(t, Mat64toCSV(path, want))

	got, err := CSVtoMat64(path)
	require.NoError(t, err)
	require.True(t, mat64.Equal(want, got))
}

func TestCSVtoMat64BadCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2\n3,oops\n"), 0o644))

	_, err := CSVtoMat64(path)
	require.ErrorContains(t, err, "row 1")
}

func TestCSVtoMat64Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := CSVtoMat64(path)
	require.ErrorContains(t, err, "empty")
}

func TestNpzRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.npz")
	plane := fillMat(2, 4)

	w, err := CreateNpz(path)
	require.NoError(t, err)
	require.NoError(t, w.PutMat64("plane", plane))
	require.NoError(t, w.PutVec64("time", []float64{0, 0.5, 1, 1.5}))
	require.NoError(t, w.PutInt64("neuron", []int64{0, 1}))
	require.NoError(t, w.PutJSON("attrs.json", map[string]float64{"fps": 30.0}))
	require.NoError(t, w.Close())

	npz, err := OpenNpz(path)
	require.NoError(t, err)
	defer npz.Close()

	require.Equal(t, []string{"attrs.json", "neuron", "plane", "time"}, npz.Keys())
	require.True(t, npz.Has("plane"))
	require.False(t, npz.Has("nope"))

	gotPlane, err := npz.Mat64("plane")
	require.NoError(t, err)
	require.True(t, mat64.Equal(plane, gotPlane))

	gotTime, err := npz.Vec64("time")
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.5, 1, 1.5}, gotTime)

	gotNeuron, err := npz.Int64("neuron")
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, gotNeuron)

	var attrs map[string]float64
	require.NoError(t, npz.JSON("attrs.json", &attrs))
	require.Equal(t, 30.0, attrs["fps"])
}

func TestNpzMissingMember(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.npz")

	w, err := CreateNpz(path)
	require.NoError(t, err)
	require.NoError(t, w.PutVec64("time", []float64{0}))
	require.NoError(t, w.Close())

	npz, err := OpenNpz(path)
	require.NoError(t, err)
	defer npz.Close()

	_, err = npz.Vec64("plane")
	require.ErrorContains(t, err, `no member "plane"`)
}

// TestNpzDeterministic checks that writing the same members twice gives
// byte-identical archives, which makes reruns easy to diff.
func TestNpzDeterministic(t *testing.T) {
	dir := t.TempDir()
	write := func(path string) {
		w, err := CreateNpz(path)
		require.NoError(t, err)
		require.NoError(t, w.PutMat64("plane", fillMat(3, 3)))
		require.NoError(t, w.PutJSON("attrs.json", map[string]int{"n": 3}))
		require.NoError(t, w.Close())
	}

	first := filepath.Join(dir, "a.npz")
	second := filepath.Join(dir, "b.npz")
	write(first)
	write(second)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
