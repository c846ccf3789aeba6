package io

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// Npz reads a numpy npz archive, which is a zip file whose members are npy
// arrays keyed by member name minus the ".npy" suffix.
type Npz struct {
	rc    *zip.ReadCloser
	byKey map[string]*zip.File
	keys  []string
}

// OpenNpz opens an npz archive for keyed reads.
func OpenNpz(path string) (*Npz, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("npz %s: %w", path, err)
	}

	a := &Npz{rc: rc, byKey: make(map[string]*zip.File)}
	for _, f := range rc.File {
		key := strings.TrimSuffix(f.Name, ".npy")
		a.byKey[key] = f
		a.keys = append(a.keys, key)
	}
	sort.Strings(a.keys)

	return a, nil
}

// Keys lists the member keys in sorted order.
func (a *Npz) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Has reports whether the archive carries key.
func (a *Npz) Has(key string) bool {
	_, ok := a.byKey[key]
	return ok
}

// Close releases the underlying archive.
func (a *Npz) Close() error {
	return a.rc.Close()
}

func (a *Npz) member(key string) (*bytes.Reader, error) {
	f, ok := a.byKey[key]
	if !ok {
		return nil, fmt.Errorf("npz: no member %q", key)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("npz member %q: %w", key, err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("npz member %q: %w", key, err)
	}

	return bytes.NewReader(buf), nil
}

// Mat64 reads member key as a 2-d mat64 matrix.
func (a *Npz) Mat64(key string) (*mat64.Dense, error) {
	rs, err := a.member(key)
	if err != nil {
		return nil, err
	}

	m, err := NpyStreamtoMat64(rs)
	if err != nil {
		return nil, fmt.Errorf("npz member %q: %w", key, err)
	}
	return m, nil
}

// Vec64 reads member key as a float64 vector.
func (a *Npz) Vec64(key string) ([]float64, error) {
	rs, err := a.member(key)
	if err != nil {
		return nil, err
	}

	vec, err := NpyStreamtoVec64(rs)
	if err != nil {
		return nil, fmt.Errorf("npz member %q: %w", key, err)
	}
	return vec, nil
}

// Int64 reads member key as an int64 vector.
func (a *Npz) Int64(key string) ([]int64, error) {
	rs, err := a.member(key)
	if err != nil {
		return nil, err
	}

	vec, err := NpyStreamtoInt64(rs)
	if err != nil {
		return nil, fmt.Errorf("npz member %q: %w", key, err)
	}
	return vec, nil
}

// JSON decodes a raw (non-npy) member into v.
func (a *Npz) JSON(name string, v interface{}) error {
	rs, err := a.member(name)
	if err != nil {
		return err
	}

	if err := json.NewDecoder(rs).Decode(v); err != nil {
		return fmt.Errorf("npz member %q: %w", name, err)
	}
	return nil
}

// NpzWriter writes a numpy-compatible npz archive member by member.
type NpzWriter struct {
	f  *os.File
	zw *zip.Writer
}

// CreateNpz creates an npz archive at path.
func CreateNpz(path string) (*NpzWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("npz %s: %w", path, err)
	}

	return &NpzWriter{f: f, zw: zip.NewWriter(f)}, nil
}

// PutMat64 stores matrix under key.
func (w *NpzWriter) PutMat64(key string, matrix *mat64.Dense) error {
	ew, err := w.zw.Create(key + ".npy")
	if err != nil {
		return fmt.Errorf("npz member %q: %w", key, err)
	}

	return Mat64toNpyStream(ew, matrix)
}

// PutVec64 stores a float64 vector under key.
func (w *NpzWriter) PutVec64(key string, vec []float64) error {
	ew, err := w.zw.Create(key + ".npy")
	if err != nil {
		return fmt.Errorf("npz member %q: %w", key, err)
	}

	return Vec64toNpyStream(ew, vec)
}

// PutInt64 stores an int64 vector under key.
func (w *NpzWriter) PutInt64(key string, vec []int64) error {
	ew, err := w.zw.Create(key + ".npy")
	if err != nil {
		return fmt.Errorf("npz member %q: %w", key, err)
	}

	return Int64toNpyStream(ew, vec)
}

// PutJSON stores v as a raw json member, keeping the name as given.
func (w *NpzWriter) PutJSON(name string, v interface{}) error {
	ew, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("npz member %q: %w", name, err)
	}

	enc := json.NewEncoder(ew)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Close flushes the archive directory and the file.
func (w *NpzWriter) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return err
	}

	return w.f.Close()
}
