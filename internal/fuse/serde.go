package fuse

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gonum/matrix/mat64"

	"github.com/HagaiHargil/caflow/internal/analog"
	caio "github.com/HagaiHargil/caflow/internal/io"
)

// FusedSuffix marks merged outputs on disk. Discovery treats its presence
// next to a recording as proof the recording was already processed.
const FusedSuffix = "_fused.npz"

// RecordPath is where the merged output of a recording lives, next to the
// recording itself.
func RecordPath(tifPath string) string {
	base := filepath.Base(tifPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(filepath.Dir(tifPath), stem+FusedSuffix)
}

// recordAttrs is the on-disk attrs member, the record attrs plus the epoch
// plane order.
type recordAttrs struct {
	Attrs
	Epochs []string `json:"epochs"`
}

// WriteRecord persists a fused record as an npz-layout archive: one float64
// plane per epoch tag, the neuron and time coordinate vectors, and a json
// attrs member. Writing the same record twice yields identical bytes.
func WriteRecord(path string, r *FusedRecord) error {
	w, err := caio.CreateNpz(path)
	if err != nil {
		return err
	}

	for i, epoch := range r.Epochs {
		if err := w.PutMat64("epoch_"+string(epoch), r.Planes[i]); err != nil {
			w.Close()
			return fmt.Errorf("fused %s: %w", path, err)
		}
	}

	neuron := make([]int64, len(r.Cells))
	for i, c := range r.Cells {
		neuron[i] = int64(c)
	}
	if err := w.PutInt64("neuron", neuron); err != nil {
		w.Close()
		return fmt.Errorf("fused %s: %w", path, err)
	}
	if err := w.PutVec64("time", r.Time); err != nil {
		w.Close()
		return fmt.Errorf("fused %s: %w", path, err)
	}

	attrs := recordAttrs{Attrs: r.Attrs, Epochs: make([]string, len(r.Epochs))}
	for i, epoch := range r.Epochs {
		attrs.Epochs[i] = string(epoch)
	}
	if err := w.PutJSON("attrs.json", attrs); err != nil {
		w.Close()
		return fmt.Errorf("fused %s: %w", path, err)
	}

	return w.Close()
}

// ReadRecord loads a merged output back into a validated fused record.
func ReadRecord(path string) (*FusedRecord, error) {
	a, err := caio.OpenNpz(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var attrs recordAttrs
	if err := a.JSON("attrs.json", &attrs); err != nil {
		return nil, fmt.Errorf("fused %s: %w", path, err)
	}
	if len(attrs.Epochs) == 0 {
		return nil, fmt.Errorf("fused %s: attrs carry no epoch order", path)
	}

	epochs := make([]analog.Epoch, len(attrs.Epochs))
	planes := make([]*mat64.Dense, len(attrs.Epochs))
	for i, name := range attrs.Epochs {
		epochs[i] = analog.Epoch(name)
		plane, err := a.Mat64("epoch_" + name)
		if err != nil {
			return nil, fmt.Errorf("fused %s: %w", path, err)
		}
		planes[i] = plane
	}

	neuron, err := a.Int64("neuron")
	if err != nil {
		return nil, fmt.Errorf("fused %s: %w", path, err)
	}
	cells := make([]int, len(neuron))
	for i, c := range neuron {
		cells[i] = int(c)
	}

	time, err := a.Vec64("time")
	if err != nil {
		return nil, fmt.Errorf("fused %s: %w", path, err)
	}

	return NewFusedRecord(epochs, planes, cells, time, attrs.Attrs)
}
