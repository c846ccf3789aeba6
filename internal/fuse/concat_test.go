package fuse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HagaiHargil/caflow/internal/analog"
)

func TestConcat(t *testing.T) {
	first := testRecord(t, 3, 4, "a.tif")
	second := testRecord(t, 5, 4, "b.tif")

	ds, err := Concat([]*FusedRecord{first, second}, ConcatOpts{})
	require.NoError(t, err)

	require.Equal(t, 8, ds.NumCells())
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, ds.Cells)
	require.Equal(t, 4, ds.NumFrames())
	require.Equal(t, first.Epochs, ds.Epochs)

	// rows 0..2 come from the first record, 3..7 from the second
	all := ds.Plane(analog.EpochAll)
	require.Equal(t, first.Planes[0].At(2, 1), all.At(2, 1))
	require.Equal(t, second.Planes[0].At(0, 1), all.At(3, 1))
	require.Equal(t, second.Planes[0].At(4, 3), all.At(7, 3))

	// scalar attrs come from the first record
	require.Equal(t, first.Attrs.FPS, ds.Attrs.FPS)
	require.Equal(t, first.Attrs.Source, ds.Attrs.Source)
}

func TestConcatSingle(t *testing.T) {
	rec := testRecord(t, 2, 4, "a.tif")

	ds, err := Concat([]*FusedRecord{rec}, ConcatOpts{})
	require.NoError(t, err)
	require.Equal(t, 2, ds.NumCells())
	requirePlanesEqual(t, rec.Planes[0], ds.Planes[0])
}

func TestConcatEmpty(t *testing.T) {
	_, err := Concat(nil, ConcatOpts{})
	require.ErrorContains(t, err, "nothing to concatenate")
}

func TestConcatEpochMismatch(t *testing.T) {
	first := testRecord(t, 2, 4, "a.tif")

	second := testRecord(t, 2, 4, "b.tif")
	second.Epochs = second.Epochs[:1]
	second.Planes = second.Planes[:1]

	_, err := Concat([]*FusedRecord{first, second}, ConcatOpts{})

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.ErrorContains(t, err, "b.tif")
}

func TestConcatStrictTime(t *testing.T) {
	first := testRecord(t, 2, 4, "a.tif")
	second := testRecord(t, 2, 6, "b.tif")

	_, err := Concat([]*FusedRecord{first, second}, ConcatOpts{Policy: TimeStrict})

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.ErrorContains(t, err, "b.tif")
}

// TestConcatAdoptLatest checks the lossy default: the later record's time
// axis wins and earlier planes are padded out with NaN.
func TestConcatAdoptLatest(t *testing.T) {
	first := testRecord(t, 2, 4, "a.tif")
	second := testRecord(t, 1, 6, "b.tif")

	ds, err := Concat([]*FusedRecord{first, second}, ConcatOpts{})
	require.NoError(t, err)

	require.Equal(t, 6, ds.NumFrames())
	all := ds.Plane(analog.EpochAll)

	// first record's rows get NaN beyond their own span
	require.Equal(t, first.Planes[0].At(0, 3), all.At(0, 3))
	require.True(t, math.IsNaN(all.At(0, 4)))
	require.True(t, math.IsNaN(all.At(1, 5)))
	// second record's row is complete
	require.Equal(t, second.Planes[0].At(0, 5), all.At(2, 5))
}

func TestConcatAdoptLatestTruncates(t *testing.T) {
	first := testRecord(t, 1, 6, "a.tif")
	second := testRecord(t, 1, 4, "b.tif")

	ds, err := Concat([]*FusedRecord{first, second}, ConcatOpts{})
	require.NoError(t, err)

	require.Equal(t, 4, ds.NumFrames())
	all := ds.Plane(analog.EpochAll)
	require.Equal(t, first.Planes[0].At(0, 3), all.At(0, 3))
	require.Equal(t, second.Planes[0].At(0, 0), all.At(1, 0))
}

func TestConcatColabeled(t *testing.T) {
	first := testRecord(t, 3, 4, "a.tif")
	first.Attrs.Colabeled = []int{1}
	second := testRecord(t, 5, 4, "b.tif")
	second.Attrs.Colabeled = []int{0, 2}

	ds, err := Concat([]*FusedRecord{first, second}, ConcatOpts{})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 5}, ds.Attrs.Colabeled)
}

// TestConcatOfConcat checks that pooling is associative: merging a merged
// dataset with a third record equals merging all three at once.
func TestConcatOfConcat(t *testing.T) {
	a := testRecord(t, 2, 4, "a.tif")
	b := testRecord(t, 3, 4, "b.tif")
	c := testRecord(t, 1, 4, "c.tif")

	ab, err := Concat([]*FusedRecord{a, b}, ConcatOpts{})
	require.NoError(t, err)
	abc, err := Concat([]*FusedRecord{ab, c}, ConcatOpts{})
	require.NoError(t, err)

	flat, err := Concat([]*FusedRecord{a, b, c}, ConcatOpts{})
	require.NoError(t, err)

	require.Equal(t, flat.Cells, abc.Cells)
	for p := range flat.Planes {
		requirePlanesEqual(t, flat.Planes[p], abc.Planes[p])
	}
}
