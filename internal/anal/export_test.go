package anal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/HagaiHargil/caflow/internal/spikes"
)

func TestWriteCountsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv")
	counts := []spikes.EpochCount{
		{Before: 2, During: 1.5, After: 0},
		{Before: 0, During: 3, After: 2},
	}

	require.NoError(t, WriteCountsCSV(path, []int{0, 1}, counts))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"neuron", "before", "during", "after"}, rows[0])
	require.Equal(t, []string{"0", "2", "1.5", "0"}, rows[1])
	require.Equal(t, []string{"1", "0", "3", "2"}, rows[2])
}

func TestWriteCountsCSVLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv")

	err := WriteCountsCSV(path, []int{0}, nil)
	require.ErrorContains(t, err, "tallies")
}

func TestWriteCountsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")
	counts := []spikes.EpochCount{{Before: 2, During: 1.5, After: 0}}

	require.NoError(t, WriteCountsXLSX(path, []int{7}, counts))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	require.Equal(t, "neuron", header)

	neuron, err := f.GetCellValue("Sheet1", "A2")
	require.NoError(t, err)
	require.Equal(t, "7", neuron)

	during, err := f.GetCellValue("Sheet1", "C2")
	require.NoError(t, err)
	require.Equal(t, "1.5", during)
}
