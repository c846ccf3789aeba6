package analog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAnalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "analog.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadCommaSeparated(t *testing.T) {
	trace, err := Load(writeAnalog(t, "0.1,0.2\n4.5,0.2\n\n0.0,1.8\n"))
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 4.5, 0.0}, trace.Stim)
	require.Equal(t, []float64{0.2, 0.2, 1.8}, trace.Run)
	require.Equal(t, 3, trace.Len())
}

func TestLoadWhitespaceSeparated(t *testing.T) {
	trace, err := Load(writeAnalog(t, "0.1\t0.2\n4.5  0.3\n"))
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 4.5}, trace.Stim)
	require.Equal(t, []float64{0.2, 0.3}, trace.Run)
}

func TestLoadBadLine(t *testing.T) {
	_, err := Load(writeAnalog(t, "0.1,0.2\njust-one-column\n"))
	require.ErrorContains(t, err, "line 2")
}

func TestLoadBadNumber(t *testing.T) {
	_, err := Load(writeAnalog(t, "0.1,voltage\n"))
	require.ErrorContains(t, err, "line 1")
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(writeAnalog(t, "\n\n"))
	require.ErrorContains(t, err, "empty")
}

func TestFitShorterPassesThrough(t *testing.T) {
	trace := &Trace{Stim: []float64{1, 2, 3}, Run: []float64{4, 5, 6}}

	fitted := trace.Fit(5)
	require.Equal(t, trace.Stim, fitted.Stim)
	require.Equal(t, trace.Run, fitted.Run)

	// the fit is a copy, not a view
	fitted.Stim[0] = 99
	require.Equal(t, 1.0, trace.Stim[0])
}

// TestFitDecimates checks nearest-sample decimation of an acquisition that
// ran faster than the frame clock.
func TestFitDecimates(t *testing.T) {
	trace := &Trace{
		Stim: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		Run:  []float64{8, 7, 6, 5, 4, 3, 2, 1, 0},
	}

	fitted := trace.Fit(5)
	require.Equal(t, []float64{0, 2, 4, 6, 8}, fitted.Stim)
	require.Equal(t, []float64{8, 6, 4, 2, 0}, fitted.Run)
}

func TestMasks(t *testing.T) {
	trace := &Trace{
		Stim: []float64{0, 5, 0, 0, 0, 2, 0, 0},
		Run:  []float64{0, 0, 0, 0, 2, 0, 0, 0},
	}

	masks := trace.Masks(2.0, DefaultThresholds())
	require.Len(t, masks, len(EpochOrder()))
	for _, tag := range EpochOrder() {
		require.Contains(t, masks, tag)
	}

	// stim onset at frame 1, stretched forward by the 1.5 s window
	require.Equal(t, []bool{false, true, true, true, true, false, false, false}, masks[EpochStim])
	// juxta band at frame 5, same stretch clipped at the end
	require.Equal(t, []bool{false, false, false, false, false, true, true, true}, masks[EpochJuxta])
	// treadmill pulse at frame 4, widened by half a second both ways
	require.Equal(t, []bool{false, false, false, true, true, true, false, false}, masks[EpochRun])
	require.Equal(t, []bool{true, true, true, false, false, false, true, true}, masks[EpochStand])
	// only frame 0 is free of stimulation
	require.Equal(t, []bool{true, false, false, false, false, false, false, false}, masks[EpochSpont])

	require.Equal(t, []bool{false, false, false, true, true, false, false, false}, masks[EpochRunStim])
	require.Equal(t, []bool{true, false, false, false, false, false, false, false}, masks[EpochStandSpont])

	for _, on := range masks[EpochAll] {
		require.True(t, on)
	}
}

func TestMasksQuietTrace(t *testing.T) {
	trace := &Trace{
		Stim: []float64{0, 0, 0, 0},
		Run:  []float64{0.1, 0.1, 0.1, 0.1},
	}

	masks := trace.Masks(2.0, DefaultThresholds())
	for i := 0; i < 4; i++ {
		require.False(t, masks[EpochStim][i])
		require.False(t, masks[EpochRun][i])
		require.True(t, masks[EpochStand][i])
		require.True(t, masks[EpochSpont][i])
		require.True(t, masks[EpochStandSpont][i])
	}
}
