package analog

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
)

// Trace is a raw analog acquisition, one stimulus and one treadmill sample
// per row of the vendor text file.
type Trace struct {
	Stim []float64
	Run  []float64
}

// Load reads a two-column analog text file. Columns are comma separated,
// whitespace-only separation is tolerated, extra columns are ignored.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("analog %s: %w", path, err)
	}
	defer f.Close()

	trace := &Trace{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			fields = strings.Fields(line)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("analog %s line %d: want stimulus and run columns", path, lineNo)
		}

		stim, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("analog %s line %d: %w", path, lineNo, err)
		}
		run, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("analog %s line %d: %w", path, lineNo, err)
		}

		trace.Stim = append(trace.Stim, stim)
		trace.Run = append(trace.Run, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("analog %s: %w", path, err)
	}
	if len(trace.Stim) == 0 {
		return nil, fmt.Errorf("analog %s: empty file", path)
	}

	return trace, nil
}

// Len is the number of acquisition samples.
func (t *Trace) Len() int {
	return len(t.Stim)
}

// Fit reconciles the trace with a recording of the given frame count and
// returns a fresh trace, never touching the receiver. A longer trace is
// decimated onto the frame grid by nearest sample; a shorter one is
// returned as is, and the caller truncates the recording to the returned
// length.
func (t *Trace) Fit(frames int) *Trace {
	n := t.Len()

	if n <= frames {
		return &Trace{
			Stim: append([]float64(nil), t.Stim...),
			Run:  append([]float64(nil), t.Run...),
		}
	}

	fitted := &Trace{
		Stim: make([]float64, frames),
		Run:  make([]float64, frames),
	}
	for i := 0; i < frames; i++ {
		src := 0
		if frames > 1 {
			src = int(math.Round(float64(i) * float64(n-1) / float64(frames-1)))
		}
		fitted.Stim[i] = t.Stim[src]
		fitted.Run[i] = t.Run[src]
	}

	return fitted
}

// Thresholds turn the voltage traces into behavioral masks. The stimulus
// line is band-coded: a direct puff drives it to the TTL rail, a
// juxtaposed puff to the middle band.
type Thresholds struct {
	StimHighV     float64
	JuxtaLowV     float64
	RunV          float64
	StimWindowSec float64
}

// DefaultThresholds matches the occluder rig wiring.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StimHighV:     4.0,
		JuxtaLowV:     1.0,
		RunV:          0.5,
		StimWindowSec: 1.5,
	}
}

// Masks derives the per-frame behavioral mask of every epoch tag. Stimulus
// masks are stretched forward by the response window, the run mask is
// widened by half a second on both sides to bridge the treadmill pulse
// train.
func (t *Trace) Masks(fps float64, th Thresholds) map[Epoch][]bool {
	n := t.Len()

	stim := make([]bool, n)
	juxta := make([]bool, n)
	run := make([]bool, n)

	med, err := stats.Median(t.Run)
	if err != nil {
		med = 0
	}

	for i := 0; i < n; i++ {
		v := t.Stim[i]
		stim[i] = v >= th.StimHighV
		juxta[i] = v >= th.JuxtaLowV && v < th.StimHighV
		run[i] = math.Abs(t.Run[i]-med) > th.RunV
	}

	window := int(math.Round(th.StimWindowSec * fps))
	stim = dilate(stim, 0, window)
	juxta = dilate(juxta, 0, window)
	run = dilate(run, int(math.Round(fps/2)), int(math.Round(fps/2)))

	stand := not(run)
	spont := not(or(stim, juxta))
	all := make([]bool, n)
	for i := range all {
		all[i] = true
	}

	return map[Epoch][]bool{
		EpochAll:        all,
		EpochRun:        run,
		EpochStand:      stand,
		EpochStim:       stim,
		EpochJuxta:      juxta,
		EpochSpont:      spont,
		EpochRunStim:    and(run, stim),
		EpochRunJuxta:   and(run, juxta),
		EpochRunSpont:   and(run, spont),
		EpochStandStim:  and(stand, stim),
		EpochStandJuxta: and(stand, juxta),
		EpochStandSpont: and(stand, spont),
	}
}

func dilate(mask []bool, back, forward int) []bool {
	out := make([]bool, len(mask))

	for i, on := range mask {
		if !on {
			continue
		}

		lo := i - back
		if lo < 0 {
			lo = 0
		}
		hi := i + forward
		if hi > len(mask)-1 {
			hi = len(mask) - 1
		}
		for j := lo; j <= hi; j++ {
			out[j] = true
		}
	}

	return out
}

func not(mask []bool) []bool {
	out := make([]bool, len(mask))
	for i, on := range mask {
		out[i] = !on
	}

	return out
}

func and(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}

	return out
}

func or(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] || b[i]
	}

	return out
}
