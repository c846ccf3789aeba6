package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrMetadataParse marks vendor metadata that could not be read. Callers keep
// going on the fallback params and log a warning.
var ErrMetadataParse = errors.New("vendor metadata parse failed")

// Fallback acquisition params for files with unreadable headers. The frame
// rate matches the rig this pipeline was written for.
const (
	DefaultFPS         = 58.31
	DefaultNumChannels = 1
)

// Params holds the acquisition parameters scraped from a ScanImage header.
type Params struct {
	FPS            float64
	NumChannels    int
	FramesPerSlice int
}

// headerScanLimit bounds how much of the recording is searched for the
// ScanImage text block. The block sits in the first IFD, well under this.
const headerScanLimit = 4 << 20

var (
	frameRateRe  = regexp.MustCompile(`SI\.hRoiManager\.scanFrameRate\s*=\s*([0-9.eE+-]+)`)
	framesRe     = regexp.MustCompile(`SI\.hStackManager\.framesPerSlice\s*=\s*([0-9]+)`)
	channelsRe   = regexp.MustCompile(`SI\.hChannels\.channelsActive\s*=\s*([^\r\n]+)`)
	channelNumRe = regexp.MustCompile(`[0-9]+`)
)

// ReadScanImage scrapes acquisition params from the ScanImage key=value text
// embedded in a tif header. It always returns usable params: unreadable or
// missing keys fall back to defaults and the miss is reported through the
// error, wrapped around ErrMetadataParse.
func ReadScanImage(path string) (Params, error) {
	params := Params{
		FPS:         DefaultFPS,
		NumChannels: DefaultNumChannels,
	}

	f, err := os.Open(path)
	if err != nil {
		return params, fmt.Errorf("%w: %s: %v", ErrMetadataParse, path, err)
	}
	defer f.Close()

	head := make([]byte, headerScanLimit)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return params, fmt.Errorf("%w: %s: %v", ErrMetadataParse, path, err)
	}
	text := string(head[:n])

	var missing []string

	if m := frameRateRe.FindStringSubmatch(text); m != nil {
		if fps, err := strconv.ParseFloat(m[1], 64); err == nil && fps > 0 {
			params.FPS = fps
		} else {
			missing = append(missing, "scanFrameRate")
		}
	} else {
		missing = append(missing, "scanFrameRate")
	}

	if m := framesRe.FindStringSubmatch(text); m != nil {
		if frames, err := strconv.Atoi(m[1]); err == nil {
			params.FramesPerSlice = frames
		} else {
			missing = append(missing, "framesPerSlice")
		}
	} else {
		missing = append(missing, "framesPerSlice")
	}

	if m := channelsRe.FindStringSubmatch(text); m != nil {
		if n := len(channelNumRe.FindAllString(m[1], -1)); n > 0 {
			params.NumChannels = n
		} else {
			missing = append(missing, "channelsActive")
		}
	} else {
		missing = append(missing, "channelsActive")
	}

	if len(missing) > 0 {
		return params, fmt.Errorf("%w: %s: missing %s", ErrMetadataParse, path, strings.Join(missing, ", "))
	}

	return params, nil
}
