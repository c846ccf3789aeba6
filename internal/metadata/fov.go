package metadata

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// UnknownDay groups recordings whose filename carries no day marker.
const UnknownDay = 999

// FovFields are the experiment coordinates encoded in a recording filename,
// e.g. "289_HYPER_DAY_0_FOV_1.tif".
type FovFields struct {
	MouseID   string
	Condition string
	Day       int
	Fov       int
}

// FieldPatterns are the regexes that pull FovFields out of a filename. Labs
// with other naming schemes override the defaults.
type FieldPatterns struct {
	MouseID   *regexp.Regexp
	Condition *regexp.Regexp
	Day       *regexp.Regexp
	Fov       *regexp.Regexp
}

// DefaultPatterns matches the naming used across our vascular occluder
// experiments.
func DefaultPatterns() FieldPatterns {
	return FieldPatterns{
		MouseID:   regexp.MustCompile(`^(\d+)_`),
		Condition: regexp.MustCompile(`(HYPER|HYPO)`),
		Day:       regexp.MustCompile(`DAY_(\d+)`),
		Fov:       regexp.MustCompile(`FOV_(\d+)`),
	}
}

// ParseFovFields extracts experiment coordinates from the basename of path.
// Fields that do not match stay at their defaults, with Day set to
// UnknownDay so unmarked recordings still group together.
func ParseFovFields(path string, pats FieldPatterns) FovFields {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	fields := FovFields{Day: UnknownDay}

	if m := pats.MouseID.FindStringSubmatch(name); m != nil {
		fields.MouseID = m[1]
	}
	if m := pats.Condition.FindStringSubmatch(name); m != nil {
		fields.Condition = m[1]
	}
	if m := pats.Day.FindStringSubmatch(name); m != nil {
		if day, err := strconv.Atoi(m[1]); err == nil {
			fields.Day = day
		}
	}
	if m := pats.Fov.FindStringSubmatch(name); m != nil {
		if fov, err := strconv.Atoi(m[1]); err == nil {
			fields.Fov = fov
		}
	}

	return fields
}
