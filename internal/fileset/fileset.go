package fileset

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// RecordingGroup bundles one field of view: the raw recording, its
// segmentation results and the optional sidecars. Groups are only built by
// Find, so a group in hand is complete for the requested options.
type RecordingGroup struct {
	Tif       string
	Results   string
	Analog    string
	Colabeled string
}

// Stem is the shared basename prefix the sidecars were matched on.
func (g RecordingGroup) Stem() string {
	base := filepath.Base(g.Tif)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Skip records a recording that was left out of a batch and why.
type Skip struct {
	Tif    string
	Reason string
}

// Options steer discovery. Glob is matched against recording basenames.
type Options struct {
	Glob          string
	WithAnalog    bool
	WithColabeled bool
}

// Finder walks a data folder and pairs recordings with their counterpart
// files by shared stem.
type Finder struct {
	root string
	opts Options
	log  *slog.Logger
}

// NewFinder returns a Finder rooted at root.
func NewFinder(root string, opts Options, log *slog.Logger) *Finder {
	if opts.Glob == "" {
		opts.Glob = "*.tif"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Finder{root: root, opts: opts, log: log.With("component", "fileset")}
}

// Find walks the root and returns the complete recording groups in lexical
// traversal order, plus the recordings that were skipped. A recording is
// skipped when a merged output for its stem already exists, or when a
// required counterpart is missing. Missing counterparts are not errors, the
// recording is dropped and logged.
func (f *Finder) Find() ([]RecordingGroup, []Skip, error) {
	var files []string

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fileset: walking %s: %w", f.root, err)
	}

	var groups []RecordingGroup
	var skipped []Skip

	for _, path := range files {
		base := filepath.Base(path)
		if ok, _ := filepath.Match(f.opts.Glob, base); !ok {
			continue
		}

		stem := strings.TrimSuffix(base, filepath.Ext(base))
		group := RecordingGroup{Tif: path}

		if fused := matchFirst(files, stem+"*_fused.npz"); fused != "" {
			f.log.Info("already fused, skipping", "tif", path, "fused", fused)
			skipped = append(skipped, Skip{Tif: path, Reason: "already fused"})
			continue
		}

		group.Results = matchFirst(files, stem+"*results.npz")
		if group.Results == "" {
			f.log.Info("file has no results counterpart, skipping", "tif", path)
			skipped = append(skipped, Skip{Tif: path, Reason: "no results file"})
			continue
		}

		if f.opts.WithAnalog {
			group.Analog = matchFirst(files, stem+"*analog*.txt")
			if group.Analog == "" {
				f.log.Info("file has no analog counterpart, skipping", "tif", path)
				skipped = append(skipped, Skip{Tif: path, Reason: "no analog file"})
				continue
			}
		}

		if f.opts.WithColabeled {
			group.Colabeled = matchFirst(files, stem+"*_colabeled*.npy")
			if group.Colabeled == "" {
				f.log.Info("file has no colabeled counterpart, skipping", "tif", path)
				skipped = append(skipped, Skip{Tif: path, Reason: "no colabeled file"})
				continue
			}
		}

		groups = append(groups, group)
	}

	return groups, skipped, nil
}

func matchFirst(files []string, pattern string) string {
	for _, path := range files {
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return path
		}
	}

	return ""
}
