package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HagaiHargil/caflow/internal/anal"
	"github.com/HagaiHargil/caflow/internal/analog"
	"github.com/HagaiHargil/caflow/internal/config"
	"github.com/HagaiHargil/caflow/internal/fuse"
	"github.com/HagaiHargil/caflow/internal/io"
	"github.com/HagaiHargil/caflow/internal/metadata"
	"github.com/HagaiHargil/caflow/internal/spikes"
)

func newConcatCmd() *cobra.Command {
	var root, glob, outDir string
	var strictTime bool

	cmd := &cobra.Command{
		Use:   "concat",
		Short: "Pool fused recordings into per-day datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.Data.Root
			}
			if outDir == "" {
				outDir = root
			}
			log := newLogger(cfg)

			files, err := listFused(root, glob)
			if err != nil {
				return err
			}

			byDay := map[int][]string{}
			for _, path := range files {
				// Day outputs of an earlier run match the glob too.
				if strings.HasPrefix(filepath.Base(path), "data_of_day_") {
					continue
				}
				fields := metadata.ParseFovFields(path, metadata.DefaultPatterns())
				byDay[fields.Day] = append(byDay[fields.Day], path)
			}
			if len(byDay) == 0 {
				return fmt.Errorf("no fused recordings matching %q under %s", glob, root)
			}

			days := make([]int, 0, len(byDay))
			for day := range byDay {
				days = append(days, day)
			}
			sort.Ints(days)

			policy := fuse.TimeAdoptLatest
			if strictTime {
				policy = fuse.TimeStrict
			}

			for _, day := range days {
				out := filepath.Join(outDir, fmt.Sprintf("data_of_day_%d%s", day, fuse.FusedSuffix))
				if _, err := os.Stat(out); err == nil {
					log.Info("day already concatenated, skipping", "day", day, "path", out)
					continue
				}

				records := make([]*fuse.FusedRecord, 0, len(byDay[day]))
				for _, path := range byDay[day] {
					rec, err := fuse.ReadRecord(path)
					if err != nil {
						return fmt.Errorf("read %s: %w", path, err)
					}
					records = append(records, rec)
				}

				ds, err := fuse.Concat(records, fuse.ConcatOpts{Policy: policy, Log: log})
				if err != nil {
					return fmt.Errorf("day %d: %w", day, err)
				}
				if err := fuse.WriteRecord(out, ds); err != nil {
					return err
				}
				fmt.Printf("day %d: %d recordings, %d cells -> %s\n",
					day, len(records), ds.NumCells(), out)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Folder holding the fused recordings (default from config)")
	cmd.Flags().StringVar(&glob, "glob", "*"+fuse.FusedSuffix, "Fused filename pattern")
	cmd.Flags().BoolVar(&strictTime, "strict-time", false, "Fail on time axis mismatches instead of adopting the later clock")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output folder (default the data root)")

	return cmd
}

func listFused(root, glob string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(glob, d.Name())
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	return files, nil
}

func newSummaryCmd() *cobra.Command {
	var in, epochTag, csvPath, xlsxPath, corrPath string
	var threshold float64
	var minDist int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Spike statistics of a fused recording or dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			rec, err := fuse.ReadRecord(in)
			if err != nil {
				return err
			}

			plane := rec.Plane(analog.Epoch(epochTag))
			if plane == nil {
				tags := make([]string, len(rec.Epochs))
				for i, e := range rec.Epochs {
					tags[i] = string(e)
				}
				return fmt.Errorf("no %q epoch in %s, have: %s", epochTag, in, strings.Join(tags, ", "))
			}

			spikeMat := spikes.Detect(plane, rec.Attrs.FPS, threshold, minDist)
			bounds, err := spikes.NewEpochBoundaries(rec.Attrs.FramesBefore, rec.Attrs.FramesDuring, rec.NumFrames())
			if err != nil {
				return err
			}
			counts, err := spikes.CountByEpoch(spikeMat, bounds, spikes.CountOpts{NaNTolerant: true})
			if err != nil {
				return err
			}

			sum, err := anal.Summarize(counts)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d cells over %d frames at %.2f fps, epoch %s\n",
				in, rec.NumCells(), rec.NumFrames(), rec.Attrs.FPS, epochTag)
			fmt.Println("Mean spikes per cell, occluder-normalized:")
			printPhase("before", sum.Before)
			printPhase("during", sum.During)
			printPhase("after", sum.After)

			before, during, after := anal.PhaseSlices(counts)
			if anova, err := anal.OneWayANOVA(before, during, after); err == nil {
				fmt.Printf("  one-way ANOVA: F(%d, %d) = %.3f, p = %.4f\n",
					anova.DFBetween, anova.DFWithin, anova.F, anova.P)
			}

			if len(rec.Attrs.Colabeled) > 0 {
				labeled, unlabeled := anal.SplitColabeled(rec.NumCells(), rec.Attrs.Colabeled)
				if lsum, err := anal.Summarize(takeCounts(counts, labeled)); err == nil {
					fmt.Printf("  colabeled (%d cells): before %.3f  during %.3f  after %.3f\n",
						len(labeled), lsum.Before.Mean, lsum.During.Mean, lsum.After.Mean)
				}
				if usum, err := anal.Summarize(takeCounts(counts, unlabeled)); err == nil {
					fmt.Printf("  unlabeled (%d cells): before %.3f  during %.3f  after %.3f\n",
						len(unlabeled), usum.Before.Mean, usum.During.Mean, usum.After.Mean)
				}
			}

			if csvPath != "" {
				if err := anal.WriteCountsCSV(csvPath, rec.Cells, counts); err != nil {
					return err
				}
				fmt.Printf("counts written to %s\n", csvPath)
			}
			if xlsxPath != "" {
				if err := anal.WriteCountsXLSX(xlsxPath, rec.Cells, counts); err != nil {
					return err
				}
				fmt.Printf("counts written to %s\n", xlsxPath)
			}
			if corrPath != "" {
				corr := anal.Correlate(plane, 0)
				if err := io.Mat64toNpy(corrPath, corr); err != nil {
					return err
				}
				fmt.Printf("cell correlation matrix written to %s\n", corrPath)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Fused recording or dataset to summarize")
	cmd.Flags().StringVar(&epochTag, "epoch", string(analog.EpochAll), "Epoch plane to detect spikes on")
	cmd.Flags().Float64Var(&threshold, "threshold", spikes.DefaultThreshold, "Normalized spike detection threshold")
	cmd.Flags().IntVar(&minDist, "min-dist", 0, "Minimum samples between peaks (default one second)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write per-cell tallies to this CSV file")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write per-cell tallies to this XLSX file")
	cmd.Flags().StringVar(&corrPath, "corr", "", "Write the cell-cell Pearson matrix of the epoch plane to this npy file")

	return cmd
}

func printPhase(name string, st anal.PhaseStats) {
	fmt.Printf("  %-7s mean %.3f  median %.3f  std %.3f  (n=%d)\n",
		name, st.Mean, st.Median, st.StdDev, st.N)
}

func takeCounts(counts []spikes.EpochCount, rows []int) []spikes.EpochCount {
	out := make([]spikes.EpochCount, 0, len(rows))
	for _, r := range rows {
		if r >= 0 && r < len(counts) {
			out = append(out, counts[r])
		}
	}

	return out
}
