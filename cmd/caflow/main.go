package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/HagaiHargil/caflow/internal/anal"
	"github.com/HagaiHargil/caflow/internal/batch"
	"github.com/HagaiHargil/caflow/internal/config"
	"github.com/HagaiHargil/caflow/internal/fileset"
	"github.com/HagaiHargil/caflow/internal/fuse"
	"github.com/HagaiHargil/caflow/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "caflow",
		Short: "Fuse calcium imaging recordings with their behavioral epochs",
	}

	rootCmd.AddCommand(
		newFindCmd(),
		newAnalyzeCmd(),
		newConcatCmd(),
		newSummaryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then the flags the user actually set.
func loadConfig(cmd *cobra.Command, configPath string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Data.Root, _ = flags.GetString("root")
	}
	if flags.Changed("glob") {
		cfg.Data.Glob, _ = flags.GetString("glob")
	}
	if flags.Changed("analog") {
		cfg.Data.WithAnalog, _ = flags.GetBool("analog")
	}
	if flags.Changed("colabeled") {
		cfg.Data.WithColabeled, _ = flags.GetBool("colabeled")
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("before") {
		cfg.Epochs.FramesBefore, _ = flags.GetInt("before")
	}
	if flags.Changed("during") {
		cfg.Epochs.FramesDuring, _ = flags.GetInt("during")
	}
	if flags.Changed("threshold") {
		cfg.Spikes.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("ledger") {
		cfg.Batch.LedgerPath, _ = flags.GetString("ledger")
	}

	return cfg, nil
}

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", "", "Data folder to scan (default from config)")
	cmd.Flags().String("glob", "", "Recording filename pattern (default *.tif)")
	cmd.Flags().Bool("analog", false, "Require an analog voltage trace per recording")
	cmd.Flags().Bool("colabeled", false, "Require a colabeled cell index file per recording")
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "List the recording groups a batch would process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, "")
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			finder := fileset.NewFinder(cfg.Data.Root, fileset.Options{
				Glob:          cfg.Data.Glob,
				WithAnalog:    cfg.Data.WithAnalog,
				WithColabeled: cfg.Data.WithColabeled,
			}, log)
			groups, skipped, err := finder.Find()
			if err != nil {
				return err
			}

			for _, g := range groups {
				fmt.Println(g.Tif)
				fmt.Printf("  results:   %s\n", g.Results)
				if g.Analog != "" {
					fmt.Printf("  analog:    %s\n", g.Analog)
				}
				if g.Colabeled != "" {
					fmt.Printf("  colabeled: %s\n", g.Colabeled)
				}
			}
			for _, s := range skipped {
				fmt.Printf("skipped %s: %s\n", s.Tif, s.Reason)
			}
			fmt.Printf("%d recordings to process, %d skipped\n", len(groups), len(skipped))

			return nil
		},
	}

	addDataFlags(cmd)

	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var configPath, out string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full pipeline over every recording under the data root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			var db *ledger.DB
			if cfg.Batch.LedgerPath != "" {
				db, err = ledger.Open(cfg.Batch.LedgerPath)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			finder := fileset.NewFinder(cfg.Data.Root, fileset.Options{
				Glob:          cfg.Data.Glob,
				WithAnalog:    cfg.Data.WithAnalog,
				WithColabeled: cfg.Data.WithColabeled,
			}, log)
			groups, skipped, err := finder.Find()
			if err != nil {
				return err
			}
			if len(groups) == 0 && len(skipped) == 0 {
				return fmt.Errorf("no recordings matching %q under %s", cfg.Data.Glob, cfg.Data.Root)
			}

			res, err := batch.New(cfg, log, db).Run(context.Background(), groups, skipped)
			if res != nil {
				printRunSummary(res)
			}
			if err != nil {
				return err
			}

			if out != "" && res.Dataset != nil {
				if err := fuse.WriteRecord(out, res.Dataset); err != nil {
					return err
				}
				fmt.Printf("dataset written to %s\n", out)
			}

			return nil
		},
	}

	addDataFlags(cmd)
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().Int("workers", 0, "Worker pool size (default one per CPU)")
	cmd.Flags().Int("before", 0, "Frames before occluder closure (default 1000)")
	cmd.Flags().Int("during", 0, "Frames with the occluder closed (default 1000)")
	cmd.Flags().Float64("threshold", 0, "Normalized spike detection threshold (default 0.65)")
	cmd.Flags().String("ledger", "", "SQLite run ledger path")
	cmd.Flags().StringVar(&out, "out", "", "Write the concatenated dataset to this path")

	return cmd
}

func printRunSummary(res *batch.Result) {
	fmt.Printf("Run %s\n", res.RunID)
	fmt.Printf("Processed: %d\n", res.NumProcessed())
	fmt.Printf("Skipped:   %d\n", len(res.Skipped))
	fmt.Printf("Failed:    %d\n", res.NumFailed())
	for _, s := range res.Skipped {
		fmt.Printf("  skipped %s: %s\n", s.Tif, s.Reason)
	}
	for _, o := range res.Outcomes {
		if o.Status == batch.StatusFailed {
			fmt.Printf("  failed %s: %v\n", o.Group.Tif, o.Err)
		}
	}

	if res.Dataset == nil {
		return
	}
	fmt.Printf("Dataset: %d cells over %d frames\n", res.Dataset.NumCells(), res.Dataset.NumFrames())

	sum, err := anal.Summarize(res.Counts)
	if err != nil {
		return
	}
	fmt.Println("Mean spikes per cell, occluder-normalized:")
	fmt.Printf("  before: %.3f  during: %.3f  after: %.3f\n",
		sum.Before.Mean, sum.During.Mean, sum.After.Mean)
	before, during, after := anal.PhaseSlices(res.Counts)
	if anova, err := anal.OneWayANOVA(before, during, after); err == nil {
		fmt.Printf("  one-way ANOVA: F(%d, %d) = %.3f, p = %.4f\n",
			anova.DFBetween, anova.DFWithin, anova.F, anova.P)
	}
}
