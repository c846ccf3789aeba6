package batch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HagaiHargil/caflow/internal/analog"
	"github.com/HagaiHargil/caflow/internal/config"
	"github.com/HagaiHargil/caflow/internal/dff"
	"github.com/HagaiHargil/caflow/internal/fileset"
	"github.com/HagaiHargil/caflow/internal/fuse"
	caio "github.com/HagaiHargil/caflow/internal/io"
	"github.com/HagaiHargil/caflow/internal/ledger"
	"github.com/HagaiHargil/caflow/internal/metadata"
	"github.com/HagaiHargil/caflow/internal/spikes"
)

// Recording statuses as recorded in the ledger.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Outcome is what happened to one recording group.
type Outcome struct {
	Group     fileset.RecordingGroup
	Status    string
	Err       error
	Record    *fuse.FusedRecord
	Counts    []spikes.EpochCount
	Fields    metadata.FovFields
	FusedPath string
}

// Result is a whole batch run: per-recording outcomes in input order, the
// discovery skips, and the concatenated dataset of the successes.
type Result struct {
	RunID    string
	Outcomes []Outcome
	Skipped  []fileset.Skip
	Dataset  *fuse.FusedRecord
	// Counts pools the per-cell tallies of the successes in dataset cell
	// order.
	Counts []spikes.EpochCount
}

// NumProcessed counts the successful recordings.
func (res *Result) NumProcessed() int {
	n := 0
	for _, o := range res.Outcomes {
		if o.Status == StatusProcessed {
			n++
		}
	}

	return n
}

// NumFailed counts the failed recordings.
func (res *Result) NumFailed() int {
	n := 0
	for _, o := range res.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}

	return n
}

// Runner drives the per-recording pipeline over a fixed worker pool.
type Runner struct {
	cfg config.Config
	log *slog.Logger
	db  *ledger.DB
}

// New returns a Runner. The ledger may be nil to run without one.
func New(cfg config.Config, log *slog.Logger, db *ledger.DB) *Runner {
	if log == nil {
		log = slog.Default()
	}

	return &Runner{cfg: cfg, log: log.With("component", "batch"), db: db}
}

// Run processes every recording group over the worker pool, each field of
// view independently. A failing recording is logged and excluded, it never
// aborts the batch. Outcomes keep the input order no matter which worker
// finished first, and the dataset concatenates the successes in that order.
func (r *Runner) Run(ctx context.Context, groups []fileset.RecordingGroup, skipped []fileset.Skip) (*Result, error) {
	workers := r.cfg.Batch.Workers
	if workers < 1 {
		workers = 1
	}

	runID := uuid.NewString()
	res := &Result{RunID: runID, Skipped: skipped}

	if r.db != nil {
		run := ledger.Run{
			ID:        runID,
			StartedAt: time.Now(),
			Root:      r.cfg.Data.Root,
			Glob:      r.cfg.Data.Glob,
			Workers:   workers,
		}
		if err := r.db.RecordRun(ctx, run); err != nil {
			return nil, err
		}

		for _, s := range skipped {
			entry := ledger.FovEntry{
				RunID:      runID,
				Tif:        s.Tif,
				Status:     StatusSkipped,
				Error:      s.Reason,
				RecordedAt: time.Now(),
			}
			if err := r.db.RecordFov(ctx, entry); err != nil {
				r.log.Warn("ledger write failed", "tif", s.Tif, "error", err)
			}
		}
	}

	outcomes := make([]Outcome, len(groups))

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(len(groups))

	for i := 0; i < workers; i++ {
		go r.worker(runID, groups, outcomes, order, &wg)
	}

	for i := range groups {
		order <- i
	}

	wg.Wait()
	close(order)

	res.Outcomes = outcomes

	var records []*fuse.FusedRecord
	for i := range outcomes {
		o := &outcomes[i]

		if o.Status == StatusFailed {
			r.log.Error("fov failed, excluded from the dataset", "tif", o.Group.Tif, "error", o.Err)
		}

		if r.db != nil {
			entry := ledger.FovEntry{
				RunID:      runID,
				Tif:        o.Group.Tif,
				Status:     o.Status,
				RecordedAt: time.Now(),
			}
			if o.Record != nil {
				entry.Cells = o.Record.NumCells()
			}
			if o.Err != nil {
				entry.Error = o.Err.Error()
			}
			if err := r.db.RecordFov(ctx, entry); err != nil {
				r.log.Warn("ledger write failed", "tif", o.Group.Tif, "error", err)
			}
		}

		if o.Status == StatusProcessed {
			records = append(records, o.Record)
			res.Counts = append(res.Counts, o.Counts...)
		}
	}

	if len(records) > 0 {
		ds, err := fuse.Concat(records, fuse.ConcatOpts{Log: r.log})
		if err != nil {
			return res, err
		}
		res.Dataset = ds
	}

	return res, nil
}

func (r *Runner) worker(runID string, groups []fileset.RecordingGroup, outcomes []Outcome, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			outcomes[index] = r.processGroup(runID, groups[index])
			wg.Done()
		} else {
			break
		}
	}

	return
}

// processGroup runs the whole per-recording pipeline: metadata, dF/F,
// analog fusion, spike tallies, serialization.
func (r *Runner) processGroup(runID string, group fileset.RecordingGroup) Outcome {
	out := Outcome{Group: group, Status: StatusProcessed}
	out.Fields = metadata.ParseFovFields(group.Tif, metadata.DefaultPatterns())

	params, err := metadata.ReadScanImage(group.Tif)
	if err != nil {
		r.log.Warn("vendor metadata incomplete, using fallback params", "tif", group.Tif, "error", err)
	}
	fps := params.FPS
	if fps <= 0 {
		fps = r.cfg.Analog.FallbackFPS
	}

	dffMat, err := dff.Load(group.Results)
	if err != nil {
		return out.fail(err)
	}

	_, frames := dffMat.Dims()
	bounds, err := spikes.NewEpochBoundaries(r.cfg.Epochs.FramesBefore, r.cfg.Epochs.FramesDuring, frames)
	if err != nil {
		return out.fail(err)
	}

	attrs := fuse.Attrs{RunID: runID, Source: filepath.Base(group.Tif)}
	if group.Colabeled != "" {
		idx, err := caio.NpytoInt64(group.Colabeled)
		if err != nil {
			return out.fail(err)
		}
		attrs.Colabeled = make([]int, len(idx))
		for i, c := range idx {
			attrs.Colabeled[i] = int(c)
		}
	}

	var record *fuse.FusedRecord
	if group.Analog != "" {
		trace, err := analog.Load(group.Analog)
		if err != nil {
			return out.fail(err)
		}
		record, err = fuse.Align(dffMat, trace, bounds, fps, r.cfg.Thresholds(), attrs)
		if err != nil {
			return out.fail(err)
		}
	} else {
		record, err = fuse.Unmasked(dffMat, bounds, fps, attrs)
		if err != nil {
			return out.fail(err)
		}
	}

	spikeMat := spikes.Detect(record.Plane(analog.EpochAll), fps, r.cfg.Spikes.Threshold, r.cfg.Spikes.MinDist)
	effBounds, err := spikes.NewEpochBoundaries(record.Attrs.FramesBefore, record.Attrs.FramesDuring, record.NumFrames())
	if err != nil {
		return out.fail(err)
	}
	counts, err := spikes.CountByEpoch(spikeMat, effBounds, spikes.CountOpts{})
	if err != nil {
		return out.fail(err)
	}
	out.Counts = counts

	out.FusedPath = fuse.RecordPath(group.Tif)
	if err := fuse.WriteRecord(out.FusedPath, record); err != nil {
		return out.fail(err)
	}

	out.Record = record
	r.log.Info("fov processed", "tif", group.Tif, "cells", record.NumCells(), "frames", record.NumFrames())

	return out
}

func (o Outcome) fail(err error) Outcome {
	o.Status = StatusFailed
	o.Err = err

	return o
}
