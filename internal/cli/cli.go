package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"cgmatch/internal/config"
	"cgmatch/internal/imageio"
	"cgmatch/internal/match"
	"cgmatch/internal/pipeline"
	"cgmatch/internal/report"
	"cgmatch/internal/scan"
	"cgmatch/internal/storage"
)

// Root wires CLI commands to the processing pipeline.
type Root struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.Store
}

// NewRoot constructs the CLI root.
func NewRoot(cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{cfg: cfg, log: logger, store: store}
}

// runOptions captures per-invocation settings shared by process and watch.
type runOptions struct {
	input       string
	output      string
	mode        string // "auto" or "rule"
	basePattern string
	diffPattern string
	skipGlob    string
	dryRun      bool
}

// runOnce scans the input tree, classifies pairs and processes them through
// the worker pool. It returns the collected report.
func (r *Root) runOnce(ctx context.Context, opts runOptions) (*report.Report, error) {
	return r.run(ctx, opts, nil)
}

// run is runOnce plus an optional hook that receives the live pipeline, used
// by serve to stream pair results to clients.
func (r *Root) run(ctx context.Context, opts runOptions, attach func(*pipeline.Pipeline)) (*report.Report, error) {
	cache := imageio.NewCache()
	jobs, err := r.collectJobs(opts, cache)
	if err != nil {
		return nil, err
	}

	rep := report.New()
	if opts.dryRun {
		for _, job := range jobs {
			r.log.Info("pair planned",
				"base", job.BasePath,
				"diff", job.DiffPath,
				"status", string(job.Status),
				"reason", job.Reason,
			)
		}
		rep.Finish()
		return rep, nil
	}

	jobs, err = r.applySkips(jobs, opts.skipGlob, rep)
	if err != nil {
		return nil, err
	}

	runID := newID("run")
	if r.store != nil {
		_ = r.store.RecordRunStart(storage.RunRecord{
			ID:       runID,
			Mode:     opts.mode,
			InputDir: opts.input,

			OutputDir: opts.output,
		})
	}

	runner := pipeline.NewPairRunner(r.log, r.cfg, opts.output)
	pipe := pipeline.New(ctx, r.cfg.Processing.ParallelJobs, r.log, r.store, runID, runner)

	if attach != nil {
		attach(pipe)
	}

	items, unsub := pipe.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for item := range items {
			rep.Add(item)
		}
	}()

	for _, job := range jobs {
		if err := pipe.SubmitWait(ctx, job); err != nil {
			pipe.Stop()
			wg.Wait()
			return rep, err
		}
	}

	pipe.Drain()
	unsub()
	wg.Wait()
	rep.Finish()

	if r.store != nil {
		success, failed, skipped := rep.Counts()
		_ = r.store.RecordRunFinish(runID, success, failed, skipped)
	}

	return rep, nil
}

// collectJobs runs the auto classifier or the rule matcher over the input
// tree.
func (r *Root) collectJobs(opts runOptions, cache *imageio.Cache) ([]match.PairJob, error) {
	if opts.mode == "rule" {
		basePat, err := match.CompilePattern(opts.basePattern)
		if err != nil {
			return nil, fmt.Errorf("base pattern: %w", err)
		}
		diffPat, err := match.CompilePattern(opts.diffPattern)
		if err != nil {
			return nil, fmt.Errorf("diff pattern: %w", err)
		}
		res, err := scan.RunRule(opts.input, basePat, diffPat, scan.Options{
			Recursive: r.cfg.Processing.Recursive,
			Log:       r.log,
		})
		if err != nil {
			return nil, err
		}
		return res.Jobs, nil
	}

	res, err := scan.Run(opts.input, scan.Options{
		Recursive:  r.cfg.Processing.Recursive,
		Thresholds: r.cfg.Classifier,
		Cache:      cache,
		Log:        r.log,
	})
	if err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// applySkips removes jobs whose diff matches the skip glob, recording them
// as user-skipped.
func (r *Root) applySkips(jobs []match.PairJob, skipGlob string, rep *report.Report) ([]match.PairJob, error) {
	if skipGlob == "" {
		return jobs, nil
	}
	if _, err := filepath.Match(skipGlob, ""); err != nil {
		return nil, fmt.Errorf("skip pattern: %w", err)
	}
	kept := jobs[:0]
	for _, job := range jobs {
		ok, _ := filepath.Match(skipGlob, filepath.Base(job.DiffPath))
		if ok {
			rep.Add(report.Item{
				BasePath: job.BasePath,
				DiffPath: job.DiffPath,
				Status:   report.StatusSkipped,
				Reason:   report.ReasonUserSkip,
				Detail:   fmt.Sprintf("matched skip pattern %q", skipGlob),
			})
			continue
		}
		kept = append(kept, job)
	}
	return kept, nil
}

func newID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%04d", prefix, ts, rand.Intn(10000))
}
