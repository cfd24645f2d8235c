// Package orchestrator runs capture→diff→metrics pipelines across many
// (screen, viewport) jobs on a bounded worker pool, with per-job
// failure isolation and cooperative cancellation.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	_ "image/jpeg" // reference images may be JPEG
	_ "image/png"

	"github.com/standardbeagle/pixelgate/internal/cache"
	"github.com/standardbeagle/pixelgate/internal/capture"
	"github.com/standardbeagle/pixelgate/internal/config"
	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
	"github.com/standardbeagle/pixelgate/internal/visualize"
)

// ErrCanceled marks jobs that never started because cancellation was
// requested before their dispatch.
var ErrCanceled = errors.New("batch canceled before job start")

// Capturer produces screenshots; satisfied by *capture.Service.
type Capturer interface {
	Capture(ctx context.Context, url string, vp capture.Viewport) (*capture.Result, error)
}

// Progress reports a job's state transition to the caller.
type Progress struct {
	JobID  string
	Status Status
	Err    error
}

// Orchestrator wires the capture service, the diff/metrics pipeline,
// and the result cache together.
type Orchestrator struct {
	capturer Capturer
	store    *cache.Store
	cfg      config.Config

	// OnProgress, when set, receives every job state transition. It
	// may be called from multiple workers concurrently.
	OnProgress func(Progress)
}

// New builds an orchestrator. store may be nil to disable caching.
func New(capturer Capturer, store *cache.Store, cfg config.Config) *Orchestrator {
	return &Orchestrator{capturer: capturer, store: store, cfg: cfg}
}

// BatchReport summarizes one orchestrator run. It is finalized only
// after every job reaches a terminal state.
type BatchReport struct {
	Jobs       []*Job        `json:"jobs"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Complete   int           `json:"complete"`
	Failed     int           `json:"failed"`
	CacheHits  int           `json:"cache_hits"`
	PassCutoff float64       `json:"pass_cutoff"`
}

// Run executes all jobs with bounded concurrency. Configuration
// problems are the only fatal errors; job-level failures (capture
// errors, dimension mismatches) are recorded on the job and never abort
// the batch. After ctx is done no new job starts, but in-flight jobs
// run to completion.
func (o *Orchestrator) Run(ctx context.Context, jobs []*Job) (*BatchReport, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	if len(jobs) == 0 {
		return nil, errors.New("configuration: no jobs to run")
	}

	report := &BatchReport{
		Jobs:       jobs,
		StartedAt:  time.Now(),
		PassCutoff: o.cfg.PassCutoff,
	}

	// In-flight pipelines must survive batch cancellation, so workers
	// get a context detached from ctx's cancellation.
	jobCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	for _, job := range jobs {
		if ctx.Err() != nil {
			// Cancellation requested: every not-yet-started job fails
			// terminally without running.
			job.Err = ErrCanceled
			job.status.Store(int32(StatusFailed))
			o.notify(job)
			continue
		}

		job := job
		g.Go(func() error {
			o.runJob(jobCtx, job)
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()

	for _, job := range jobs {
		switch job.Status() {
		case StatusComplete:
			report.Complete++
			if job.Result != nil && job.Result.Cached {
				report.CacheHits++
			}
		case StatusFailed:
			report.Failed++
		}
	}
	report.Duration = time.Since(report.StartedAt)

	log.Printf("[Orchestrator] batch done: %d complete, %d failed, %d cache hits in %s",
		report.Complete, report.Failed, report.CacheHits, report.Duration)
	return report, nil
}

func (o *Orchestrator) notify(job *Job) {
	if o.OnProgress != nil {
		o.OnProgress(Progress{JobID: job.ID(), Status: job.Status(), Err: job.Err})
	}
}

func (o *Orchestrator) fail(job *Job, err error) {
	job.Err = err
	job.status.Store(int32(StatusFailed))
	log.Printf("[Orchestrator] job %s failed: %v", job.ID(), err)
	o.notify(job)
}

// runJob drives one job through its pipeline. Every error path is
// terminal for this job only.
func (o *Orchestrator) runJob(ctx context.Context, job *Job) {
	refPNG, err := os.ReadFile(job.ReferencePath)
	if err != nil {
		o.fail(job, fmt.Errorf("read reference: %w", err))
		return
	}
	refHash := cache.HashBytes(refPNG)

	var key string
	if o.store != nil {
		key, err = cache.BuildKey(job.Screen, job.Viewport, refHash, o.cfg.Comparison())
		if err != nil {
			o.fail(job, fmt.Errorf("build cache key: %w", err))
			return
		}

		if !o.cfg.ForceRefresh {
			if entry, ok := o.store.Get(key); ok {
				job.Result = &Result{
					Diff:     &entry.Diff,
					Metrics:  &entry.Metrics,
					CacheKey: key,
					Cached:   true,
				}
				job.status.Store(int32(StatusComplete))
				o.notify(job)
				return
			}
		}
	}

	if !job.advance(StatusPending, StatusCapturing) {
		o.fail(job, fmt.Errorf("job %s already ran (status %s)", job.ID(), job.Status()))
		return
	}
	o.notify(job)

	shot, err := o.capturer.Capture(ctx, job.URL, job.Viewport)
	if err != nil {
		o.fail(job, err)
		return
	}

	if !job.advance(StatusCapturing, StatusComparing) {
		o.fail(job, fmt.Errorf("job %s status regressed", job.ID()))
		return
	}
	o.notify(job)

	ref, _, err := image.Decode(bytes.NewReader(refPNG))
	if err != nil {
		o.fail(job, fmt.Errorf("decode reference %s: %w", job.ReferencePath, err))
		return
	}
	actual, _, err := image.Decode(bytes.NewReader(shot.PNG))
	if err != nil {
		o.fail(job, fmt.Errorf("decode capture: %w", err))
		return
	}

	diff, err := imagediff.Compare(ref, actual, o.cfg.Diff)
	if err != nil {
		o.fail(job, err)
		return
	}

	mreport, err := metrics.Compute(diff, ref, actual, o.cfg.Metrics)
	if err != nil {
		o.fail(job, err)
		return
	}

	if o.store != nil {
		mask := visualize.MaskImage(visualize.Pair{Reference: ref, Actual: actual}, diff)
		entry := &cache.Entry{
			SourceHashes: map[string]string{job.ReferencePath: refHash},
			Diff:         *diff,
			Metrics:      *mreport,
		}
		if err := o.store.Put(key, entry, mask); err != nil {
			// Cache write failures degrade to uncached operation.
			log.Printf("[Orchestrator] cache write for %s failed: %v", job.ID(), err)
		}
	}

	job.Result = &Result{
		Diff:      diff,
		Metrics:   mreport,
		CacheKey:  key,
		Reference: ref,
		Actual:    actual,
	}
	if !job.advance(StatusComparing, StatusComplete) {
		o.fail(job, fmt.Errorf("job %s status regressed", job.ID()))
		return
	}
	o.notify(job)
}

// ExpandJobs crosses a set of screens with the configured viewports,
// producing one job per (screen, viewport) pair. references maps a
// viewport name to that screen's reference image path.
func ExpandJobs(screens []Screen, viewports []capture.Viewport) ([]*Job, error) {
	var jobs []*Job
	for _, screen := range screens {
		for _, vp := range viewports {
			ref, ok := screen.References[vp.Name]
			if !ok {
				return nil, fmt.Errorf("screen %s has no reference image for viewport %s", screen.ID, vp.Name)
			}
			jobs = append(jobs, &Job{
				Screen:        screen.ID,
				URL:           screen.URL,
				Viewport:      vp,
				ReferencePath: ref,
			})
		}
	}
	return jobs, nil
}

// Screen is one page to validate, with a reference image per viewport.
type Screen struct {
	ID         string            `json:"id" mapstructure:"id"`
	URL        string            `json:"url" mapstructure:"url"`
	References map[string]string `json:"references" mapstructure:"references"`
}
