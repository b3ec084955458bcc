package reindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/poller"
)

// JobKind is the kind recorded for reindex jobs.
const JobKind = "reindex"

var (
	ErrJobNotFound = errors.New("reindex: job not found")
	ErrJobFailed   = errors.New("reindex: job failed")
)

// NewJob records a pending reindex job and returns it.
func NewJob(s store.Storer) (*store.Job, error) {
	job := &store.Job{
		ID:     uuid.NewString(),
		Kind:   JobKind,
		Status: store.JobPending,
	}
	if err := s.CreateJob(job); err != nil {
		return nil, fmt.Errorf("reindex: create job: %w", err)
	}
	return job, nil
}

// RunJob runs r and mirrors its progress into job: running with a document
// total, progress after every page, then succeeded with the JSON report or
// failed with the error text. It returns the run's report and error.
func RunJob(ctx context.Context, r *Reindexer, job *store.Job) (Report, error) {
	s := r.Store
	total, err := s.CountDocuments()
	if err != nil {
		return Report{}, fmt.Errorf("reindex: count documents: %w", err)
	}
	job.Status = store.JobRunning
	job.Total = total
	if err := s.UpdateJob(job); err != nil {
		return Report{}, fmt.Errorf("reindex: mark job running: %w", err)
	}

	onPage := r.OnPage
	run := *r
	run.OnPage = func(rep Report) {
		job.Progress = rep.Scanned
		if err := s.UpdateJob(job); err != nil && r.Logger != nil {
			r.Logger.Warn("job progress not recorded", zap.String("job", job.ID), zap.Error(err))
		}
		if onPage != nil {
			onPage(rep)
		}
	}

	report, runErr := run.Run(ctx)
	if runErr != nil {
		job.Status = store.JobFailed
		job.Error = runErr.Error()
	} else {
		job.Status = store.JobSucceeded
		job.Progress = report.Scanned
		b, err := json.Marshal(report)
		if err != nil {
			return report, fmt.Errorf("reindex: encode report: %w", err)
		}
		job.Result = string(b)
	}
	if err := s.UpdateJob(job); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("reindex: finish job: %w", err))
	}
	return report, runErr
}

// WaitOptions configures WaitJob and WaitJobs.
type WaitOptions struct {
	Interval   time.Duration
	Threshold  int
	OnProgress func(job *store.Job)
	Logger     *zap.Logger
}

// WaitJob polls the job until it finishes. A failed job returns the job
// together with an error wrapping ErrJobFailed. Running out of attempts
// returns an error matching poller.ErrThresholdExceeded.
func WaitJob(ctx context.Context, s store.Storer, id string, opts WaitOptions) (*store.Job, error) {
	p := poller.New[*store.Job](opts.Interval, opts.Threshold).
		Poll(func(ctx context.Context) (bool, *store.Job, error) {
			job, err := s.GetJob(id)
			if err != nil {
				return false, nil, fmt.Errorf("reindex: get job %s: %w", id, err)
			}
			if job == nil {
				return false, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return job.Status.Done(), job, nil
		})
	if opts.OnProgress != nil {
		p.Progress(func(_, _ int, job *store.Job) { opts.OnProgress(job) })
	}
	if opts.Logger != nil {
		p.Logger(opts.Logger.With(zap.String("job", id)))
	}

	p.Start(ctx)
	job, err := p.Wait(ctx)
	if err != nil {
		p.Stop()
		return nil, err
	}
	if job.Status == store.JobFailed {
		return job, fmt.Errorf("%w: %s: %s", ErrJobFailed, id, job.Error)
	}
	return job, nil
}

// RunAndWatch runs the job on ctx while a poller reports its progress.
// Running out of poll attempts only ends the watching; the run itself is
// bounded by ctx alone. A failed run is reported through RunJob's error.
func RunAndWatch(ctx context.Context, r *Reindexer, job *store.Job, opts WaitOptions) (Report, error) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := WaitJob(ctx, r.Store, job.ID, opts)
		switch {
		case errors.Is(err, poller.ErrThresholdExceeded):
			if opts.Logger != nil {
				opts.Logger.Warn("stopped watching job", zap.String("job", job.ID), zap.Error(err))
			}
			return nil
		case errors.Is(err, ErrJobFailed):
			return nil
		}
		return err
	})

	report, runErr := RunJob(ctx, r, job)
	watchErr := g.Wait()
	if runErr != nil {
		return report, runErr
	}
	return report, watchErr
}

// WaitJobs waits for several jobs concurrently. The first failure cancels
// the remaining waits.
func WaitJobs(ctx context.Context, s store.Storer, ids []string, opts WaitOptions) ([]*store.Job, error) {
	jobs := make([]*store.Job, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			job, err := WaitJob(ctx, s, id, opts)
			jobs[i] = job
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return jobs, err
	}
	return jobs, nil
}
