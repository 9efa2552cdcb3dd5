package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/pollcord/internal/observability"
)

// Handler runs one task. Returning an error schedules a retry unless the
// error is wrapped with Permanent.
type Handler func(ctx context.Context, t *Task) error

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

// Runner drains one queue with a fixed number of workers.
type Runner struct {
	q       *Queue
	handler Handler
	cfg     RunnerConfig
}

// NewRunner returns a runner executing handler for tasks of q.
func NewRunner(q *Queue, handler Handler, cfg RunnerConfig) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Runner{q: q, handler: handler, cfg: cfg}
}

// Run blocks until ctx is cancelled and every in-flight task returned.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := r.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Str("queue", r.q.Name()).Msg("queue claim failed")
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// RunOnce claims and executes at most one due task. It reports whether a
// task was found.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	t, err := r.q.Claim(ctx, now)
	if err != nil || t == nil {
		return false, err
	}
	observability.QueueLatency.WithLabelValues(r.q.Name()).Observe(now.Sub(t.DueAt).Seconds())

	herr := r.safeHandle(ctx, t)

	// Settling must land even when the failure was a shutdown.
	ctx = context.WithoutCancel(ctx)
	if herr == nil {
		observability.QueueTasks.WithLabelValues(r.q.Name(), "ok").Inc()
		if err := r.q.Ack(ctx, t); err != nil {
			return true, err
		}
		return true, nil
	}

	logger := log.With().Str("queue", r.q.Name()).Str("task", t.Key).Int("attempt", t.Attempts+1).Logger()
	if IsPermanent(herr) || t.Attempts+1 >= r.cfg.MaxAttempts {
		observability.QueueTasks.WithLabelValues(r.q.Name(), "dead").Inc()
		logger.Error().Err(herr).Msg("task failed permanently")
		if err := r.q.Bury(ctx, t, herr.Error()); err != nil {
			logger.Error().Err(err).Msg("bury task")
		}
		return true, nil
	}

	delay := Backoff(t.Attempts, r.cfg.BackoffMin, r.cfg.BackoffMax)
	observability.QueueTasks.WithLabelValues(r.q.Name(), "retry").Inc()
	logger.Warn().Err(herr).Dur("retry_in", delay).Msg("task failed, retrying")
	if err := r.q.Retry(ctx, t, delay); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Runner) safeHandle(ctx context.Context, t *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("queue", r.q.Name()).Str("task", t.Key).Msg("task handler panicked")
			err = Permanent(errors.New("handler panicked"))
		}
	}()
	return r.handler(ctx, t)
}

// Backoff returns the delay before retry number attempts+1: base doubled per
// earlier attempt, capped at ceiling.
func Backoff(attempts int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
