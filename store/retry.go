package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/logging"
)

// RetryOptions configures the Retrying decorator.
type RetryOptions struct {
	// MaxTries is the total number of attempts per operation.
	MaxTries uint
	// InitialInterval and MaxInterval bound the exponential wait between attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          logging.Logger
}

// DefaultRetryOptions holds the defaults: three attempts waiting between
// four and ten seconds.
var DefaultRetryOptions = RetryOptions{
	MaxTries:        3,
	InitialInterval: 4 * time.Second,
	MaxInterval:     10 * time.Second,
	Logger:          logging.NoOpLogger{},
}

// Retrying wraps a core.Store retrying failed operations with exponential
// backoff. Failures remaining after the last attempt are returned as
// *core.PersistenceError. core.ErrNotFound is never retried and is returned
// unwrapped.
type Retrying struct {
	next core.Store
	opts RetryOptions
}

// NewRetrying decorates next.
func NewRetrying(next core.Store, optFns ...func(o *RetryOptions)) *Retrying {
	opts := DefaultRetryOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Retrying{next: next, opts: opts}
}

func (r *Retrying) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.Multiplier = 2
	return b
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && errors.Is(err, core.ErrNotFound) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.opts.Logger.Warn("store operation failed, retrying", "op", op, "error", err, "wait", wait)
		}),
	)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return res, err
		}
		var pe *core.PersistenceError
		if errors.As(err, &pe) {
			return res, err
		}
		return res, &core.PersistenceError{Op: op, Err: err}
	}
	return res, nil
}

func retryVoid(ctx context.Context, r *Retrying, op string, fn func() error) error {
	_, err := retry(ctx, r, op, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// SaveProjectState implements core.ProjectStore.
func (r *Retrying) SaveProjectState(ctx context.Context, p *core.ProjectState) error {
	return retryVoid(ctx, r, "save_project_state", func() error { return r.next.SaveProjectState(ctx, p) })
}

// LoadProjectState implements core.ProjectStore.
func (r *Retrying) LoadProjectState(ctx context.Context, projectID string) (*core.ProjectState, error) {
	return retry(ctx, r, "load_project_state", func() (*core.ProjectState, error) { return r.next.LoadProjectState(ctx, projectID) })
}

// ListProjects implements core.ProjectStore.
func (r *Retrying) ListProjects(ctx context.Context) ([]string, error) {
	return retry(ctx, r, "list_projects", func() ([]string, error) { return r.next.ListProjects(ctx) })
}

// SaveCheckpoint implements core.CheckpointStore.
func (r *Retrying) SaveCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	return retryVoid(ctx, r, "save_checkpoint", func() error { return r.next.SaveCheckpoint(ctx, cp) })
}

// LoadLatestCheckpoint implements core.CheckpointStore.
func (r *Retrying) LoadLatestCheckpoint(ctx context.Context, projectID string, phase core.Phase) (*core.Checkpoint, error) {
	return retry(ctx, r, "load_latest_checkpoint", func() (*core.Checkpoint, error) {
		return r.next.LoadLatestCheckpoint(ctx, projectID, phase)
	})
}

// AppendFeedback implements core.FeedbackStore.
func (r *Retrying) AppendFeedback(ctx context.Context, projectID string, fb core.Feedback) error {
	return retryVoid(ctx, r, "append_feedback", func() error { return r.next.AppendFeedback(ctx, projectID, fb) })
}

// ListFeedback implements core.FeedbackStore.
func (r *Retrying) ListFeedback(ctx context.Context, projectID string) ([]core.Feedback, error) {
	return retry(ctx, r, "list_feedback", func() ([]core.Feedback, error) { return r.next.ListFeedback(ctx, projectID) })
}
