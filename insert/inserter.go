package insert

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/gocql/gocql"
	"golang.org/x/time/rate"

	"cqlmigrate/internal"
	"cqlmigrate/metrics"
	"cqlmigrate/retry"
	"cqlmigrate/schema"
)

const DefaultBatchSize = 100000

// Target executes a single bound write. Implementations must be safe for
// concurrent use.
type Target interface {
	Exec(ctx context.Context, query string, consistency gocql.Consistency, args []any) error
}

type Options struct {
	// BatchSize is the number of rows submitted between completion barriers.
	BatchSize int
	// MaxInFlight is the high watermark for outstanding writes.
	MaxInFlight int
	// RateLimit caps submissions per second. Zero means unlimited.
	RateLimit float64
	// Progress, when set, is advanced once per successful write.
	Progress *internal.Progress
}

// Summary describes a finished run.
type Summary struct {
	Batches    int
	BatchSizes []int
	Issued     int64
	Succeeded  int64
	Failed     int64
}

// AggregateBatchError collects every write failure of one batch.
type AggregateBatchError struct {
	Batch  int
	Size   int
	Errors []error
}

func (e *AggregateBatchError) Error() string {
	return fmt.Sprintf("batch %d: %d of %d writes failed: %v", e.Batch, len(e.Errors), e.Size, e.Errors[0])
}

func (e *AggregateBatchError) Unwrap() []error { return e.Errors }

// FailedWritesError is returned by Run when any batch had failures.
type FailedWritesError struct {
	Failed  int64
	Batches []*AggregateBatchError
}

func (e *FailedWritesError) Error() string {
	return fmt.Sprintf("%d write(s) failed across %d batch(es)", e.Failed, len(e.Batches))
}

func (e *FailedWritesError) Unwrap() []error {
	errs := make([]error, len(e.Batches))
	for i, b := range e.Batches {
		errs[i] = b
	}
	return errs
}

// BulkInserter writes rows to a Target asynchronously in batches. Within a
// batch, submission is bounded by a Throttle; the next batch starts only
// after every write of the current one has completed.
type BulkInserter struct {
	target   Target
	stmt     *Statement
	policy   *retry.Policy
	throttle *Throttle
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	opts     Options
}

// New returns an inserter that retries through its own copy of policy. A
// hook already set on policy still runs, after the inserter's own.
func New(target Target, stmt *Statement, policy *retry.Policy, opts Options, m *metrics.Metrics) (*BulkInserter, error) {
	if policy == nil {
		return nil, errors.New("retry policy is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if m == nil {
		m = metrics.New(nil)
	}
	b := &BulkInserter{
		target:   target,
		stmt:     stmt,
		throttle: NewThrottle(opts.MaxInFlight),
		metrics:  m,
		opts:     opts,
	}
	if opts.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	hook := policy.OnRetry
	b.policy = policy.WithOnRetry(func(attempt int, category retry.Category, delay time.Duration, err error) {
		b.onRetry(attempt, category, delay, err)
		if hook != nil {
			hook(attempt, category, delay, err)
		}
	})
	return b, nil
}

func (b *BulkInserter) onRetry(attempt int, category retry.Category, delay time.Duration, err error) {
	b.metrics.WriteRetries.WithLabelValues(category.String()).Inc()
	internal.Logger.Debug("Retrying write", "attempt", attempt, "category", category, "delay", delay, "error", err)
}

// Run consumes rows until exhaustion. A row error from the source (such as a
// malformed record) or a bind failure aborts the run after in-flight writes
// settle. Write failures are logged per batch and reported together at the
// end without stopping the run.
func (b *BulkInserter) Run(ctx context.Context, rows iter.Seq2[[]schema.Value, error]) (Summary, error) {
	var (
		summary Summary
		failed  []*AggregateBatchError
		batch   = make([]*Request, 0, b.opts.BatchSize)
		seq     int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		summary.Batches++
		summary.BatchSizes = append(summary.BatchSizes, len(batch))
		summary.Issued += int64(len(batch))

		err := b.flush(ctx, summary.Batches, batch)
		var agg *AggregateBatchError
		switch {
		case errors.As(err, &agg):
			failed = append(failed, agg)
			summary.Failed += int64(len(agg.Errors))
			summary.Succeeded += int64(len(batch) - len(agg.Errors))
		case err != nil:
			return err
		default:
			summary.Succeeded += int64(len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for values, err := range rows {
		if err != nil {
			if ferr := flush(); ferr != nil {
				return summary, ferr
			}
			return summary, fmt.Errorf("failed to read row %d: %w", seq+1, err)
		}
		seq++
		req, err := b.stmt.Bind(seq, values)
		if err != nil {
			if ferr := flush(); ferr != nil {
				return summary, ferr
			}
			return summary, fmt.Errorf("failed to bind row: %w", err)
		}
		batch = append(batch, req)

		if len(batch) >= b.opts.BatchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}

	if len(failed) > 0 {
		return summary, &FailedWritesError{Failed: summary.Failed, Batches: failed}
	}
	return summary, nil
}

// pending is the completion handle of one asynchronous write.
type pending struct {
	req  *Request
	done chan struct{}
	err  error
}

func (p *pending) wait() error {
	<-p.done
	return p.err
}

func (b *BulkInserter) flush(ctx context.Context, n int, batch []*Request) error {
	start := time.Now()
	internal.Logger.Debug("Submitting batch", "batch", n, "rows", len(batch))

	handles := make([]*pending, 0, len(batch))
	var submitErr error
	for _, req := range batch {
		if err := b.submit(ctx, req, &handles); err != nil {
			submitErr = err
			break
		}
	}

	// barrier: every submitted write completes before the next batch
	var errs []error
	for _, h := range handles {
		if err := h.wait(); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", h.req.Seq, err))
		}
	}
	b.metrics.BatchDurations.Observe(time.Since(start).Seconds())

	if submitErr != nil {
		return fmt.Errorf("batch %d interrupted: %w", n, submitErr)
	}
	if len(errs) > 0 {
		agg := &AggregateBatchError{Batch: n, Size: len(batch), Errors: errs}
		for _, err := range flatten(errs) {
			internal.Logger.Error("Write failed", "batch", n, "error", err)
		}
		return agg
	}

	internal.Logger.Debug("Batch complete", "batch", n, "rows", len(batch), "duration", time.Since(start))
	return nil
}

func (b *BulkInserter) submit(ctx context.Context, req *Request, handles *[]*pending) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	waited, err := b.throttle.Acquire(ctx)
	if err != nil {
		return err
	}
	if waited {
		b.metrics.ThrottleWaits.Inc()
		low, high := b.throttle.Watermarks()
		internal.Logger.Debug("Resumed after in-flight limit", "row", req.Seq, "high", high, "low", low)
	}

	h := &pending{req: req, done: make(chan struct{})}
	*handles = append(*handles, h)
	b.metrics.WritesIssued.Inc()
	b.metrics.InFlight.Inc()

	go func() {
		defer close(h.done)
		h.err = b.policy.Do(ctx, func(ctx context.Context) error {
			return b.target.Exec(ctx, req.Statement.Query, req.Statement.Consistency, req.Args)
		})
		b.metrics.InFlight.Dec()
		b.throttle.Release()
		if h.err != nil {
			b.metrics.WriteFailures.Inc()
		} else if b.opts.Progress != nil {
			b.opts.Progress.Add(1)
		}
	}()
	return nil
}

// flatten expands joined errors so each driver failure is logged on its own.
func flatten(errs []error) []error {
	var out []error
	var walk func(error)
	walk = func(err error) {
		if u, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range u.Unwrap() {
				walk(e)
			}
			return
		}
		out = append(out, err)
	}
	for _, err := range errs {
		walk(err)
	}
	return out
}
